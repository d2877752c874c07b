package scheduler

import (
	"github.com/popupkit/popupkit/internal/timeutil"
)

// validateCreate checks the structural invariants of a new schedule.
// It returns a *ValidationError naming the first offending field.
func validateCreate(req *CreateScheduleRequest) error {
	if req == nil {
		return newValidationError("request", "missing request body")
	}
	if req.Name == "" {
		return newValidationError("name", "name is required")
	}
	if req.StartDate == "" {
		return newValidationError("startDate", "startDate is required")
	}

	startDate, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return newValidationError("startDate", err.Error())
	}
	if req.EndDate != "" {
		endDate, err := timeutil.ParseDate(req.EndDate)
		if err != nil {
			return newValidationError("endDate", err.Error())
		}
		if endDate.Before(startDate) {
			return newValidationError("endDate", "endDate must not precede startDate")
		}
	}

	if !req.Type.Valid() {
		return newValidationError("type", "unknown schedule type "+string(req.Type))
	}

	// Clock strings feed lexical comparisons, so malformed values are
	// rejected here rather than silently never matching.
	if req.StartTime != "" && !timeutil.ValidClock(req.StartTime) {
		return newValidationError("startTime", "expected HH:mm, got "+req.StartTime)
	}
	if req.EndTime != "" && !timeutil.ValidClock(req.EndTime) {
		return newValidationError("endTime", "expected HH:mm, got "+req.EndTime)
	}

	return nil
}

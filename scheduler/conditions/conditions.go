// Package conditions implements the extensible predicate layer of
// schedule evaluation. A schedule may carry an opaque conditions
// payload; an Evaluator decides whether the payload holds at a given
// instant. Schedules without a payload are always eligible.
package conditions

import (
	"encoding/json"
	"time"
)

// Context carries the evaluation state visible to condition
// expressions. At is already converted into the schedule's timezone.
type Context struct {
	At       time.Time
	ShopID   string
	Schedule string
	Type     string
	Priority int32
}

// Evaluator decides whether a conditions payload holds. Implementations
// must treat an empty payload as true.
type Evaluator interface {
	Evaluate(payload json.RawMessage, evalCtx Context) bool
}

// AlwaysTrue is the default evaluator: every schedule is eligible
// regardless of its conditions payload. This mirrors the engine's
// baseline behavior before targeting rules are configured.
type AlwaysTrue struct{}

func (AlwaysTrue) Evaluate(payload json.RawMessage, evalCtx Context) bool {
	return true
}

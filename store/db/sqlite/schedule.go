package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

const scheduleColumns = `id, uid, shop_id, name, type, start_date, end_date, start_time, end_time, timezone, recurrence, popup_config, conditions, enabled, priority, created_ts, updated_ts`

func (d *DB) CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error) {
	recurrence, err := marshalRecurrence(create.Recurrence)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO schedule (uid, shop_id, name, type, start_date, end_date, start_time, end_time, timezone, recurrence, popup_config, conditions, enabled, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + scheduleColumns
	row := d.db.QueryRowContext(ctx, query,
		create.UID,
		create.ShopID,
		create.Name,
		string(create.Type),
		timeutil.FormatDate(create.StartDate),
		endDateValue(create.EndDate),
		create.StartTime,
		create.EndTime,
		create.Timezone,
		recurrence,
		popupConfigValue(create.PopupConfig),
		rawJSONValue(create.Conditions),
		create.Enabled,
		create.Priority,
	)

	schedule, err := scanSchedule(row)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schedule")
	}
	return schedule, nil
}

func (d *DB) ListSchedules(ctx context.Context, find *store.FindSchedule) ([]*store.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule WHERE 1=1`
	var args []any

	if find.ID != nil {
		query += " AND id = ?"
		args = append(args, *find.ID)
	}
	if find.UID != nil {
		query += " AND uid = ?"
		args = append(args, *find.UID)
	}
	if find.ShopID != nil {
		query += " AND shop_id = ?"
		args = append(args, *find.ShopID)
	}
	if find.Type != nil {
		query += " AND type = ?"
		args = append(args, string(*find.Type))
	}
	if find.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *find.Enabled)
	}

	query += " ORDER BY id ASC"
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT %d", *find.Limit)
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET %d", *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	defer rows.Close()

	var schedules []*store.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan schedule")
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	return schedules, nil
}

func (d *DB) UpdateSchedule(ctx context.Context, update *store.Schedule) (*store.Schedule, error) {
	recurrence, err := marshalRecurrence(update.Recurrence)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE schedule
		SET shop_id = ?, name = ?, type = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?,
			timezone = ?, recurrence = ?, popup_config = ?, conditions = ?, enabled = ?, priority = ?,
			updated_ts = strftime('%s', 'now')
		WHERE uid = ?
		RETURNING ` + scheduleColumns
	row := d.db.QueryRowContext(ctx, query,
		update.ShopID,
		update.Name,
		string(update.Type),
		timeutil.FormatDate(update.StartDate),
		endDateValue(update.EndDate),
		update.StartTime,
		update.EndTime,
		update.Timezone,
		recurrence,
		popupConfigValue(update.PopupConfig),
		rawJSONValue(update.Conditions),
		update.Enabled,
		update.Priority,
		update.UID,
	)

	schedule, err := scanSchedule(row)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update schedule %s", update.UID)
	}
	return schedule, nil
}

func (d *DB) DeleteSchedule(ctx context.Context, delete *store.DeleteSchedule) error {
	query := `DELETE FROM schedule WHERE uid = ? AND shop_id = ?`
	if _, err := d.db.ExecContext(ctx, query, delete.UID, delete.ShopID); err != nil {
		return errors.Wrapf(err, "failed to delete schedule %s", delete.UID)
	}
	return nil
}

func (d *DB) ListShops(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT shop_id FROM schedule ORDER BY shop_id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shops")
	}
	defer rows.Close()

	var shops []string
	for rows.Next() {
		var shop string
		if err := rows.Scan(&shop); err != nil {
			return nil, errors.Wrap(err, "failed to scan shop id")
		}
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list shops")
	}
	return shops, nil
}

// scanSchedule reads one schedule row from either *sql.Row or *sql.Rows.
func scanSchedule(row interface{ Scan(dest ...any) error }) (*store.Schedule, error) {
	var schedule store.Schedule
	var scheduleType, startDate string
	var endDate, recurrence, conditions sql.NullString
	var popupConfig string

	if err := row.Scan(
		&schedule.ID,
		&schedule.UID,
		&schedule.ShopID,
		&schedule.Name,
		&scheduleType,
		&startDate,
		&endDate,
		&schedule.StartTime,
		&schedule.EndTime,
		&schedule.Timezone,
		&recurrence,
		&popupConfig,
		&conditions,
		&schedule.Enabled,
		&schedule.Priority,
		&schedule.CreatedTs,
		&schedule.UpdatedTs,
	); err != nil {
		return nil, err
	}

	schedule.Type = store.ScheduleType(scheduleType)
	parsedStart, err := timeutil.ParseDate(startDate)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt start_date %q", startDate)
	}
	schedule.StartDate = parsedStart
	if endDate.Valid {
		parsedEnd, err := timeutil.ParseDate(endDate.String)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt end_date %q", endDate.String)
		}
		schedule.EndDate = &parsedEnd
	}
	if recurrence.Valid && recurrence.String != "" {
		var rule store.Recurrence
		if err := json.Unmarshal([]byte(recurrence.String), &rule); err != nil {
			return nil, errors.Wrap(err, "corrupt recurrence payload")
		}
		schedule.Recurrence = &rule
	}
	schedule.PopupConfig = json.RawMessage(popupConfig)
	if conditions.Valid && conditions.String != "" {
		schedule.Conditions = json.RawMessage(conditions.String)
	}
	return &schedule, nil
}

func marshalRecurrence(rule *store.Recurrence) (sql.NullString, error) {
	if rule == nil {
		return sql.NullString{}, nil
	}
	buf, err := json.Marshal(rule)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "failed to marshal recurrence")
	}
	return sql.NullString{String: string(buf), Valid: true}, nil
}

func popupConfigValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func rawJSONValue(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func endDateValue(endDate *time.Time) sql.NullString {
	if endDate == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: timeutil.FormatDate(*endDate), Valid: true}
}

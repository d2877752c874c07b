package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

const scheduleColumns = `id, uid, shop_id, name, type, start_date, end_date, start_time, end_time, timezone, recurrence, popup_config, conditions, enabled, priority, created_ts, updated_ts`

func (db *DB) CreateSchedule(ctx context.Context, create *store.Schedule) (*store.Schedule, error) {
	recurrence, err := marshalRecurrence(create.Recurrence)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO schedule (uid, shop_id, name, type, start_date, end_date, start_time, end_time, timezone, recurrence, popup_config, conditions, enabled, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + scheduleColumns
	row := db.db.QueryRowContext(ctx, query,
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
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}
	return schedule, nil
}

func (db *DB) ListSchedules(ctx context.Context, find *store.FindSchedule) ([]*store.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule WHERE 1=1`
	var args []interface{}
	argIndex := 1

	if find.ID != nil {
		query += fmt.Sprintf(" AND id = $%d", argIndex)
		args = append(args, *find.ID)
		argIndex++
	}
	if find.UID != nil {
		query += fmt.Sprintf(" AND uid = $%d", argIndex)
		args = append(args, *find.UID)
		argIndex++
	}
	if find.ShopID != nil {
		query += fmt.Sprintf(" AND shop_id = $%d", argIndex)
		args = append(args, *find.ShopID)
		argIndex++
	}
	if find.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", argIndex)
		args = append(args, string(*find.Type))
		argIndex++
	}
	if find.Enabled != nil {
		query += fmt.Sprintf(" AND enabled = $%d", argIndex)
		args = append(args, *find.Enabled)
		argIndex++
	}

	query += " ORDER BY id ASC"
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, *find.Limit)
		argIndex++
		if find.Offset != nil {
			query += fmt.Sprintf(" OFFSET $%d", argIndex)
			args = append(args, *find.Offset)
		}
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*store.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

func (db *DB) UpdateSchedule(ctx context.Context, update *store.Schedule) (*store.Schedule, error) {
	recurrence, err := marshalRecurrence(update.Recurrence)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE schedule
		SET shop_id = $1, name = $2, type = $3, start_date = $4, end_date = $5, start_time = $6, end_time = $7,
			timezone = $8, recurrence = $9, popup_config = $10, conditions = $11, enabled = $12, priority = $13,
			updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT
		WHERE uid = $14
		RETURNING ` + scheduleColumns
	row := db.db.QueryRowContext(ctx, query,
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
		return nil, fmt.Errorf("failed to update schedule %s: %w", update.UID, err)
	}
	return schedule, nil
}

func (db *DB) DeleteSchedule(ctx context.Context, delete *store.DeleteSchedule) error {
	query := `DELETE FROM schedule WHERE uid = $1 AND shop_id = $2`
	if _, err := db.db.ExecContext(ctx, query, delete.UID, delete.ShopID); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", delete.UID, err)
	}
	return nil
}

func (db *DB) ListShops(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx, `SELECT DISTINCT shop_id FROM schedule ORDER BY shop_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	var shops []string
	for rows.Next() {
		var shop string
		if err := rows.Scan(&shop); err != nil {
			return nil, fmt.Errorf("failed to scan shop id: %w", err)
		}
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	return shops, nil
}

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
		return nil, fmt.Errorf("corrupt start_date %q: %w", startDate, err)
	}
	schedule.StartDate = parsedStart
	if endDate.Valid {
		parsedEnd, err := timeutil.ParseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt end_date %q: %w", endDate.String, err)
		}
		schedule.EndDate = &parsedEnd
	}
	if recurrence.Valid && recurrence.String != "" {
		var rule store.Recurrence
		if err := json.Unmarshal([]byte(recurrence.String), &rule); err != nil {
			return nil, fmt.Errorf("corrupt recurrence payload: %w", err)
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
		return sql.NullString{}, fmt.Errorf("failed to marshal recurrence: %w", err)
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

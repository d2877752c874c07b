package postgres

import (
	"context"
	"fmt"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

func (db *DB) CreateCustomHoliday(ctx context.Context, create *store.CustomHoliday) (*store.CustomHoliday, error) {
	query := `
		INSERT INTO custom_holiday (shop_id, name, date, recurring)
		VALUES ($1, $2, $3, $4)
		RETURNING id, shop_id, name, date, recurring, created_ts
	`
	holiday, err := scanCustomHoliday(db.db.QueryRowContext(ctx, query,
		create.ShopID,
		create.Name,
		timeutil.FormatDate(create.Date),
		create.Recurring,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create custom holiday: %w", err)
	}
	return holiday, nil
}

func (db *DB) ListCustomHolidays(ctx context.Context, find *store.FindCustomHoliday) ([]*store.CustomHoliday, error) {
	query := `SELECT id, shop_id, name, date, recurring, created_ts FROM custom_holiday WHERE 1=1`
	var args []interface{}
	argIndex := 1

	if find.ID != nil {
		query += fmt.Sprintf(" AND id = $%d", argIndex)
		args = append(args, *find.ID)
		argIndex++
	}
	if find.ShopID != nil {
		query += fmt.Sprintf(" AND shop_id = $%d", argIndex)
		args = append(args, *find.ShopID)
	}
	query += " ORDER BY date ASC"

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom holidays: %w", err)
	}
	defer rows.Close()

	var holidays []*store.CustomHoliday
	for rows.Next() {
		holiday, err := scanCustomHoliday(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan custom holiday: %w", err)
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list custom holidays: %w", err)
	}
	return holidays, nil
}

func (db *DB) DeleteCustomHoliday(ctx context.Context, delete *store.DeleteCustomHoliday) error {
	query := `DELETE FROM custom_holiday WHERE id = $1 AND shop_id = $2`
	if _, err := db.db.ExecContext(ctx, query, delete.ID, delete.ShopID); err != nil {
		return fmt.Errorf("failed to delete custom holiday %d: %w", delete.ID, err)
	}
	return nil
}

func scanCustomHoliday(row interface{ Scan(dest ...any) error }) (*store.CustomHoliday, error) {
	var holiday store.CustomHoliday
	var date string
	if err := row.Scan(
		&holiday.ID,
		&holiday.ShopID,
		&holiday.Name,
		&date,
		&holiday.Recurring,
		&holiday.CreatedTs,
	); err != nil {
		return nil, err
	}
	parsed, err := timeutil.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("corrupt holiday date %q: %w", date, err)
	}
	holiday.Date = parsed
	return &holiday, nil
}

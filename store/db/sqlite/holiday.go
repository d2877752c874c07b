package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/popupkit/popupkit/internal/timeutil"
	"github.com/popupkit/popupkit/store"
)

func (d *DB) CreateCustomHoliday(ctx context.Context, create *store.CustomHoliday) (*store.CustomHoliday, error) {
	query := `
		INSERT INTO custom_holiday (shop_id, name, date, recurring)
		VALUES (?, ?, ?, ?)
		RETURNING id, shop_id, name, date, recurring, created_ts
	`
	holiday, err := scanCustomHoliday(d.db.QueryRowContext(ctx, query,
		create.ShopID,
		create.Name,
		timeutil.FormatDate(create.Date),
		create.Recurring,
	))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create custom holiday")
	}
	return holiday, nil
}

func (d *DB) ListCustomHolidays(ctx context.Context, find *store.FindCustomHoliday) ([]*store.CustomHoliday, error) {
	query := `SELECT id, shop_id, name, date, recurring, created_ts FROM custom_holiday WHERE 1=1`
	var args []any

	if find.ID != nil {
		query += " AND id = ?"
		args = append(args, *find.ID)
	}
	if find.ShopID != nil {
		query += " AND shop_id = ?"
		args = append(args, *find.ShopID)
	}
	query += " ORDER BY date ASC"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list custom holidays")
	}
	defer rows.Close()

	var holidays []*store.CustomHoliday
	for rows.Next() {
		holiday, err := scanCustomHoliday(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan custom holiday")
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list custom holidays")
	}
	return holidays, nil
}

func (d *DB) DeleteCustomHoliday(ctx context.Context, delete *store.DeleteCustomHoliday) error {
	query := `DELETE FROM custom_holiday WHERE id = ? AND shop_id = ?`
	if _, err := d.db.ExecContext(ctx, query, delete.ID, delete.ShopID); err != nil {
		return errors.Wrapf(err, "failed to delete custom holiday %d", delete.ID)
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
		return nil, errors.Wrapf(err, "corrupt holiday date %q", date)
	}
	holiday.Date = parsed
	return &holiday, nil
}

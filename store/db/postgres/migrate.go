package postgres

import (
	"context"
	_ "embed"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/popupkit/popupkit/internal/version"
)

//go:embed migration/schema.sql
var schemaSQL string

// Migrate applies the schema and stamps the running version. The schema
// is written to be idempotent, so re-running it is safe.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}

	current := version.GetCurrentVersion(d.profile.Mode)
	latest, err := d.latestMigrationVersion(ctx)
	if err != nil {
		return err
	}
	if latest != "" && !version.IsVersionGreaterThan(current, latest) {
		return nil
	}

	if _, err := d.db.ExecContext(ctx,
		"INSERT INTO migration_history (version) VALUES ($1) ON CONFLICT (version) DO NOTHING", current,
	); err != nil {
		return errors.Wrap(err, "failed to record migration version")
	}
	slog.Info("database migrated", "driver", "postgres", "version", current)
	return nil
}

func (d *DB) latestMigrationVersion(ctx context.Context) (string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM migration_history")
	if err != nil {
		return "", errors.Wrap(err, "failed to read migration history")
	}
	defer rows.Close()

	var latest string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", errors.Wrap(err, "failed to scan migration version")
		}
		if latest == "" || version.IsVersionGreaterThan(v, latest) {
			latest = v
		}
	}
	if err := rows.Err(); err != nil {
		return "", errors.Wrap(err, "failed to read migration history")
	}
	return latest, nil
}

package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_refresh_events",
		SQL: `CREATE TABLE IF NOT EXISTS refresh_events (
  id          UUID        PRIMARY KEY,
  status      TEXT        NOT NULL CHECK (status IN ('success', 'failed', 'skipped')),
  error       TEXT        NOT NULL DEFAULT '',
  expiry_date BIGINT      NOT NULL DEFAULT 0,
  duration_ms BIGINT      NOT NULL DEFAULT 0 CHECK (duration_ms >= 0),
  created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_refresh_events_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_refresh_events_created_at ON refresh_events (created_at DESC, id DESC);`,
	},
	{
		Name: "create_index_refresh_events_status",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_refresh_events_status ON refresh_events (status);`,
	},
}

// EnsureMigrated creates the refresh_events schema unless the sentinel table already exists.
func EnsureMigrated(ctx context.Context, db *sql.DB, log zerolog.Logger) error {
	start := time.Now()
	log = log.With().Str("component", "database").Logger()

	log.Info().Str("event", "db_migration_check").Msg("checking audit schema")

	var exists bool
	const query = "SELECT to_regclass('public.refresh_events') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error().
			Err(err).
			Str("event", "db_migration_failed").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("failed to check sentinel table")
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info().
			Str("event", "db_migration_skip").
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("schema already exists, skipping migration")
		return nil
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error().
				Err(err).
				Str("event", "db_migration_failed").
				Str("migration_step", step.Name).
				Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
				Msg("migration step failed")
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		log.Info().
			Str("event", "db_migration_step").
			Str("migration_step", step.Name).
			Int64("step_duration_ms", time.Since(stepStart).Milliseconds()).
			Msg("migration step applied")
	}

	log.Info().
		Str("event", "db_migration_success").
		Int("steps", len(steps)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("audit schema migrated")
	return nil
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/adelinocpp/postgraduate-schedules/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// schema holds the versioned timetable table. Versions are unique per
// (course, academic_year, cohort_mode, semester), at most one of them is
// PUBLISHED, and rows are never rewritten apart from their status.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS timetable_envelopes (
		id            UUID PRIMARY KEY,
		course        TEXT NOT NULL,
		academic_year TEXT NOT NULL,
		cohort_mode   TEXT NOT NULL,
		semester      INTEGER NOT NULL,
		version       INTEGER NOT NULL,
		status        TEXT NOT NULL DEFAULT 'DRAFT',
		validity      TEXT NOT NULL,
		calendar_ref  TEXT NOT NULL,
		payload       JSONB NOT NULL,
		generated_at  TIMESTAMPTZ NOT NULL,
		published_at  TIMESTAMPTZ NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (course, academic_year, cohort_mode, semester, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_timetable_envelopes_key
		ON timetable_envelopes (course, academic_year, cohort_mode, semester, version DESC)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_timetable_envelopes_published
		ON timetable_envelopes (course, academic_year, cohort_mode, semester)
		WHERE status = 'PUBLISHED'`,
}

// EnsureSchema creates the tables the service needs when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

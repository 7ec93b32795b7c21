package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the tables the timetable API reads and writes. Every
// statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_lab BOOLEAN NOT NULL DEFAULT FALSE,
		kind TEXT NOT NULL DEFAULT 'Regular',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS faculty (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'Regular',
		subject_ids TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS faculty_availability (
		faculty_id TEXT NOT NULL REFERENCES faculty(id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		start_time TIME NOT NULL,
		end_time TIME NOT NULL,
		PRIMARY KEY (faculty_id, day, start_time)
	)`,
	`CREATE TABLE IF NOT EXISTS class_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subject_ids TEXT[] NOT NULL DEFAULT '{}',
		batches TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		capacity INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS timetables (
		id UUID PRIMARY KEY,
		version INTEGER NOT NULL UNIQUE,
		status TEXT NOT NULL,
		violation_count INTEGER NOT NULL DEFAULT 0,
		meta JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS timetable_entries (
		id UUID PRIMARY KEY,
		timetable_id UUID NOT NULL REFERENCES timetables(id) ON DELETE CASCADE,
		day TEXT NOT NULL,
		start_time TIME NOT NULL,
		end_time TIME NOT NULL,
		subject_id TEXT NOT NULL,
		faculty_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		class_id TEXT NOT NULL,
		batch TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS timetable_entries_slot_key
		ON timetable_entries (timetable_id, day, class_id, subject_id, COALESCE(batch, ''), start_time, end_time)`,
}

// Migrate applies the schema inside one transaction.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	return WithTx(ctx, db, func(tx *sqlx.Tx) error {
		for i, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema statement %d: %w", i+1, err)
			}
		}
		return nil
	})
}

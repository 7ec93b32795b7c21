package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// TimetableEntryRepository manages the entries of saved timetables.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository builds repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

func (r *TimetableEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// UpsertBatch inserts entries, replacing faculty and resource on key collision.
func (r *TimetableEntryRepository) UpsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO timetable_entries (id, timetable_id, day, start_time, end_time, subject_id, faculty_id, resource_id, class_id, batch, created_at)
VALUES (:id, :timetable_id, :day, :start_time, :end_time, :subject_id, :faculty_id, :resource_id, :class_id, :batch, :created_at)
ON CONFLICT (timetable_id, day, class_id, subject_id, COALESCE(batch, ''), start_time, end_time) DO UPDATE
SET faculty_id = EXCLUDED.faculty_id,
    resource_id = EXCLUDED.resource_id`

	for i := range entries {
		entry := &entries[i]
		if entry.TimetableID == "" {
			return fmt.Errorf("entry %d: timetable id is required", i)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, entry.Row()); err != nil {
			return fmt.Errorf("upsert timetable entry: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns entries ordered by day, class and start time.
func (r *TimetableEntryRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.ScheduleEntry, error) {
	const query = `SELECT id, timetable_id, day, start_time, end_time, subject_id, faculty_id, resource_id, class_id, batch, created_at
FROM timetable_entries WHERE timetable_id = $1
ORDER BY CASE day WHEN 'Monday' THEN 1 WHEN 'Tuesday' THEN 2 WHEN 'Wednesday' THEN 3 WHEN 'Thursday' THEN 4 ELSE 5 END,
class_id ASC, start_time ASC, batch ASC NULLS FIRST`
	var rows []models.ScheduleEntryRow
	if err := r.db.SelectContext(ctx, &rows, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	entries := make([]models.ScheduleEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.Entry())
	}
	return entries, nil
}

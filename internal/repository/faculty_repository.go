package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// FacultyRepository persists faculty together with their availability windows.
type FacultyRepository struct {
	db *sqlx.DB
}

// NewFacultyRepository creates a new repository instance.
func NewFacultyRepository(db *sqlx.DB) *FacultyRepository {
	return &FacultyRepository{db: db}
}

func (r *FacultyRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every faculty member with availability attached. Faculty
// without stored windows get a nil Availability map (available all week).
func (r *FacultyRepository) List(ctx context.Context) ([]models.Faculty, error) {
	const facultyQuery = `SELECT id, name, role, subject_ids, created_at, updated_at FROM faculty ORDER BY id ASC`
	var faculty []models.Faculty
	if err := r.db.SelectContext(ctx, &faculty, facultyQuery); err != nil {
		return nil, fmt.Errorf("list faculty: %w", err)
	}

	const availabilityQuery = `SELECT faculty_id, day, start_time, end_time FROM faculty_availability ORDER BY faculty_id ASC, day ASC, start_time ASC`
	var windows []models.FacultyAvailability
	if err := r.db.SelectContext(ctx, &windows, availabilityQuery); err != nil {
		return nil, fmt.Errorf("list faculty availability: %w", err)
	}

	byFaculty := make(map[string]map[models.Day][]models.TimeInterval)
	for _, w := range windows {
		days, ok := byFaculty[w.FacultyID]
		if !ok {
			days = make(map[models.Day][]models.TimeInterval)
			byFaculty[w.FacultyID] = days
		}
		if w.StartTime == w.EndTime {
			if days[w.Day] == nil {
				days[w.Day] = []models.TimeInterval{}
			}
			continue
		}
		days[w.Day] = append(days[w.Day], models.TimeInterval{Start: w.StartTime, End: w.EndTime})
	}
	for i := range faculty {
		faculty[i].Availability = byFaculty[faculty[i].ID]
	}
	return faculty, nil
}

// Upsert writes the faculty row and replaces its availability windows.
// Callers should pass a transaction so the replacement is atomic.
func (r *FacultyRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, member *models.Faculty) error {
	if member == nil || member.ID == "" {
		return fmt.Errorf("faculty id is required")
	}
	member.Role = models.NormalizeFacultyRole(string(member.Role))
	if member.SubjectIDs == nil {
		member.SubjectIDs = []string{}
	}
	now := time.Now().UTC()
	if member.CreatedAt.IsZero() {
		member.CreatedAt = now
	}
	member.UpdatedAt = now
	target := r.exec(exec)

	const upsertQuery = `
INSERT INTO faculty (id, name, role, subject_ids, created_at, updated_at)
VALUES (:id, :name, :role, :subject_ids, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    role = EXCLUDED.role,
    subject_ids = EXCLUDED.subject_ids,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, target, upsertQuery, member); err != nil {
		return fmt.Errorf("upsert faculty %s: %w", member.ID, err)
	}

	if _, err := target.ExecContext(ctx, `DELETE FROM faculty_availability WHERE faculty_id = $1`, member.ID); err != nil {
		return fmt.Errorf("clear availability for %s: %w", member.ID, err)
	}

	const insertWindow = `
INSERT INTO faculty_availability (faculty_id, day, start_time, end_time)
VALUES (:faculty_id, :day, :start_time, :end_time)`
	for _, window := range availabilityRows(*member) {
		if _, err := sqlx.NamedExecContext(ctx, target, insertWindow, window); err != nil {
			return fmt.Errorf("insert availability for %s: %w", member.ID, err)
		}
	}
	return nil
}

func availabilityRows(member models.Faculty) []models.FacultyAvailability {
	days := make([]string, 0, len(member.Availability))
	for day := range member.Availability {
		days = append(days, string(day))
	}
	sort.Strings(days)

	var rows []models.FacultyAvailability
	for _, day := range days {
		windows := member.Availability[models.Day(day)]
		if len(windows) == 0 {
			// zero-length marker: the day is declared but has no windows
			rows = append(rows, models.FacultyAvailability{FacultyID: member.ID, Day: models.Day(day)})
			continue
		}
		for _, window := range windows {
			rows = append(rows, models.FacultyAvailability{
				FacultyID: member.ID,
				Day:       models.Day(day),
				StartTime: window.Start,
				EndTime:   window.End,
			})
		}
	}
	return rows
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func (r *SubjectRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every subject ordered by id.
func (r *SubjectRepository) List(ctx context.Context) ([]models.Subject, error) {
	const query = `SELECT id, name, is_lab, kind, created_at, updated_at FROM subjects ORDER BY id ASC`
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// Upsert inserts or replaces a subject.
func (r *SubjectRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, subject *models.Subject) error {
	if subject == nil || subject.ID == "" {
		return fmt.Errorf("subject id is required")
	}
	if subject.Kind == "" {
		subject.Kind = models.SubjectKindRegular
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const query = `
INSERT INTO subjects (id, name, is_lab, kind, created_at, updated_at)
VALUES (:id, :name, :is_lab, :kind, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    is_lab = EXCLUDED.is_lab,
    kind = EXCLUDED.kind,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, subject); err != nil {
		return fmt.Errorf("upsert subject %s: %w", subject.ID, err)
	}
	return nil
}

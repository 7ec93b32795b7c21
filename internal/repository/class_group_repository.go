package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ClassGroupRepository handles persistence for class groups.
type ClassGroupRepository struct {
	db *sqlx.DB
}

// NewClassGroupRepository creates a new repository instance.
func NewClassGroupRepository(db *sqlx.DB) *ClassGroupRepository {
	return &ClassGroupRepository{db: db}
}

func (r *ClassGroupRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every class group ordered by id.
func (r *ClassGroupRepository) List(ctx context.Context) ([]models.ClassGroup, error) {
	const query = `SELECT id, name, subject_ids, batches, created_at, updated_at FROM class_groups ORDER BY id ASC`
	var classes []models.ClassGroup
	if err := r.db.SelectContext(ctx, &classes, query); err != nil {
		return nil, fmt.Errorf("list class groups: %w", err)
	}
	return classes, nil
}

// Upsert inserts or replaces a class group with its curriculum and batches.
func (r *ClassGroupRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, class *models.ClassGroup) error {
	if class == nil || class.ID == "" {
		return fmt.Errorf("class group id is required")
	}
	if class.SubjectIDs == nil {
		class.SubjectIDs = []string{}
	}
	if class.Batches == nil {
		class.Batches = []string{}
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	const query = `
INSERT INTO class_groups (id, name, subject_ids, batches, created_at, updated_at)
VALUES (:id, :name, :subject_ids, :batches, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    subject_ids = EXCLUDED.subject_ids,
    batches = EXCLUDED.batches,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, class); err != nil {
		return fmt.Errorf("upsert class group %s: %w", class.ID, err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ResourceRepository handles persistence for classrooms and labs.
type ResourceRepository struct {
	db *sqlx.DB
}

// NewResourceRepository creates a new repository instance.
func NewResourceRepository(db *sqlx.DB) *ResourceRepository {
	return &ResourceRepository{db: db}
}

func (r *ResourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns every resource ordered by kind then id.
func (r *ResourceRepository) List(ctx context.Context) ([]models.Resource, error) {
	const query = `SELECT id, name, kind, capacity, created_at, updated_at FROM resources ORDER BY kind ASC, id ASC`
	var resources []models.Resource
	if err := r.db.SelectContext(ctx, &resources, query); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

// Upsert inserts or replaces a resource.
func (r *ResourceRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, resource *models.Resource) error {
	if resource == nil || resource.ID == "" {
		return fmt.Errorf("resource id is required")
	}
	now := time.Now().UTC()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now

	const query = `
INSERT INTO resources (id, name, kind, capacity, created_at, updated_at)
VALUES (:id, :name, :kind, :capacity, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    kind = EXCLUDED.kind,
    capacity = EXCLUDED.capacity,
    updated_at = EXCLUDED.updated_at`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, resource); err != nil {
		return fmt.Errorf("upsert resource %s: %w", resource.ID, err)
	}
	return nil
}

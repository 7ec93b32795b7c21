package models

import (
	"time"

	"github.com/lib/pq"
)

// DefaultBatches is used when a class declares no batch labels.
var DefaultBatches = []string{"B1", "B2", "B3"}

// ClassGroup is a cohort of students following one curriculum.
type ClassGroup struct {
	ID         string         `db:"id" json:"id" yaml:"id"`
	Name       string         `db:"name" json:"name" yaml:"name"`
	SubjectIDs pq.StringArray `db:"subject_ids" json:"subject_ids" yaml:"subject_ids"`
	Batches    pq.StringArray `db:"batches" json:"batches,omitempty" yaml:"batches,omitempty"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at,omitempty" yaml:"-"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at,omitempty" yaml:"-"`
}

// BatchLabels returns the configured batches or DefaultBatches.
func (c ClassGroup) BatchLabels() []string {
	if len(c.Batches) == 0 {
		out := make([]string, len(DefaultBatches))
		copy(out, DefaultBatches)
		return out
	}
	return []string(c.Batches)
}

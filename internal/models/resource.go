package models

import "time"

// ResourceKind is the physical room type.
type ResourceKind string

const (
	ResourceKindClassroom ResourceKind = "classroom"
	ResourceKindLab       ResourceKind = "lab"
)

// Resource is a room an entry can be placed in. Capacity is informational.
type Resource struct {
	ID        string       `db:"id" json:"id" yaml:"id"`
	Name      string       `db:"name" json:"name" yaml:"name"`
	Kind      ResourceKind `db:"kind" json:"kind" yaml:"kind"`
	Capacity  int          `db:"capacity" json:"capacity" yaml:"capacity"`
	CreatedAt time.Time    `db:"created_at" json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at,omitempty" yaml:"-"`
}

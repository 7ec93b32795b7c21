package models

import "time"

// SubjectKind marks subjects exempt from mandatory coverage.
type SubjectKind string

const (
	SubjectKindRegular  SubjectKind = "Regular"
	SubjectKindOptional SubjectKind = "Optional"
)

// Subject represents a course taught either as lectures or as batch labs.
type Subject struct {
	ID        string      `db:"id" json:"id" yaml:"id"`
	Name      string      `db:"name" json:"name" yaml:"name"`
	IsLab     bool        `db:"is_lab" json:"is_lab" yaml:"is_lab"`
	Kind      SubjectKind `db:"kind" json:"kind" yaml:"kind"`
	CreatedAt time.Time   `db:"created_at" json:"created_at,omitempty" yaml:"-"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at,omitempty" yaml:"-"`
}

// IsOptional reports whether the subject is exempt from exact counts.
func (s Subject) IsOptional() bool {
	return s.Kind == SubjectKindOptional
}

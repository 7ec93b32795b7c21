package models

import (
	"strings"
	"time"

	"github.com/lib/pq"
)

// FacultyRole distinguishes heads of department from regular faculty.
type FacultyRole string

const (
	FacultyRoleHOD     FacultyRole = "HOD"
	FacultyRoleRegular FacultyRole = "Regular"
)

// NormalizeFacultyRole maps any non-HOD role string to Regular.
func NormalizeFacultyRole(raw string) FacultyRole {
	if strings.EqualFold(strings.TrimSpace(raw), string(FacultyRoleHOD)) {
		return FacultyRoleHOD
	}
	return FacultyRoleRegular
}

// Faculty represents a staff member who can teach a set of subjects.
type Faculty struct {
	ID         string         `db:"id" json:"id" yaml:"id"`
	Name       string         `db:"name" json:"name" yaml:"name"`
	Role       FacultyRole    `db:"role" json:"role" yaml:"role"`
	SubjectIDs pq.StringArray `db:"subject_ids" json:"subject_ids" yaml:"subject_ids"`
	// Availability lists allowed windows per day. A day without an entry is
	// fully available.
	Availability map[Day][]TimeInterval `db:"-" json:"availability,omitempty" yaml:"availability,omitempty"`
	CreatedAt    time.Time              `db:"created_at" json:"created_at,omitempty" yaml:"-"`
	UpdatedAt    time.Time              `db:"updated_at" json:"updated_at,omitempty" yaml:"-"`
}

// IsHOD reports whether the faculty is a head of department.
func (f Faculty) IsHOD() bool {
	return NormalizeFacultyRole(string(f.Role)) == FacultyRoleHOD
}

// FacultyAvailability is one stored availability window.
type FacultyAvailability struct {
	FacultyID string `db:"faculty_id"`
	Day       Day    `db:"day"`
	StartTime Clock  `db:"start_time"`
	EndTime   Clock  `db:"end_time"`
}

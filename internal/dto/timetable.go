package dto

import (
	"time"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
)

// Entity sources accepted by GenerateTimetableRequest.
const (
	SourceInline   = "inline"
	SourceDatabase = "database"
)

// GenerationConstraints tunes a single generation.
type GenerationConstraints struct {
	LecturesPerSubject int            `json:"lecturesPerSubject" validate:"omitempty,min=1,max=10"`
	NumberOfAttempts   int            `json:"numberOfAttempts" validate:"omitempty,min=1,max=200"`
	Seed               *int64         `json:"seed"`
	Flags              map[string]any `json:"flags"`
}

// GenerateTimetableRequest asks for a timetable proposal. With source
// "database" the entity lists are ignored and loaded from storage.
type GenerateTimetableRequest struct {
	Source      string                `json:"source" validate:"omitempty,oneof=inline database"`
	Faculty     []models.Faculty      `json:"faculty"`
	Subjects    []models.Subject      `json:"subjects" validate:"required_unless=Source database"`
	Classes     []models.ClassGroup   `json:"classes" validate:"required_unless=Source database"`
	Resources   []models.Resource     `json:"resources"`
	Constraints GenerationConstraints `json:"constraints"`
}

// FromDatabase reports whether entities must be loaded from storage.
func (r GenerateTimetableRequest) FromDatabase() bool {
	return r.Source == SourceDatabase
}

// GenerationStats summarises how a proposal was produced.
type GenerationStats struct {
	Attempts    []scheduler.AttemptStat `json:"attempts"`
	BestAttempt int                     `json:"bestAttempt"`
	DurationMs  int64                   `json:"durationMs"`
	Relaxed     bool                    `json:"relaxed"`
	Cached      bool                    `json:"cached"`
}

// GenerateTimetableResponse returns a stored proposal.
type GenerateTimetableResponse struct {
	ProposalID string                 `json:"proposalId"`
	Valid      bool                   `json:"valid"`
	Entries    []models.ScheduleEntry `json:"entries"`
	Violations []scheduler.Violation  `json:"violations"`
	Stats      GenerationStats        `json:"stats"`
	ExpiresAt  time.Time              `json:"expiresAt"`
}

// SaveTimetableRequest persists a proposal as a new timetable version.
// Proposals with violations or from the relaxed fallback are saved with a
// warning unless RejectViolations is set.
type SaveTimetableRequest struct {
	ProposalID       string `json:"proposalId" validate:"required"`
	RejectViolations bool   `json:"rejectViolations"`
}

// SaveTimetableResponse identifies the stored version.
type SaveTimetableResponse struct {
	TimetableID string `json:"timetableId"`
	Version     int    `json:"version"`
	Entries     int    `json:"entries"`
}

// TimetableListQuery filters saved timetables.
type TimetableListQuery struct {
	Status   string `form:"status" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportRequest selects the rendered format.
type ExportRequest struct {
	Format string `json:"format" validate:"required,oneof=csv pdf"`
	Title  string `json:"title" validate:"omitempty,max=120"`
}

// ExportResponse returns the signed download location.
type ExportResponse struct {
	ExportID  string    `json:"exportId"`
	Format    string    `json:"format"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// JobStatus is the lifecycle of an asynchronous generation.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFinished   JobStatus = "FINISHED"
	JobStatusFailed     JobStatus = "FAILED"
)

// GenerationJobResponse describes an asynchronous generation.
type GenerationJobResponse struct {
	JobID      string    `json:"jobId"`
	Status     JobStatus `json:"status"`
	ProposalID string    `json:"proposalId,omitempty"`
	Valid      *bool     `json:"valid,omitempty"`
	Violations int       `json:"violations"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

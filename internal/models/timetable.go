package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Day names a teaching weekday.
type Day string

const (
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
)

// ParseDay normalises a weekday name ("monday", "MONDAY", "Monday").
func ParseDay(raw string) (Day, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty day")
	}
	day := Day(strings.ToUpper(raw[:1]) + strings.ToLower(raw[1:]))
	switch day {
	case Monday, Tuesday, Wednesday, Thursday, Friday:
		return day, nil
	}
	return "", fmt.Errorf("unsupported day %q", raw)
}

// UnmarshalText implements encoding.TextUnmarshaler so dataset keys such as
// "monday" decode to Monday.
func (d *Day) UnmarshalText(text []byte) error {
	day, err := ParseDay(string(text))
	if err != nil {
		return err
	}
	*d = day
	return nil
}

// Clock is a wall-clock time expressed in minutes after midnight.
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" (a trailing ":SS" is accepted and ignored).
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock hour %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock minute %q", raw)
	}
	return NewClock(hour, minute), nil
}

// String renders the clock as HH:MM.
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText implements encoding.TextMarshaler.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer.
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan implements sql.Scanner for TIME and text columns.
func (c *Clock) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return c.UnmarshalText([]byte(v))
	case []byte:
		return c.UnmarshalText(v)
	case time.Time:
		*c = NewClock(v.Hour(), v.Minute())
		return nil
	}
	return fmt.Errorf("cannot scan %T into Clock", src)
}

// TimeInterval is a half-open [Start, End) wall-clock range.
type TimeInterval struct {
	Start Clock `json:"start" yaml:"start"`
	End   Clock `json:"end" yaml:"end"`
}

// NewInterval parses a pair of HH:MM values.
func NewInterval(start, end string) (TimeInterval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeInterval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeInterval{}, err
	}
	if e <= s {
		return TimeInterval{}, fmt.Errorf("interval %s-%s ends before it starts", start, end)
	}
	return TimeInterval{Start: s, End: e}, nil
}

// MustInterval is NewInterval for package-level catalogs.
func MustInterval(start, end string) TimeInterval {
	interval, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return interval
}

// Overlaps reports whether two intervals conflict. Intervals that only touch
// (one ends exactly when the other starts) do not conflict.
func (t TimeInterval) Overlaps(other TimeInterval) bool {
	if t.Start == other.Start || t.End == other.End {
		return true
	}
	return t.Start < other.End && other.Start < t.End
}

// Contains reports whether other lies fully inside t.
func (t TimeInterval) Contains(other TimeInterval) bool {
	return t.Start <= other.Start && t.End >= other.End
}

func (t TimeInterval) String() string {
	return t.Start.String() + "-" + t.End.String()
}

// Batch identifies who attends an entry: the whole class (lecture) or a
// single lab batch. The zero value is WholeClass.
type Batch string

// WholeClass marks a lecture attended by every batch of the class.
const WholeClass Batch = ""

// LabBatch returns the batch value for a lab session of label.
func LabBatch(label string) Batch {
	return Batch(label)
}

// IsWholeClass reports whether the entry is a lecture.
func (b Batch) IsWholeClass() bool {
	return b == WholeClass
}

// Label returns the batch label, empty for the whole class.
func (b Batch) Label() string {
	return string(b)
}

// MarshalJSON encodes the whole class as null.
func (b Batch) MarshalJSON() ([]byte, error) {
	if b.IsWholeClass() {
		return []byte("null"), nil
	}
	return json.Marshal(string(b))
}

// UnmarshalJSON accepts null or a batch label.
func (b *Batch) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = WholeClass
		return nil
	}
	var label string
	if err := json.Unmarshal(data, &label); err != nil {
		return err
	}
	*b = Batch(label)
	return nil
}

// Value stores the whole class as NULL.
func (b Batch) Value() (driver.Value, error) {
	if b.IsWholeClass() {
		return nil, nil
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (b *Batch) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = WholeClass
	case string:
		*b = Batch(v)
	case []byte:
		*b = Batch(v)
	default:
		return fmt.Errorf("cannot scan %T into Batch", src)
	}
	return nil
}

// ScheduleEntry is one placed lecture or lab session.
type ScheduleEntry struct {
	ID          string       `json:"id,omitempty"`
	TimetableID string       `json:"timetable_id,omitempty"`
	Day         Day          `json:"day"`
	Interval    TimeInterval `json:"time_slot"`
	SubjectID   string       `json:"subject_id"`
	FacultyID   string       `json:"faculty_id"`
	ResourceID  string       `json:"resource_id"`
	ClassID     string       `json:"class_id"`
	Batch       Batch        `json:"batch"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// IsLab reports whether the entry is a batch lab session.
func (e ScheduleEntry) IsLab() bool {
	return !e.Batch.IsWholeClass()
}

// ScheduleEntryRow is the flattened persistence shape of ScheduleEntry.
type ScheduleEntryRow struct {
	ID          string    `db:"id"`
	TimetableID string    `db:"timetable_id"`
	Day         Day       `db:"day"`
	StartTime   Clock     `db:"start_time"`
	EndTime     Clock     `db:"end_time"`
	SubjectID   string    `db:"subject_id"`
	FacultyID   string    `db:"faculty_id"`
	ResourceID  string    `db:"resource_id"`
	ClassID     string    `db:"class_id"`
	Batch       Batch     `db:"batch"`
	CreatedAt   time.Time `db:"created_at"`
}

// Row flattens the entry for persistence.
func (e ScheduleEntry) Row() ScheduleEntryRow {
	return ScheduleEntryRow{
		ID:          e.ID,
		TimetableID: e.TimetableID,
		Day:         e.Day,
		StartTime:   e.Interval.Start,
		EndTime:     e.Interval.End,
		SubjectID:   e.SubjectID,
		FacultyID:   e.FacultyID,
		ResourceID:  e.ResourceID,
		ClassID:     e.ClassID,
		Batch:       e.Batch,
		CreatedAt:   e.CreatedAt,
	}
}

// Entry rebuilds the domain value from a stored row.
func (r ScheduleEntryRow) Entry() ScheduleEntry {
	return ScheduleEntry{
		ID:          r.ID,
		TimetableID: r.TimetableID,
		Day:         r.Day,
		Interval:    TimeInterval{Start: r.StartTime, End: r.EndTime},
		SubjectID:   r.SubjectID,
		FacultyID:   r.FacultyID,
		ResourceID:  r.ResourceID,
		ClassID:     r.ClassID,
		Batch:       r.Batch,
		CreatedAt:   r.CreatedAt,
	}
}

// TimetableStatus represents lifecycle phases for saved timetables.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "DRAFT"
	TimetableStatusPublished TimetableStatus = "PUBLISHED"
)

// Timetable is a versioned, persisted generation result.
type Timetable struct {
	ID             string          `db:"id" json:"id"`
	Version        int             `db:"version" json:"version"`
	Status         TimetableStatus `db:"status" json:"status"`
	ViolationCount int             `db:"violation_count" json:"violation_count"`
	Meta           types.JSONText  `db:"meta" json:"meta"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

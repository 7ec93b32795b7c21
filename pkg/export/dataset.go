package export

import (
	"sort"

	"github.com/noah-isme/timetable-api/internal/models"
)

// Row is one timetable entry flattened for rendering.
type Row struct {
	Day      models.Day `csv:"day"`
	Start    string     `csv:"start"`
	End      string     `csv:"end"`
	Class    string     `csv:"class"`
	Batch    string     `csv:"batch"`
	Subject  string     `csv:"subject"`
	Faculty  string     `csv:"faculty"`
	Resource string     `csv:"resource"`
}

// Dataset is the content of one export.
type Dataset struct {
	Title string
	Rows  []Row
}

// Names resolves ids to display names. Missing ids render as the id.
type Names struct {
	Classes   map[string]string
	Subjects  map[string]string
	Faculty   map[string]string
	Resources map[string]string
}

func lookup(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

var dayOrder = map[models.Day]int{
	models.Monday:    0,
	models.Tuesday:   1,
	models.Wednesday: 2,
	models.Thursday:  3,
	models.Friday:    4,
}

// RowsFromEntries flattens and sorts entries by day, class, start time and batch.
func RowsFromEntries(entries []models.ScheduleEntry, names Names) []Row {
	sorted := make([]models.ScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Day != b.Day {
			return dayOrder[a.Day] < dayOrder[b.Day]
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.Interval.Start != b.Interval.Start {
			return a.Interval.Start < b.Interval.Start
		}
		return a.Batch < b.Batch
	})

	rows := make([]Row, 0, len(sorted))
	for _, entry := range sorted {
		batch := "All"
		if entry.IsLab() {
			batch = entry.Batch.Label()
		}
		rows = append(rows, Row{
			Day:      entry.Day,
			Start:    entry.Interval.Start.String(),
			End:      entry.Interval.End.String(),
			Class:    lookup(names.Classes, entry.ClassID),
			Batch:    batch,
			Subject:  lookup(names.Subjects, entry.SubjectID),
			Faculty:  lookup(names.Faculty, entry.FacultyID),
			Resource: lookup(names.Resources, entry.ResourceID),
		})
	}
	return rows
}

// ClassBlock holds the rows of one class on one day.
type ClassBlock struct {
	Class string
	Rows  []Row
}

// DayBlock holds every class block of one day.
type DayBlock struct {
	Day     models.Day
	Classes []ClassBlock
}

// GroupByDay splits sorted rows into day and class sections.
func GroupByDay(rows []Row) []DayBlock {
	var days []DayBlock
	for _, row := range rows {
		if len(days) == 0 || days[len(days)-1].Day != row.Day {
			days = append(days, DayBlock{Day: row.Day})
		}
		day := &days[len(days)-1]
		if len(day.Classes) == 0 || day.Classes[len(day.Classes)-1].Class != row.Class {
			day.Classes = append(day.Classes, ClassBlock{Class: row.Class})
		}
		block := &day.Classes[len(day.Classes)-1]
		block.Rows = append(block.Rows, row)
	}
	return days
}

package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func sampleEntries() []models.ScheduleEntry {
	return []models.ScheduleEntry{
		{Day: models.Tuesday, Interval: models.MustInterval("10:15", "11:15"), ClassID: "c-1", SubjectID: "math", FacultyID: "f-1", ResourceID: "r-1"},
		{Day: models.Monday, Interval: models.MustInterval("13:35", "15:35"), ClassID: "c-2", SubjectID: "chem-lab", FacultyID: "f-2", ResourceID: "lab-1", Batch: models.LabBatch("B2")},
		{Day: models.Monday, Interval: models.MustInterval("13:35", "15:35"), ClassID: "c-2", SubjectID: "phy-lab", FacultyID: "f-3", ResourceID: "lab-2", Batch: models.LabBatch("B1")},
		{Day: models.Monday, Interval: models.MustInterval("09:15", "10:15"), ClassID: "c-1", SubjectID: "math", FacultyID: "f-1"},
	}
}

func TestRowsFromEntriesSortsAndResolvesNames(t *testing.T) {
	rows := RowsFromEntries(sampleEntries(), Names{
		Subjects: map[string]string{"math": "Mathematics"},
		Faculty:  map[string]string{"f-1": "Ada"},
	})
	require.Len(t, rows, 4)

	assert.Equal(t, Row{Day: models.Monday, Start: "09:15", End: "10:15", Class: "c-1", Batch: "All", Subject: "Mathematics", Faculty: "Ada", Resource: ""}, rows[0])
	assert.Equal(t, "B1", rows[1].Batch)
	assert.Equal(t, "B2", rows[2].Batch)
	assert.Equal(t, models.Tuesday, rows[3].Day)
}

func TestGroupByDay(t *testing.T) {
	days := GroupByDay(RowsFromEntries(sampleEntries(), Names{}))
	require.Len(t, days, 2)
	assert.Equal(t, models.Monday, days[0].Day)
	require.Len(t, days[0].Classes, 2)
	assert.Equal(t, "c-1", days[0].Classes[0].Class)
	assert.Len(t, days[0].Classes[1].Rows, 2)
	assert.Equal(t, models.Tuesday, days[1].Day)
}

func TestCSVRoundTrip(t *testing.T) {
	rows := RowsFromEntries(sampleEntries(), Names{})
	data, err := NewCSVExporter().Render(Dataset{Rows: rows})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "day,start,end,class,batch,subject,faculty,resource", lines[0])

	parsed, err := ParseCSV(data)
	require.NoError(t, err)
	assert.Equal(t, rows, parsed)
}

func TestPDFRender(t *testing.T) {
	data, err := NewPDFExporter().Render(Dataset{Title: "Timetable v1", Rows: RowsFromEntries(sampleEntries(), Names{})})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	empty, err := NewPDFExporter().Render(Dataset{})
	require.NoError(t, err)
	assert.NotEmpty(t, empty)
}

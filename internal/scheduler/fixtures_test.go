package scheduler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func seed(v int64) *int64 {
	return &v
}

func newTestState(t *testing.T, in Input) *state {
	t.Helper()
	require.NoError(t, ValidateInput(in))
	return newState(newCatalog(in), rand.New(rand.NewSource(7)))
}

func interval(t *testing.T, start, end string) models.TimeInterval {
	t.Helper()
	iv, err := models.NewInterval(start, end)
	require.NoError(t, err)
	return iv
}

func lecture(day models.Day, iv models.TimeInterval, classID, subjectID, facultyID string) models.ScheduleEntry {
	return models.ScheduleEntry{Day: day, Interval: iv, ClassID: classID, SubjectID: subjectID, FacultyID: facultyID}
}

func lab(day models.Day, iv models.TimeInterval, classID, subjectID, facultyID, batch string) models.ScheduleEntry {
	entry := lecture(day, iv, classID, subjectID, facultyID)
	entry.Batch = models.LabBatch(batch)
	return entry
}

// campusInput is a comfortably feasible two-class dataset.
func campusInput() Input {
	return Input{
		Faculty: []models.Faculty{
			{ID: "f-hod", Name: "Head", Role: models.FacultyRoleHOD, SubjectIDs: []string{"math", "phy"}},
			{ID: "f-1", Name: "Ada", Role: models.FacultyRoleRegular, SubjectIDs: []string{"math", "chem"}},
			{ID: "f-2", Name: "Grace", Role: models.FacultyRoleRegular, SubjectIDs: []string{"phy", "chem-lab"}},
			{ID: "f-3", Name: "Alan", Role: models.FacultyRoleRegular, SubjectIDs: []string{"chem", "chem-lab", "art"}},
			{ID: "f-4", Name: "Edsger", Role: models.FacultyRoleRegular, SubjectIDs: []string{"math", "phy", "chem-lab"}},
			{ID: "f-5", Name: "Barbara", Role: models.FacultyRoleRegular, SubjectIDs: []string{"chem", "art", "chem-lab"}},
		},
		Subjects: []models.Subject{
			{ID: "math", Name: "Mathematics", Kind: models.SubjectKindRegular},
			{ID: "phy", Name: "Physics", Kind: models.SubjectKindRegular},
			{ID: "chem", Name: "Chemistry", Kind: models.SubjectKindRegular},
			{ID: "chem-lab", Name: "Chemistry Lab", IsLab: true, Kind: models.SubjectKindRegular},
			{ID: "art", Name: "Art", Kind: models.SubjectKindOptional},
		},
		Classes: []models.ClassGroup{
			{ID: "c-1", Name: "First Year A", SubjectIDs: []string{"math", "phy", "chem", "chem-lab", "art"}},
			{ID: "c-2", Name: "First Year B", SubjectIDs: []string{"math", "phy", "chem-lab"}, Batches: []string{"X", "Y"}},
		},
		Resources: []models.Resource{
			{ID: "r-101", Name: "Room 101", Kind: models.ResourceKindClassroom, Capacity: 60},
			{ID: "r-102", Name: "Room 102", Kind: models.ResourceKindClassroom, Capacity: 60},
			{ID: "r-lab", Name: "Chem Lab", Kind: models.ResourceKindLab, Capacity: 20},
		},
	}
}

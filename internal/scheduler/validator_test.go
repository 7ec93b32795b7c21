package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func validatorInput() Input {
	return Input{
		Faculty: []models.Faculty{
			{ID: "hod", Role: models.FacultyRoleHOD, SubjectIDs: []string{"math"}},
			{ID: "f-1", Role: models.FacultyRoleRegular, SubjectIDs: []string{"math", "bio-lab", "drama"}},
		},
		Subjects: []models.Subject{
			{ID: "math", Name: "Mathematics", Kind: models.SubjectKindRegular},
			{ID: "bio-lab", Name: "Biology Lab", IsLab: true, Kind: models.SubjectKindRegular},
			{ID: "drama", Name: "Drama", Kind: models.SubjectKindOptional},
		},
		Classes: []models.ClassGroup{
			{ID: "c-1", SubjectIDs: []string{"math", "bio-lab", "drama"}, Batches: []string{"B1", "B2"}},
		},
	}
}

func kinds(violations []Violation) []ViolationKind {
	out := make([]ViolationKind, 0, len(violations))
	for _, v := range violations {
		out = append(out, v.Kind)
	}
	return out
}

func TestValidateCleanTimetable(t *testing.T) {
	entries := []models.ScheduleEntry{
		lab(models.Monday, LabSlots[1], "c-1", "bio-lab", "f-1", "B1"),
		lab(models.Tuesday, LabSlots[1], "c-1", "bio-lab", "f-1", "B2"),
		lecture(models.Monday, LectureSlots[1], "c-1", "math", "hod"),
		lecture(models.Thursday, LectureSlots[3], "c-1", "bio-lab", "f-1"),
	}

	violations := Validate(validatorInput(), entries, 1)
	assert.Empty(t, violations, Messages(violations))
}

func TestValidateReportsEveryRule(t *testing.T) {
	entries := []models.ScheduleEntry{
		lab(models.Monday, LabSlots[1], "c-1", "bio-lab", "f-1", "B1"),
		lab(models.Tuesday, LabSlots[1], "c-1", "bio-lab", "f-1", "B1"),
		lecture(models.Monday, LectureSlots[0], "c-1", "math", "hod"),
		lecture(models.Wednesday, LectureSlots[1], "c-1", "math", "f-1"),
		lecture(models.Wednesday, LectureSlots[1], "c-1", "bio-lab", "f-1"),
	}

	violations := Validate(validatorInput(), entries, 2)
	require.NotEmpty(t, violations)
	assert.Equal(t, []ViolationKind{
		ViolationLectureCount,
		ViolationHODFirstSlot,
		ViolationFacultyOverload,
		ViolationLabAttendance,
		ViolationLabAttendance,
		ViolationFacultyDoubleBooked,
	}, kinds(violations))

	assert.Equal(t, "bio-lab", violations[0].SubjectID)
	assert.Contains(t, violations[0].Message, "Biology Lab")
	assert.Equal(t, "hod", violations[1].FacultyID)
	assert.Equal(t, models.Wednesday, violations[2].Day)
	assert.Equal(t, "B1", violations[3].Batch)
	assert.Contains(t, violations[3].Message, "has 2 lab sessions")
	assert.Equal(t, "B2", violations[4].Batch)
	assert.Contains(t, violations[4].Message, "has 0 lab sessions")
}

func TestValidateExemptsOptionalSubjects(t *testing.T) {
	entries := []models.ScheduleEntry{
		lab(models.Monday, LabSlots[1], "c-1", "bio-lab", "f-1", "B1"),
		lab(models.Tuesday, LabSlots[1], "c-1", "bio-lab", "f-1", "B2"),
		lecture(models.Monday, LectureSlots[1], "c-1", "math", "hod"),
		lecture(models.Tuesday, LectureSlots[2], "c-1", "bio-lab", "f-1"),
	}
	violations := Validate(validatorInput(), entries, 1)
	assert.Empty(t, violations, "drama is optional and may have no lecture")
}

func TestValidateHODFirstLabSlot(t *testing.T) {
	in := validatorInput()
	in.Faculty[0].SubjectIDs = append(in.Faculty[0].SubjectIDs, "bio-lab")
	entries := []models.ScheduleEntry{
		lab(models.Monday, LabSlots[0], "c-1", "bio-lab", "hod", "B1"),
	}
	violations := Validate(in, entries, 1)
	assert.Contains(t, kinds(violations), ViolationHODFirstSlot)
}

func TestValidateDefaultsTarget(t *testing.T) {
	violations := Validate(validatorInput(), nil, 0)
	require.NotEmpty(t, violations)
	assert.Contains(t, violations[0].Message, "expected 3")
}

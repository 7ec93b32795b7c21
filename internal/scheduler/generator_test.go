package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestGenerateScenarioLabCoverage(t *testing.T) {
	in := Input{
		Faculty: []models.Faculty{
			{ID: "f-1", Role: models.FacultyRoleRegular, SubjectIDs: []string{"lab-a"}},
			{ID: "f-2", Role: models.FacultyRoleRegular, SubjectIDs: []string{"lab-b"}},
		},
		Subjects: []models.Subject{
			{ID: "lab-a", Name: "Electronics Lab", IsLab: true, Kind: models.SubjectKindRegular},
			{ID: "lab-b", Name: "Networks Lab", IsLab: true, Kind: models.SubjectKindRegular},
		},
		Classes: []models.ClassGroup{
			{ID: "c-1", SubjectIDs: []string{"lab-a", "lab-b"}, Batches: []string{"B1", "B2", "B3"}},
		},
		Resources: []models.Resource{{ID: "lab-1", Kind: models.ResourceKindLab}},
	}

	result, err := New(zap.NewNop()).Generate(context.Background(), in, Constraints{Seed: seed(11)})
	require.NoError(t, err)

	seen := make(map[string]int)
	labs := 0
	for _, entry := range result.Entries {
		if !entry.IsLab() {
			continue
		}
		labs++
		seen[entry.SubjectID+"/"+entry.Batch.Label()]++
		assert.Equal(t, "lab-1", entry.ResourceID)
		assert.Contains(t, LabSlots, entry.Interval)
	}
	assert.Equal(t, 6, labs)
	assert.Len(t, seen, 6)
	for pair, count := range seen {
		assert.Equal(t, 1, count, pair)
	}
	assert.Empty(t, doubleBookings(result.Entries))
}

func TestGenerateScenarioLecturesSpreadAcrossDays(t *testing.T) {
	in := Input{
		Faculty:  []models.Faculty{{ID: "f-1", Role: models.FacultyRoleRegular, SubjectIDs: []string{"math"}}},
		Subjects: []models.Subject{{ID: "math", Name: "Mathematics", Kind: models.SubjectKindRegular}},
		Classes:  []models.ClassGroup{{ID: "c-1", SubjectIDs: []string{"math"}}},
	}

	result, err := New(nil).Generate(context.Background(), in, Constraints{LecturesPerSubject: 3, Seed: seed(3)})
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	days := make(map[models.Day]bool)
	for _, entry := range result.Entries {
		assert.True(t, entry.Batch.IsWholeClass())
		assert.Equal(t, "", entry.ResourceID, "no resources supplied")
		days[entry.Day] = true
	}
	assert.Len(t, days, 3)
	assert.True(t, result.Valid())
	assert.Equal(t, 1, result.BestAttempt)
	assert.Len(t, result.Attempts, 1, "a valid first attempt stops the search")
}

func TestGenerateScenarioUnstaffedSubject(t *testing.T) {
	in := Input{
		Faculty: []models.Faculty{{ID: "f-1", Role: models.FacultyRoleRegular, SubjectIDs: []string{"math"}}},
		Subjects: []models.Subject{
			{ID: "math", Name: "Mathematics", Kind: models.SubjectKindRegular},
			{ID: "latin", Name: "Latin", Kind: models.SubjectKindRegular},
		},
		Classes: []models.ClassGroup{{ID: "c-1", SubjectIDs: []string{"math", "latin"}}},
	}

	result, err := New(nil).Generate(context.Background(), in, Constraints{NumberOfAttempts: 3, Seed: seed(5)})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 3)
	assert.Len(t, result.Attempts, 3)

	require.Len(t, result.Violations, 1)
	assert.Equal(t, ViolationLectureCount, result.Violations[0].Kind)
	assert.Equal(t, "latin", result.Violations[0].SubjectID)
	assert.Contains(t, result.Violations[0].Message, "latin")
}

func overConstrainedInput() Input {
	return Input{
		Faculty: []models.Faculty{{
			ID:         "f-1",
			Role:       models.FacultyRoleRegular,
			SubjectIDs: []string{"s-1", "s-2"},
			Availability: map[models.Day][]models.TimeInterval{
				models.Monday:    {models.MustInterval("10:15", "11:15")},
				models.Tuesday:   {},
				models.Wednesday: {},
				models.Thursday:  {},
				models.Friday:    {},
			},
		}},
		Subjects: []models.Subject{
			{ID: "s-1", Name: "Statistics", Kind: models.SubjectKindRegular},
			{ID: "s-2", Name: "Economics", Kind: models.SubjectKindRegular},
		},
		Classes: []models.ClassGroup{
			{ID: "c-1", SubjectIDs: []string{"s-1"}},
			{ID: "c-2", SubjectIDs: []string{"s-2"}},
		},
	}
}

func TestGenerateScenarioOverConstrained(t *testing.T) {
	generator := New(nil)
	constraints := Constraints{NumberOfAttempts: 1, Seed: seed(9)}

	first, err := generator.Generate(context.Background(), overConstrainedInput(), constraints)
	require.NoError(t, err)
	second, err := generator.Generate(context.Background(), overConstrainedInput(), constraints)
	require.NoError(t, err)

	require.Len(t, first.Entries, 1)
	assert.Equal(t, models.Monday, first.Entries[0].Day)
	assert.Equal(t, "10:15-11:15", first.Entries[0].Interval.String())
	assert.Len(t, first.Attempts, 1)
	assert.Len(t, first.Violations, 2)
	assert.Equal(t, Messages(first.Violations), Messages(second.Violations))
}

func TestGenerateRelaxedEscalatesRepair(t *testing.T) {
	result, err := New(nil).GenerateRelaxed(overConstrainedInput(), Constraints{Seed: seed(9)})
	require.NoError(t, err)

	assert.True(t, result.Relaxed)
	assert.False(t, result.Valid())
	assert.Empty(t, result.Violations, "relaxed output is not validated")
	assert.Len(t, result.Entries, 6)
	assert.Empty(t, doubleBookings(result.Entries))
}

func TestGenerateIsDeterministicForSeed(t *testing.T) {
	generator := New(nil)
	constraints := Constraints{Seed: seed(42)}

	first, err := generator.Generate(context.Background(), campusInput(), constraints)
	require.NoError(t, err)
	second, err := generator.Generate(context.Background(), campusInput(), constraints)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first.Entries)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second.Entries)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, first.Violations, second.Violations)
	assert.Equal(t, first.Attempts, second.Attempts)
}

func TestGenerateHonoursStructuralInvariants(t *testing.T) {
	in := campusInput()
	for _, s := range []int64{1, 2, 3, 4, 5} {
		result, err := New(nil).Generate(context.Background(), in, Constraints{Seed: seed(s)})
		require.NoError(t, err)
		require.NotEmpty(t, result.Entries)
		require.True(t, result.Valid(), "seed %d: %v", s, Messages(result.Violations))

		assert.Empty(t, doubleBookings(result.Entries), "seed %d", s)

		lecturesPerDay := make(map[dayKey]int)
		classLectures := make(map[pairKey]int)
		labCounts := make(map[labKey]int)
		for _, entry := range result.Entries {
			if entry.FacultyID == "f-hod" {
				assert.False(t, IsFirstSlot(entry.Interval), "seed %d: hod at %s", s, entry.Interval)
			}
			assert.False(t, entry.Interval.Overlaps(LunchBreak))
			if entry.IsLab() {
				assert.Contains(t, LabSlots, entry.Interval)
				labCounts[labKey{classID: entry.ClassID, subjectID: entry.SubjectID, batch: entry.Batch}]++
				continue
			}
			assert.Contains(t, LectureSlots, entry.Interval)
			lecturesPerDay[dayKey{day: entry.Day, id: entry.FacultyID}]++
			classLectures[pairKey{classID: entry.ClassID, subjectID: entry.SubjectID}]++
		}
		for key, count := range lecturesPerDay {
			assert.LessOrEqual(t, count, 1, "seed %d: %s on %s", s, key.id, key.day)
		}
		cat := newCatalog(in)
		for _, class := range cat.classes {
			for _, subject := range cat.curriculum(class) {
				if subject.IsOptional() {
					continue
				}
				count := classLectures[pairKey{classID: class.ID, subjectID: subject.ID}]
				assert.Equal(t, DefaultLecturesPerSubject, count, "seed %d: %s/%s", s, class.ID, subject.ID)
			}
		}
		for key, count := range labCounts {
			assert.Equal(t, 1, count, "seed %d: %s/%s/%s", s, key.classID, key.subjectID, key.batch)
		}
		assertClassesNeverDoubleBooked(t, result.Entries)
	}
}

func assertClassesNeverDoubleBooked(t *testing.T, entries []models.ScheduleEntry) {
	t.Helper()
	for i := range entries {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.ClassID != b.ClassID || a.Day != b.Day || !a.Interval.Overlaps(b.Interval) {
				continue
			}
			clash := a.Batch.IsWholeClass() || b.Batch.IsWholeClass() || a.Batch == b.Batch
			assert.False(t, clash, "class %s double booked on %s at %s and %s", a.ClassID, a.Day, a.Interval, b.Interval)
		}
	}
}

type panickingRand struct{}

func (panickingRand) Intn(int) int { panic("entropy exhausted") }

func (panickingRand) Shuffle(int, func(i, j int)) { panic("entropy exhausted") }

func TestGenerateRecoversFromAttemptPanics(t *testing.T) {
	generator := New(nil, WithRandSource(func(*int64) Rand { return panickingRand{} }))

	result, err := generator.Generate(context.Background(), campusInput(), Constraints{NumberOfAttempts: 4})
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 4)
	for _, stat := range result.Attempts {
		assert.True(t, stat.Failed)
	}
	assert.Empty(t, result.Entries)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, ViolationAttemptFailed, result.Violations[0].Kind)
	assert.Contains(t, result.Violations[0].Message, "entropy exhausted")
}

func TestGenerateStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := New(nil).Generate(ctx, campusInput(), Constraints{})
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestValidateInputRejectsMalformedEntities(t *testing.T) {
	cases := map[string]func(in *Input){
		"no classes":        func(in *Input) { in.Classes = nil },
		"no subjects":       func(in *Input) { in.Subjects = nil },
		"empty subject id":  func(in *Input) { in.Subjects[0].ID = "" },
		"duplicate subject": func(in *Input) { in.Subjects[1].ID = in.Subjects[0].ID },
		"duplicate faculty": func(in *Input) { in.Faculty[1].ID = in.Faculty[0].ID },
		"unknown faculty subject": func(in *Input) {
			in.Faculty[0].SubjectIDs = append(in.Faculty[0].SubjectIDs, "ghost")
		},
		"unknown class subject": func(in *Input) {
			in.Classes[0].SubjectIDs = append(in.Classes[0].SubjectIDs, "ghost")
		},
		"duplicate batch": func(in *Input) { in.Classes[1].Batches = []string{"X", "X"} },
		"inverted window": func(in *Input) {
			in.Faculty[0].Availability = map[models.Day][]models.TimeInterval{
				models.Monday: {{Start: models.NewClock(12, 0), End: models.NewClock(9, 0)}},
			}
		},
		"weekend window": func(in *Input) {
			in.Faculty[0].Availability = map[models.Day][]models.TimeInterval{
				models.Day("Saturday"): {models.MustInterval("09:00", "12:00")},
			}
		},
		"duplicate resource": func(in *Input) { in.Resources[1].ID = in.Resources[0].ID },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := campusInput()
			mutate(&in)
			err := ValidateInput(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			_, genErr := New(nil).Generate(context.Background(), in, Constraints{})
			assert.True(t, errors.Is(genErr, ErrInvalidInput))
		})
	}
}

func TestValidateInputAllowsNoFaculty(t *testing.T) {
	in := campusInput()
	in.Faculty = nil
	assert.NoError(t, ValidateInput(in))

	result, err := New(nil).Generate(context.Background(), in, Constraints{NumberOfAttempts: 1, Seed: seed(1)})
	require.NoError(t, err)
	assert.Empty(t, result.Entries)
	assert.NotEmpty(t, result.Violations)
}

package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
)

const yamlDataset = `
subjects:
  - id: math
    name: Mathematics
  - id: phy-lab
    name: Physics Lab
    is_lab: true
faculty:
  - id: f-1
    name: Ada
    role: HOD
    subject_ids: [math, phy-lab]
    availability:
      Monday:
        - start: "09:15"
          end: "12:15"
classes:
  - id: c-1
    name: CSE A
    subject_ids: [math, phy-lab]
resources:
  - id: r-101
    name: Room 101
    kind: classroom
    capacity: 60
constraints:
  lectures_per_subject: 2
  seed: 42
`

func TestDecodeDatasetYAML(t *testing.T) {
	d, err := decodeDataset(strings.NewReader(yamlDataset), ".yaml")
	require.NoError(t, err)

	require.Len(t, d.Subjects, 2)
	assert.True(t, d.Subjects[1].IsLab)
	require.Len(t, d.Faculty, 1)
	assert.True(t, d.Faculty[0].IsHOD())
	windows := d.Faculty[0].Availability[models.Monday]
	require.Len(t, windows, 1)
	assert.Equal(t, models.NewClock(9, 15), windows[0].Start)
	assert.Equal(t, models.NewClock(12, 15), windows[0].End)
	assert.Equal(t, []string{"math", "phy-lab"}, []string(d.Classes[0].SubjectIDs))
	assert.Equal(t, 2, d.Constraints.LecturesPerSubject)
	require.NotNil(t, d.Constraints.Seed)
	assert.EqualValues(t, 42, *d.Constraints.Seed)
}

func TestDecodeDatasetJSON(t *testing.T) {
	payload := `{
  "subjects": [{"id": "math", "name": "Mathematics"}],
  "faculty": [{"id": "f-1", "name": "Ada", "subject_ids": ["math"]}],
  "classes": [{"id": "c-1", "name": "CSE A", "subject_ids": ["math"]}],
  "resources": [{"id": "r-101", "name": "Room 101", "kind": "classroom"}],
  "constraints": {"number_of_attempts": 4}
}`
	d, err := decodeDataset(strings.NewReader(payload), ".JSON")
	require.NoError(t, err)
	assert.Equal(t, "Ada", d.Faculty[0].Name)
	assert.Equal(t, 4, d.Constraints.NumberOfAttempts)
	assert.Nil(t, d.Constraints.Seed)
}

func TestDecodeDatasetNormalisesDayKeys(t *testing.T) {
	payload := strings.Replace(yamlDataset, "      Monday:", "      monday:", 1)
	require.NotEqual(t, yamlDataset, payload)

	d, err := decodeDataset(strings.NewReader(payload), ".yaml")
	require.NoError(t, err)
	require.Len(t, d.Faculty[0].Availability[models.Monday], 1)

	_, err = decodeDataset(strings.NewReader(strings.Replace(yamlDataset, "      Monday:", "      sunday:", 1)), ".yaml")
	require.Error(t, err)
}

func TestDecodeDatasetRejectsUnknownFields(t *testing.T) {
	payload := yamlDataset + "teachers: []\n"
	_, err := decodeDataset(strings.NewReader(payload), ".yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode yaml dataset")
}

func TestDecodeDatasetValidatesReferences(t *testing.T) {
	payload := `
subjects:
  - id: math
    name: Mathematics
faculty:
  - id: f-1
    name: Ada
    subject_ids: [bio]
classes:
  - id: c-1
    name: CSE A
    subject_ids: [math]
`
	_, err := decodeDataset(strings.NewReader(payload), ".yaml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, scheduler.ErrInvalidInput))
}

type recordingWriter struct {
	calls *[]string
	fail  string
}

func (w recordingWriter) record(id string) error {
	*w.calls = append(*w.calls, id)
	if id == w.fail {
		return errors.New("boom")
	}
	return nil
}

type subjectRecorder struct{ recordingWriter }

func (s subjectRecorder) Upsert(_ context.Context, _ sqlx.ExtContext, v *models.Subject) error {
	return s.record("subject:" + v.ID)
}

type resourceRecorder struct{ recordingWriter }

func (s resourceRecorder) Upsert(_ context.Context, _ sqlx.ExtContext, v *models.Resource) error {
	return s.record("resource:" + v.ID)
}

type classRecorder struct{ recordingWriter }

func (s classRecorder) Upsert(_ context.Context, _ sqlx.ExtContext, v *models.ClassGroup) error {
	return s.record("class:" + v.ID)
}

type facultyRecorder struct{ recordingWriter }

func (s facultyRecorder) Upsert(_ context.Context, _ sqlx.ExtContext, v *models.Faculty) error {
	return s.record("faculty:" + v.ID)
}

func newRecordingImporter(calls *[]string, fail string) catalogImporter {
	w := recordingWriter{calls: calls, fail: fail}
	return catalogImporter{
		subjects:  subjectRecorder{w},
		resources: resourceRecorder{w},
		classes:   classRecorder{w},
		faculty:   facultyRecorder{w},
	}
}

func TestCatalogImporterOrder(t *testing.T) {
	d, err := decodeDataset(strings.NewReader(yamlDataset), ".yaml")
	require.NoError(t, err)

	var calls []string
	require.NoError(t, newRecordingImporter(&calls, "").Import(context.Background(), nil, d.Input))
	assert.Equal(t, []string{
		"subject:math", "subject:phy-lab", "resource:r-101", "class:c-1", "faculty:f-1",
	}, calls)
}

func TestCatalogImporterStopsOnError(t *testing.T) {
	d, err := decodeDataset(strings.NewReader(yamlDataset), ".yaml")
	require.NoError(t, err)

	var calls []string
	err = newRecordingImporter(&calls, "resource:r-101").Import(context.Background(), nil, d.Input)
	require.Error(t, err)
	assert.Equal(t, "resource:r-101", calls[len(calls)-1])
	assert.NotContains(t, calls, "faculty:f-1")
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func seedPtr(v int64) *int64 { return &v }

func smallRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		Faculty: []models.Faculty{
			{ID: "f-1", Name: "Ada", Role: models.FacultyRoleRegular, SubjectIDs: pq.StringArray{"math"}},
		},
		Subjects: []models.Subject{{ID: "math", Name: "Mathematics"}},
		Classes:  []models.ClassGroup{{ID: "c-1", Name: "CSE A", SubjectIDs: pq.StringArray{"math"}}},
		Resources: []models.Resource{
			{ID: "r-101", Name: "Room 101", Kind: models.ResourceKindClassroom},
		},
		Constraints: dto.GenerationConstraints{Seed: seedPtr(7)},
	}
}

func appCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected app error, got %v", err)
	return appErr.Code
}

type stubEngine struct {
	calls    int32
	generate func(ctx context.Context) (*scheduler.Result, error)
	relaxed  *scheduler.Result
}

func (e *stubEngine) Generate(ctx context.Context, _ scheduler.Input, _ scheduler.Constraints) (*scheduler.Result, error) {
	atomic.AddInt32(&e.calls, 1)
	return e.generate(ctx)
}

func (e *stubEngine) GenerateRelaxed(scheduler.Input, scheduler.Constraints) (*scheduler.Result, error) {
	return e.relaxed, nil
}

type stubTimetables struct {
	items   map[string]*models.Timetable
	created []*models.Timetable
}

func newStubTimetables(items ...*models.Timetable) *stubTimetables {
	s := &stubTimetables{items: map[string]*models.Timetable{}}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return s
}

func (s *stubTimetables) CreateVersioned(_ context.Context, _ sqlx.ExtContext, timetable *models.Timetable) error {
	timetable.ID = "tt-new"
	timetable.Version = len(s.created) + 1
	s.items[timetable.ID] = timetable
	s.created = append(s.created, timetable)
	return nil
}

func (s *stubTimetables) List(_ context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	var out []models.Timetable
	for _, item := range s.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, *item)
		}
	}
	return out, len(out), nil
}

func (s *stubTimetables) FindByID(_ context.Context, id string) (*models.Timetable, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (s *stubTimetables) Delete(_ context.Context, id string) error {
	if _, ok := s.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.items, id)
	return nil
}

func (s *stubTimetables) UpdateStatus(_ context.Context, _ sqlx.ExtContext, id string, status models.TimetableStatus) error {
	item, ok := s.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	item.Status = status
	return nil
}

type stubEntries struct {
	saved []models.ScheduleEntry
	reads int
}

func (s *stubEntries) UpsertBatch(_ context.Context, _ sqlx.ExtContext, entries []models.ScheduleEntry) error {
	s.saved = append(s.saved, entries...)
	return nil
}

func (s *stubEntries) ListByTimetable(_ context.Context, id string) ([]models.ScheduleEntry, error) {
	s.reads++
	var out []models.ScheduleEntry
	for _, entry := range s.saved {
		if entry.TimetableID == id {
			out = append(out, entry)
		}
	}
	return out, nil
}

type staticList[T any] struct {
	items []T
	err   error
}

func (s staticList[T]) List(context.Context) ([]T, error) {
	return s.items, s.err
}

func newTimetableService(t *testing.T, repos TimetableRepositories, engine timetableEngine, cfg TimetableConfig) *TimetableService {
	t.Helper()
	cfg.Enabled = true
	return NewTimetableService(repos, engine, nil, NewMetricsService(), nil, nil, cfg)
}

func TestTimetableServiceGenerateInline(t *testing.T) {
	svc := newTimetableService(t, TimetableRepositories{}, nil, TimetableConfig{})

	resp, err := svc.Generate(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Len(t, resp.Entries, scheduler.DefaultLecturesPerSubject)
	assert.Empty(t, resp.Violations)
	assert.False(t, resp.Stats.Relaxed)
	assert.Equal(t, 1, resp.Stats.BestAttempt)

	proposal, ok := svc.Proposal(resp.ProposalID)
	require.True(t, ok)
	assert.Equal(t, resp.Entries, proposal.Result.Entries)
	for _, entry := range resp.Entries {
		assert.Equal(t, "r-101", entry.ResourceID)
	}
}

func TestTimetableServiceGenerateDisabled(t *testing.T) {
	svc := NewTimetableService(TimetableRepositories{}, nil, nil, nil, nil, nil, TimetableConfig{Enabled: false})
	_, err := svc.Generate(context.Background(), smallRequest())
	assert.Equal(t, appErrors.ErrSchedulerDisabled.Code, appCode(t, err))
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	svc := newTimetableService(t, TimetableRepositories{}, nil, TimetableConfig{})

	req := smallRequest()
	req.Subjects = nil
	_, err := svc.Generate(context.Background(), req)
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))

	req = smallRequest()
	req.Classes[0].SubjectIDs = pq.StringArray{"math", "bio"}
	_, err = svc.Generate(context.Background(), req)
	require.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))
	assert.Contains(t, err.Error(), "bio")

	req = smallRequest()
	req.Constraints.LecturesPerSubject = 50
	_, err = svc.Generate(context.Background(), req)
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))
}

func TestTimetableServiceGenerateTimeoutFallsBackToRelaxed(t *testing.T) {
	engine := &stubEngine{
		generate: func(ctx context.Context) (*scheduler.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		relaxed: &scheduler.Result{
			Entries:     []models.ScheduleEntry{},
			Violations:  []scheduler.Violation{},
			Attempts:    []scheduler.AttemptStat{{Number: 1}},
			BestAttempt: 1,
			Relaxed:     true,
		},
	}
	svc := newTimetableService(t, TimetableRepositories{}, engine, TimetableConfig{Timeout: 20 * time.Millisecond})

	resp, err := svc.Generate(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.True(t, resp.Stats.Relaxed)
	assert.False(t, resp.Valid)
}

func TestTimetableServiceGenerateCancelled(t *testing.T) {
	engine := &stubEngine{generate: func(ctx context.Context) (*scheduler.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := newTimetableService(t, TimetableRepositories{}, engine, TimetableConfig{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Generate(ctx, smallRequest())
	assert.Equal(t, appErrors.ErrUnavailable.Code, appCode(t, err))
}

func TestTimetableServiceGenerateCachesSeededResults(t *testing.T) {
	engine := &stubEngine{generate: func(context.Context) (*scheduler.Result, error) {
		return &scheduler.Result{
			Entries:     []models.ScheduleEntry{{Day: models.Monday, Interval: models.MustInterval("10:15", "11:15"), ClassID: "c-1", SubjectID: "math", FacultyID: "f-1", ResourceID: "r-101"}},
			Violations:  []scheduler.Violation{},
			Attempts:    []scheduler.AttemptStat{{Number: 1, Entries: 1}},
			BestAttempt: 1,
		}, nil
	}}
	cacheSvc := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := NewTimetableService(TimetableRepositories{}, engine, cacheSvc, nil, nil, nil, TimetableConfig{Enabled: true})

	first, err := svc.Generate(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.False(t, first.Stats.Cached)

	second, err := svc.Generate(context.Background(), smallRequest())
	require.NoError(t, err)
	assert.True(t, second.Stats.Cached)
	assert.Equal(t, first.Entries, second.Entries)
	assert.NotEqual(t, first.ProposalID, second.ProposalID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&engine.calls))

	unseeded := smallRequest()
	unseeded.Constraints.Seed = nil
	_, err = svc.Generate(context.Background(), unseeded)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&engine.calls))
}

func TestTimetableFingerprintIgnoresFlags(t *testing.T) {
	req := smallRequest()
	in := scheduler.Input{Faculty: req.Faculty, Subjects: req.Subjects, Classes: req.Classes, Resources: req.Resources}
	a := timetableFingerprint(in, scheduler.Constraints{LecturesPerSubject: 3, NumberOfAttempts: 10, Seed: seedPtr(1)})
	b := timetableFingerprint(in, scheduler.Constraints{LecturesPerSubject: 3, NumberOfAttempts: 10, Seed: seedPtr(1), Flags: map[string]interface{}{"x": true}})
	c := timetableFingerprint(in, scheduler.Constraints{LecturesPerSubject: 3, NumberOfAttempts: 10, Seed: seedPtr(2)})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestTimetableServiceGenerateFromDatabase(t *testing.T) {
	req := smallRequest()
	repos := TimetableRepositories{
		Faculty:   staticList[models.Faculty]{items: req.Faculty},
		Subjects:  staticList[models.Subject]{items: req.Subjects},
		Classes:   staticList[models.ClassGroup]{items: req.Classes},
		Resources: staticList[models.Resource]{items: req.Resources},
	}
	svc := newTimetableService(t, repos, nil, TimetableConfig{})

	resp, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{Source: dto.SourceDatabase})
	require.NoError(t, err)
	assert.True(t, resp.Valid)

	repos.Subjects = staticList[models.Subject]{err: errors.New("db down")}
	svc = newTimetableService(t, repos, nil, TimetableConfig{})
	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{Source: dto.SourceDatabase})
	assert.Equal(t, appErrors.ErrInternal.Code, appCode(t, err))
}

func newTxDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestTimetableServiceSave(t *testing.T) {
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	timetables := newStubTimetables()
	entries := &stubEntries{}
	svc := newTimetableService(t, TimetableRepositories{Timetables: timetables, Entries: entries, Tx: db}, nil, TimetableConfig{})

	generated, err := svc.Generate(context.Background(), smallRequest())
	require.NoError(t, err)

	saved, err := svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID})
	require.NoError(t, err)
	assert.Equal(t, "tt-new", saved.TimetableID)
	assert.Equal(t, 1, saved.Version)
	assert.Equal(t, len(generated.Entries), saved.Entries)

	require.Len(t, timetables.created, 1)
	assert.Equal(t, models.TimetableStatusDraft, timetables.created[0].Status)
	assert.Contains(t, string(timetables.created[0].Meta), generated.ProposalID)
	for _, entry := range entries.saved {
		assert.Equal(t, "tt-new", entry.TimetableID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())

	_, ok := svc.Proposal(generated.ProposalID)
	assert.False(t, ok)
	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID})
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(t, err))
}

func TestTimetableServiceSaveKeepsViolatingProposals(t *testing.T) {
	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	core, logs := observer.New(zapcore.WarnLevel)

	timetables := newStubTimetables()
	svc := NewTimetableService(TimetableRepositories{Timetables: timetables, Entries: &stubEntries{}, Tx: db},
		nil, nil, NewMetricsService(), nil, zap.New(core), TimetableConfig{Enabled: true})

	req := smallRequest()
	req.Faculty = nil
	generated, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, generated.Violations)

	saved, err := svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID})
	require.NoError(t, err)
	assert.Equal(t, "tt-new", saved.TimetableID)
	require.Len(t, timetables.created, 1)
	assert.Equal(t, len(generated.Violations), timetables.created[0].ViolationCount)
	assert.NoError(t, mock.ExpectationsWereMet())

	warnings := logs.FilterMessage("saving timetable with violations").All()
	require.Len(t, warnings, 1)
	fields := warnings[0].ContextMap()
	assert.EqualValues(t, len(generated.Violations), fields["violations"])
	assert.Equal(t, generated.ProposalID, fields["proposal_id"])
}

func TestTimetableServiceSaveRejectsViolationsOnRequest(t *testing.T) {
	svc := newTimetableService(t, TimetableRepositories{}, nil, TimetableConfig{})

	req := smallRequest()
	req.Faculty = nil
	generated, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, generated.Violations)

	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID, RejectViolations: true})
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(t, err))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.NotEmpty(t, appErr.Details)

	relaxed := svc.store.Save(scheduler.Input{}, scheduler.Constraints{}, &scheduler.Result{Relaxed: true})
	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: relaxed.ID, RejectViolations: true})
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(t, err))

	_, ok := svc.Proposal(generated.ProposalID)
	assert.True(t, ok, "rejected proposals stay available")
}

func TestTimetableServiceSaveFillsMissingResources(t *testing.T) {
	entry := models.ScheduleEntry{Day: models.Monday, Interval: models.MustInterval("10:15", "11:15"), ClassID: "c-1", SubjectID: "math", FacultyID: "f-1"}
	engine := &stubEngine{generate: func(context.Context) (*scheduler.Result, error) {
		return &scheduler.Result{Entries: []models.ScheduleEntry{entry}, Violations: []scheduler.Violation{}}, nil
	}}

	req := smallRequest()
	req.Resources = nil

	svc := newTimetableService(t, TimetableRepositories{Timetables: newStubTimetables(), Entries: &stubEntries{}}, engine, TimetableConfig{})
	generated, err := svc.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(t, err))

	db, mock := newTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()
	stored := &stubEntries{}
	svc = newTimetableService(t, TimetableRepositories{Timetables: newStubTimetables(), Entries: stored, Tx: db}, engine, TimetableConfig{DefaultResourceID: "hall"})
	generated, err = svc.Generate(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), dto.SaveTimetableRequest{ProposalID: generated.ProposalID})
	require.NoError(t, err)
	require.Len(t, stored.saved, 1)
	assert.Equal(t, "hall", stored.saved[0].ResourceID)
	assert.Empty(t, generated.Entries[0].ResourceID)
}

func TestTimetableServicePublishAndDelete(t *testing.T) {
	timetables := newStubTimetables(
		&models.Timetable{ID: "tt-1", Version: 1, Status: models.TimetableStatusDraft},
		&models.Timetable{ID: "tt-2", Version: 2, Status: models.TimetableStatusDraft},
	)
	svc := newTimetableService(t, TimetableRepositories{Timetables: timetables, Entries: &stubEntries{}}, nil, TimetableConfig{})
	ctx := context.Background()

	published, err := svc.Publish(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, models.TimetableStatusPublished, published.Status)

	_, err = svc.Publish(ctx, "tt-1")
	assert.Equal(t, appErrors.ErrPublished.Code, appCode(t, err))

	err = svc.Delete(ctx, "tt-1")
	assert.Equal(t, appErrors.ErrPublished.Code, appCode(t, err))

	require.NoError(t, svc.Delete(ctx, "tt-2"))
	err = svc.Delete(ctx, "tt-2")
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(t, err))

	_, err = svc.GetEntries(ctx, "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(t, err))
}

func TestTimetableServiceGetEntriesUsesCache(t *testing.T) {
	timetables := newStubTimetables(&models.Timetable{ID: "tt-1", Status: models.TimetableStatusPublished})
	entries := &stubEntries{saved: []models.ScheduleEntry{
		{TimetableID: "tt-1", Day: models.Monday, Interval: models.MustInterval("09:15", "10:15"), ClassID: "c-1", SubjectID: "math", FacultyID: "f-1", ResourceID: "r-101"},
	}}
	cacheSvc := NewCacheService(newMemoryCache(), nil, time.Minute, nil, true)
	svc := NewTimetableService(TimetableRepositories{Timetables: timetables, Entries: entries}, nil, cacheSvc, nil, nil, nil, TimetableConfig{Enabled: true})

	for i := 0; i < 2; i++ {
		list, err := svc.GetEntries(context.Background(), "tt-1")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.MustInterval("09:15", "10:15"), list[0].Interval)
	}
	assert.Equal(t, 1, entries.reads)
}

func TestTimetableServiceList(t *testing.T) {
	timetables := newStubTimetables(
		&models.Timetable{ID: "tt-1", Status: models.TimetableStatusDraft},
		&models.Timetable{ID: "tt-2", Status: models.TimetableStatusPublished},
	)
	svc := newTimetableService(t, TimetableRepositories{Timetables: timetables}, nil, TimetableConfig{})

	list, page, err := svc.List(context.Background(), dto.TimetableListQuery{Status: "PUBLISHED"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tt-2", list[0].ID)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, page)

	_, _, err = svc.List(context.Background(), dto.TimetableListQuery{Status: "ARCHIVED"})
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(t, err))
}

func TestProposalStoreExpires(t *testing.T) {
	store := newProposalStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	proposal := store.Save(scheduler.Input{}, scheduler.Constraints{}, &scheduler.Result{})
	_, ok := store.Get(proposal.ID)
	assert.True(t, ok)

	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = store.Get(proposal.ID)
	assert.False(t, ok)
}

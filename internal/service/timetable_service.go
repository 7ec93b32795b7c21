package service

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/noah-isme/timetable-api/internal/dto"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/scheduler"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/database"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/middleware/requestid"
)

type facultyReader interface {
	List(ctx context.Context) ([]models.Faculty, error)
}

type subjectReader interface {
	List(ctx context.Context) ([]models.Subject, error)
}

type classGroupReader interface {
	List(ctx context.Context) ([]models.ClassGroup, error)
}

type resourceReader interface {
	List(ctx context.Context) ([]models.Resource, error)
}

type timetableStore interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.TimetableStatus) error
}

type timetableEntryStore interface {
	UpsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.ScheduleEntry, error)
}

type timetableEngine interface {
	Generate(ctx context.Context, in scheduler.Input, c scheduler.Constraints) (*scheduler.Result, error)
	GenerateRelaxed(in scheduler.Input, c scheduler.Constraints) (*scheduler.Result, error)
}

// TimetableRepositories groups the storage collaborators of TimetableService.
type TimetableRepositories struct {
	Faculty    facultyReader
	Subjects   subjectReader
	Classes    classGroupReader
	Resources  resourceReader
	Timetables timetableStore
	Entries    timetableEntryStore
	Tx         database.Beginner
}

// TimetableConfig governs generation behaviour.
type TimetableConfig struct {
	Enabled            bool
	LecturesPerSubject int
	Attempts           int
	Timeout            time.Duration
	ProposalTTL        time.Duration
	DefaultResourceID  string
	CacheTTL           time.Duration
}

// TimetableService generates timetable proposals and manages saved versions.
type TimetableService struct {
	repos     TimetableRepositories
	engine    timetableEngine
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableConfig
	store     *proposalStore
}

// NewTimetableService wires the generation pipeline.
func NewTimetableService(
	repos TimetableRepositories,
	engine timetableEngine,
	cacheSvc *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = scheduler.New(logger)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 25 * time.Second
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &TimetableService{
		repos:     repos,
		engine:    engine,
		cache:     cacheSvc,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newProposalStore(cfg.ProposalTTL),
	}
}

// Generate builds a proposal and keeps it for ProposalTTL so it can be saved
// or exported. Violations are part of a successful response.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.ErrSchedulerDisabled
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}

	input := scheduler.Input{Faculty: req.Faculty, Subjects: req.Subjects, Classes: req.Classes, Resources: req.Resources}
	if req.FromDatabase() {
		loaded, err := s.Catalog(ctx)
		if err != nil {
			return nil, err
		}
		input = loaded
	}
	if err := scheduler.ValidateInput(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	constraints := s.constraints(req.Constraints)
	started := time.Now()

	var (
		result  *scheduler.Result
		cached  bool
		key     string
		outcome string
	)
	if constraints.Seed != nil && s.cache.Enabled() {
		key = cache.Key("generation", timetableFingerprint(input, constraints))
		var hit scheduler.Result
		if s.cache.Get(ctx, key, &hit) {
			result, cached, outcome = &hit, true, OutcomeCached
		}
	}
	if result == nil {
		var err error
		result, err = s.run(ctx, input, constraints)
		if err != nil {
			s.metrics.ObserveGeneration(OutcomeError, 0, 0, time.Since(started))
			return nil, err
		}
		switch {
		case result.Relaxed:
			outcome = OutcomeRelaxed
		case len(result.Violations) > 0:
			outcome = OutcomeViolations
		default:
			outcome = OutcomeValid
		}
		if key != "" && !result.Relaxed {
			s.cache.Set(ctx, key, result, s.cfg.CacheTTL)
		}
	}
	s.metrics.ObserveGeneration(outcome, len(result.Attempts), len(result.Violations), time.Since(started))

	proposal := s.store.Save(input, constraints, result)
	s.logger.Info("timetable proposal generated",
		zap.String("proposal_id", proposal.ID),
		zap.Int("entries", len(result.Entries)),
		zap.Int("violations", len(result.Violations)),
		zap.String("outcome", outcome),
		zap.String("request_id", requestid.FromContext(ctx)),
	)
	return proposalResponse(proposal, cached), nil
}

func (s *TimetableService) constraints(req dto.GenerationConstraints) scheduler.Constraints {
	c := scheduler.Constraints{
		LecturesPerSubject: req.LecturesPerSubject,
		NumberOfAttempts:   req.NumberOfAttempts,
		Seed:               req.Seed,
		Flags:              req.Flags,
	}
	if c.LecturesPerSubject <= 0 {
		c.LecturesPerSubject = s.cfg.LecturesPerSubject
	}
	if c.NumberOfAttempts <= 0 {
		c.NumberOfAttempts = s.cfg.Attempts
	}
	return c.WithDefaults()
}

type engineOutcome struct {
	result *scheduler.Result
	err    error
}

// run bounds the attempt loop by cfg.Timeout. When the budget runs out the
// search is abandoned for a single relaxed pass.
func (s *TimetableService) run(ctx context.Context, in scheduler.Input, c scheduler.Constraints) (*scheduler.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan engineOutcome, 1)
	go func() {
		result, err := s.engine.Generate(runCtx, in, c)
		done <- engineOutcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && (runCtx.Err() == nil || out.result.Valid()) {
			return out.result, nil
		}
		if out.err != nil && !errors.Is(out.err, context.DeadlineExceeded) && !errors.Is(out.err, context.Canceled) {
			return nil, appErrors.Wrap(out.err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable generation failed")
		}
	case <-runCtx.Done():
	}

	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "timetable generation cancelled")
	}
	s.logger.Warn("timetable generation timed out, running relaxed pass", zap.Duration("timeout", s.cfg.Timeout))
	result, err := s.engine.GenerateRelaxed(in, c)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "relaxed timetable generation failed")
	}
	return result, nil
}

// Catalog loads every scheduling entity from storage.
func (s *TimetableService) Catalog(ctx context.Context) (scheduler.Input, error) {
	if s.repos.Faculty == nil || s.repos.Subjects == nil || s.repos.Classes == nil || s.repos.Resources == nil {
		return scheduler.Input{}, appErrors.Clone(appErrors.ErrPreconditionFailed, "database source is not configured")
	}
	var (
		in  scheduler.Input
		err error
	)
	if in.Faculty, err = s.repos.Faculty.List(ctx); err != nil {
		return in, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	if in.Subjects, err = s.repos.Subjects.List(ctx); err != nil {
		return in, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	if in.Classes, err = s.repos.Classes.List(ctx); err != nil {
		return in, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class groups")
	}
	if in.Resources, err = s.repos.Resources.List(ctx); err != nil {
		return in, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load resources")
	}
	return in, nil
}

// Proposal returns a stored, unexpired proposal.
func (s *TimetableService) Proposal(id string) (*Proposal, bool) {
	return s.store.Get(id)
}

// Save persists a proposal as a new draft timetable version.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*dto.SaveTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if n := len(proposal.Result.Violations); n > 0 || proposal.Result.Relaxed {
		if req.RejectViolations {
			if n > 0 {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("proposal has %d violations", n)).
					WithDetails(scheduler.Messages(proposal.Result.Violations))
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "proposal comes from the relaxed fallback")
		}
		s.logger.Warn("saving timetable with violations",
			zap.String("proposal_id", proposal.ID),
			zap.Int("violations", n),
			zap.Bool("relaxed", proposal.Result.Relaxed),
			zap.Strings("messages", scheduler.Messages(proposal.Result.Violations)),
		)
	}
	entries, err := s.assignResources(proposal)
	if err != nil {
		return nil, err
	}
	if s.repos.Tx == nil || s.repos.Timetables == nil || s.repos.Entries == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "timetable storage is not configured")
	}

	meta, err := json.Marshal(map[string]any{
		"proposal_id":          proposal.ID,
		"generated_at":         proposal.CreatedAt,
		"relaxed":              proposal.Result.Relaxed,
		"best_attempt":         proposal.Result.BestAttempt,
		"attempts":             len(proposal.Result.Attempts),
		"lectures_per_subject": proposal.Constraints.LecturesPerSubject,
		"seed":                 proposal.Constraints.Seed,
		"violations":           scheduler.Messages(proposal.Result.Violations),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable metadata")
	}

	record := &models.Timetable{
		Status:         models.TimetableStatusDraft,
		ViolationCount: len(proposal.Result.Violations),
		Meta:           types.JSONText(meta),
	}
	err = database.WithTx(ctx, s.repos.Tx, func(tx *sqlx.Tx) error {
		if err := s.repos.Timetables.CreateVersioned(ctx, tx, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable")
		}
		for i := range entries {
			entries[i].TimetableID = record.ID
		}
		if err := s.repos.Entries.UpsertBatch(ctx, tx, entries); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist timetable entries")
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
	}

	s.store.Delete(proposal.ID)
	s.logger.Info("timetable saved", zap.String("timetable_id", record.ID), zap.Int("version", record.Version))
	return &dto.SaveTimetableResponse{TimetableID: record.ID, Version: record.Version, Entries: len(entries)}, nil
}

// assignResources copies the proposal entries, filling empty resource ids
// with a resource of the matching kind or the configured default.
func (s *TimetableService) assignResources(proposal *Proposal) ([]models.ScheduleEntry, error) {
	fallback := map[models.ResourceKind]string{}
	var anyResource string
	for _, resource := range proposal.Input.Resources {
		if _, ok := fallback[resource.Kind]; !ok {
			fallback[resource.Kind] = resource.ID
		}
		if anyResource == "" {
			anyResource = resource.ID
		}
	}

	entries := make([]models.ScheduleEntry, len(proposal.Result.Entries))
	copy(entries, proposal.Result.Entries)
	for i := range entries {
		if entries[i].ResourceID != "" {
			continue
		}
		kind := models.ResourceKindClassroom
		if entries[i].IsLab() {
			kind = models.ResourceKindLab
		}
		switch {
		case fallback[kind] != "":
			entries[i].ResourceID = fallback[kind]
		case anyResource != "":
			entries[i].ResourceID = anyResource
		case s.cfg.DefaultResourceID != "":
			entries[i].ResourceID = s.cfg.DefaultResourceID
		default:
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed,
				fmt.Sprintf("entry for class %s subject %s on %s has no resource and no default resource is configured",
					entries[i].ClassID, entries[i].SubjectID, entries[i].Day))
		}
	}
	return entries, nil
}

// List returns saved timetables, newest version first.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableListQuery) ([]models.Timetable, *models.Pagination, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 20
	}
	list, total, err := s.repos.Timetables.List(ctx, models.TimetableFilter{
		Status:   models.TimetableStatus(query.Status),
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return list, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// GetEntries returns the entries of a saved timetable.
func (s *TimetableService) GetEntries(ctx context.Context, id string) ([]models.ScheduleEntry, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	key := cache.Key("entries", id, "all")
	var cached []models.ScheduleEntry
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}
	entries, err := s.repos.Entries.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable entries")
	}
	s.cache.Set(ctx, key, entries, s.cfg.CacheTTL)
	return entries, nil
}

// Publish marks a draft timetable as published. Published timetables are immutable.
func (s *TimetableService) Publish(ctx context.Context, id string) (*models.Timetable, error) {
	record, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status == models.TimetableStatusPublished {
		return nil, appErrors.ErrPublished
	}
	if err := s.repos.Timetables.UpdateStatus(ctx, nil, id, models.TimetableStatusPublished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish timetable")
	}
	record.Status = models.TimetableStatusPublished
	return record, nil
}

// Delete removes a draft timetable and its entries.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	record, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrPublished, "only draft timetables can be deleted")
	}
	if err := s.repos.Timetables.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable")
	}
	s.cache.Invalidate(ctx, "entries", id)
	return nil
}

func (s *TimetableService) find(ctx context.Context, id string) (*models.Timetable, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	record, err := s.repos.Timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	return record, nil
}

func proposalResponse(p *Proposal, cached bool) *dto.GenerateTimetableResponse {
	return &dto.GenerateTimetableResponse{
		ProposalID: p.ID,
		Valid:      p.Result.Valid(),
		Entries:    p.Result.Entries,
		Violations: p.Result.Violations,
		Stats: dto.GenerationStats{
			Attempts:    p.Result.Attempts,
			BestAttempt: p.Result.BestAttempt,
			DurationMs:  p.Result.Duration.Milliseconds(),
			Relaxed:     p.Result.Relaxed,
			Cached:      cached,
		},
		ExpiresAt: p.ExpiresAt,
	}
}

// timetableFingerprint hashes the canonical JSON of a seeded request. Flags
// are excluded because the engine ignores them.
func timetableFingerprint(in scheduler.Input, c scheduler.Constraints) string {
	canonical := struct {
		Input              scheduler.Input `json:"input"`
		LecturesPerSubject int             `json:"lectures_per_subject"`
		NumberOfAttempts   int             `json:"number_of_attempts"`
		Seed               *int64          `json:"seed"`
	}{in, c.LecturesPerSubject, c.NumberOfAttempts, c.Seed}
	payload, _ := json.Marshal(canonical)
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Proposal is a generated timetable awaiting save or export.
type Proposal struct {
	ID          string
	Input       scheduler.Input
	Constraints scheduler.Constraints
	Result      *scheduler.Result
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type proposalStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]*Proposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{ttl: ttl, now: time.Now, items: make(map[string]*Proposal)}
}

func (s *proposalStore) Save(in scheduler.Input, c scheduler.Constraints, result *scheduler.Result) *Proposal {
	now := s.now().UTC()
	proposal := &Proposal{
		ID:          uuid.NewString(),
		Input:       in,
		Constraints: c,
		Result:      result,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if now.After(item.ExpiresAt) {
			delete(s.items, id)
		}
	}
	s.items[proposal.ID] = proposal
	return proposal
}

func (s *proposalStore) Get(id string) (*Proposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(proposal.ExpiresAt) {
		s.Delete(id)
		return nil, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

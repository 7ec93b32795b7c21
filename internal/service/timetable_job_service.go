package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/dto"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
)

// JobTypeGenerate tags queued timetable generations.
const JobTypeGenerate = "timetable.generate"

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type generationRunner interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error)
}

// GenerationJob is the tracked state of one asynchronous generation.
type GenerationJob struct {
	ID         string
	Status     dto.JobStatus
	Request    dto.GenerateTimetableRequest
	ProposalID string
	Valid      *bool
	Violations int
	Error      string
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (j *GenerationJob) response() *dto.GenerationJobResponse {
	return &dto.GenerationJobResponse{
		JobID:      j.ID,
		Status:     j.Status,
		ProposalID: j.ProposalID,
		Valid:      j.Valid,
		Violations: j.Violations,
		Error:      j.Error,
		Attempts:   j.Attempts,
		CreatedAt:  j.CreatedAt,
		UpdatedAt:  j.UpdatedAt,
	}
}

// GenerationJobStore keeps job state in memory. Jobs do not survive a
// restart; the proposals they point at are in-memory as well.
type GenerationJobStore struct {
	mu    sync.RWMutex
	items map[string]*GenerationJob
	now   func() time.Time
}

// NewGenerationJobStore builds an empty store.
func NewGenerationJobStore() *GenerationJobStore {
	return &GenerationJobStore{items: make(map[string]*GenerationJob), now: time.Now}
}

func (s *GenerationJobStore) create(req dto.GenerateTimetableRequest) *GenerationJob {
	now := s.now().UTC()
	job := &GenerationJob{
		ID:        uuid.NewString(),
		Status:    dto.JobStatusQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.items[job.ID] = job
	s.mu.Unlock()
	return job
}

// Get returns a copy of the job.
func (s *GenerationJobStore) Get(id string) (*GenerationJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.items[id]
	if !ok {
		return nil, false
	}
	copied := *job
	return &copied, true
}

func (s *GenerationJobStore) update(id string, fn func(job *GenerationJob)) (*GenerationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.items[id]
	if !ok {
		return nil, false
	}
	fn(job)
	job.UpdatedAt = s.now().UTC()
	copied := *job
	return &copied, true
}

// Purge drops finished or failed jobs last updated before cutoff.
func (s *GenerationJobStore) Purge(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.items {
		done := job.Status == dto.JobStatusFinished || job.Status == dto.JobStatusFailed
		if done && job.UpdatedAt.Before(cutoff) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// TimetableJobService queues generations and reports their progress.
type TimetableJobService struct {
	store     *GenerationJobStore
	queue     jobDispatcher
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewTimetableJobService constructs the job service.
func NewTimetableJobService(store *GenerationJobStore, queue jobDispatcher, validate *validator.Validate, metrics *MetricsService, logger *zap.Logger) *TimetableJobService {
	if store == nil {
		store = NewGenerationJobStore()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableJobService{store: store, queue: queue, validator: validate, metrics: metrics, logger: logger}
}

// Submit records a job and hands it to the queue.
func (s *TimetableJobService) Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerationJobResponse, error) {
	if err := s.validator.StructCtx(ctx, req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	job := s.store.create(req)
	s.metrics.RecordJobStatus(string(dto.JobStatusQueued))
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: JobTypeGenerate}); err != nil {
		s.markFailed(job.ID, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to enqueue generation job")
	}
	return job.response(), nil
}

// Get returns the job status.
func (s *TimetableJobService) Get(_ context.Context, id string) (*dto.GenerationJobResponse, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	return job.response(), nil
}

// MarkExhausted is the queue callback for jobs that ran out of retries.
func (s *TimetableJobService) MarkExhausted(job jobs.Job, err error) {
	msg := "job failed"
	if err != nil {
		msg = err.Error()
	}
	s.markFailed(job.ID, msg)
	s.logger.Warn("generation job exhausted", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
}

func (s *TimetableJobService) markFailed(id, msg string) {
	changed := false
	s.store.update(id, func(job *GenerationJob) {
		if job.Status == dto.JobStatusFailed {
			return
		}
		job.Status = dto.JobStatusFailed
		job.Error = msg
		changed = true
	})
	if changed {
		s.metrics.RecordJobStatus(string(dto.JobStatusFailed))
	}
}

// GenerationWorker bridges queue jobs to the generation pipeline.
type GenerationWorker struct {
	store      *GenerationJobStore
	generator  generationRunner
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
}

// NewGenerationWorker constructs a worker. maxRetries must match the queue's.
func NewGenerationWorker(store *GenerationJobStore, generator generationRunner, metrics *MetricsService, maxRetries int, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GenerationWorker{store: store, generator: generator, metrics: metrics, logger: logger, maxRetries: maxRetries}
}

// Handle processes a queue job. Client errors and a disabled scheduler fail
// the job without a retry.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, ok := w.store.update(job.ID, func(j *GenerationJob) {
		j.Status = dto.JobStatusProcessing
		j.Attempts = job.Attempt + 1
	})
	if !ok {
		w.logger.Warn("generation job vanished", zap.String("job_id", job.ID))
		return nil
	}
	w.metrics.RecordJobStatus(string(dto.JobStatusProcessing))

	resp, err := w.generator.Generate(ctx, record.Request)
	if err != nil {
		msg := err.Error()
		final := appErrors.IsClient(err) || appErrors.HasCode(err, appErrors.ErrSchedulerDisabled.Code)
		if final || job.Attempt >= w.maxRetries {
			w.store.update(job.ID, func(j *GenerationJob) {
				j.Status = dto.JobStatusFailed
				j.Error = msg
			})
			w.metrics.RecordJobStatus(string(dto.JobStatusFailed))
			if final {
				return nil
			}
			return err
		}
		w.store.update(job.ID, func(j *GenerationJob) {
			j.Status = dto.JobStatusQueued
			j.Error = msg
		})
		return err
	}

	valid := resp.Valid
	w.store.update(job.ID, func(j *GenerationJob) {
		j.Status = dto.JobStatusFinished
		j.ProposalID = resp.ProposalID
		j.Valid = &valid
		j.Violations = len(resp.Violations)
		j.Error = ""
	})
	w.metrics.RecordJobStatus(string(dto.JobStatusFinished))
	w.logger.Info("generation job finished", zap.String("job_id", job.ID), zap.String("proposal_id", resp.ProposalID))
	return nil
}

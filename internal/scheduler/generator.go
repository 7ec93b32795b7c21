package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
)

const (
	// DefaultLecturesPerSubject is the weekly lecture target per subject.
	DefaultLecturesPerSubject = 3
	// DefaultAttempts is the attempt budget of one generation.
	DefaultAttempts = 10
)

// ErrInvalidInput wraps every input validation failure.
var ErrInvalidInput = errors.New("invalid scheduling input")

// Input is the entity set one generation works on.
type Input struct {
	Faculty   []models.Faculty    `json:"faculty" yaml:"faculty"`
	Subjects  []models.Subject    `json:"subjects" yaml:"subjects"`
	Classes   []models.ClassGroup `json:"classes" yaml:"classes"`
	Resources []models.Resource   `json:"resources" yaml:"resources"`
}

// Constraints tune a generation. Flags are carried for callers and ignored
// by the engine.
type Constraints struct {
	LecturesPerSubject int                    `json:"lectures_per_subject" yaml:"lectures_per_subject"`
	NumberOfAttempts   int                    `json:"number_of_attempts" yaml:"number_of_attempts"`
	Seed               *int64                 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Flags              map[string]interface{} `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// WithDefaults fills unset limits.
func (c Constraints) WithDefaults() Constraints {
	if c.LecturesPerSubject <= 0 {
		c.LecturesPerSubject = DefaultLecturesPerSubject
	}
	if c.NumberOfAttempts <= 0 {
		c.NumberOfAttempts = DefaultAttempts
	}
	return c
}

// AttemptStat summarises one attempt.
type AttemptStat struct {
	Number     int  `json:"number"`
	Entries    int  `json:"entries"`
	Violations int  `json:"violations"`
	Failed     bool `json:"failed,omitempty"`
}

// Result is the best timetable found by one generation.
type Result struct {
	Entries     []models.ScheduleEntry `json:"entries"`
	Violations  []Violation            `json:"violations"`
	Attempts    []AttemptStat          `json:"attempts"`
	BestAttempt int                    `json:"best_attempt"`
	Relaxed     bool                   `json:"relaxed"`
	Duration    time.Duration          `json:"duration"`
}

// Valid reports whether the result breaks no rule.
func (r *Result) Valid() bool {
	return r != nil && !r.Relaxed && len(r.Violations) == 0
}

// Phase is the orchestrator state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseScored
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseScored:
		return "scored"
	case PhaseDone:
		return "done"
	}
	return "unknown"
}

// Generator runs scheduling attempts and keeps the best one. It holds no
// per-run state and is safe for concurrent use.
type Generator struct {
	logger  *zap.Logger
	newRand func(seed *int64) Rand
}

// Option customises a Generator.
type Option func(*Generator)

// WithRandSource overrides how each run obtains randomness.
func WithRandSource(fn func(seed *int64) Rand) Option {
	return func(g *Generator) {
		if fn != nil {
			g.newRand = fn
		}
	}
}

// New constructs a Generator.
func New(logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{logger: logger, newRand: NewRand}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate validates in and runs up to NumberOfAttempts attempts, stopping at
// the first attempt without violations. The context is checked between
// attempts; once it is done the best result so far is returned, or the
// context error when no attempt finished.
func (g *Generator) Generate(ctx context.Context, in Input, c Constraints) (*Result, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	c = c.WithDefaults()
	started := time.Now()
	rng := g.newRand(c.Seed)
	cat := newCatalog(in)

	var (
		best      *attempt
		bestScore = math.MaxInt
		stats     = make([]AttemptStat, 0, c.NumberOfAttempts)
		phase     = PhaseIdle
	)
	for n := 1; n <= c.NumberOfAttempts; n++ {
		if err := ctx.Err(); err != nil {
			if best == nil {
				return nil, err
			}
			g.logger.Debug("generation interrupted", zap.Int("completed", n-1), zap.Error(err))
			break
		}

		phase = g.transition(n, phase, PhaseRunning)
		current := g.runAttempt(n, in, cat, rng, c.LecturesPerSubject, []Level{LevelStrict}, true)
		phase = g.transition(n, phase, PhaseScored)

		stats = append(stats, AttemptStat{
			Number:     n,
			Entries:    len(current.entries),
			Violations: len(current.violations),
			Failed:     current.failed,
		})
		if best == nil || current.score() < bestScore {
			best, bestScore = current, current.score()
		}
		if bestScore == 0 {
			break
		}
		phase = g.transition(n, phase, PhaseIdle)
	}
	g.transition(len(stats), phase, PhaseDone)

	result := &Result{
		Attempts: stats,
		Duration: time.Since(started),
	}
	if best != nil {
		result.Entries = best.entries
		result.Violations = best.violations
		result.BestAttempt = best.number
	}
	if result.Entries == nil {
		result.Entries = []models.ScheduleEntry{}
	}
	if result.Violations == nil {
		result.Violations = []Violation{}
	}
	return result, nil
}

// GenerateRelaxed runs a single attempt whose repair passes escalate from
// strict to relaxed to best-effort placement. The result is not validated.
func (g *Generator) GenerateRelaxed(in Input, c Constraints) (*Result, error) {
	if err := ValidateInput(in); err != nil {
		return nil, err
	}
	c = c.WithDefaults()
	started := time.Now()
	levels := []Level{LevelStrict, LevelRelaxed, LevelBestEffort}
	current := g.runAttempt(1, in, newCatalog(in), g.newRand(c.Seed), c.LecturesPerSubject, levels, false)

	result := &Result{
		Entries:     current.entries,
		Violations:  current.violations,
		Attempts:    []AttemptStat{{Number: 1, Entries: len(current.entries), Failed: current.failed}},
		BestAttempt: 1,
		Relaxed:     true,
		Duration:    time.Since(started),
	}
	if result.Entries == nil {
		result.Entries = []models.ScheduleEntry{}
	}
	if result.Violations == nil {
		result.Violations = []Violation{}
	}
	return result, nil
}

type attempt struct {
	number     int
	entries    []models.ScheduleEntry
	violations []Violation
	failed     bool
}

func (a *attempt) score() int {
	if a.failed {
		return math.MaxInt
	}
	return len(a.violations)
}

func (g *Generator) runAttempt(n int, in Input, cat *catalog, rng Rand, target int, levels []Level, validate bool) (result *attempt) {
	result = &attempt{number: n}
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("scheduling attempt panicked", zap.Int("attempt", n), zap.Any("panic", r))
			result = &attempt{
				number: n,
				failed: true,
				violations: []Violation{{
					Kind:    ViolationAttemptFailed,
					Message: fmt.Sprintf("attempt %d aborted: %v", n, r),
				}},
			}
		}
	}()

	st := newState(cat, rng)
	scheduleLabs(st, levels)
	scheduleLectures(st, target, levels)
	result.entries = st.entries
	if validate {
		result.violations = Validate(in, st.entries, target)
	}
	return result
}

func (g *Generator) transition(n int, from, to Phase) Phase {
	g.logger.Debug("attempt transition", zap.Int("attempt", n), zap.Stringer("from", from), zap.Stringer("to", to))
	return to
}

// ValidateInput rejects entity sets the engine cannot work on.
func ValidateInput(in Input) error {
	if len(in.Classes) == 0 {
		return fmt.Errorf("%w: no classes supplied", ErrInvalidInput)
	}
	if len(in.Subjects) == 0 {
		return fmt.Errorf("%w: no subjects supplied", ErrInvalidInput)
	}

	subjects := make(map[string]bool, len(in.Subjects))
	for _, subject := range in.Subjects {
		if subject.ID == "" {
			return fmt.Errorf("%w: subject %q has an empty id", ErrInvalidInput, subject.Name)
		}
		if subjects[subject.ID] {
			return fmt.Errorf("%w: duplicate subject id %s", ErrInvalidInput, subject.ID)
		}
		subjects[subject.ID] = true
	}

	faculty := make(map[string]bool, len(in.Faculty))
	for _, f := range in.Faculty {
		if f.ID == "" {
			return fmt.Errorf("%w: faculty %q has an empty id", ErrInvalidInput, f.Name)
		}
		if faculty[f.ID] {
			return fmt.Errorf("%w: duplicate faculty id %s", ErrInvalidInput, f.ID)
		}
		faculty[f.ID] = true
		for _, subjectID := range f.SubjectIDs {
			if !subjects[subjectID] {
				return fmt.Errorf("%w: faculty %s references unknown subject %s", ErrInvalidInput, f.ID, subjectID)
			}
		}
		for day, windows := range f.Availability {
			if dayIndex(day) == len(Days) {
				return fmt.Errorf("%w: faculty %s has availability on unsupported day %q", ErrInvalidInput, f.ID, day)
			}
			for _, window := range windows {
				if window.End <= window.Start {
					return fmt.Errorf("%w: faculty %s has an empty availability window %s on %s", ErrInvalidInput, f.ID, window, day)
				}
			}
		}
	}

	classes := make(map[string]bool, len(in.Classes))
	for _, class := range in.Classes {
		if class.ID == "" {
			return fmt.Errorf("%w: class %q has an empty id", ErrInvalidInput, class.Name)
		}
		if classes[class.ID] {
			return fmt.Errorf("%w: duplicate class id %s", ErrInvalidInput, class.ID)
		}
		classes[class.ID] = true
		for _, subjectID := range class.SubjectIDs {
			if !subjects[subjectID] {
				return fmt.Errorf("%w: class %s references unknown subject %s", ErrInvalidInput, class.ID, subjectID)
			}
		}
		batches := make(map[string]bool, len(class.Batches))
		for _, label := range class.Batches {
			if label == "" {
				return fmt.Errorf("%w: class %s has an empty batch label", ErrInvalidInput, class.ID)
			}
			if batches[label] {
				return fmt.Errorf("%w: class %s repeats batch %s", ErrInvalidInput, class.ID, label)
			}
			batches[label] = true
		}
	}

	resources := make(map[string]bool, len(in.Resources))
	for _, resource := range in.Resources {
		if resource.ID == "" {
			return fmt.Errorf("%w: resource %q has an empty id", ErrInvalidInput, resource.Name)
		}
		if resources[resource.ID] {
			return fmt.Errorf("%w: duplicate resource id %s", ErrInvalidInput, resource.ID)
		}
		resources[resource.ID] = true
	}
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"exam-session-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// ContentStore is the read-only question catalogue.
type ContentStore interface {
	AvailabilityCounter
	// ResolveCorrectAnswers returns the authoritative answer of every id it knows.
	// Unknown ids are absent from the map.
	ResolveCorrectAnswers(ctx context.Context, questionIDs []string) (map[string]domain.CorrectAnswer, error)
	// HydrateQuestions returns live display content keyed by question id.
	HydrateQuestions(ctx context.Context, questionIDs []string) (map[string]domain.QuestionContent, error)
}

// AvailabilityCounter counts eligible questions for a normalized filter.
// The returned availability always carries the per-difficulty breakdown.
type AvailabilityCounter interface {
	CountEligible(ctx context.Context, filter domain.Filter) (domain.Availability, error)
}

// SessionRepository persists sessions, their snapshots and answers.
//
// Implementations must enforce uniqueness of (sessionID, questionOrder) for both
// snapshots and answers, and report logical conditions with domain errors:
// ErrSessionNotFound, ErrSnapshotConflict, ErrQuestionNotInSession, ErrSessionNotActive.
type SessionRepository interface {
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	SnapshotStats(ctx context.Context, sessionID string) (domain.SnapshotStats, error)
	// MaterializeSnapshot writes all rows and moves the session created -> active
	// in one atomic step. Existing rows or a non-created session yield ErrSnapshotConflict.
	MaterializeSnapshot(ctx context.Context, sessionID string, rows []domain.QuestionSnapshot) error
	// ActivateSession moves a created session with a complete snapshot to active.
	ActivateSession(ctx context.Context, sessionID string) error
	ListSnapshots(ctx context.Context, sessionID string) ([]domain.QuestionSnapshot, error)
	GetSnapshot(ctx context.Context, sessionID string, questionOrder int) (domain.QuestionSnapshot, error)
	// UpsertAnswer stores the answer unless a newer one exists and returns the current row.
	// The session must be active at write time: ErrSessionCompleted or
	// ErrSessionNotActive otherwise, checked atomically with the write.
	UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
	// CompleteSession moves active -> completed. Completed sessions are returned
	// unchanged; transitioned is true only for the call that completed it.
	CompleteSession(ctx context.Context, sessionID string, at time.Time) (session domain.Session, transitioned bool, err error)
}

// EventPublisher emits domain events for downstream statistics consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// ExamService implements the exam session engine use cases.
type ExamService struct {
	sessions     SessionRepository
	content      ContentStore
	availability AvailabilityCounter
	events       EventPublisher
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

// Option customizes an ExamService.
type Option func(*ExamService)

// WithAvailabilityCounter routes availability checks through counter (usually a cache).
func WithAvailabilityCounter(counter AvailabilityCounter) Option {
	return func(s *ExamService) { s.availability = counter }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *ExamService) { s.events = p }
}

func WithMetrics(m *Metrics) Option {
	return func(s *ExamService) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ExamService) { s.logger = l }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *ExamService) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *ExamService) { s.newID = newID }
}

func NewExamService(sessions SessionRepository, content ContentStore, opts ...Option) *ExamService {
	s := &ExamService{
		sessions:     sessions,
		content:      content,
		availability: content,
		events:       NopPublisher{},
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        newSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(prometheus.NewRegistry())
	}
	return s
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

func (s *ExamService) publish(ctx context.Context, eventType string, payload any) {
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", eventType, "error", err)
	}
}

// dependencyErr marks err as a retryable dependency failure unless it already is
// one of the logical outcomes listed in keep.
func dependencyErr(op string, err error, keep ...error) error {
	if err == nil {
		return nil
	}
	for _, k := range keep {
		if errors.Is(err, k) {
			return err
		}
	}
	if errors.Is(err, domain.ErrDependency) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrDependency, err)
}

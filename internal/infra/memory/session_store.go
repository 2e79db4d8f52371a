package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"exam-session-engine/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// A single mutex gives it the same atomicity the SQL store gets from transactions.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  map[string]domain.Session
	snapshots map[string]map[int]domain.QuestionSnapshot
	answers   map[string]map[int]domain.Answer
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[string]domain.Session),
		snapshots: make(map[string]map[int]domain.QuestionSnapshot),
		answers:   make(map[string]map[int]domain.Answer),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *SessionStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) SnapshotStats(_ context.Context, sessionID string) (domain.SnapshotStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.SnapshotStats
	for _, row := range s.snapshots[sessionID] {
		stats.Saved++
		if !row.CorrectAnswer.Resolved() {
			stats.Unresolved++
		}
	}
	return stats, nil
}

func (s *SessionStore) MaterializeSnapshot(_ context.Context, sessionID string, rows []domain.QuestionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status != domain.StatusCreated || len(s.snapshots[sessionID]) > 0 {
		return domain.ErrSnapshotConflict
	}

	stored := make(map[int]domain.QuestionSnapshot, len(rows))
	for _, row := range rows {
		if _, dup := stored[row.QuestionOrder]; dup {
			return domain.ErrSnapshotConflict
		}
		stored[row.QuestionOrder] = row
	}
	s.snapshots[sessionID] = stored
	session.Status = domain.StatusActive
	s.sessions[sessionID] = session
	return nil
}

func (s *SessionStore) ActivateSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.Status == domain.StatusCreated && len(s.snapshots[sessionID]) == session.TotalQuestions {
		session.Status = domain.StatusActive
		s.sessions[sessionID] = session
	}
	return nil
}

func (s *SessionStore) ListSnapshots(_ context.Context, sessionID string) ([]domain.QuestionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]domain.QuestionSnapshot, 0, len(s.snapshots[sessionID]))
	for _, row := range s.snapshots[sessionID] {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionOrder < rows[j].QuestionOrder })
	return rows, nil
}

func (s *SessionStore) GetSnapshot(_ context.Context, sessionID string, questionOrder int) (domain.QuestionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.snapshots[sessionID][questionOrder]
	if !ok {
		return domain.QuestionSnapshot{}, domain.ErrQuestionNotInSession
	}
	return row, nil
}

func (s *SessionStore) UpsertAnswer(_ context.Context, answer domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[answer.SessionID]
	if !ok {
		return domain.Answer{}, domain.ErrSessionNotFound
	}
	if err := answerable(session.Status); err != nil {
		return domain.Answer{}, err
	}
	byOrder, ok := s.answers[answer.SessionID]
	if !ok {
		byOrder = make(map[int]domain.Answer)
		s.answers[answer.SessionID] = byOrder
	}
	if current, ok := byOrder[answer.QuestionOrder]; ok && current.AnsweredAt.After(answer.AnsweredAt) {
		return current, nil
	}
	byOrder[answer.QuestionOrder] = answer
	return answer, nil
}

func (s *SessionStore) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0, len(s.answers[sessionID]))
	for _, a := range s.answers[sessionID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionOrder < out[j].QuestionOrder })
	return out, nil
}

func (s *SessionStore) CompleteSession(_ context.Context, sessionID string, at time.Time) (domain.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false, domain.ErrSessionNotFound
	}
	switch session.Status {
	case domain.StatusCompleted:
		return session, false, nil
	case domain.StatusCreated:
		return domain.Session{}, false, domain.ErrSessionNotActive
	}
	session.Status = domain.StatusCompleted
	session.CompletedAt = &at
	s.sessions[sessionID] = session
	return session, true, nil
}

func answerable(status domain.SessionStatus) error {
	switch status {
	case domain.StatusActive:
		return nil
	case domain.StatusCompleted:
		return domain.ErrSessionCompleted
	default:
		return domain.ErrSessionNotActive
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"exam-session-engine/internal/domain"
	"github.com/google/uuid"
)

const (
	EventSessionCreated   = "exam.session.created"
	EventSessionActivated = "exam.session.activated"
	EventSnapshotDegraded = "exam.snapshot.unresolved"
)

func newSessionID() string {
	return uuid.NewString()
}

// CreateSession registers a new session in state created for ownerID.
func (s *ExamService) CreateSession(ctx context.Context, ownerID string, filter domain.Filter, totalQuestions int) (session domain.Session, err error) {
	ctx, done := s.startOp(ctx, "CreateSession", "")
	defer done(&err)

	if strings.TrimSpace(ownerID) == "" {
		return domain.Session{}, domain.ErrMissingOwner
	}
	normalized, err := filter.Normalize()
	if err != nil {
		return domain.Session{}, err
	}
	if totalQuestions <= 0 || totalQuestions > domain.MaxSessionQuestions {
		return domain.Session{}, fmt.Errorf("%w: %d not in 1..%d", domain.ErrInvalidSessionSize, totalQuestions, domain.MaxSessionQuestions)
	}

	session = domain.Session{
		ID:             s.newID(),
		OwnerID:        ownerID,
		Filter:         normalized,
		TotalQuestions: totalQuestions,
		Status:         domain.StatusCreated,
		CreatedAt:      s.now(),
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return domain.Session{}, dependencyErr("create session", err)
	}

	s.publish(ctx, EventSessionCreated, map[string]any{
		"sessionId":      session.ID,
		"ownerId":        session.OwnerID,
		"track":          normalized.Track,
		"totalQuestions": totalQuestions,
	})
	return session, nil
}

// InitializeSession materializes the immutable question snapshot of a session.
//
// The candidate list decides which questions appear and in what order. Every
// correct answer is looked up in the content store in one batch; ids the store
// no longer knows are written with domain.AnswerUnresolved and counted. Display
// fields the client left empty are captured from the catalogue at the same
// time, so later catalogue edits do not change the session. A repeat call on a
// fully initialized session returns the stored counts without writing.
func (s *ExamService) InitializeSession(ctx context.Context, sessionID string, candidates []domain.CandidateQuestion) (result domain.InitResult, err error) {
	ctx, done := s.startOp(ctx, "InitializeSession", sessionID)
	defer done(&err)

	if len(candidates) == 0 {
		return domain.InitResult{}, domain.ErrEmptyCandidateList
	}
	ids, err := candidateIDs(candidates)
	if err != nil {
		return domain.InitResult{}, err
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.InitResult{}, dependencyErr("load session", err, domain.ErrSessionNotFound)
	}
	if session.Status == domain.StatusCompleted {
		return domain.InitResult{}, domain.ErrSessionCompleted
	}
	if len(candidates) != session.TotalQuestions {
		return domain.InitResult{}, fmt.Errorf("%w: got %d questions, session declares %d",
			domain.ErrSizeMismatch, len(candidates), session.TotalQuestions)
	}

	if existing, complete, err := s.existingSnapshot(ctx, session); err != nil || complete {
		return existing, err
	}

	answers, err := s.content.ResolveCorrectAnswers(ctx, ids)
	if err != nil {
		return domain.InitResult{}, dependencyErr("resolve correct answers", err)
	}
	display, err := s.content.HydrateQuestions(ctx, ids)
	if err != nil {
		return domain.InitResult{}, dependencyErr("hydrate questions", err)
	}

	rows, unresolved := buildSnapshot(sessionID, ids, candidates, answers, display)
	if err := s.sessions.MaterializeSnapshot(ctx, sessionID, rows); err != nil {
		if errors.Is(err, domain.ErrSnapshotConflict) {
			// A concurrent initialize won the race; report what it stored.
			session, err := s.sessions.GetSession(ctx, sessionID)
			if err != nil {
				return domain.InitResult{}, dependencyErr("reload session", err, domain.ErrSessionNotFound)
			}
			if session.Status == domain.StatusCompleted {
				return domain.InitResult{}, domain.ErrSessionCompleted
			}
			existing, ok, err := s.existingSnapshot(ctx, session)
			if err != nil {
				return domain.InitResult{}, err
			}
			if ok {
				return existing, nil
			}
			return domain.InitResult{}, domain.ErrSnapshotIncomplete
		}
		return domain.InitResult{}, dependencyErr("write snapshot", err, domain.ErrSessionNotFound)
	}

	s.metrics.initializations.WithLabelValues("created").Inc()
	if len(unresolved) > 0 {
		s.metrics.unresolvedAnswers.Add(float64(len(unresolved)))
		s.logger.WarnContext(ctx, "snapshot written with unresolved correct answers",
			"session_id", sessionID,
			"unresolved_count", len(unresolved),
			"question_ids", unresolved,
		)
		s.publish(ctx, EventSnapshotDegraded, map[string]any{
			"sessionId":   sessionID,
			"questionIds": unresolved,
		})
	}
	s.publish(ctx, EventSessionActivated, map[string]any{
		"sessionId":       sessionID,
		"ownerId":         session.OwnerID,
		"savedCount":      len(rows),
		"unresolvedCount": len(unresolved),
	})

	return domain.InitResult{SavedCount: len(rows), UnresolvedCount: len(unresolved)}, nil
}

// existingSnapshot inspects the stored rows of session. It reports true
// when the snapshot is already complete, repairing a created status if needed.
func (s *ExamService) existingSnapshot(ctx context.Context, session domain.Session) (domain.InitResult, bool, error) {
	stats, err := s.sessions.SnapshotStats(ctx, session.ID)
	if err != nil {
		return domain.InitResult{}, false, dependencyErr("count snapshot rows", err)
	}

	switch {
	case stats.Saved == 0 && session.Status == domain.StatusCreated:
		return domain.InitResult{}, false, nil
	case stats.Saved == session.TotalQuestions:
		if session.Status == domain.StatusCreated {
			if err := s.sessions.ActivateSession(ctx, session.ID); err != nil {
				return domain.InitResult{}, false, dependencyErr("activate session", err)
			}
		}
		s.metrics.initializations.WithLabelValues("idempotent").Inc()
		return domain.InitResult{
			SavedCount:      stats.Saved,
			UnresolvedCount: stats.Unresolved,
			AlreadyActive:   true,
		}, true, nil
	default:
		return domain.InitResult{}, false, fmt.Errorf("%w: %d of %d rows stored",
			domain.ErrSnapshotIncomplete, stats.Saved, session.TotalQuestions)
	}
}

// candidateIDs returns the trimmed ids in candidate order. UUIDs are reduced
// to their canonical form first, so two spellings of one question count as a
// duplicate.
func candidateIDs(candidates []domain.CandidateQuestion) ([]string, error) {
	ids := make([]string, 0, len(candidates))
	seen := make(map[string]int, len(candidates))
	for i, c := range candidates {
		id := strings.TrimSpace(c.QuestionID)
		if id == "" {
			return nil, fmt.Errorf("%w: question %d has no id", domain.ErrInvalidCandidateList, i+1)
		}
		if parsed, err := uuid.Parse(id); err == nil {
			id = parsed.String()
		}
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: question %s appears at %d and %d", domain.ErrInvalidCandidateList, id, prev+1, i+1)
		}
		seen[id] = i
		ids = append(ids, id)
	}
	return ids, nil
}

// buildSnapshot merges the client's ordering and display fields with the
// authoritative answers, filling empty display fields from the catalogue.
// ids are the canonical ids of candidates. It returns the rows and the ids
// left unresolved.
func buildSnapshot(sessionID string, ids []string, candidates []domain.CandidateQuestion,
	answers map[string]domain.CorrectAnswer, display map[string]domain.QuestionContent) ([]domain.QuestionSnapshot, []string) {
	rows := make([]domain.QuestionSnapshot, 0, len(candidates))
	var unresolved []string
	for i, c := range candidates {
		id := ids[i]
		answer, ok := answers[id]
		if !ok || !answer.Resolved() {
			answer = domain.AnswerUnresolved
			unresolved = append(unresolved, id)
		}
		live := display[id]
		rows = append(rows, domain.QuestionSnapshot{
			SessionID:     sessionID,
			QuestionOrder: i + 1,
			QuestionID:    id,
			QuestionText:  firstNonEmpty(c.QuestionText, live.QuestionText),
			ArticleID:     firstNonEmpty(c.ArticleID, live.ArticleID),
			ArticleNumber: firstNonEmpty(c.ArticleNumber, live.ArticleNumber),
			LawName:       firstNonEmpty(c.LawName, live.LawName),
			TemaNumber:    c.TemaNumber,
			Difficulty:    firstNonEmpty(c.Difficulty, live.Difficulty),
			CorrectAnswer: answer,
		})
	}
	return rows, unresolved
}

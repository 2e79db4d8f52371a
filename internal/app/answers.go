package app

import (
	"context"
	"errors"

	"exam-session-engine/internal/domain"
)

const (
	EventAnswerRecorded   = "exam.answer.recorded"
	EventSessionCompleted = "exam.session.completed"
)

// SubmitAnswer records value for one question of an active session. The
// correctness is computed against the snapshot and kept server side. The store
// re-checks the status with the write, so a racing finish refuses the answer.
func (s *ExamService) SubmitAnswer(ctx context.Context, sessionID string, questionOrder int, value string) (answer domain.Answer, err error) {
	ctx, done := s.startOp(ctx, "SubmitAnswer", sessionID)
	defer done(&err)

	letter, err := domain.NormalizeAnswer(value)
	if err != nil {
		return domain.Answer{}, err
	}

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Answer{}, dependencyErr("load session", err, domain.ErrSessionNotFound)
	}
	switch session.Status {
	case domain.StatusCompleted:
		return domain.Answer{}, domain.ErrSessionCompleted
	case domain.StatusCreated:
		return domain.Answer{}, domain.ErrSessionNotActive
	}

	snap, err := s.sessions.GetSnapshot(ctx, sessionID, questionOrder)
	if err != nil {
		return domain.Answer{}, dependencyErr("load snapshot row", err, domain.ErrQuestionNotInSession)
	}

	answer, err = s.sessions.UpsertAnswer(ctx, domain.Answer{
		SessionID:      sessionID,
		QuestionOrder:  questionOrder,
		SubmittedValue: letter,
		IsCorrect:      snap.CorrectAnswer.Matches(letter),
		AnsweredAt:     s.now(),
	})
	if err != nil {
		return domain.Answer{}, dependencyErr("store answer", err,
			domain.ErrSessionNotFound, domain.ErrSessionCompleted, domain.ErrSessionNotActive)
	}

	s.publish(ctx, EventAnswerRecorded, map[string]any{
		"sessionId":     sessionID,
		"questionOrder": questionOrder,
		"answered":      letter != "",
	})
	return answer, nil
}

// FinishSession closes an active session. Finishing a completed session again
// returns the same summary.
func (s *ExamService) FinishSession(ctx context.Context, sessionID string) (summary domain.Summary, err error) {
	ctx, done := s.startOp(ctx, "FinishSession", sessionID)
	defer done(&err)

	session, transitioned, err := s.sessions.CompleteSession(ctx, sessionID, s.now())
	if err != nil {
		return domain.Summary{}, dependencyErr("complete session", err, domain.ErrSessionNotFound, domain.ErrSessionNotActive)
	}

	summary, err = s.summarize(ctx, session)
	if err != nil {
		return domain.Summary{}, err
	}
	if transitioned {
		s.publish(ctx, EventSessionCompleted, summary)
	}
	return summary, nil
}

func (s *ExamService) summarize(ctx context.Context, session domain.Session) (domain.Summary, error) {
	stats, err := s.sessions.SnapshotStats(ctx, session.ID)
	if err != nil {
		return domain.Summary{}, dependencyErr("count snapshot rows", err)
	}
	answers, err := s.sessions.ListAnswers(ctx, session.ID)
	if err != nil {
		return domain.Summary{}, dependencyErr("load answers", err)
	}

	summary := domain.Summary{
		SessionID:       session.ID,
		TotalQuestions:  session.TotalQuestions,
		UnresolvedCount: stats.Unresolved,
	}
	if session.CompletedAt != nil {
		summary.CompletedAt = *session.CompletedAt
	}
	for _, a := range answers {
		if a.SubmittedValue == "" {
			continue
		}
		summary.AnsweredCount++
		if a.IsCorrect {
			summary.CorrectCount++
		}
	}
	return summary, nil
}

// IsRetryable reports whether err is a dependency failure the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, domain.ErrDependency)
}

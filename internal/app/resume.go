package app

import (
	"context"

	"exam-session-engine/internal/domain"
)

// ResumeSession rebuilds a session's ordered questions and prior answers.
//
// Snapshot fields are authoritative for display; the live catalogue only adds
// what the snapshot does not capture (options, explanation). Questions that no
// longer resolve in the catalogue are left out of OrderedQuestions but still
// count toward TotalQuestions. Callers must have verified ownership.
func (s *ExamService) ResumeSession(ctx context.Context, sessionID string) (state domain.ResumeState, err error) {
	ctx, done := s.startOp(ctx, "ResumeSession", sessionID)
	defer done(&err)

	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ResumeState{}, dependencyErr("load session", err, domain.ErrSessionNotFound)
	}

	snapshots, err := s.sessions.ListSnapshots(ctx, sessionID)
	if err != nil {
		return domain.ResumeState{}, dependencyErr("load snapshot", err)
	}
	if len(snapshots) == 0 {
		return domain.ResumeState{}, domain.ErrNothingToResume
	}

	ids := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		ids = append(ids, snap.QuestionID)
	}
	content, err := s.content.HydrateQuestions(ctx, ids)
	if err != nil {
		return domain.ResumeState{}, dependencyErr("hydrate questions", err)
	}

	answers, err := s.sessions.ListAnswers(ctx, sessionID)
	if err != nil {
		return domain.ResumeState{}, dependencyErr("load answers", err)
	}
	byOrder := make(map[int]domain.Answer, len(answers))
	for _, a := range answers {
		byOrder[a.QuestionOrder] = a
	}

	review := session.Status == domain.StatusCompleted
	state = domain.ResumeState{
		SessionID:        session.ID,
		Status:           session.Status,
		Filter:           session.Filter,
		TotalQuestions:   session.TotalQuestions,
		OrderedQuestions: make([]domain.ResumedQuestion, 0, len(snapshots)),
		AnswersByOrder:   make(map[int]string),
	}
	if review {
		state.CorrectByOrder = make(map[int]bool)
	}

	for _, snap := range snapshots {
		if a, ok := byOrder[snap.QuestionOrder]; ok && a.SubmittedValue != "" {
			state.AnsweredCount++
		}

		live, ok := content[snap.QuestionID]
		if !ok {
			s.logger.InfoContext(ctx, "resumed session references a missing question",
				"session_id", sessionID, "question_id", snap.QuestionID, "question_order", snap.QuestionOrder)
			continue
		}

		position := len(state.OrderedQuestions)
		q := domain.ResumedQuestion{
			QuestionOrder: snap.QuestionOrder,
			QuestionID:    snap.QuestionID,
			QuestionText:  firstNonEmpty(snap.QuestionText, live.QuestionText),
			Options:       live.Options,
			ArticleID:     firstNonEmpty(snap.ArticleID, live.ArticleID),
			ArticleNumber: firstNonEmpty(snap.ArticleNumber, live.ArticleNumber),
			LawName:       firstNonEmpty(snap.LawName, live.LawName),
			TemaNumber:    snap.TemaNumber,
			Difficulty:    firstNonEmpty(snap.Difficulty, live.Difficulty),
		}
		if review {
			q.CorrectAnswer = snap.CorrectAnswer.Letter()
			q.Explanation = live.Explanation
		}
		state.OrderedQuestions = append(state.OrderedQuestions, q)

		if a, ok := byOrder[snap.QuestionOrder]; ok && a.SubmittedValue != "" {
			state.AnswersByOrder[position] = a.SubmittedValue
			if review {
				state.CorrectByOrder[position] = a.IsCorrect
			}
		}
	}
	return state, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

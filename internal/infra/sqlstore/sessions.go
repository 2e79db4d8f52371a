package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exam-session-engine/internal/domain"
	"github.com/uptrace/bun"
)

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	filter, err := json.Marshal(session.Filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	row := &sessionRow{
		ID:             session.ID,
		OwnerID:        session.OwnerID,
		FilterJSON:     string(filter),
		TotalQuestions: session.TotalQuestions,
		Status:         string(session.Status),
		CreatedAt:      session.CreatedAt.UTC(),
		CompletedAt:    session.CompletedAt,
	}
	_, err = s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return getSession(ctx, s.db, sessionID)
}

func getSession(ctx context.Context, db bun.IDB, sessionID string) (domain.Session, error) {
	row := new(sessionRow)
	err := db.NewSelect().Model(row).Where("id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return row.toDomain()
}

func (s *Store) SnapshotStats(ctx context.Context, sessionID string) (domain.SnapshotStats, error) {
	var saved, unresolved int
	err := s.db.NewSelect().Model((*snapshotRow)(nil)).
		ColumnExpr("COUNT(*)").
		ColumnExpr("CAST(COALESCE(SUM(CASE WHEN correct_answer < 0 THEN 1 ELSE 0 END), 0) AS INTEGER)").
		Where("session_id = ?", sessionID).
		Scan(ctx, &saved, &unresolved)
	if err != nil {
		return domain.SnapshotStats{}, err
	}
	return domain.SnapshotStats{Saved: saved, Unresolved: unresolved}, nil
}

// MaterializeSnapshot claims the created -> active transition and inserts the
// rows in one transaction, so readers see either no snapshot or all of it.
// A concurrent initializer blocks on the status row and then finds it active.
func (s *Store) MaterializeSnapshot(ctx context.Context, sessionID string, rows []domain.QuestionSnapshot) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("status = ?", string(domain.StatusActive)).
			Where("id = ?", sessionID).
			Where("status = ?", string(domain.StatusCreated)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			exists, err := tx.NewSelect().Model((*sessionRow)(nil)).Where("id = ?", sessionID).Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return domain.ErrSessionNotFound
			}
			return domain.ErrSnapshotConflict
		}

		models := make([]snapshotRow, 0, len(rows))
		for _, r := range rows {
			models = append(models, snapshotFromDomain(r))
		}
		if _, err := tx.NewInsert().Model(&models).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSnapshotConflict
			}
			return err
		}
		return nil
	})
}

func (s *Store) ActivateSession(ctx context.Context, sessionID string) error {
	_, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = ?", string(domain.StatusActive)).
		Where("id = ?", sessionID).
		Where("status = ?", string(domain.StatusCreated)).
		Where("total_questions = (SELECT COUNT(*) FROM question_snapshots WHERE session_id = ?)", sessionID).
		Exec(ctx)
	return err
}

func (s *Store) ListSnapshots(ctx context.Context, sessionID string) ([]domain.QuestionSnapshot, error) {
	var rows []snapshotRow
	if err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("question_order ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.QuestionSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetSnapshot(ctx context.Context, sessionID string, questionOrder int) (domain.QuestionSnapshot, error) {
	row := new(snapshotRow)
	err := s.db.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("question_order = ?", questionOrder).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuestionSnapshot{}, domain.ErrQuestionNotInSession
	}
	if err != nil {
		return domain.QuestionSnapshot{}, err
	}
	return row.toDomain(), nil
}

// upsertAnswerSQL keeps the newest answer per question; an older write that
// arrives late leaves the stored row untouched.
const upsertAnswerSQL = `
INSERT INTO session_answers (session_id, question_order, submitted_value, is_correct, answered_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (session_id, question_order) DO UPDATE SET
	submitted_value = EXCLUDED.submitted_value,
	is_correct = EXCLUDED.is_correct,
	answered_at = EXCLUDED.answered_at
WHERE session_answers.answered_at <= EXCLUDED.answered_at`

// UpsertAnswer writes under the session row lock taken by lockActiveSession,
// so a concurrent CompleteSession either commits first and the answer is
// refused, or waits for the answer to commit.
func (s *Store) UpsertAnswer(ctx context.Context, answer domain.Answer) (domain.Answer, error) {
	var stored domain.Answer
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockActiveSession(ctx, tx, answer.SessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertAnswerSQL,
			answer.SessionID, answer.QuestionOrder, answer.SubmittedValue, answer.IsCorrect, answer.AnsweredAt.UTC()); err != nil {
			return err
		}

		row := new(answerRow)
		if err := tx.NewSelect().Model(row).
			Where("session_id = ?", answer.SessionID).
			Where("question_order = ?", answer.QuestionOrder).
			Scan(ctx); err != nil {
			return err
		}
		stored = row.toDomain()
		return nil
	})
	if err != nil {
		return domain.Answer{}, err
	}
	return stored, nil
}

// lockActiveSession touches the session row only while it is active, which
// holds its row lock until the transaction ends.
func lockActiveSession(ctx context.Context, tx bun.Tx, sessionID string) error {
	res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
		Set("status = status").
		Where("id = ?", sessionID).
		Where("status = ?", string(domain.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := getSession(ctx, tx, sessionID)
	if err != nil {
		return err
	}
	if current.Status == domain.StatusCompleted {
		return domain.ErrSessionCompleted
	}
	return domain.ErrSessionNotActive
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	if err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("question_order ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID string, at time.Time) (domain.Session, bool, error) {
	var (
		session      domain.Session
		transitioned bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		completedAt := at.UTC()
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("status = ?", string(domain.StatusCompleted)).
			Set("completed_at = ?", completedAt).
			Where("id = ?", sessionID).
			Where("status = ?", string(domain.StatusActive)).
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		transitioned = n > 0

		session, err = getSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if session.Status == domain.StatusCreated {
			return domain.ErrSessionNotActive
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, false, err
	}
	return session, transitioned, nil
}

func (r *sessionRow) toDomain() (domain.Session, error) {
	var filter domain.Filter
	if err := json.Unmarshal([]byte(r.FilterJSON), &filter); err != nil {
		return domain.Session{}, fmt.Errorf("decode filter of session %s: %w", r.ID, err)
	}
	session := domain.Session{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		Filter:         filter,
		TotalQuestions: r.TotalQuestions,
		Status:         domain.SessionStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		session.CompletedAt = &t
	}
	return session, nil
}

func snapshotFromDomain(q domain.QuestionSnapshot) snapshotRow {
	return snapshotRow{
		SessionID:     q.SessionID,
		QuestionOrder: q.QuestionOrder,
		QuestionID:    q.QuestionID,
		QuestionText:  q.QuestionText,
		ArticleID:     q.ArticleID,
		ArticleNumber: q.ArticleNumber,
		LawName:       q.LawName,
		TemaNumber:    q.TemaNumber,
		Difficulty:    q.Difficulty,
		CorrectAnswer: int(q.CorrectAnswer),
	}
}

func (r snapshotRow) toDomain() domain.QuestionSnapshot {
	return domain.QuestionSnapshot{
		SessionID:     r.SessionID,
		QuestionOrder: r.QuestionOrder,
		QuestionID:    r.QuestionID,
		QuestionText:  r.QuestionText,
		ArticleID:     r.ArticleID,
		ArticleNumber: r.ArticleNumber,
		LawName:       r.LawName,
		TemaNumber:    r.TemaNumber,
		Difficulty:    r.Difficulty,
		CorrectAnswer: domain.CorrectAnswer(r.CorrectAnswer),
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		SessionID:      r.SessionID,
		QuestionOrder:  r.QuestionOrder,
		SubmittedValue: r.SubmittedValue,
		IsCorrect:      r.IsCorrect,
		AnsweredAt:     r.AnsweredAt.UTC(),
	}
}

package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"exam-session-engine/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "exam.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := CreateSchema(ctx, db); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	store := NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedSession(t *testing.T, store *Store, id string, total int) domain.Session {
	t.Helper()
	session := domain.Session{
		ID:             id,
		OwnerID:        "user-1",
		Filter:         domain.Filter{Track: "aux-admin", Themes: []int{1, 3}, Difficulty: domain.DifficultyMixed},
		TotalQuestions: total,
		Status:         domain.StatusCreated,
		CreatedAt:      time.Unix(1760000000, 0).UTC(),
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return session
}

func snapshotRows(sessionID string, answers ...domain.CorrectAnswer) []domain.QuestionSnapshot {
	rows := make([]domain.QuestionSnapshot, 0, len(answers))
	for i, a := range answers {
		rows = append(rows, domain.QuestionSnapshot{
			SessionID:     sessionID,
			QuestionOrder: i + 1,
			QuestionID:    "q" + string(rune('1'+i)),
			QuestionText:  "question",
			LawName:       "Ley 39/2015",
			ArticleNumber: "21",
			TemaNumber:    1,
			Difficulty:    "easy",
			CorrectAnswer: a,
		})
	}
	return rows
}

func TestStoreSessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	want := seedSession(t, store, "s-1", 2)

	got, err := store.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.OwnerID != want.OwnerID || got.Status != domain.StatusCreated || got.TotalQuestions != 2 {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Filter.CacheKey() != want.Filter.CacheKey() {
		t.Fatalf("filter = %+v, want %+v", got.Filter, want.Filter)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("createdAt = %v, want %v", got.CreatedAt, want.CreatedAt)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStoreMaterializeSnapshotActivatesOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 3)

	rows := snapshotRows("s-1", 0, domain.AnswerUnresolved, 3)
	if err := store.MaterializeSnapshot(ctx, "s-1", rows); err != nil {
		t.Fatalf("MaterializeSnapshot failed: %v", err)
	}

	session, err := store.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != domain.StatusActive {
		t.Fatalf("status = %s, want active", session.Status)
	}

	stats, err := store.SnapshotStats(ctx, "s-1")
	if err != nil {
		t.Fatalf("SnapshotStats failed: %v", err)
	}
	if stats.Saved != 3 || stats.Unresolved != 1 {
		t.Fatalf("stats = %+v, want saved=3 unresolved=1", stats)
	}

	if err := store.MaterializeSnapshot(ctx, "s-1", rows); !errors.Is(err, domain.ErrSnapshotConflict) {
		t.Fatalf("second MaterializeSnapshot = %v, want ErrSnapshotConflict", err)
	}
	if err := store.MaterializeSnapshot(ctx, "missing", rows); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("MaterializeSnapshot on missing session = %v, want ErrSessionNotFound", err)
	}
}

func TestStoreMaterializeSnapshotRollsBackOnDuplicateOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 2)

	rows := snapshotRows("s-1", 0, 1)
	rows[1].QuestionOrder = 1
	if err := store.MaterializeSnapshot(ctx, "s-1", rows); !errors.Is(err, domain.ErrSnapshotConflict) {
		t.Fatalf("MaterializeSnapshot = %v, want ErrSnapshotConflict", err)
	}

	session, err := store.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != domain.StatusCreated {
		t.Fatalf("status = %s, want created after rollback", session.Status)
	}
	stats, err := store.SnapshotStats(ctx, "s-1")
	if err != nil {
		t.Fatalf("SnapshotStats failed: %v", err)
	}
	if stats.Saved != 0 {
		t.Fatalf("saved = %d, want 0 after rollback", stats.Saved)
	}
}

func TestStoreListAndGetSnapshots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 3)

	rows := snapshotRows("s-1", 2, 0, 1)
	// insert out of order to check ordering on read
	rows[0], rows[2] = rows[2], rows[0]
	if err := store.MaterializeSnapshot(ctx, "s-1", rows); err != nil {
		t.Fatalf("MaterializeSnapshot failed: %v", err)
	}

	listed, err := store.ListSnapshots(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("listed %d rows, want 3", len(listed))
	}
	for i, row := range listed {
		if row.QuestionOrder != i+1 {
			t.Fatalf("row %d has order %d", i, row.QuestionOrder)
		}
	}
	if listed[0].QuestionID != "q1" || listed[0].CorrectAnswer != 2 || listed[0].LawName != "Ley 39/2015" {
		t.Fatalf("unexpected first row: %+v", listed[0])
	}

	row, err := store.GetSnapshot(ctx, "s-1", 2)
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if row.QuestionID != "q2" || row.CorrectAnswer != 0 {
		t.Fatalf("unexpected row: %+v", row)
	}
	if _, err := store.GetSnapshot(ctx, "s-1", 9); !errors.Is(err, domain.ErrQuestionNotInSession) {
		t.Fatalf("expected ErrQuestionNotInSession, got %v", err)
	}
}

func TestStoreUpsertAnswerKeepsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 2)
	if err := store.MaterializeSnapshot(ctx, "s-1", snapshotRows("s-1", 0, 1)); err != nil {
		t.Fatalf("MaterializeSnapshot failed: %v", err)
	}

	base := time.Unix(1760000100, 0).UTC()
	first, err := store.UpsertAnswer(ctx, domain.Answer{SessionID: "s-1", QuestionOrder: 1, SubmittedValue: "a", IsCorrect: true, AnsweredAt: base})
	if err != nil {
		t.Fatalf("UpsertAnswer failed: %v", err)
	}
	if first.SubmittedValue != "a" || !first.IsCorrect {
		t.Fatalf("unexpected answer: %+v", first)
	}

	newer, err := store.UpsertAnswer(ctx, domain.Answer{SessionID: "s-1", QuestionOrder: 1, SubmittedValue: "c", AnsweredAt: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("UpsertAnswer failed: %v", err)
	}
	if newer.SubmittedValue != "c" || newer.IsCorrect {
		t.Fatalf("newer answer not applied: %+v", newer)
	}

	stale, err := store.UpsertAnswer(ctx, domain.Answer{SessionID: "s-1", QuestionOrder: 1, SubmittedValue: "b", AnsweredAt: base.Add(-time.Minute)})
	if err != nil {
		t.Fatalf("UpsertAnswer failed: %v", err)
	}
	if stale.SubmittedValue != "c" {
		t.Fatalf("stale write overwrote answer: %+v", stale)
	}

	if _, err := store.UpsertAnswer(ctx, domain.Answer{SessionID: "s-1", QuestionOrder: 2, SubmittedValue: "b", IsCorrect: true, AnsweredAt: base}); err != nil {
		t.Fatalf("UpsertAnswer failed: %v", err)
	}
	answers, err := store.ListAnswers(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListAnswers failed: %v", err)
	}
	if len(answers) != 2 || answers[0].QuestionOrder != 1 || answers[1].QuestionOrder != 2 {
		t.Fatalf("unexpected answers: %+v", answers)
	}
}

func TestStoreCompleteSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 1)

	at := time.Unix(1760000500, 0).UTC()
	if _, _, err := store.CompleteSession(ctx, "s-1", at); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("complete created session = %v, want ErrSessionNotActive", err)
	}

	if err := store.MaterializeSnapshot(ctx, "s-1", snapshotRows("s-1", 0)); err != nil {
		t.Fatalf("MaterializeSnapshot failed: %v", err)
	}
	session, transitioned, err := store.CompleteSession(ctx, "s-1", at)
	if err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if !transitioned {
		t.Fatalf("first CompleteSession must report the transition")
	}
	if session.Status != domain.StatusCompleted || session.CompletedAt == nil || !session.CompletedAt.Equal(at) {
		t.Fatalf("unexpected completed session: %+v", session)
	}

	again, transitioned, err := store.CompleteSession(ctx, "s-1", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("second CompleteSession failed: %v", err)
	}
	if transitioned {
		t.Fatalf("second CompleteSession reported a transition")
	}
	if !again.CompletedAt.Equal(at) {
		t.Fatalf("completedAt moved to %v", again.CompletedAt)
	}

	if _, _, err := store.CompleteSession(ctx, "missing", at); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestStoreActivateSessionRequiresFullSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 2)

	if err := store.ActivateSession(ctx, "s-1"); err != nil {
		t.Fatalf("ActivateSession failed: %v", err)
	}
	session, err := store.GetSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != domain.StatusCreated {
		t.Fatalf("status = %s, want created without snapshot rows", session.Status)
	}
}

func TestStoreUpsertAnswerRequiresActiveSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedSession(t, store, "s-1", 1)

	answer := domain.Answer{SessionID: "s-1", QuestionOrder: 1, SubmittedValue: "a", AnsweredAt: time.Unix(1760000100, 0).UTC()}
	if _, err := store.UpsertAnswer(ctx, answer); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("answer on created session = %v, want ErrSessionNotActive", err)
	}
	if err := store.MaterializeSnapshot(ctx, "s-1", snapshotRows("s-1", 0)); err != nil {
		t.Fatalf("MaterializeSnapshot failed: %v", err)
	}
	if _, _, err := store.CompleteSession(ctx, "s-1", time.Unix(1760000200, 0).UTC()); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if _, err := store.UpsertAnswer(ctx, answer); !errors.Is(err, domain.ErrSessionCompleted) {
		t.Fatalf("answer on completed session = %v, want ErrSessionCompleted", err)
	}
	if _, err := store.UpsertAnswer(ctx, domain.Answer{SessionID: "missing", QuestionOrder: 1, AnsweredAt: answer.AnsweredAt}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("answer on missing session = %v, want ErrSessionNotFound", err)
	}

	answers, err := store.ListAnswers(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListAnswers failed: %v", err)
	}
	if len(answers) != 0 {
		t.Fatalf("rejected answers were stored: %+v", answers)
	}
}

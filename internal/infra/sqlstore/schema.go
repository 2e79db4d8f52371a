package sqlstore

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:exam_sessions,alias:es"`

	ID             string     `bun:"id,pk"`
	OwnerID        string     `bun:"owner_id,notnull"`
	FilterJSON     string     `bun:"filter_descriptor,notnull"`
	TotalQuestions int        `bun:"total_questions,notnull"`
	Status         string     `bun:"status,notnull"`
	CreatedAt      time.Time  `bun:"created_at,notnull"`
	CompletedAt    *time.Time `bun:"completed_at"`
}

// snapshotRow's composite primary key is the (session_id, question_order)
// uniqueness constraint that makes concurrent initialization safe.
type snapshotRow struct {
	bun.BaseModel `bun:"table:question_snapshots,alias:qs"`

	SessionID     string `bun:"session_id,pk"`
	QuestionOrder int    `bun:"question_order,pk"`
	QuestionID    string `bun:"question_id,notnull"`
	QuestionText  string `bun:"question_text,notnull"`
	ArticleID     string `bun:"article_id,notnull"`
	ArticleNumber string `bun:"article_number,notnull"`
	LawName       string `bun:"law_name,notnull"`
	TemaNumber    int    `bun:"tema_number,notnull"`
	Difficulty    string `bun:"difficulty,notnull"`
	CorrectAnswer int    `bun:"correct_answer,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:session_answers,alias:sa"`

	SessionID      string    `bun:"session_id,pk"`
	QuestionOrder  int       `bun:"question_order,pk"`
	SubmittedValue string    `bun:"submitted_value,notnull"`
	IsCorrect      bool      `bun:"is_correct,notnull"`
	AnsweredAt     time.Time `bun:"answered_at,notnull"`
}

// CreateSchema creates the session tables. It is idempotent and works on every
// supported dialect.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().Model((*sessionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*snapshotRow)(nil)).IfNotExists().
		ForeignKey(`("session_id") REFERENCES "exam_sessions" ("id") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := db.NewCreateTable().Model((*answerRow)(nil)).IfNotExists().
		ForeignKey(`("session_id", "question_order") REFERENCES "question_snapshots" ("session_id", "question_order") ON DELETE CASCADE`).
		Exec(ctx); err != nil {
		return err
	}
	_, err := db.NewCreateIndex().Model((*sessionRow)(nil)).IfNotExists().
		Index("idx_exam_sessions_owner").Column("owner_id", "created_at").
		Exec(ctx)
	return err
}

// DropSchema removes the session tables.
func DropSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range []interface{}{(*answerRow)(nil), (*snapshotRow)(nil), (*sessionRow)(nil)} {
		if _, err := db.NewDropTable().Model(model).IfExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

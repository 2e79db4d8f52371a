package domain

import "time"

// SessionStatus is the lifecycle state of an exam session.
type SessionStatus string

const (
	StatusCreated   SessionStatus = "created"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
)

// MaxSessionQuestions caps the declared size of a session.
const MaxSessionQuestions = 100

// Session is one user's attempt over a fixed, ordered set of questions.
type Session struct {
	ID             string        `json:"id"`
	OwnerID        string        `json:"ownerId"`
	Filter         Filter        `json:"filter"`
	TotalQuestions int           `json:"totalQuestions"`
	Status         SessionStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	CompletedAt    *time.Time    `json:"completedAt,omitempty"`
}

// CandidateQuestion is a client-proposed question. Only the id, its position and
// the cosmetic fields are taken from the client; correctness never is.
type CandidateQuestion struct {
	QuestionID    string `json:"questionId"`
	QuestionText  string `json:"questionText,omitempty"`
	ArticleID     string `json:"articleId,omitempty"`
	ArticleNumber string `json:"articleNumber,omitempty"`
	LawName       string `json:"lawName,omitempty"`
	TemaNumber    int    `json:"temaNumber,omitempty"`
	Difficulty    string `json:"difficulty,omitempty"`
}

// QuestionSnapshot is the immutable per-question record captured at initialization.
type QuestionSnapshot struct {
	SessionID     string
	QuestionOrder int
	QuestionID    string
	QuestionText  string
	ArticleID     string
	ArticleNumber string
	LawName       string
	TemaNumber    int
	Difficulty    string
	CorrectAnswer CorrectAnswer
}

// Answer is the current submission for one question of a session.
type Answer struct {
	SessionID      string    `json:"sessionId"`
	QuestionOrder  int       `json:"questionOrder"`
	SubmittedValue string    `json:"submittedValue"`
	IsCorrect      bool      `json:"-"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// InitResult is the outcome of a snapshot initialization.
type InitResult struct {
	SavedCount      int  `json:"savedCount"`
	UnresolvedCount int  `json:"unresolvedCount"`
	AlreadyActive   bool `json:"alreadyInitialized"`
}

// QuestionContent is the live catalogue view of a question used for display.
type QuestionContent struct {
	ID            string   `json:"id"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options"`
	Explanation   string   `json:"-"`
	ArticleID     string   `json:"articleId,omitempty"`
	ArticleNumber string   `json:"articleNumber,omitempty"`
	LawName       string   `json:"lawName,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
}

// ResumedQuestion is one entry of a reconstructed session.
type ResumedQuestion struct {
	QuestionOrder int      `json:"questionOrder"`
	QuestionID    string   `json:"questionId"`
	QuestionText  string   `json:"questionText"`
	Options       []string `json:"options"`
	ArticleID     string   `json:"articleId,omitempty"`
	ArticleNumber string   `json:"articleNumber,omitempty"`
	LawName       string   `json:"lawName,omitempty"`
	TemaNumber    int      `json:"temaNumber,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	// Review fields, only populated once the session is completed.
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

// ResumeState is everything a client needs to continue (or review) a session.
type ResumeState struct {
	SessionID        string            `json:"sessionId"`
	Status           SessionStatus     `json:"status"`
	Filter           Filter            `json:"filter"`
	TotalQuestions   int               `json:"totalQuestions"`
	AnsweredCount    int               `json:"answeredCount"`
	OrderedQuestions []ResumedQuestion `json:"orderedQuestions"`
	// AnswersByOrder is keyed by the zero-based index into OrderedQuestions.
	AnswersByOrder map[int]string `json:"answersByOrder"`
	// CorrectByOrder uses the same keys and is only filled for completed sessions.
	CorrectByOrder map[int]bool `json:"correctByOrder,omitempty"`
}

// Summary is the result of finishing a session.
type Summary struct {
	SessionID       string    `json:"sessionId"`
	TotalQuestions  int       `json:"totalQuestions"`
	AnsweredCount   int       `json:"answeredCount"`
	CorrectCount    int       `json:"correctCount"`
	UnresolvedCount int       `json:"unresolvedCount"`
	CompletedAt     time.Time `json:"completedAt"`
}

// SnapshotStats counts the stored snapshot rows of a session.
type SnapshotStats struct {
	Saved      int
	Unresolved int
}

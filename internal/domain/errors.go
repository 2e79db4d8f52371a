package domain

import "errors"

var (
	// ErrInvalidFilter is returned when a filter set is malformed (missing track, no themes, unknown difficulty).
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrSessionNotFound is returned when an exam session does not exist.
	ErrSessionNotFound = errors.New("exam session not found")
	// ErrEmptyCandidateList is returned when a session is initialized without questions.
	ErrEmptyCandidateList = errors.New("candidate question list is empty")
	// ErrInvalidCandidateList covers empty or duplicated question ids in a candidate list.
	ErrInvalidCandidateList = errors.New("invalid candidate question list")
	// ErrSizeMismatch is returned when the candidate list size differs from the session's declared size.
	ErrSizeMismatch = errors.New("candidate list size does not match session size")
	// ErrSessionCompleted is returned for writes against a completed session.
	ErrSessionCompleted = errors.New("exam session already completed")
	// ErrSessionNotActive is returned when answers or finish are attempted before initialization.
	ErrSessionNotActive = errors.New("exam session is not active")
	// ErrSnapshotIncomplete means stored snapshot rows do not cover the session.
	ErrSnapshotIncomplete = errors.New("question snapshot is incomplete")
	// ErrSnapshotConflict is returned by stores when snapshot rows already exist for a session.
	ErrSnapshotConflict = errors.New("question snapshot already exists")
	// ErrNothingToResume is returned when a session has no materialized snapshot.
	ErrNothingToResume = errors.New("exam session has nothing to resume")
	// ErrQuestionNotInSession indicates a question order outside the session snapshot.
	ErrQuestionNotInSession = errors.New("question not part of session")
	// ErrInvalidAnswer indicates a submitted value that is not an option letter.
	ErrInvalidAnswer = errors.New("invalid answer value")
	// ErrInvalidSessionSize is returned when a session is created with an out-of-range size.
	ErrInvalidSessionSize = errors.New("invalid session size")
	// ErrMissingOwner is returned when a session is created without an owner.
	ErrMissingOwner = errors.New("session owner is required")
	// ErrDependency marks failures of the content store or session storage. Callers may retry.
	ErrDependency = errors.New("dependency unavailable")
)

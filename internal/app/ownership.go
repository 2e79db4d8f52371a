package app

import (
	"context"
	"errors"

	"exam-session-engine/internal/domain"
)

// VerifyOwnership reports whether callerID owns the session. A missing session
// is reported as false, not as an error; only storage failures return one.
func (s *ExamService) VerifyOwnership(ctx context.Context, sessionID, callerID string) (owned bool, err error) {
	ctx, done := s.startOp(ctx, "VerifyOwnership", sessionID)
	defer done(&err)

	if sessionID == "" || callerID == "" {
		return false, nil
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dependencyErr("load session", err)
	}
	return session.OwnerID == callerID, nil
}

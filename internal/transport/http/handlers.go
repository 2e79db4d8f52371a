package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"exam-session-engine/internal/domain"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine ExamEngine
	logger *slog.Logger
}

type availabilityRequest struct {
	domain.Filter
	IncludeBreakdown bool `json:"includeBreakdown"`
}

type createSessionRequest struct {
	Filter         domain.Filter `json:"filter"`
	TotalQuestions int           `json:"totalQuestions"`
}

type initializeRequest struct {
	Questions []domain.CandidateQuestion `json:"questions"`
}

type answerRequest struct {
	Value string `json:"value"`
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.engine.CheckAvailability(c.Request.Context(), req.Filter, req.IncludeBreakdown)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	session, err := h.engine.CreateSession(c.Request.Context(), callerID(c), req.Filter, req.TotalQuestions)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// InitializeSession only decodes ids, order and display fields from the body;
// any correctness data a client sends is dropped by the decoder.
func (h *Handler) InitializeSession(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	result, err := h.engine.InitializeSession(c.Request.Context(), c.Param("id"), req.Questions)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ResumeSession(c *gin.Context) {
	state, err := h.engine.ResumeSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) SubmitAnswer(c *gin.Context) {
	order, err := strconv.Atoi(c.Param("order"))
	if err != nil || order <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question order must be a positive integer"})
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	answer, err := h.engine.SubmitAnswer(c.Request.Context(), c.Param("id"), order, req.Value)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *Handler) FinishSession(c *gin.Context) {
	summary, err := h.engine.FinishSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// requireOwner rejects callers that do not own :id. Unknown sessions are
// rejected the same way so ids cannot be probed.
func (h *Handler) requireOwner(c *gin.Context) {
	owned, err := h.engine.VerifyOwnership(c.Request.Context(), c.Param("id"), callerID(c))
	if err != nil {
		h.fail(c, err)
		c.Abort()
		return
	}
	if !owned {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(c.Request.Context(), "request failed",
			"route", c.FullPath(), "session_id", c.Param("id"), "error", err)
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	c.JSON(status, gin.H{"error": clientMessage(status, err)})
}

const retryAfterSeconds = "1"

// clientMessage hides dependency and internal failures; their detail only goes
// to the log.
func clientMessage(status int, err error) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "service temporarily unavailable, retry later"
	case http.StatusInternalServerError:
		return "internal error"
	default:
		return err.Error()
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrEmptyCandidateList),
		errors.Is(err, domain.ErrInvalidCandidateList),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidSessionSize):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingOwner):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrQuestionNotInSession):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNothingToResume),
		errors.Is(err, domain.ErrSizeMismatch),
		errors.Is(err, domain.ErrSessionCompleted),
		errors.Is(err, domain.ErrSessionNotActive),
		errors.Is(err, domain.ErrSnapshotIncomplete):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDependency),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

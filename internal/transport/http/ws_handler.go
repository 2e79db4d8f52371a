package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"exam-session-engine/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler streams answers of one session over a websocket, for clients that
// answer question by question.
type WSHandler struct {
	engine   ExamEngine
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine ExamEngine, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionOrder int    `json:"questionOrder"`
	Value         string `json:"value"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

func (h *WSHandler) errorFor(sessionID string, err error) outboundMessage[any] {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("ws request failed", "session_id", sessionID, "error", err)
	}
	return errorMessage(clientMessage(status, err))
}

// ServeWS upgrades an owner's request. The current resume state is sent first
// when the session has a snapshot; then "answer" and "finish" messages are
// handled in order until the client disconnects.
func (h *WSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Param("id")
	ctx := c.Request.Context()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		broken := false
		for msg := range send {
			if broken {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Warn("ws write failed", "session_id", sessionID, "error", err)
				broken = true
			}
		}
	}()

	state, err := h.engine.ResumeSession(ctx, sessionID)
	switch {
	case err == nil:
		send <- outboundMessage[any]{Type: "resume", Payload: state}
	case errors.Is(err, domain.ErrNothingToResume):
		send <- outboundMessage[any]{Type: "pending", Payload: gin.H{"sessionId": sessionID}}
	default:
		send <- h.errorFor(sessionID, err)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			answer, err := h.engine.SubmitAnswer(ctx, sessionID, payload.QuestionOrder, payload.Value)
			if err != nil {
				send <- h.errorFor(sessionID, err)
				continue
			}
			send <- outboundMessage[any]{Type: "answerRecorded", Payload: answer}
		case "finish":
			summary, err := h.engine.FinishSession(ctx, sessionID)
			if err != nil {
				send <- h.errorFor(sessionID, err)
				continue
			}
			send <- outboundMessage[any]{Type: "completed", Payload: summary}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(send)
	<-writerDone
}

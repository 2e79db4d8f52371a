package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"exam-session-engine/internal/domain"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ExamEngine is the set of use cases exposed over HTTP.
type ExamEngine interface {
	CheckAvailability(ctx context.Context, filter domain.Filter, includeBreakdown bool) (domain.Availability, error)
	CreateSession(ctx context.Context, ownerID string, filter domain.Filter, totalQuestions int) (domain.Session, error)
	InitializeSession(ctx context.Context, sessionID string, candidates []domain.CandidateQuestion) (domain.InitResult, error)
	VerifyOwnership(ctx context.Context, sessionID, callerID string) (bool, error)
	ResumeSession(ctx context.Context, sessionID string) (domain.ResumeState, error)
	SubmitAnswer(ctx context.Context, sessionID string, questionOrder int, value string) (domain.Answer, error)
	FinishSession(ctx context.Context, sessionID string) (domain.Summary, error)
}

type RouterConfig struct {
	JWTSecret      string
	CORSOrigins    []string
	RequestTimeout time.Duration
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewRouter wires the exam API onto a gin engine.
func NewRouter(engine ExamEngine, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{engine: engine, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Authorization", "X-User-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	ws := NewWSHandler(engine, logger)
	r.GET("/ws/sessions/:id", authenticate(cfg.JWTSecret), h.requireOwner, ws.ServeWS)

	v1 := r.Group("/v1", authenticate(cfg.JWTSecret), deadline(cfg.RequestTimeout))
	v1.POST("/availability", h.CheckAvailability)
	v1.POST("/sessions", h.CreateSession)

	sessions := v1.Group("/sessions/:id", h.requireOwner)
	sessions.POST("/initialize", h.InitializeSession)
	sessions.GET("/resume", h.ResumeSession)
	sessions.PUT("/answers/:order", h.SubmitAnswer)
	sessions.POST("/finish", h.FinishSession)
	return r
}

// deadline bounds every request so a slow dependency surfaces as 503.
func deadline(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}
}

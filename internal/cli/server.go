package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/config"
	"exam-session-engine/internal/infra/memory"
	"exam-session-engine/internal/infra/postgres"
	"exam-session-engine/internal/infra/rabbitmq"
	rediscache "exam-session-engine/internal/infra/redis"
	"exam-session-engine/internal/infra/sqlstore"
	transport "exam-session-engine/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam session API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	content, err := openContentStore(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	sessions, err := openSessionStore(ctx, cfg, logger, &closers)
	if err != nil {
		return err
	}

	cacheTTL := config.TTLDuration(cfg.Availability.CacheTTL, 5*time.Minute)
	var availability app.AvailabilityCounter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, client)
		availability = rediscache.NewAvailabilityCache(client, content, cacheTTL)
	} else {
		availability = memory.NewAvailabilityCache(content, cacheTTL)
	}

	var events app.EventPublisher = app.NopPublisher{}
	if cfg.Events.RabbitMQURL != "" {
		publisher, err := rabbitmq.Dial(cfg.Events.RabbitMQURL, cfg.Events.Exchange, logger)
		if err != nil {
			return err
		}
		closers = append(closers, publisher)
		events = publisher
	} else {
		logger.Info("rabbitmq not configured, exam events will not be published")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := app.NewExamService(sessions, content,
		app.WithAvailabilityCounter(availability),
		app.WithEventPublisher(events),
		app.WithMetrics(app.NewMetrics(registry)),
		app.WithLogger(logger),
	)
	router := transport.NewRouter(service, transport.RouterConfig{
		JWTSecret:      cfg.Auth.JWTSecret,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RequestTimeout: config.TTLDuration(cfg.Server.RequestTimeout, 5*time.Second),
		Gatherer:       registry,
		Logger:         logger,
	})
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwtSecret not configured, trusting X-User-ID headers")
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	go func() {
		logger.Info("starting exam session engine", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openContentStore prefers the Postgres catalogue and falls back to the YAML seed.
func openContentStore(ctx context.Context, cfg config.Config, closers *[]io.Closer) (app.ContentStore, error) {
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error { pool.Close(); return nil }))
		return postgres.NewContentStore(pool), nil
	}
	if cfg.Content.SeedPath == "" {
		return nil, errors.New("no catalogue configured: set postgres.url or content.seedPath")
	}
	return memory.LoadContentSeed(cfg.Content.SeedPath)
}

// openSessionStore picks Postgres, then SQLite, then process memory.
func openSessionStore(ctx context.Context, cfg config.Config, logger *slog.Logger, closers *[]io.Closer) (app.SessionRepository, error) {
	var db *bun.DB
	switch {
	case cfg.Postgres.URL != "":
		db = sqlstore.OpenPostgres(cfg.Postgres.URL)
	case cfg.Storage.SQLitePath != "":
		var err error
		db, err = sqlstore.OpenSQLite(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := sqlstore.CreateSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	default:
		logger.Warn("no session storage configured, sessions are kept in memory")
		return memory.NewSessionStore(), nil
	}
	store := sqlstore.NewStore(db)
	*closers = append(*closers, store)
	return store, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

package integration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"exam-session-engine/internal/app"
	"exam-session-engine/internal/domain"
	"exam-session-engine/internal/infra/memory"
	"exam-session-engine/internal/infra/postgres"
	pgmigrations "exam-session-engine/internal/infra/postgres/migrations"
	infraredis "exam-session-engine/internal/infra/redis"
	"exam-session-engine/internal/infra/sqlstore"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"
)

func TestExamSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := sqlstore.OpenPostgres(pgURL)
	defer db.Close()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	if err := postgres.SeedCatalogue(ctx, pool, sampleCatalogue()); err != nil {
		t.Fatalf("seed catalogue: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	content := postgres.NewContentStore(pool)
	service := app.NewExamService(sqlstore.NewStore(db), content,
		app.WithAvailabilityCounter(infraredis.NewAvailabilityCache(redisClient, content, 5*time.Minute)))

	filter := domain.Filter{Track: "auxiliar", Themes: []int{1, 2}, Difficulty: domain.DifficultyMixed}
	availability, err := service.CheckAvailability(ctx, filter, true)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if availability.Total != 3 || availability.ByDifficulty["easy"] != 2 || availability.ByDifficulty["hard"] != 1 {
		t.Fatalf("unexpected availability: %+v", availability)
	}

	session, err := service.CreateSession(ctx, "u1", filter, 3)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	ids := []string{postgres.QuestionID("q3"), postgres.QuestionID("q1"), postgres.QuestionID("retired")}
	candidates := make([]domain.CandidateQuestion, 0, len(ids))
	for _, id := range ids {
		candidates = append(candidates, domain.CandidateQuestion{QuestionID: id, QuestionText: "snapshot " + id})
	}

	var wg sync.WaitGroup
	results := make([]domain.InitResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.InitializeSession(ctx, session.ID, candidates)
		}(i)
	}
	wg.Wait()
	writers := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("initialize %d: %v", i, errs[i])
		}
		if results[i].SavedCount != 3 || results[i].UnresolvedCount != 1 {
			t.Fatalf("initialize %d: unexpected result %+v", i, results[i])
		}
		if !results[i].AlreadyActive {
			writers++
		}
	}
	if writers != 1 {
		t.Fatalf("expected one snapshot writer, got %d", writers)
	}

	if owned, err := service.VerifyOwnership(ctx, session.ID, "u2"); err != nil || owned {
		t.Fatalf("foreign caller owns session: %t %v", owned, err)
	}

	if _, err := service.SubmitAnswer(ctx, session.ID, 1, "c"); err != nil { // q3 correct option 2
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.SubmitAnswer(ctx, session.ID, 2, "a"); err != nil { // q1 correct option 1
		t.Fatalf("submit: %v", err)
	}

	state, err := service.ResumeSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if state.TotalQuestions != 3 || len(state.OrderedQuestions) != 2 || state.AnsweredCount != 2 {
		t.Fatalf("unexpected resume state: %+v", state)
	}
	if state.OrderedQuestions[0].QuestionID != ids[0] || len(state.OrderedQuestions[0].Options) != 4 {
		t.Fatalf("unexpected first question: %+v", state.OrderedQuestions[0])
	}
	if state.AnswersByOrder[0] != "c" || state.AnswersByOrder[1] != "a" {
		t.Fatalf("unexpected answers: %+v", state.AnswersByOrder)
	}

	summary, err := service.FinishSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if summary.CorrectCount != 1 || summary.AnsweredCount != 2 || summary.UnresolvedCount != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func sampleCatalogue() []memory.CatalogueQuestion {
	opts := []string{"uno", "dos", "tres", "cuatro"}
	return []memory.CatalogueQuestion{
		{ID: "q1", QuestionText: "Plazo de audiencia", Options: opts, CorrectOption: 1, Difficulty: "easy", LawName: "Ley 39/2015", ArticleNumber: "82",
			Themes: []memory.ThemeRef{{Track: "auxiliar", Tema: 1}}},
		{ID: "q2", QuestionText: "Silencio", Options: opts, CorrectOption: 0, Difficulty: "easy", LawName: "Ley 39/2015", ArticleNumber: "24",
			Themes: []memory.ThemeRef{{Track: "auxiliar", Tema: 1}}},
		{ID: "q3", QuestionText: "Órganos colegiados", Options: opts, CorrectOption: 2, Difficulty: "hard", Official: true, LawName: "Ley 40/2015", ArticleNumber: "15",
			Themes: []memory.ThemeRef{{Track: "auxiliar", Tema: 2}}},
		{ID: "q4", QuestionText: "Fuera de temario", Options: opts, CorrectOption: 3, Difficulty: "medium", LawName: "Ley 19/2013", ArticleNumber: "1",
			Themes: []memory.ThemeRef{{Track: "administrativo", Tema: 9}}},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://exam:exampass@%s:%s/examdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

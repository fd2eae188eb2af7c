package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"testseries-attempt-service/internal/app"
	"testseries-attempt-service/internal/domain"
	pgstore "testseries-attempt-service/internal/infra/postgres"
	pgmigrations "testseries-attempt-service/internal/infra/postgres/migrations"
	redisstore "testseries-attempt-service/internal/infra/redis"
)

func TestPaidAttemptLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDatabase(t, ctx, pgURL, sampleMockTest())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	testRepo := redisstore.NewTestRepository(redisClient, pgstore.NewTestLoader(pool), 5*time.Minute)
	attempts := redisstore.NewAttemptGuard(redisClient, pgstore.NewAttemptStore(pool), time.Hour)
	ledger := pgstore.NewEntitlementLedger(pool)
	service := app.NewAttemptService(testRepo, attempts, ledger, nil)

	started, err := service.Start(ctx, "student-1", "test-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(started.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(started.Questions))
	}
	for _, q := range started.Questions {
		if q.Correct != nil || q.CorrectManualAnswer != "" {
			t.Fatalf("answer key leaked on start: %+v", q)
		}
	}

	// Entitlement consumed by the start.
	if _, ok, _ := ledger.FindUnused(ctx, "student-1", "test-1"); ok {
		t.Fatalf("expected order to be consumed")
	}

	// Second start resumes the same attempt.
	resumed, err := service.Start(ctx, "student-1", "test-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.AttemptID != started.AttemptID || !resumed.Resumed {
		t.Fatalf("expected resume of %s, got %+v", started.AttemptID, resumed)
	}

	one := "1"
	paris := " Paris "
	result, err := service.Submit(ctx, started.AttemptID, "student-1", map[string]*string{
		"q1": &one,
		"q2": &paris,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 5 || result.CorrectCount != 2 {
		t.Fatalf("expected score 5 with 2 correct, got %+v", result)
	}

	view, err := service.Load(ctx, started.AttemptID, "student-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if view.Status != domain.AttemptCompleted || view.Score != 5 {
		t.Fatalf("unexpected stored state: %+v", view)
	}

	// Quota exhausted, entitlement spent: next sitting is refused.
	if _, err := service.Start(ctx, "student-1", "test-1"); !errors.Is(err, domain.ErrAttemptLimit) {
		t.Fatalf("expected ErrAttemptLimit, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "exam", "POSTGRES_PASSWORD": "exampass", "POSTGRES_DB": "examdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
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

func seedDatabase(t *testing.T, ctx context.Context, dsn string, test domain.MockTest) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(test)
	if err != nil {
		t.Fatalf("marshal test: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO mock_tests (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, test.ID, string(data)); err != nil {
		t.Fatalf("insert test: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO orders (id, student_id, test_ids, settled, attempt_used) VALUES (?, ?, '{test-1}'::text[], TRUE, FALSE)`, "order-1", "student-1"); err != nil {
		t.Fatalf("insert order: %v", err)
	}
}

func sampleMockTest() domain.MockTest {
	return domain.MockTest{
		ID:              "test-1",
		Title:           "Integration Mock Test",
		Price:           499,
		DurationMinutes: 60,
		TotalQuestions:  3,
		Pool: []domain.Question{
			{
				ID: "q1", Type: domain.QuestionMCQ, Prompt: "What is 2 + 2?",
				Options: []domain.Option{{Text: "3"}, {Text: "4"}, {Text: "5"}},
				Correct: []int{1}, Marks: 2, Negative: 0.5,
			},
			{
				ID: "q2", Type: domain.QuestionManual, Prompt: "Capital of France?",
				CorrectManualAnswer: "Paris", Marks: 3, Negative: 1,
			},
			{
				ID: "q3", Type: domain.QuestionMCQ, Prompt: "Largest planet?",
				Options: []domain.Option{{Text: "Earth"}, {Text: "Jupiter"}},
				Correct: []int{1}, Marks: 1, Negative: 0.25,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

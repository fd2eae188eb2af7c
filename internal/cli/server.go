package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"testseries-attempt-service/internal/app"
	"testseries-attempt-service/internal/config"
	"testseries-attempt-service/internal/domain"
	"testseries-attempt-service/internal/infra/memory"
	pgstore "testseries-attempt-service/internal/infra/postgres"
	redisstore "testseries-attempt-service/internal/infra/redis"
	transport "testseries-attempt-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt service",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.TestLoader = memory.NewStaticTestLoader(sampleTests())
	if pool != nil {
		loader = pgstore.NewTestLoader(pool)
	}

	testTTL := config.TTLDuration(cfg.Tests.TTL, 10*time.Minute)
	var testRepo app.TestRepository
	if redisClient != nil {
		testRepo = redisstore.NewTestRepository(redisClient, loader, testTTL)
	} else {
		testRepo = memory.NewTestRepository(loader, testTTL)
	}

	var attempts app.AttemptStore
	var ledger app.EntitlementLedger
	if pool != nil {
		attempts = pgstore.NewAttemptStore(pool)
		ledger = pgstore.NewEntitlementLedger(pool)
	} else {
		attempts = memory.NewAttemptStore()
		ledger = memory.NewEntitlementLedger()
	}
	if redisClient != nil {
		guardTTL := config.TTLDuration(cfg.Redis.GuardTTL, time.Hour)
		attempts = redisstore.NewAttemptGuard(redisClient, attempts, guardTTL)
	}

	broker := transport.NewBroker()
	service := app.NewAttemptService(testRepo, attempts, ledger, broker)
	attemptHandler := transport.NewAttemptHandler(service)
	eventsHandler := transport.NewEventsHandler(broker)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	attemptHandler.Register(mux)
	mux.HandleFunc("/ws/events", eventsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting attempt service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTests provides a minimal free test for demos; swap the loader for
// the Postgres-backed one in production.
func sampleTests() map[string]domain.MockTest {
	return map[string]domain.MockTest{
		"test-1": {
			ID:              "test-1",
			Title:           "Demo Aptitude Test",
			Price:           0,
			DurationMinutes: 30,
			TotalQuestions:  2,
			Pool: []domain.Question{
				{
					ID:     "q1",
					Type:   domain.QuestionMCQ,
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4"},
						{Text: "5"},
					},
					Correct:  []int{1},
					Marks:    1,
					Negative: 0.25,
				},
				{
					ID:                  "q2",
					Type:                domain.QuestionManual,
					Prompt:              "Name the capital of France.",
					CorrectManualAnswer: "Paris",
					Marks:               1,
				},
			},
		},
	}
}

package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"studion-points-service/internal/app"
	"studion-points-service/internal/config"
	"studion-points-service/internal/domain"
	"studion-points-service/internal/infra/memory"
	pginfra "studion-points-service/internal/infra/postgres"
	redisinfra "studion-points-service/internal/infra/redis"
	"studion-points-service/internal/scoring"
	transport "studion-points-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the points service",
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
	log := newLogger()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
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
		defer pool.Close()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pginfra.NewQuizLoader(pool)
	}
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var (
		attemptRepo  app.AttemptRepository
		ledgerRepo   app.LedgerRepository
		accountRepo  app.AccountRepository
		progressRepo app.ProgressRepository
	)
	if pool != nil {
		attemptRepo = pginfra.NewAttemptStore(pool)
		ledgerRepo = pginfra.NewLedgerStore(pool)
		accountRepo = pginfra.NewAccountStore(pool)
		progressRepo = pginfra.NewProgressStore(pool)
	} else {
		attemptRepo = memory.NewAttemptStore()
		ledgerRepo = memory.NewLedgerStore()
		accountRepo = memory.NewAccountStore(sampleAccounts())
		progressRepo = memory.NewProgressStore()
	}

	attempts := app.NewAttemptService(attemptRepo, quizRepo, log)
	ledger := app.NewLedgerService(ledgerRepo, accountRepo, log)
	orchestrator := app.NewOrchestrator(attempts, ledger, progressRepo, rewardTable(cfg), log)

	wsHandler := transport.NewWSHandler(attempts, orchestrator, log)
	apiHandler := transport.NewAPIHandler(ledger, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/attempts", wsHandler.ServeWS)
	mux.HandleFunc("/api/balance", apiHandler.Balance)
	mux.HandleFunc("/api/ledger", apiHandler.History)
	mux.HandleFunc("/api/spend", apiHandler.Spend)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithField("port", finalPort).Info("starting points service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server...")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}
	return log
}

func rewardTable(cfg config.Config) scoring.RewardTable {
	table := scoring.DefaultRewardTable()
	if cfg.Rewards.BasePoints > 0 {
		table.BasePoints = cfg.Rewards.BasePoints
	}
	for name, mult := range cfg.Rewards.Difficulty {
		if mult > 0 {
			table.ByDifficulty[domain.Difficulty(name)] = mult
		}
	}
	for name, mult := range cfg.Rewards.Tier {
		if mult > 0 {
			table.ByTier[domain.PerformanceTier(name)] = mult
		}
	}
	return table
}

// sampleQuizzes provides demo data for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			OwnerID:          "demo-user",
			Title:            "Arithmetic warmup",
			Difficulty:       domain.DifficultyEasy,
			Status:           domain.QuizActive,
			EstimatedMinutes: 5,
			Questions: []domain.Question{
				{ID: "q1", CorrectAnswer: "4", Points: 1},
				{ID: "q2", CorrectAnswer: "9", Points: 1},
			},
		},
	}
}

func sampleAccounts() map[string]domain.Account {
	return map[string]domain.Account{
		"demo-user": {ID: "demo-user", Status: domain.AccountActive},
	}
}

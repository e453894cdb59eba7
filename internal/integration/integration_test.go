package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"studion-points-service/internal/app"
	"studion-points-service/internal/domain"
	pgstore "studion-points-service/internal/infra/postgres"
	pgmigrations "studion-points-service/internal/infra/postgres/migrations"
	infraredis "studion-points-service/internal/infra/redis"
	"studion-points-service/internal/scoring"
)

func TestCompleteQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDatabase(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	env := newEnv(pool, redisClient)

	attempt, err := env.attempts.Start(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := env.attempts.SubmitAnswer(ctx, attempt.ID, "u1", "q1", "4", 1200); err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if _, err := env.attempts.SubmitAnswer(ctx, attempt.ID, "u1", "q2", "9", 900); err != nil {
		t.Fatalf("submit q2: %v", err)
	}

	result, err := env.orchestrator.CompleteQuizAndAward(ctx, attempt.ID, "u1")
	if err != nil {
		t.Fatalf("complete and award: %v", err)
	}
	if result.Score.Percentage != 100 || result.Score.Tier != domain.TierExcellent {
		t.Fatalf("unexpected score: %+v", result.Score)
	}
	// base 10 * medium 1.5 * excellent 1.5
	if result.PointsEarned != 23 {
		t.Fatalf("expected 23 points, got %d", result.PointsEarned)
	}

	// A client retry of the completion must not award twice.
	again, err := env.orchestrator.CompleteQuizAndAward(ctx, attempt.ID, "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if again.NewBalance.Available != result.NewBalance.Available {
		t.Fatalf("retry moved the balance: %+v vs %+v", again.NewBalance, result.NewBalance)
	}

	progress, err := env.progress.GetProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if progress.QuizzesCompleted != 1 || progress.AverageScore != 100 || progress.StudyStreak != 1 {
		t.Fatalf("unexpected aggregate: %+v", progress)
	}
}

func TestSpendAgainstPostgresLedger(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDatabase(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	env := newEnv(pool, redisClient)

	if _, err := env.ledger.Award(ctx, "u1", domain.KindEarnQuiz, 50, "attempt-x"); err != nil {
		t.Fatalf("award: %v", err)
	}

	_, err = env.ledger.Spend(ctx, "u1", domain.KindSpendCourseDiscount, 60, "course-1")
	var insufficient *domain.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficiency error, got %v", err)
	}
	if insufficient.Available != 50 || insufficient.Requested != 60 {
		t.Fatalf("unexpected detail: %+v", insufficient)
	}

	if _, err := env.ledger.Spend(ctx, "u1", domain.KindSpendCourseDiscount, 30, "course-1"); err != nil {
		t.Fatalf("spend: %v", err)
	}
	balance, err := env.ledger.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Available != 20 || balance.Used != 30 {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	history, err := env.ledger.History(ctx, "u1", domain.HistoryFilter{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// award + failed spend + successful spend
	if len(history) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(history))
	}
}

func TestStartSurvivesCompletionChurn(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDatabase(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	env := newEnv(pool, redisClient)

	// Hammer the same (quiz, user) slot with interleaved starts and
	// completions. Start must always resolve to an attempt, even when the
	// conflicting attempt completes between its insert and re-select.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				attempt, err := env.attempts.Start(ctx, "quiz-1", "u1")
				if err != nil {
					t.Errorf("start: %v", err)
					return
				}
				if _, err := env.attempts.Complete(ctx, attempt.ID, "u1"); err != nil && !errors.Is(err, domain.ErrInvalidState) {
					t.Errorf("complete: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

type env struct {
	attempts     *app.AttemptService
	ledger       *app.LedgerService
	orchestrator *app.Orchestrator
	progress     app.ProgressRepository
}

func newEnv(pool *pgxpool.Pool, redisClient *goredis.Client) *env {
	log := logrus.New()
	log.SetOutput(io.Discard)

	loader := pgstore.NewQuizLoader(pool)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)

	attempts := app.NewAttemptService(pgstore.NewAttemptStore(pool), quizRepo, log)
	ledger := app.NewLedgerService(pgstore.NewLedgerStore(pool), pgstore.NewAccountStore(pool), log)
	progress := pgstore.NewProgressStore(pool)
	orchestrator := app.NewOrchestrator(attempts, ledger, progress, scoring.DefaultRewardTable(), log)
	return &env{attempts: attempts, ledger: ledger, orchestrator: orchestrator, progress: progress}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "points", "POSTGRES_PASSWORD": "pointspass", "POSTGRES_DB": "pointsdb"},
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
	dsn := fmt.Sprintf("postgres://points:pointspass@%s:%s/pointsdb?sslmode=disable", host, port.Port())
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

func seedDatabase(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
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

	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO accounts (id, status, total_earned, total_used) VALUES (?, 'active', 0, 0) ON CONFLICT (id) DO NOTHING`, "u1"); err != nil {
		t.Fatalf("insert account: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:         "quiz-1",
		OwnerID:    "u1",
		Title:      "Arithmetic",
		Difficulty: domain.DifficultyMedium,
		Status:     domain.QuizActive,
		Questions: []domain.Question{
			{ID: "q1", CorrectAnswer: "4", Points: 1},
			{ID: "q2", CorrectAnswer: "9", Points: 1},
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

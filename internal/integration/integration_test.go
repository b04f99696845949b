package integration

import (
	"context"
	"database/sql"
	"encoding/json"
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

	"chatquiz-service/internal/app"
	"chatquiz-service/internal/domain"
	pgloader "chatquiz-service/internal/infra/postgres"
	pgmigrations "chatquiz-service/internal/infra/postgres/migrations"
	redisinfra "chatquiz-service/internal/infra/redis"
)

func TestScheduledSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	quizRepo := redisinfra.NewQuizRepository(redisClient, pgloader.NewQuizLoader(pool), 5*time.Minute)
	scheduleStore := redisinfra.NewScheduleStore(redisClient)
	scoreStore := redisinfra.NewScoreStore(redisClient)

	ledger, err := app.NewLedger(ctx, scoreStore)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	transport := newCaptureTransport()
	engine := app.NewEngine(quizRepo, ledger, transport)
	scheduler := app.NewScheduler(scheduleStore, engine, time.Minute)

	// A daily entry three periods overdue fires exactly once and lands in
	// the future.
	now := time.Now().UTC()
	entry := domain.ScheduleEntry{
		RoomID:       "room-1",
		QuizID:       "quiz-1",
		NextFireTime: now.Add(-3 * 24 * time.Hour),
		Recurrence:   domain.Daily,
		OpenPeriod:   time.Hour,
	}
	if err := scheduler.Schedule(ctx, entry); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	scheduler.Tick(ctx, now)

	q1 := transport.waitActivation(t)
	if q1.question.Prompt != "What is 2 + 2?" {
		t.Fatalf("unexpected question: %+v", q1.question)
	}

	entries, err := scheduleStore.List(ctx)
	if err != nil {
		t.Fatalf("list schedules: %v", err)
	}
	if len(entries) != 1 || !entries[0].NextFireTime.After(now) {
		t.Fatalf("expected advanced schedule entry, got %+v", entries)
	}

	if v := ledger.RecordAnswer(ctx, q1.token, "alice", q1.question.CorrectIndex); v != domain.Correct {
		t.Fatalf("expected correct, got %v", v)
	}
	if v := ledger.RecordAnswer(ctx, q1.token, "alice", q1.question.CorrectIndex); v != domain.Duplicate {
		t.Fatalf("expected duplicate, got %v", v)
	}

	if err := engine.Advance(ctx, "room-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	final := transport.waitResults(t)
	if len(final.Entries) != 1 || final.Entries[0].UserID != "alice" || final.Entries[0].Score != 1 {
		t.Fatalf("unexpected final board: %+v", final.Entries)
	}

	// The point survived into the persistent global table.
	scores, err := scoreStore.Load(ctx)
	if err != nil {
		t.Fatalf("load scores: %v", err)
	}
	if scores["alice"] != 1 {
		t.Fatalf("expected persisted score 1, got %+v", scores)
	}
}

type activation struct {
	token    string
	question domain.Question
}

type captureTransport struct {
	activated chan activation
	results   chan domain.Leaderboard
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{
		activated: make(chan activation, 8),
		results:   make(chan domain.Leaderboard, 8),
	}
}

func (c *captureTransport) ActivateQuestion(_ context.Context, _, token string, q domain.Question, _ time.Duration) error {
	c.activated <- activation{token: token, question: q}
	return nil
}

func (c *captureTransport) Announce(context.Context, string, string) error { return nil }

func (c *captureTransport) PostResults(_ context.Context, _ string, lb domain.Leaderboard) error {
	c.results <- lb
	return nil
}

func (c *captureTransport) waitActivation(t *testing.T) activation {
	t.Helper()
	select {
	case act := <-c.activated:
		return act
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for activation")
		return activation{}
	}
}

func (c *captureTransport) waitResults(t *testing.T) domain.Leaderboard {
	t.Helper()
	select {
	case lb := <-c.results:
		return lb
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for results")
		return domain.Leaderboard{}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	t.Helper()
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
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{
				Prompt:       "What is 2 + 2?",
				Options:      []string{"3", "4", "5"},
				CorrectIndex: 1,
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

package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"chatquiz-service/internal/app"
	"chatquiz-service/internal/config"
	"chatquiz-service/internal/domain"
	"chatquiz-service/internal/infra/memory"
	pgloader "chatquiz-service/internal/infra/postgres"
	redisinfra "chatquiz-service/internal/infra/redis"
	"chatquiz-service/internal/infra/sqlite"
	"chatquiz-service/internal/transport/admin"
	"chatquiz-service/internal/transport/telegram"
	"chatquiz-service/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.Duration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	// Schedules and all-time scores share a backend: redis when configured,
	// a local sqlite file otherwise, plain memory as the last resort.
	var (
		scheduleStore app.ScheduleStore
		scoreStore    app.GlobalScoreStore
	)
	switch {
	case redisClient != nil:
		scheduleStore = redisinfra.NewScheduleStore(redisClient)
		scoreStore = redisinfra.NewScoreStore(redisClient)
	case cfg.Sqlite.Path != "":
		store, err := sqlite.New(cfg.Sqlite.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		scheduleStore = store
		scoreStore = store
	default:
		scheduleStore = memory.NewScheduleStore()
	}

	ledger, err := app.NewLedger(ctx, scoreStore)
	if err != nil {
		return err
	}

	hub := ws.NewHub(ledger)
	transports := app.MultiTransport{hub}

	var tg *telegram.Transport
	if cfg.Telegram.Token != "" {
		tg, err = telegram.New(cfg.Telegram.Token, ledger)
		if err != nil {
			return err
		}
		transports = append(transports, tg)
	}

	engine := app.NewEngine(quizRepo, ledger, transports)

	tick := config.Duration(cfg.Scheduler.Tick, 30*time.Second)
	scheduler := app.NewScheduler(scheduleStore, engine, tick)

	openPeriod := config.Duration(cfg.Session.OpenPeriod, 30*time.Second)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go scheduler.Run(runCtx)
	if tg != nil {
		go tg.Run(runCtx)
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	router.HandleFunc("/ws", hub.ServeWS)
	admin.NewAPI(engine, ledger, scheduler, openPeriod).Register(router)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting chatquiz service on :%s", finalPort)
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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds demo content when no backing store is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"general-knowledge": {
			ID: "general-knowledge",
			Questions: []domain.Question{
				{
					Prompt:       "What is the capital of France?",
					Options:      []string{"Berlin", "Madrid", "Paris", "Rome"},
					CorrectIndex: 2,
				},
				{
					Prompt:       "Which planet is known as the Red Planet?",
					Options:      []string{"Earth", "Mars", "Jupiter", "Saturn"},
					CorrectIndex: 1,
					Explanation:  "Iron oxide on the surface gives Mars its red color.",
				},
			},
		},
	}
}

package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"event-quiz-service/internal/app"
	"event-quiz-service/internal/config"
	"event-quiz-service/internal/infra/memory"
	"event-quiz-service/internal/infra/postgres"
	redisinfra "event-quiz-service/internal/infra/redis"
	"event-quiz-service/internal/infra/sessionize"
	transport "event-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the engagement server",
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

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		quizRepo    app.QuizRepository
		groupRepo   app.GroupRepository
		userRepo    app.UserRepository
		progress    app.ProgressRepository
		leaderboard app.Leaderboard
	)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := postgres.NewStore(pool)
		quizRepo, groupRepo, userRepo, progress = store, store, store, store
	} else {
		log.Warn("postgres url not configured, using in-memory store")
		store := memory.NewStore()
		quizRepo, groupRepo, userRepo, progress = store, store, store, store
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		leaderboard = redisinfra.NewLeaderboard(client)
	} else {
		log.Warn("redis addr not configured, using in-memory leaderboard")
		leaderboard = memory.NewLeaderboard()
	}

	provider := sessionize.NewClient(
		cfg.Sessionize.BaseURL,
		cfg.Sessionize.ID,
		config.Duration(cfg.Sessionize.TTL, 10*time.Minute),
	)
	schedule := app.NewScheduleService(
		provider,
		config.Duration(cfg.Schedule.SyncCooldown, 10*time.Minute),
		cfg.Schedule.LunchSlot,
	)

	quizCfg := app.DefaultQuizConfig()
	quizCfg.TimePerQuestion = config.Duration(cfg.Quiz.TimePerQuestion, quizCfg.TimePerQuestion)
	quizCfg.Grace = config.Duration(cfg.Quiz.Grace, quizCfg.Grace)
	if cfg.Quiz.TotalPoints > 0 {
		quizCfg.TotalPoints = cfg.Quiz.TotalPoints
	}

	quizService := app.NewQuizService(quizRepo, userRepo, progress, schedule, leaderboard, quizCfg)
	checkInService := app.NewCheckInService(userRepo, groupRepo)
	adminService := app.NewAdminService(progress, leaderboard)

	handler := transport.NewHandler(quizService, checkInService, schedule, adminService, log)
	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting engagement server", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server exited", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

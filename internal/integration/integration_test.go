package integration

import (
	"context"
	"database/sql"
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

	"event-quiz-service/internal/app"
	"event-quiz-service/internal/domain"
	pgstore "event-quiz-service/internal/infra/postgres"
	pgmigrations "event-quiz-service/internal/infra/postgres/migrations"
	infraredis "event-quiz-service/internal/infra/redis"
)

type staticProvider struct {
	talks []domain.Talk
}

func (p staticProvider) FetchTalks(context.Context) ([]domain.Talk, error) {
	return p.talks, nil
}

func TestEngagementEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	board := infraredis.NewLeaderboard(redisClient)

	day := time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC)
	schedule := app.NewScheduleService(staticProvider{talks: []domain.Talk{
		{ID: "talk-1", Title: "Opening Talk", StartsAt: day, EndsAt: day.Add(50 * time.Minute)},
	}}, time.Hour, 0)

	quizzes := app.NewQuizService(store, store, store, schedule, board, app.DefaultQuizConfig())
	checkIn := app.NewCheckInService(store, store)

	group, err := checkIn.CreateGroup(ctx, domain.Group{Name: "Red", Color: "#f00"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := store.CreateUser(ctx, domain.User{ID: "u1", Nickname: "Alice"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	assigned, err := checkIn.CheckIn(ctx, "u1")
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if assigned.ID != group.ID || assigned.UserCount != 1 {
		t.Fatalf("expected assignment to %s with count 1, got %+v", group.ID, assigned)
	}

	quiz, err := quizzes.CreateQuiz(ctx, domain.Quiz{
		Title:  "Opening Quiz",
		TalkID: "talk-1",
		QuestionList: []domain.Question{
			{Text: "2+2?", AnswerList: []domain.AnswerOption{{ID: "a", Text: "3"}, {ID: "b", Text: "4"}}, CorrectAnswer: "b"},
			{Text: "3+3?", AnswerList: []domain.AnswerOption{{ID: "a", Text: "6"}, {ID: "b", Text: "7"}}, CorrectAnswer: "a"},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	open := true
	if _, err := quizzes.UpdateQuiz(ctx, quiz.ID, app.QuizUpdate{IsOpen: &open}); err != nil {
		t.Fatalf("open quiz: %v", err)
	}

	view, err := quizzes.ReadQuiz(ctx, quiz.ID, "u1")
	if err != nil {
		t.Fatalf("read quiz: %v", err)
	}
	if view.TimerDuration <= 0 || view.TimerDuration > quiz.TimerDuration {
		t.Fatalf("expected remaining budget in (0, %d], got %d", quiz.TimerDuration, view.TimerDuration)
	}

	answers := map[string]string{
		view.QuestionList[0].ID: view.QuestionList[0].AnswerList[1].ID, // 4
		view.QuestionList[1].ID: view.QuestionList[1].AnswerList[0].ID, // 6
	}
	score, maxScore, err := quizzes.SubmitQuiz(ctx, quiz.ID, answers, "u1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// One 50-minute slot, full budget: 100 of 100.
	if score != 100 || maxScore != 100 {
		t.Fatalf("expected 100/100, got %d/%d", score, maxScore)
	}

	if _, _, err := quizzes.SubmitQuiz(ctx, quiz.ID, answers, "u1"); err != domain.ErrAlreadySubmitted {
		t.Fatalf("expected already-submitted on repeat, got %v", err)
	}

	users, err := board.TopUsers(ctx, 5)
	if err != nil {
		t.Fatalf("top users: %v", err)
	}
	if len(users) != 1 || users[0].Member != "u1" || users[0].Score != 100 {
		t.Fatalf("expected u1 leading with 100, got %+v", users)
	}
	groups, err := board.TopGroups(ctx, 5)
	if err != nil {
		t.Fatalf("top groups: %v", err)
	}
	if len(groups) != 1 || groups[0].Member != group.ID || groups[0].Score != 100 {
		t.Fatalf("expected group %s with 100, got %+v", group.ID, groups)
	}
}

func TestStartTimeSurvivesConcurrentFirstReads(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	store := pgstore.NewStore(pool)

	type outcome struct {
		startedAt int64
		err       error
	}
	results := make(chan outcome, 8)
	for i := 0; i < 8; i++ {
		go func(offset int64) {
			startedAt, err := store.EnsureStartTime(ctx, "u1", "quiz-1", 1000+offset)
			results <- outcome{startedAt: startedAt, err: err}
		}(int64(i))
	}

	first := <-results
	if first.err != nil {
		t.Fatalf("ensure start time: %v", first.err)
	}
	for i := 1; i < 8; i++ {
		got := <-results
		if got.err != nil {
			t.Fatalf("ensure start time: %v", got.err)
		}
		if got.startedAt != first.startedAt {
			t.Fatalf("start time diverged: %d vs %d", got.startedAt, first.startedAt)
		}
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
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

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
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
	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
	pgstore "quizroom-service/internal/infra/postgres"
	pgmigrations "quizroom-service/internal/infra/postgres/migrations"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/questions"
)

func TestPostgresQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgstore.NewQuestionSetLoader(pool)
	if err := loader.SaveQuestionSet(ctx, domain.QuestionSet{
		ID: "capitals", Title: "Capitals", Questions: questions.Examples(),
	}); err != nil {
		t.Fatalf("save set: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	sets := infraredis.NewQuestionSetCache(redisClient, loader, 5*time.Minute)
	service := app.NewService(pgstore.NewRoomStore(pool), sets, app.Options{MinParticipants: 2})
	defer service.Close()

	r, err := service.CreateRoom(ctx, app.CreateRoomRequest{QuestionSetID: "capitals"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if len(r.Questions) != len(questions.Examples()) {
		t.Fatalf("expected %d questions, got %d", len(questions.Examples()), len(r.Questions))
	}

	if _, _, err := service.JoinRoom(ctx, r.ID, "u1", "Alice"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := service.JoinRoom(ctx, r.ID, "u2", "Bob"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartQuiz(ctx, r.ID, r.Host); err != nil {
		t.Fatalf("start: %v", err)
	}

	correct := r.Questions[0].CorrectOption
	instant := int64(0)
	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, pid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			_, err := service.SubmitAnswer(ctx, r.ID, pid, domain.Response{
				QuestionID: r.Questions[0].ID, SelectedOption: correct, TimeToAnswer: &instant,
			})
			errs <- err
		}(pid)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	answered, err := service.AllParticipantsAnswered(ctx, r.ID, 0)
	if err != nil || !answered {
		t.Fatalf("expected everyone answered, got %v %v", answered, err)
	}
	lb, err := service.Leaderboard(ctx, r.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(lb.Entries) != 2 || lb.Entries[0].Score != 15 || lb.Entries[1].Score != 15 {
		t.Fatalf("expected both players on 15, got %+v", lb.Entries)
	}

	rooms, err := service.Rooms(ctx)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("expected one stored room, got %d %v", len(rooms), err)
	}
}

func TestRedisRelayAcrossInstances(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()
	client, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer client.Close()

	rooms := infraredis.NewRoomStore(client, time.Hour)
	newInstance := func(origin string) *app.Service {
		bus := infraredis.NewEventBus(client, origin)
		svc := app.NewService(rooms, nil, app.Options{MinParticipants: 1}).WithPublisher(bus)
		relay, err := bus.Relay(ctx)
		if err != nil {
			t.Fatalf("relay: %v", err)
		}
		go func() { _ = relay.Run(ctx, svc.Hub()) }()
		return svc
	}
	a := newInstance("instance-a")
	b := newInstance("instance-b")
	defer a.Close()
	defer b.Close()

	r, err := a.CreateRoom(ctx, app.CreateRoomRequest{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	events, unsubscribe, err := b.Subscribe(ctx, r.ID)
	if err != nil {
		t.Fatalf("subscribe on b: %v", err)
	}
	defer unsubscribe()
	if snap := <-events; snap.Type != domain.EventSnapshot {
		t.Fatalf("expected snapshot first, got %s", snap.Type)
	}

	if _, _, err := a.JoinRoom(ctx, r.ID, "u1", "Alice"); err != nil {
		t.Fatalf("join on a: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != domain.EventParticipantJoin || len(ev.Room.Participants) != 1 {
			t.Fatalf("unexpected relayed event: %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("event from instance a never reached instance b")
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

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
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

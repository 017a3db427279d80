package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/infra/memory"
	pgstore "quizroom-service/internal/infra/postgres"
	redisstore "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/infra/sqlite"
	transport "quizroom-service/internal/transport/http"
)

const reapInterval = time.Minute

func newStartCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

// backends holds the connections opened for one server run.
type backends struct {
	redis   *redis.Client
	pool    *pgxpool.Pool
	rooms   app.RoomRepository
	sets    app.QuestionSetRepository
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
			b.close()
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, err
		}
		b.pool = pool
		b.closers = append(b.closers, pool.Close)
	}

	var loader memory.QuestionSetLoader = memory.NewExampleLoader()
	if b.pool != nil {
		loader = pgstore.NewQuestionSetLoader(b.pool)
	}
	setTTL := config.TTLDuration(cfg.Quiz.QuestionSetTTL, 10*time.Minute)
	if b.redis != nil {
		b.sets = redisstore.NewQuestionSetCache(b.redis, loader, setTTL)
	} else {
		b.sets = memory.NewQuestionSetCache(loader, setTTL)
	}

	switch cfg.StorageDriver() {
	case config.DriverRedis:
		b.rooms = redisstore.NewRoomStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
	case config.DriverPostgres:
		b.rooms = pgstore.NewRoomStore(b.pool)
	case config.DriverSQLite:
		store, err := sqlite.NewRoomStore(cfg.SQLite.Path)
		if err != nil {
			b.close()
			return nil, err
		}
		b.rooms = store
		b.closers = append(b.closers, func() { _ = store.Close() })
	default:
		b.rooms = memory.NewRoomStore()
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close()

	opts := app.DefaultOptions()
	opts.AnswerWindow = config.TTLDuration(cfg.Quiz.AnswerWindow, opts.AnswerWindow)
	opts.MinParticipants = cfg.MinParticipants(opts.MinParticipants)
	opts.RoomTTL = config.TTLDuration(cfg.Quiz.RoomTTL, opts.RoomTTL)
	opts.Verbose = cfg.Server.Verbose

	service := app.NewService(b.rooms, b.sets, opts)
	defer service.Close()

	g, gctx := errgroup.WithContext(ctx)

	if b.redis != nil {
		bus := redisstore.NewEventBus(b.redis, uuid.NewString())
		relay, err := bus.Relay(ctx)
		if err != nil {
			return err
		}
		service.WithPublisher(bus)
		g.Go(func() error {
			return relay.Run(gctx, service.Hub())
		})
	}

	g.Go(func() error {
		return service.RunReaper(gctx, reapInterval)
	})

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr: net.JoinHostPort(cfg.Server.Bind, port),
		Handler: transport.NewRouter(service, transport.RouterOptions{
			Profile: cfg.Server.Profile,
			Verbose: cfg.Server.Verbose,
		}),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		log.Printf("starting quiz service on %s (storage: %s)", server.Addr, cfg.StorageDriver())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

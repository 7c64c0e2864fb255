package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aescanero/dago-editor/internal/application/orchestrator"
	"github.com/aescanero/dago-editor/internal/application/playback"
	"github.com/aescanero/dago-editor/internal/application/session"
	"github.com/aescanero/dago-editor/internal/config"
	"github.com/aescanero/dago-editor/pkg/adapters/backend/rest"
	eventsmemory "github.com/aescanero/dago-editor/pkg/adapters/events/memory"
	eventsredis "github.com/aescanero/dago-editor/pkg/adapters/events/redis"
	"github.com/aescanero/dago-editor/pkg/adapters/metrics/prometheus"
	"github.com/aescanero/dago-editor/pkg/adapters/storage/memory"
	"github.com/aescanero/dago-editor/pkg/adapters/storage/postgres"
	redisstorage "github.com/aescanero/dago-editor/pkg/adapters/storage/redis"
	"github.com/aescanero/dago-editor/pkg/api/grpc"
	"github.com/aescanero/dago-editor/pkg/api/http"
	"github.com/aescanero/dago-editor/pkg/api/websocket"
	"github.com/aescanero/dago-editor/pkg/ports"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting dago-editor",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	ctx := context.Background()

	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	var pgStore *postgres.Store
	var pool *pgxpool.Pool
	if cfg.UsesPostgres() {
		pool, err = newPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal("failed to connect to Postgres", zap.Error(err))
		}
		pgStore = postgres.New(pool, logger)
		if err := pgStore.CreateSchema(ctx); err != nil {
			logger.Fatal("failed to create schema", zap.Error(err))
		}
		logger.Info("connected to Postgres")
	}

	backend := rest.New(rest.Config{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.RequestTimeout,
	}, logger)

	memStore := memory.NewStore()

	var workflows ports.WorkflowRepository
	switch cfg.Workflows.Store {
	case config.BackendPostgres:
		workflows = pgStore
	case config.BackendMemory:
		workflows = memStore
	default:
		workflows = backend
	}

	var drafts ports.DraftStore
	switch cfg.Drafts.Store {
	case config.BackendRedis:
		drafts = redisstorage.NewDraftStore(redisClient, cfg.Drafts.TTL, logger)
	case config.BackendPostgres:
		drafts = pgStore
	default:
		drafts = memStore
	}

	var eventBus ports.EventBus
	if cfg.Events.Bus == config.BackendRedis {
		eventBus = eventsredis.NewStreamsEventBus(
			redisClient,
			cfg.Events.ConsumerGroup,
			fmt.Sprintf("%s-%d", cfg.Events.ConsumerName, os.Getpid()),
			logger,
		)
	} else {
		eventBus = eventsmemory.NewEventBus(logger)
	}

	metricsCollector := prometheus.NewCollector(nil)

	sessions := session.NewManager(backend, logger,
		session.WithDrafts(drafts, cfg.Drafts.AutosaveDelay),
		session.WithEventBus(eventBus),
		session.WithMetrics(metricsCollector),
		session.WithRunConfig(orchestrator.Config{
			RunTimeout: cfg.Run.Timeout,
			Playback: playback.Config{
				Budget:   cfg.Run.PlaybackBudget,
				MinDelay: cfg.Run.MinStepDelay,
				MaxDelay: cfg.Run.MaxStepDelay,
			},
		}),
	)

	reaper := session.NewReaper(sessions, cfg.Sessions.ReapInterval, cfg.Sessions.IdleTTL, logger)
	if pgStore != nil && cfg.Drafts.Store == config.BackendPostgres {
		reaper.PurgeDrafts(pgStore, cfg.Drafts.TTL)
	}
	reaper.Start()

	httpServer := http.NewServer(&http.Config{
		Port:      cfg.HTTPPort,
		Sessions:  sessions,
		Workflows: workflows,
		Logger:    logger,
	})

	wsHandler := websocket.NewHandler(eventBus, websocket.SessionLookupFunc(func(id string) bool {
		_, err := sessions.Get(id)
		return err == nil
	}), logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:     cfg.GRPCPort,
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("dago-editor started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.String("backend_url", cfg.Backend.URL),
		zap.String("workflow_store", cfg.Workflows.Store),
		zap.String("draft_store", cfg.Drafts.Store),
		zap.String("event_bus", cfg.Events.Bus))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	reaper.Stop()
	sessions.Close()

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", zap.Error(err))
		}
	}

	if pool != nil {
		pool.Close()
	}

	logger.Info("dago-editor shut down complete")
}

func newPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}

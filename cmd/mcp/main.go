package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"headline-vol/internal/cache"
	"headline-vol/internal/config"
	"headline-vol/internal/db"
	"headline-vol/internal/mcpserver"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/monitoring"
	"headline-vol/internal/ml/predictions"
	"headline-vol/internal/ml/registry"
	"headline-vol/internal/service"
	"headline-vol/pkg/logger"
	"headline-vol/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type mcpRunner interface {
	Run(ctx context.Context, cfg mcpserver.Config) error
}

var (
	loadEnvFunc       = godotenv.Load
	loadConfigFunc    = config.Load
	initLoggerFunc    = logger.Init
	initPostgresFunc  = db.InitPostgres
	initRedisFunc     = cache.InitRedis
	initTracerFunc    = tracing.InitTracer
	runServerFunc     = func(s mcpRunner, ctx context.Context, cfg mcpserver.Config) error { return s.Run(ctx, cfg) }
	setupSignalNotify = signal.Notify
)

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	// stdout belongs to the stdio transport.
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	if err := cfg.Validate("ModelKey", "MCPTransport", "MCPHTTPPort"); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-quit:
			log.Info().Msg("Shutting down MCP server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, MCP tools disabled")
	}
	defer db.Close()
	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, prediction cache disabled")
	}

	tp, tracer, err := initTracerFunc(ctx, "mcp")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	var deps mcpserver.Deps
	if db.Pool != nil {
		registryRepo := registry.NewRepository(db.Pool, tracer)
		predictionRepo := predictions.NewRepository(db.Pool, tracer)

		models := service.NewModelService(tracer, registryRepo, features.NewRepository(db.Pool, tracer), cfg.ModelKey)
		if info, err := models.Reload(ctx); err != nil {
			log.Warn().Err(err).Str("model", cfg.ModelKey).Msg("no serving model loaded, score_headlines will fail")
		} else {
			log.Info().Str("model", info.ModelKey).Int("version", info.Version).Msg("serving model loaded")
		}

		var redisClient service.RedisClient
		if cache.Client != nil {
			redisClient = cache.Client
		}
		deps = mcpserver.Deps{
			Models:      models,
			Predictions: service.NewPredictionService(tracer, predictionRepo, redisClient),
			Metrics:     monitoring.NewRepository(db.Pool, tracer),
		}
	}

	srv := mcpserver.New(tracer, deps)
	serverCfg := mcpserver.Config{
		Transport: cfg.MCPTransport,
		HTTPAddr:  mcpserver.HTTPAddr(cfg.MCPHTTPBind, cfg.MCPHTTPPort),
	}
	log.Info().Str("transport", serverCfg.Transport).Msg("MCP server starting")
	if err := runServerFunc(srv, ctx, serverCfg); err != nil {
		log.Error().Err(err).Msg("MCP server stopped")
		return
	}
	log.Info().Msg("MCP server exited")
}

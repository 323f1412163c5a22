package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"headline-vol/internal/bot"
	"headline-vol/internal/cache"
	"headline-vol/internal/config"
	"headline-vol/internal/db"
	"headline-vol/internal/handler"
	"headline-vol/internal/headlines"
	"headline-vol/internal/job"
	"headline-vol/internal/metrics"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/monitoring"
	"headline-vol/internal/ml/predictions"
	"headline-vol/internal/ml/registry"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/ml/search"
	"headline-vol/internal/ml/training"
	"headline-vol/internal/objectstore"
	"headline-vol/internal/service"
	"headline-vol/pkg/logger"
	"headline-vol/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "headline-vol/docs"
)

type starter interface {
	Start(ctx context.Context)
}

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initLoggerFunc         = logger.Init
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	openStoreFunc          = objectstore.Open
	newRecorderFunc        = func() *metrics.Recorder { return metrics.New(prometheus.DefaultRegisterer) }
	startTelegramBotFunc   = bot.StartTelegramBot
	startJobFunc           = func(j starter, ctx context.Context) { go j.Start(ctx) }
	newHandlerFunc         = handler.New
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Headline Volatility API
// @version         1.0
// @description     Scores daily news headlines into next-move volatility direction.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey  ApiKeyAuth
// @in                          header
// @name                        X-API-Key
func main() {
	_ = loadEnvFunc()

	cfg := loadConfigFunc()
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	if err := cfg.Validate("Bucket", "ModelKey", "StoreBackend", "APIPort", "MLTrainHourUTC", "MLScoreHourUTC", "MLClassifiers"); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, registry and prediction endpoints will fail")
	}
	defer db.Close()
	if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, prediction cache disabled")
	}

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx, "api")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer")
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}()

	store, err := openStoreFunc(cfg.StoreBackend, cfg.StoreRoot, cache.Client, tracer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open object store")
	}
	recorder := newRecorderFunc()

	// Repositories
	registryRepo := registry.NewRepository(db.Pool, tracer)
	predictionRepo := predictions.NewRepository(db.Pool, tracer)
	volatilityRepo := features.NewRepository(db.Pool, tracer)
	metricRepo := monitoring.NewRepository(db.Pool, tracer)

	var redisClient service.RedisClient
	if cache.Client != nil {
		redisClient = cache.Client
	}
	predictionService := service.NewPredictionService(tracer, predictionRepo, redisClient)
	modelService := service.NewModelService(tracer, registryRepo, volatilityRepo, cfg.ModelKey)
	if db.Pool != nil {
		if info, err := modelService.Reload(ctx); err != nil {
			log.Warn().Err(err).Str("model", cfg.ModelKey).Msg("no serving model loaded")
		} else {
			log.Info().Str("model", info.ModelKey).Int("version", info.Version).Str("stage", info.Stage).Msg("serving model loaded")
		}
	}

	trainingService := training.NewService(tracer, store, registryRepo, registryRepo, recorder, training.Config{
		ModelKey:    cfg.ModelKey,
		Bucket:      cfg.Bucket,
		MaxEvals:    cfg.MLMaxEvals,
		Parallelism: cfg.MLSearchParallel,
		Seed:        cfg.MLSearchSeed,
		Space:       searchSpace(cfg),
		AutoPromote: cfg.MLAutoPromote,
	})
	scoringService := scoring.NewService(tracer, registryRepo, store, predictionRepo, recorder, scoring.Config{
		ModelKey: cfg.ModelKey,
		Bucket:   cfg.Bucket,
	})

	// Start Telegram bot
	tgBot, err := startTelegramBotFunc(cfg.TelegramBotToken, cfg.TelegramAlertChatID, predictionService)
	if err != nil {
		log.Error().Err(err).Msg("Telegram bot disabled")
	}
	monitoringService := monitoring.NewService(tracer, predictionRepo, metricRepo, tgBot, recorder, monitoring.Config{
		DaysBack: cfg.MLMonitorDaysBack,
	})
	resolver := predictions.NewResolver(tracer, predictionRepo, volatilityRepo)

	// Background jobs, stopped by ctx cancel
	if cfg.MLJobsEnabled && db.Pool != nil {
		startJobFunc(job.NewMLTrainingJob(tracer, trainingService, cfg.MLTrainHourUTC), ctx)
		if len(cfg.HeadlineFeeds) > 0 {
			feeds := headlines.NewRSSSource(tracer, cfg.HeadlineFeeds, headlines.NewRateLimiter(cfg.HeadlineFeedsPerSec, time.Second))
			startJobFunc(job.NewLiveScoringJob(tracer, feeds, modelService, scoringService, predictionService, cfg.MLScoreHourUTC), ctx)
		} else {
			startJobFunc(job.NewMLScoringJob(tracer, scoringService, predictionService, cfg.MLScoreHourUTC), ctx)
		}
		startJobFunc(job.NewLabelResolverJob(tracer, resolver, predictionService, 0, 0), ctx)
		startJobFunc(job.NewMonitoringJob(tracer, monitoringService, time.Duration(cfg.MLMonitorPollSecs)*time.Second), ctx)
	} else {
		log.Info().Bool("jobs_enabled", cfg.MLJobsEnabled).Bool("postgres", db.Pool != nil).Msg("ML jobs not started")
	}

	// Create handlers and routes
	h := newHandlerFunc(tracer, modelService, predictionService, cfg.APIKey)
	h.SetMLTrainingRunner(trainingService)
	h.SetMLScoringRunner(scoringService)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("headline-vol"))

	h.RegisterRoutes(r)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := startHTTPServerFunc(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Info().Msg("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// searchSpace is the default space restricted to the configured classifiers.
func searchSpace(cfg *config.Config) search.Space {
	space := search.DefaultSpace()
	if len(cfg.MLClassifiers) > 0 {
		space.Classifiers = cfg.MLClassifiers
	}
	return space
}

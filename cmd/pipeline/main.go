package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"headline-vol/internal/cache"
	"headline-vol/internal/config"
	"headline-vol/internal/db"
	"headline-vol/internal/domain"
	"headline-vol/internal/metrics"
	"headline-vol/internal/ml/dataset"
	"headline-vol/internal/ml/features"
	"headline-vol/internal/ml/monitoring"
	"headline-vol/internal/ml/predictions"
	"headline-vol/internal/ml/registry"
	"headline-vol/internal/ml/scoring"
	"headline-vol/internal/ml/search"
	"headline-vol/internal/ml/training"
	"headline-vol/internal/objectstore"
	"headline-vol/pkg/logger"
	"headline-vol/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

const usage = "usage: go run ./cmd/pipeline [preprocess|train|score|monitor|promote|resolve|trials] [flags]"

var (
	loadEnvFunc      = godotenv.Load
	loadConfigFunc   = config.Load
	initLoggerFunc   = logger.Init
	initPostgresFunc = db.InitPostgres
	initRedisFunc    = cache.InitRedis
	initTracerFunc   = tracing.InitTracer
	openStoreFunc    = objectstore.Open
	nowFunc          = time.Now
)

type trainer interface {
	Run(ctx context.Context) (*training.RunResult, error)
}

type dayScorer interface {
	ScoreDate(ctx context.Context, date time.Time) (domain.ScoringRecord, error)
	ScoreDays(ctx context.Context, dates []time.Time) ([]scoring.DayOutcome, error)
}

type monitor interface {
	Run(ctx context.Context) (*monitoring.Report, error)
}

type modelRegistry interface {
	TransitionStage(ctx context.Context, modelKey string, version int, stage domain.Stage) error
	ListTrials(ctx context.Context, sessionID string) ([]domain.SearchTrial, error)
}

type observationStore interface {
	UpsertObservations(ctx context.Context, obs []domain.VolatilityObservation) error
}

type outcomeResolver interface {
	ResolveOutcomes(ctx context.Context, limit int) (int, error)
}

// app carries what each subcommand needs. Postgres-backed members are nil
// when no database is configured.
type app struct {
	cfg          *config.Config
	store        objectstore.Store
	trainer      trainer
	scorer       dayScorer
	monitor      monitor
	registry     modelRegistry
	observations observationStore
	resolver     outcomeResolver
	out          io.Writer
}

var errNeedsPostgres = errors.New("this command needs DATABASE_URL")

func main() {
	_ = loadEnvFunc()
	cfg := loadConfigFunc()
	if err := initLoggerFunc(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}
	if len(os.Args) < 2 {
		log.Fatal().Msg(usage)
	}
	if err := cfg.Validate("Bucket", "ModelKey", "StoreBackend", "MLMaxEvals", "MLSearchParallel", "MLClassifiers"); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	if err := initPostgresFunc(ctx, cfg.DatabaseURL); err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, registry-backed commands disabled")
	}
	defer db.Close()
	if cfg.StoreBackend == "redis" {
		if err := initRedisFunc(ctx, cfg.RedisURL); err != nil {
			log.Fatal().Err(err).Msg("redis object store unavailable")
		}
	}

	tp, tracer, err := initTracerFunc(ctx, "pipeline")
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

	a := newApp(cfg, tracer, store)
	if err := a.run(ctx, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("pipeline command failed")
	}
}

func newApp(cfg *config.Config, tracer trace.Tracer, store objectstore.Store) *app {
	a := &app{cfg: cfg, store: store, out: os.Stdout}
	recorder := metrics.New(prometheus.NewRegistry())
	if db.Pool == nil {
		// Without Postgres, monitoring reads the daily records kept in the
		// object store and keeps its metrics in the report only.
		a.monitor = monitoring.NewService(tracer, dataset.NewRecordArchive(store, cfg.Bucket), nil, nil, recorder, monitoring.Config{
			DaysBack: cfg.MLMonitorDaysBack,
		})
		return a
	}
	registryRepo := registry.NewRepository(db.Pool, tracer)
	predictionRepo := predictions.NewRepository(db.Pool, tracer)
	volatilityRepo := features.NewRepository(db.Pool, tracer)

	a.registry = registryRepo
	a.observations = volatilityRepo
	a.trainer = training.NewService(tracer, store, registryRepo, registryRepo, recorder, training.Config{
		ModelKey:    cfg.ModelKey,
		Bucket:      cfg.Bucket,
		MaxEvals:    cfg.MLMaxEvals,
		Parallelism: cfg.MLSearchParallel,
		Seed:        cfg.MLSearchSeed,
		Space:       searchSpace(cfg),
		AutoPromote: cfg.MLAutoPromote,
	})
	a.scorer = scoring.NewService(tracer, registryRepo, store, predictionRepo, recorder, scoring.Config{
		ModelKey: cfg.ModelKey,
		Bucket:   cfg.Bucket,
	})
	a.monitor = monitoring.NewService(tracer, predictionRepo, monitoring.NewRepository(db.Pool, tracer), nil, recorder, monitoring.Config{
		DaysBack: cfg.MLMonitorDaysBack,
	})
	a.resolver = predictions.NewResolver(tracer, predictionRepo, volatilityRepo)
	return a
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	switch args[0] {
	case "preprocess":
		return a.preprocess(ctx, args[1:])
	case "train":
		return a.train(ctx)
	case "score":
		return a.score(ctx, args[1:])
	case "monitor":
		return a.runMonitor(ctx)
	case "promote":
		return a.promote(ctx, args[1:])
	case "resolve":
		return a.resolve(ctx, args[1:])
	case "trials":
		return a.trials(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q. %s", args[0], usage)
	}
}

func (a *app) preprocess(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("preprocess", flag.ContinueOnError)
	csvPath := fs.String("csv", "", "wide daily CSV (Date, vol_up, Top1..Top25, realized_vol, tr_vol, park_vol)")
	dropIncomplete := fs.Bool("drop-incomplete", false, "drop rows whose lag or window features are missing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *csvPath == "" {
		return errors.New("preprocess: -csv is required")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	wide, err := dataset.ReadWideCSV(f)
	if err != nil {
		return err
	}
	cfg := features.DefaultConfig()
	cfg.DropIncomplete = *dropIncomplete
	tall, _, err := features.Build(wide, cfg)
	if err != nil {
		return err
	}
	train, val, test := dataset.ChronologicalSplit(tall)

	for _, t := range []struct {
		path string
		rows []domain.TallRecord
	}{
		{dataset.PathFullTall, tall},
		{dataset.PathTrainTall, train},
		{dataset.PathValTall, val},
		{dataset.PathTestTall, test},
	} {
		if err := dataset.SaveTall(ctx, a.store, a.cfg.Bucket, t.path, t.rows); err != nil {
			return err
		}
	}

	if a.observations != nil {
		if err := a.observations.UpsertObservations(ctx, observationsFrom(wide)); err != nil {
			return fmt.Errorf("store volatility observations: %w", err)
		}
	}

	log.Info().
		Int("days", len(wide)).
		Int("rows", len(tall)).
		Int("train", len(train)).
		Int("val", len(val)).
		Int("test", len(test)).
		Msg("preprocess complete")
	return a.printJSON(map[string]int{"days": len(wide), "rows": len(tall), "train": len(train), "val": len(val), "test": len(test)})
}

func observationsFrom(wide []domain.WideRecord) []domain.VolatilityObservation {
	out := make([]domain.VolatilityObservation, 0, len(wide))
	for _, w := range wide {
		values := make(map[string]float64, len(domain.VolatilityMetrics))
		for _, m := range domain.VolatilityMetrics {
			if v, ok := w.Scalars[m]; ok {
				values[m] = v
			}
		}
		out = append(out, domain.VolatilityObservation{Date: w.Date, Values: values})
	}
	return out
}

func (a *app) train(ctx context.Context) error {
	if a.trainer == nil {
		return errNeedsPostgres
	}
	res, err := a.trainer.Run(ctx)
	if err != nil {
		return err
	}
	out := map[string]any{
		"session_id":    res.SessionID,
		"model_key":     res.ModelKey,
		"version":       res.Version,
		"stage":         res.Stage,
		"best_trial":    res.BestTrial,
		"best_params":   res.BestParams,
		"trials":        res.Trials,
		"failed_trials": res.FailedTrials,
		"metrics":       res.Metrics,
		"promoted":      res.Promoted,
	}
	if res.PromoteError != nil {
		out["promote_error"] = res.PromoteError.Error()
	}
	return a.printJSON(out)
}

func (a *app) score(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	date := fs.String("date", "", "day to score (YYYY-MM-DD); defaults to yesterday")
	from := fs.String("from", "", "first day of a backfill range")
	to := fs.String("to", "", "last day of a backfill range")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.scorer == nil {
		return errNeedsPostgres
	}

	if *from != "" || *to != "" {
		days, err := dayRange(*from, *to)
		if err != nil {
			return err
		}
		outcomes, err := a.scorer.ScoreDays(ctx, days)
		if err != nil {
			return err
		}
		report := make([]dayReport, 0, len(outcomes))
		failed := 0
		for _, o := range outcomes {
			r := dayReport{Date: o.Date, Record: o.Record}
			if o.Err != nil {
				failed++
				r.Error = o.Err.Error()
				log.Error().Err(o.Err).Str("date", o.Date).Msg("day failed")
			}
			report = append(report, r)
		}
		log.Info().Int("days", len(outcomes)).Int("failed", failed).Msg("backfill complete")
		return a.printJSON(report)
	}

	// The current day's headlines are still arriving, so the default is the
	// last complete day.
	day := domain.TruncateDay(nowFunc()).AddDate(0, 0, -1)
	if *date != "" {
		parsed, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			return fmt.Errorf("score: -date must be YYYY-MM-DD: %w", err)
		}
		day = parsed
	}
	rec, err := a.scorer.ScoreDate(ctx, day)
	if err != nil {
		return err
	}
	return a.printJSON(rec)
}

type dayReport struct {
	Date   string                `json:"date"`
	Record *domain.ScoringRecord `json:"record,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// dayRange lists every calendar day in [from, to].
func dayRange(from, to string) ([]time.Time, error) {
	if from == "" || to == "" {
		return nil, errors.New("score: -from and -to must be given together")
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, fmt.Errorf("score: -from: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, fmt.Errorf("score: -to: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("score: -to is before -from")
	}
	days := make([]time.Time, 0)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

func (a *app) runMonitor(ctx context.Context) error {
	if a.monitor == nil {
		return errNeedsPostgres
	}
	report, err := a.monitor.Run(ctx)
	if err != nil {
		return err
	}
	for _, alert := range report.Alerts {
		log.Warn().Str("metric", alert.Metric).Float64("value", alert.Value).Msg(alert.Message)
	}
	return a.printJSON(report)
}

func (a *app) promote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("promote", flag.ContinueOnError)
	version := fs.Int("version", 0, "model version to move")
	stageName := fs.String("stage", string(domain.StageProduction), "target stage (Staging, Production, Archived, None)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *version <= 0 {
		return errors.New("promote: -version is required")
	}
	stage, ok := domain.ParseStage(*stageName)
	if !ok {
		return fmt.Errorf("promote: unknown stage %q", *stageName)
	}
	if a.registry == nil {
		return errNeedsPostgres
	}
	if err := a.registry.TransitionStage(ctx, a.cfg.ModelKey, *version, stage); err != nil {
		return err
	}
	log.Info().Str("model", a.cfg.ModelKey).Int("version", *version).Str("stage", string(stage)).Msg("stage transition complete")
	return nil
}

func (a *app) resolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	limit := fs.Int("limit", 200, "maximum days to label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.resolver == nil {
		return errNeedsPostgres
	}
	n, err := a.resolver.ResolveOutcomes(ctx, *limit)
	if err != nil {
		return err
	}
	return a.printJSON(map[string]int{"resolved": n})
}

func (a *app) trials(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("trials", flag.ContinueOnError)
	session := fs.String("session", "", "search session id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return errors.New("trials: -session is required")
	}
	if a.registry == nil {
		return errNeedsPostgres
	}
	trials, err := a.registry.ListTrials(ctx, *session)
	if err != nil {
		return err
	}
	return a.printJSON(trials)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// searchSpace is the default space restricted to the configured classifiers.
func searchSpace(cfg *config.Config) search.Space {
	space := search.DefaultSpace()
	if len(cfg.MLClassifiers) > 0 {
		space.Classifiers = cfg.MLClassifiers
	}
	return space
}

// Package search runs a fixed number of hyperparameter trials and keeps the
// one with the lowest loss.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"headline-vol/internal/domain"
	"headline-vol/internal/ml/evaluate"
	"headline-vol/internal/ml/pipeline"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of evaluating one parameter set. A non-nil Err marks
// the trial as failed; Score and Report are then meaningless.
type Outcome struct {
	Score  float64
	Report evaluate.Report
	Err    error
}

// Objective evaluates a parameter set. Higher scores are better.
type Objective func(ctx context.Context, params pipeline.Params) Outcome

type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Trial records one evaluated parameter set. Loss is -Score for successful
// trials and 0 for failed ones.
type Trial struct {
	Number    int
	Params    pipeline.Params
	Outcome   Outcome
	Loss      float64
	Status    Status
	StartedAt time.Time
	Duration  time.Duration
}

type Result struct {
	Best   Trial
	Trials []Trial
}

type Config struct {
	MaxEvals    int
	Parallelism int
}

type Driver struct {
	space   Space
	sampler Sampler
	cfg     Config
	tracer  trace.Tracer
	onTrial func(context.Context, Trial)
	mu      sync.Mutex
}

func NewDriver(space Space, sampler Sampler, cfg Config, tracer trace.Tracer) *Driver {
	if cfg.MaxEvals <= 0 {
		cfg.MaxEvals = 1
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Driver{space: space, sampler: sampler, cfg: cfg, tracer: tracer}
}

// OnTrial registers a hook called once per finished trial. With parallelism
// the calls are serialised but may arrive out of trial order.
func (d *Driver) OnTrial(fn func(context.Context, Trial)) {
	d.onTrial = fn
}

// Run evaluates exactly MaxEvals trials unless ctx is cancelled first.
// Failed trials never abort the search.
func (d *Driver) Run(ctx context.Context, objective Objective) (Result, error) {
	ctx, span := d.tracer.Start(ctx, "search.run")
	defer span.End()
	span.SetAttributes(attribute.Int("max_evals", d.cfg.MaxEvals), attribute.Int("parallelism", d.cfg.Parallelism))

	params := make([]pipeline.Params, d.cfg.MaxEvals)
	for i := range params {
		params[i] = d.sampler.Sample(d.space)
	}
	trials := make([]Trial, d.cfg.MaxEvals)
	done := make([]bool, d.cfg.MaxEvals)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Parallelism)
	for i := range params {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			trials[i] = d.runTrial(gctx, i, params[i], objective)
			done[i] = true
			d.notify(gctx, trials[i])
			return nil
		})
	}
	waitErr := g.Wait()

	finished := make([]Trial, 0, len(trials))
	for i := range trials {
		if done[i] {
			finished = append(finished, trials[i])
		}
	}
	if waitErr != nil || ctx.Err() != nil {
		err := waitErr
		if err == nil {
			err = ctx.Err()
		}
		return Result{Trials: finished}, fmt.Errorf("search interrupted after %d of %d trials: %w", len(finished), d.cfg.MaxEvals, err)
	}

	best := finished[0]
	for _, t := range finished[1:] {
		if t.Loss < best.Loss {
			best = t
		}
	}
	log.Info().
		Int("trials", len(finished)).
		Int("best_trial", best.Number).
		Float64("best_loss", best.Loss).
		Msg("hyperparameter search finished")
	return Result{Best: best, Trials: finished}, nil
}

func (d *Driver) runTrial(ctx context.Context, number int, params pipeline.Params, objective Objective) (trial Trial) {
	ctx, span := d.tracer.Start(ctx, "search.trial")
	defer span.End()
	span.SetAttributes(attribute.Int("trial", number))

	trial = Trial{Number: number, Params: params, StartedAt: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			trial.Outcome = Outcome{Err: fmt.Errorf("panic: %v\n%s", r, debug.Stack())}
		}
		trial.Duration = time.Since(trial.StartedAt)
		if trial.Outcome.Err != nil {
			trial.Outcome.Err = errors.Join(domain.ErrTrialFailed, trial.Outcome.Err)
			trial.Loss = 0
			trial.Status = StatusFailed
			span.RecordError(trial.Outcome.Err)
			log.Warn().Err(trial.Outcome.Err).Int("trial", number).Str("params", params.JSON()).Msg("trial failed; scored as loss 0")
			return
		}
		trial.Loss = -trial.Outcome.Score
		trial.Status = StatusOK
		log.Debug().Int("trial", number).Float64("score", trial.Outcome.Score).Str("params", params.JSON()).Msg("trial finished")
	}()
	trial.Outcome = objective(ctx, params)
	return trial
}

func (d *Driver) notify(ctx context.Context, t Trial) {
	if d.onTrial == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onTrial(ctx, t)
}

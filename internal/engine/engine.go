// Package engine runs many scenarios, each in its own session, with bounded
// parallelism.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

// Runner executes one scenario. *scenario.Runner implements it.
type Runner interface {
	Run(ctx context.Context, sc *scenario.Scenario) scenario.Outcome
}

// Summary totals the outcomes of one batch.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	TimedOut int
	Duration time.Duration
}

// OK reports whether every scenario passed.
func (s Summary) OK() bool { return s.Total > 0 && s.Passed == s.Total }

// Summarize counts outcomes by status.
func Summarize(outcomes []scenario.Outcome, elapsed time.Duration) Summary {
	sum := Summary{Total: len(outcomes), Duration: elapsed}
	for _, o := range outcomes {
		switch o.Status {
		case scenario.StatusPassed:
			sum.Passed++
		case scenario.StatusTimedOut:
			sum.TimedOut++
		default:
			sum.Failed++
		}
	}
	return sum
}

// Engine fans scenarios out over a bounded number of goroutines. Runs share
// nothing but the Runner, which keeps no per-run state.
type Engine struct {
	runner      Runner
	concurrency int
	logger      *zap.Logger
}

func New(runner Runner, concurrency int, logger *zap.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Engine{
		runner:      runner,
		concurrency: concurrency,
		logger:      logger.With(zap.String("component", "engine")),
	}
}

// RunAll runs every scenario and returns the outcomes in input order.
// onOutcome, when set, is called as each run finishes; calls are serialized.
func (e *Engine) RunAll(ctx context.Context, scs []*scenario.Scenario, onOutcome func(scenario.Outcome)) ([]scenario.Outcome, Summary) {
	start := time.Now()
	outcomes := make([]scenario.Outcome, len(scs))
	done := make(chan scenario.Outcome)
	reported := make(chan struct{})

	go func() {
		defer close(reported)
		for o := range done {
			if onOutcome != nil {
				onOutcome(o)
			}
		}
	}()

	e.logger.Info("Running scenarios.", zap.Int("count", len(scs)), zap.Int("concurrency", e.concurrency))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, sc := range scs {
		i, sc := i, sc
		g.Go(func() error {
			out := e.runner.Run(ctx, sc)
			outcomes[i] = out
			done <- out
			return nil
		})
	}
	_ = g.Wait()
	close(done)
	<-reported

	sum := Summarize(outcomes, time.Since(start))
	e.logger.Info("Scenarios finished.",
		zap.Int("passed", sum.Passed),
		zap.Int("failed", sum.Failed),
		zap.Int("timed_out", sum.TimedOut),
		zap.Duration("duration", sum.Duration))
	return outcomes, sum
}

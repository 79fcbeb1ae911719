package optimizer

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradeforge/tradeforge/internal/backtest"
	"github.com/tradeforge/tradeforge/internal/market"
	"github.com/tradeforge/tradeforge/internal/telemetry"
)

// Search methods.
const (
	MethodGrid   = "grid"
	MethodRandom = "random"
)

// Validation modes.
const (
	ValidationNone        = "none"
	ValidationWalkForward = "walk_forward"
)

// Options configures one optimization run.
type Options struct {
	Method     string        // grid or random, default grid
	NTrials    int           // random sample size, ignored for grid
	Metric     Metric        // ranking rule, default sharpe_ratio
	NJobs      int           // trial-level parallelism, <0 = all cores, 0 = 1
	Validation string        // none or walk_forward, default none
	TrainRatio float64       // walk-forward train fraction per window, default 0.7
	NSplits    int           // walk-forward window count, default 3
	Timeout    time.Duration // 0 = no deadline
	StreamPath string        // JSONL destination for completed trials, "" = off
	Seed       int64         // random sampling seed, 0 = time-based
}

// DefaultOptions returns the default run configuration.
func DefaultOptions() Options {
	return Options{
		Method:     MethodGrid,
		Metric:     MetricName("sharpe_ratio"),
		NJobs:      0,
		Validation: ValidationNone,
		TrainRatio: 0.7,
		NSplits:    3,
	}
}

// Optimizer evaluates every candidate parameter assignment from a search
// space by running a full backtest per assignment, then ranks the trials
// by the configured metric.
type Optimizer struct {
	space    *SearchSpace
	options  Options
	btConfig backtest.Config
}

// NewOptimizer creates an optimizer over the given space. The backtest
// configuration is shared by every trial; the strategy itself comes from
// each trial's parameter assignment.
func NewOptimizer(space *SearchSpace, btConfig backtest.Config, options Options) *Optimizer {
	if options.Method == "" {
		options.Method = MethodGrid
	}
	if options.Metric.IsZero() {
		options.Metric = MetricName("sharpe_ratio")
	}
	if options.Validation == "" {
		options.Validation = ValidationNone
	}
	if options.TrainRatio <= 0 || options.TrainRatio >= 1 {
		options.TrainRatio = 0.7
	}
	if options.NSplits <= 0 {
		options.NSplits = 3
	}
	return &Optimizer{space: space, options: options, btConfig: btConfig}
}

// Run evaluates the search space against the given symbols and date range.
//
// Trials execute on a bounded worker pool; completed trials are appended
// to the stream file (when configured) by a single collector goroutine, so
// no file-level locking is needed. The deadline is cooperative: it is
// checked before each trial is dispatched, and trials already in flight
// run to completion and are recorded. On timeout Run returns the partial
// results together with a *TimeoutError carrying the completed and total
// trial counts.
func (o *Optimizer) Run(ctx context.Context, provider market.Provider, symbols []string, from, to time.Time) (*Results, error) {
	start := time.Now()
	runID := uuid.NewString()

	scorer, err := o.options.Metric.resolve()
	if err != nil {
		return nil, err
	}

	assignments, err := o.enumerate()
	if err != nil {
		return nil, err
	}

	workers := o.options.NJobs
	if workers < 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers == 0 {
		workers = 1
	}
	if workers > len(assignments) {
		workers = len(assignments)
	}

	var stream *streamWriter
	if o.options.StreamPath != "" {
		stream, err = newStreamWriter(o.options.StreamPath)
		if err != nil {
			return nil, err
		}
		defer stream.Close()
	}

	log.Info().
		Str("run_id", runID).
		Str("method", o.options.Method).
		Str("metric", o.options.Metric.String()).
		Int("trials", len(assignments)).
		Int("workers", workers).
		Msg("Optimization run started")

	jobs := make(chan Assignment)
	trialCh := make(chan Trial, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range jobs {
				trial, err := o.evaluate(ctx, provider, symbols, from, to, a)
				if err != nil {
					log.Warn().Err(err).Interface("params", a).Msg("Trial evaluation failed")
					continue
				}
				trialCh <- trial
			}
		}()
	}

	// Dispatcher checks the deadline before every dispatch, never
	// mid-trial.
	timedOut := make(chan bool, 1)
	go func() {
		defer close(jobs)
		var deadline <-chan time.Time
		if o.options.Timeout > 0 {
			timer := time.NewTimer(o.options.Timeout)
			defer timer.Stop()
			deadline = timer.C
		}
		for _, a := range assignments {
			// Priority check so an already-expired deadline or canceled
			// context never races a ready worker.
			select {
			case <-deadline:
				timedOut <- true
				return
			case <-ctx.Done():
				timedOut <- true
				return
			default:
			}
			select {
			case <-deadline:
				timedOut <- true
				return
			case <-ctx.Done():
				timedOut <- true
				return
			case jobs <- a:
			}
		}
		timedOut <- false
	}()

	go func() {
		wg.Wait()
		close(trialCh)
	}()

	// Single collector: owns the stream file and the trial slice.
	var trials []Trial
	for trial := range trialCh {
		trials = append(trials, trial)
		telemetry.TrialsCompleted.Inc()
		if stream != nil {
			if err := stream.Append(trial); err != nil {
				log.Error().Err(err).Msg("Failed to append trial to stream")
			}
		}
	}

	results := newResults(runID, trials, o.options.Metric, scorer, o.space)
	telemetry.RunDuration.Observe(time.Since(start).Seconds())

	if <-timedOut {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("optimization canceled: %w", err)
		}
		log.Warn().
			Str("run_id", runID).
			Int("completed", len(trials)).
			Int("total", len(assignments)).
			Msg("Optimization run timed out")
		return results, &TimeoutError{
			Timeout:   o.options.Timeout,
			Completed: len(trials),
			Total:     len(assignments),
		}
	}

	log.Info().
		Str("run_id", runID).
		Int("completed", len(trials)).
		Dur("elapsed", time.Since(start)).
		Msg("Optimization run completed")
	return results, nil
}

func (o *Optimizer) enumerate() ([]Assignment, error) {
	switch o.options.Method {
	case MethodGrid:
		return o.space.Grid()
	case MethodRandom:
		if o.options.NTrials <= 0 {
			return nil, fmt.Errorf("random search requires a positive trial count")
		}
		seed := o.options.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return o.space.Sample(o.options.NTrials, rand.New(rand.NewSource(seed)))
	default:
		return nil, fmt.Errorf("unknown search method %q (available: %s, %s)", o.options.Method, MethodGrid, MethodRandom)
	}
}

// evaluate runs one full backtest (or walk-forward sequence) for a single
// assignment.
func (o *Optimizer) evaluate(ctx context.Context, provider market.Provider, symbols []string, from, to time.Time, a Assignment) (Trial, error) {
	if o.options.Validation == ValidationWalkForward {
		return o.evaluateWalkForward(ctx, provider, symbols, from, to, a)
	}

	bt := backtest.New(o.btConfig)
	if err := configureBacktester(bt, a); err != nil {
		return Trial{}, err
	}
	res, err := bt.Run(ctx, provider, symbols, from, to)
	if err != nil {
		return Trial{}, err
	}
	return Trial{Params: a, Metrics: res.Metrics()}, nil
}

// evaluateWalkForward splits the period into non-overlapping windows, each
// divided by the train ratio into a train range and a test range. The
// trial's in-sample metrics are the train-range metrics averaged across
// windows; the out-of-sample metrics average the test ranges the same way.
func (o *Optimizer) evaluateWalkForward(ctx context.Context, provider market.Provider, symbols []string, from, to time.Time, a Assignment) (Trial, error) {
	total := to.Sub(from)
	if total <= 0 {
		return Trial{}, fmt.Errorf("invalid walk-forward period: from %s is not before to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	window := total / time.Duration(o.options.NSplits)

	var trainMetrics, testMetrics []map[string]float64
	for i := 0; i < o.options.NSplits; i++ {
		wFrom := from.Add(window * time.Duration(i))
		wTo := wFrom.Add(window)
		if i == o.options.NSplits-1 {
			wTo = to
		}
		trainEnd := wFrom.Add(time.Duration(float64(wTo.Sub(wFrom)) * o.options.TrainRatio))

		train, err := o.runWindow(ctx, provider, symbols, wFrom, trainEnd, a)
		if err != nil {
			return Trial{}, fmt.Errorf("walk-forward window %d train: %w", i, err)
		}
		test, err := o.runWindow(ctx, provider, symbols, trainEnd, wTo, a)
		if err != nil {
			return Trial{}, fmt.Errorf("walk-forward window %d test: %w", i, err)
		}
		trainMetrics = append(trainMetrics, train)
		testMetrics = append(testMetrics, test)
	}

	return Trial{
		Params:     a,
		Metrics:    averageMetrics(trainMetrics),
		OOSMetrics: averageMetrics(testMetrics),
	}, nil
}

func (o *Optimizer) runWindow(ctx context.Context, provider market.Provider, symbols []string, from, to time.Time, a Assignment) (map[string]float64, error) {
	bt := backtest.New(o.btConfig)
	if err := configureBacktester(bt, a); err != nil {
		return nil, err
	}
	res, err := bt.Run(ctx, provider, symbols, from, to)
	if err != nil {
		return nil, err
	}
	return res.Metrics(), nil
}

// averageMetrics means each metric across windows, skipping NaN values. A
// metric that is NaN in every window stays NaN.
func averageMetrics(windows []map[string]float64) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	seen := make(map[string]bool)
	for _, m := range windows {
		for name, v := range m {
			seen[name] = true
			if math.IsNaN(v) {
				continue
			}
			sums[name] += v
			counts[name]++
		}
	}
	out := make(map[string]float64, len(seen))
	for name := range seen {
		if counts[name] == 0 {
			out[name] = math.NaN()
			continue
		}
		out[name] = sums[name] / float64(counts[name])
	}
	return out
}

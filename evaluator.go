package noisefit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

//////
// Const, vars, types.
//////

// Oracle produces the outcome distribution of one circuit under a
// candidate noise model. Implementations may call out to a simulator
// process, a remote service, or the in-package reference Simulator; they
// must be safe for concurrent Run calls and should honor ctx.
type Oracle interface {
	Run(ctx context.Context, circuit Circuit, model *Model) (Distribution, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error)

// Run implements Oracle by calling the wrapped function.
func (f OracleFunc) Run(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
	return f(ctx, circuit, model)
}

// EvaluatorConfig controls how one objective evaluation fans out over the
// calibration runs.
type EvaluatorConfig struct {
	// Workers bounds how many circuits are simulated concurrently within
	// one evaluation. Zero or negative means the default of 5.
	Workers int

	// Timeout bounds one oracle call. Zero means no per-circuit timeout.
	Timeout time.Duration
}

// DefaultEvaluatorConfig returns a default evaluator configuration: five
// concurrent circuits, no per-circuit timeout.
func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Workers: 5,
		Timeout: 0,
	}
}

// Evaluator scores candidate noise models against measured calibration
// data. One Evaluate call simulates every calibration circuit under the
// candidate, measures the divergence of each simulated distribution from
// its reference, and sums the divergences into a single objective value.
type Evaluator struct {
	oracle  Oracle
	metric  DivergenceMetric
	workers int
	timeout time.Duration
}

//////
// Methods.
//////

// Evaluate scores one candidate model against the calibration runs.
//
// Circuits are simulated concurrently, at most Workers at a time. The sum
// over runs does not depend on completion order. The first failure cancels
// the remaining simulations and is returned; oracle failures arrive as a
// *SimulationError naming the failed circuit.
//
// Parameters:
// - ctx: Cancels the evaluation and every in-flight simulation
// - model: The candidate noise model to score
// - runs: The calibration circuits with their measured distributions
//
// Returns:
// - float64: The summed divergence; lower is a better fit
// - error: A *ValidationError for bad arguments, a *SimulationError for an
//   oracle failure, or the context error on cancellation
func (e *Evaluator) Evaluate(ctx context.Context, model *Model, runs []CalibrationRun) (float64, error) {
	if model == nil {
		return 0, &ValidationError{Field: "model", Reason: "a candidate model is required"}
	}

	if len(runs) == 0 {
		return 0, &ValidationError{Field: "runs", Reason: "at least one calibration run is required"}
	}

	evalCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	scores := make([]float64, len(runs))
	sem := make(chan struct{}, e.workers)

	for i, run := range runs {
		wg.Add(1)

		go func(i int, run CalibrationRun) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-evalCtx.Done():
				return
			}

			score, err := e.evaluateRun(evalCtx, model, i, run)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err

					// Stop the siblings; their work can no longer
					// contribute to the sum.
					cancel()
				}
				mu.Unlock()

				return
			}

			scores[i] = score
		}(i, run)
	}

	wg.Wait()

	if firstErr != nil {
		return 0, firstErr
	}

	if err := ctx.Err(); err != nil {
		return 0, errors.Wrap(err, "evaluation canceled")
	}

	total := 0.0

	for _, score := range scores {
		total += score
	}

	return total, nil
}

// evaluateRun simulates one circuit and measures its divergence from the
// reference distribution.
func (e *Evaluator) evaluateRun(ctx context.Context, model *Model, index int, run CalibrationRun) (float64, error) {
	runCtx := ctx

	if e.timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	observed, err := e.oracle.Run(runCtx, run.Circuit, model)
	if err != nil {
		return 0, &SimulationError{
			Circuit:     index,
			CircuitName: run.Circuit.Name,
			Err:         err,
		}
	}

	score, err := e.metric(run.Reference, observed)
	if err != nil {
		return 0, errors.Wrapf(err, "divergence for circuit %d (%s)", index, run.Circuit.Name)
	}

	return score, nil
}

//////
// Factory.
//////

// NewEvaluator builds an objective evaluator from an oracle, a divergence
// metric, and a configuration.
//
// Parameters:
// - oracle: Produces outcome distributions for candidate models
// - metric: Measures the divergence between two distributions
// - cfg: Concurrency and timeout settings; zero values use defaults
//
// Returns:
// - *Evaluator: The configured evaluator
// - error: A *ValidationError when the oracle or metric is missing
func NewEvaluator(oracle Oracle, metric DivergenceMetric, cfg EvaluatorConfig) (*Evaluator, error) {
	if oracle == nil {
		return nil, &ValidationError{Field: "oracle", Reason: "an oracle is required"}
	}

	if metric == nil {
		return nil, &ValidationError{Field: "metric", Reason: "a divergence metric is required"}
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultEvaluatorConfig().Workers
	}

	return &Evaluator{
		oracle:  oracle,
		metric:  metric,
		workers: workers,
		timeout: cfg.Timeout,
	}, nil
}

package noisefit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

// logger is the package-wide logger. It stays quiet unless SetLogLevel
// opens it up; individual runs can also supply their own via
// OptimizeConfig.Log or SimConfig.Log.
var logger = log.New()

func init() {
	// Set up logger.
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger.SetLevel(log.WarnLevel)
}

//////
// Exported functionalities.
//////

// SetLogLevel adjusts the verbosity of the package logger. DebugLevel
// shows per-job simulation output and clipping decisions, InfoLevel shows
// run lifecycle events, and the default WarnLevel only reports problems.
func SetLogLevel(level log.Level) {
	logger.SetLevel(level)
}

// OptimizeNoiseModel fits a noise model to measured calibration data. It
// searches the space of model parameters for the model whose simulated
// outcome distributions are closest, under the given divergence metric,
// to the distributions measured on the device.
//
// Parameters:
// - ctx: Cancels the run and every in-flight simulation
// - guess: The starting model; it fixes the qubit count, the coupling
//   topology, and the values of every field the mask leaves out
// - runs: The calibration circuits with their measured distributions
// - oracle: Produces the outcome distribution of a circuit under a
//   candidate model; NewSimulator provides a reference implementation
// - metric: Measures the divergence between two distributions; lower
//   must mean closer
// - config: Search budget, tolerance, field mask, concurrency, and
//   failure policy; zero values use the package defaults
//
// Returns:
// - *Model: The best-fitting model found, on failure the best seen
//   before the failure
// - Diagnostics: Iterations, evaluations, final score, and the reason
//   the run stopped
// - error: A *ValidationError for bad arguments, a *SimulationError when
//   an oracle call fails and failures are not penalized, or the context
//   error on cancellation
//
// Usage example:
//
//	guess, _ := noisefit.NewModel(
//	    []float64{1000, 1000},
//	    []float64{10000, 10000},
//	)
//
//	circuits, _ := noisefit.T1Circuits([]int{10, 50, 100, 200, 400}, 100, 2)
//
//	runs := make([]noisefit.CalibrationRun, len(circuits))
//	for i, c := range circuits {
//	    runs[i] = noisefit.CalibrationRun{
//	        Circuit:   c,
//	        Reference: measured[c.Name], // counts from the device
//	    }
//	}
//
//	config := noisefit.DefaultOptimizeConfig()
//	config.Mask = noisefit.MaskT1 | noisefit.MaskT2
//
//	fitted, diag, err := noisefit.OptimizeNoiseModel(
//	    ctx,
//	    guess,
//	    runs,
//	    noisefit.NewSimulator(noisefit.DefaultSimConfig()),
//	    noisefit.AngleDivergence,
//	    config,
//	)
//
// How it works:
// 1. Encodes the masked fields of the guess into a parameter vector
// 2. Runs a downhill simplex search over that vector; every candidate is
//    decoded back into a model and scored by simulating all calibration
//    circuits concurrently and summing their divergences
// 3. Stops when the simplex objective spread falls below Tolerance, when
//    the simplex collapses geometrically, or when MaxIterations runs out
// 4. Decodes and returns the best candidate ever evaluated
//
// Important notes:
// - Thread-safe: Concurrent runs with separate configs are fine
// - The best-seen model is tracked outside the simplex, so a failure or
//   cancellation late in the run cannot corrupt the returned model
// - A run that stops on the iteration budget returns a model and a
//   Diagnostics.Warning describing the missed tolerance
func OptimizeNoiseModel(ctx context.Context, guess *Model, runs []CalibrationRun, oracle Oracle, metric DivergenceMetric, config OptimizeConfig) (*Model, Diagnostics, error) {
	if guess == nil {
		return nil, Diagnostics{}, &ValidationError{Field: "guess", Reason: "a starting model is required"}
	}

	if len(runs) == 0 {
		return nil, Diagnostics{}, &ValidationError{Field: "runs", Reason: "at least one calibration run is required"}
	}

	cfg := config.withDefaults()

	evaluator, err := NewEvaluator(oracle, metric, EvaluatorConfig{
		Workers: cfg.Workers,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, Diagnostics{}, err
	}

	start, err := guess.Encode(cfg.Mask)
	if err != nil {
		return nil, Diagnostics{}, err
	}

	if len(start) == 0 {
		return nil, Diagnostics{}, &ValidationError{
			Field:  "mask",
			Reason: "mask selects no parameters to fit",
		}
	}

	runID := uuid.NewString()
	logEntry := cfg.Log.WithField("run_id", runID)

	logEntry.WithFields(log.Fields{
		"qubits":     guess.NumQubits(),
		"circuits":   len(runs),
		"dimensions": len(start),
		"mask":       cfg.Mask.String(),
	}).Info("starting noise model calibration")

	// The objective decodes a candidate vector into a model and scores it
	// against every calibration run.
	objective := func(ctx context.Context, point ParameterVector) (float64, error) {
		candidate, err := DecodeModel(point, cfg.Mask, guess)
		if err != nil {
			return 0, errors.Wrap(err, "decoding candidate")
		}

		return evaluator.Evaluate(ctx, candidate, runs)
	}

	// Proposed points are projected back into the physical region before
	// they are evaluated, so the search can never ask the oracle about a
	// negative time constant or an impossible readout probability.
	clip := func(point ParameterVector) ParameterVector {
		clipped, adjusted := clipToPhysical(point, cfg.Mask, guess)

		if adjusted > 0 {
			logEntry.WithField("coordinates", adjusted).Debug("clipped proposal into the physical region")
		}

		return clipped
	}

	started := time.Now()
	search := newSimplexSearch(objective, clip, start, cfg, logEntry)

	outcome, runErr := search.run(ctx)

	bestPoint, bestScore, evaluations := search.best()

	diag := Diagnostics{
		RunID:       runID,
		Iterations:  outcome.iterations,
		Evaluations: evaluations,
		FinalScore:  bestScore,
		StopReason:  outcome.reason,
		Warning:     outcome.warning,
		Elapsed:     time.Since(started),
	}

	// Even a failed run returns the best model seen before the failure;
	// the caller decides whether a partial fit is still useful.
	result := guess

	if bestPoint != nil {
		decoded, decodeErr := DecodeModel(bestPoint, cfg.Mask, guess)

		if decodeErr != nil {
			if runErr == nil {
				runErr = errors.Wrap(decodeErr, "decoding best parameters")
			}
		} else {
			result = decoded
		}
	}

	fields := log.Fields{
		"iterations":  diag.Iterations,
		"evaluations": diag.Evaluations,
		"score":       diag.FinalScore,
		"stop_reason": diag.StopReason,
		"elapsed":     diag.Elapsed,
	}

	switch {
	case runErr != nil:
		logEntry.WithFields(fields).WithError(runErr).Warn("calibration failed")
	case diag.Warning != nil:
		logEntry.WithFields(fields).Warn(diag.Warning.String())
	default:
		logEntry.WithFields(fields).Info("calibration finished")
	}

	return result, diag, runErr
}

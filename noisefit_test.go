package noisefit

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestOptimizeValidatesArguments(t *testing.T) {
	guess, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	oracle := fixedOracle(nil)
	runs := []CalibrationRun{
		{Circuit: *NewCircuit("a", 1), Reference: Distribution{"0": 1}},
	}

	var vErr *ValidationError

	// A starting model is required.
	_, _, err = OptimizeNoiseModel(context.Background(), nil, runs, oracle, AngleDivergence, DefaultOptimizeConfig())
	assert.ErrorAs(t, err, &vErr)

	// So is at least one calibration run.
	_, _, err = OptimizeNoiseModel(context.Background(), guess, nil, oracle, AngleDivergence, DefaultOptimizeConfig())
	assert.ErrorAs(t, err, &vErr)

	// And an oracle and a metric.
	_, _, err = OptimizeNoiseModel(context.Background(), guess, runs, nil, AngleDivergence, DefaultOptimizeConfig())
	assert.ErrorAs(t, err, &vErr)

	_, _, err = OptimizeNoiseModel(context.Background(), guess, runs, oracle, nil, DefaultOptimizeConfig())
	assert.ErrorAs(t, err, &vErr)

	// A mask that selects no parameters leaves nothing to fit. The guess
	// has no couplings, so the coupling mask is empty.
	config := DefaultOptimizeConfig()
	config.Mask = MaskZZ

	_, _, err = OptimizeNoiseModel(context.Background(), guess, runs, oracle, AngleDivergence, config)
	assert.ErrorAs(t, err, &vErr)
	assert.Equal(t, "mask", vErr.Field)
}

func TestOptimizeConvergedGuessStopsImmediately(t *testing.T) {
	guess, err := NewModel([]float64{1000, 1000}, []float64{10000, 10000})
	assert.NoError(t, err)

	circuits, _ := T1Circuits([]int{10, 50, 100}, 100, 2)

	references := map[string]Distribution{
		circuits[0].Name: {"00": 0.5, "01": 0.3, "10": 0.2},
		circuits[1].Name: {"00": 0.7, "11": 0.3},
		circuits[2].Name: {"00": 1},
	}

	runs := make([]CalibrationRun, len(circuits))
	for i, c := range circuits {
		runs[i] = CalibrationRun{Circuit: c, Reference: references[c.Name]}
	}

	// The oracle reproduces the references exactly for every candidate,
	// so the objective is identically zero.
	oracle := fixedOracle(references)

	config := DefaultOptimizeConfig()
	config.Mask = MaskT1 | MaskT2

	fitted, diag, err := OptimizeNoiseModel(context.Background(), guess, runs, oracle, AngleDivergence, config)
	assert.NoError(t, err)
	assert.NotNil(t, fitted)

	// A guess that already matches the data converges at once.
	assert.LessOrEqual(t, diag.Iterations, 1)
	assert.Less(t, diag.FinalScore, 1e-9)
	assert.Equal(t, StopTolerance, diag.StopReason)
	assert.Nil(t, diag.Warning)

	// Only the initial simplex was ever evaluated: five vertices for the
	// four fitted dimensions.
	assert.Equal(t, 5, diag.Evaluations)

	assert.NotEmpty(t, diag.RunID)
	assert.Greater(t, diag.Elapsed, time.Duration(0))
}

func TestOptimizeRecoversDecayTimes(t *testing.T) {
	truth, err := NewModel(
		[]float64{1234, 1324},
		[]float64{100123, 100432},
	)
	assert.NoError(t, err)

	guess, err := NewModel(
		[]float64{1000, 1000},
		[]float64{10000, 10000},
	)
	assert.NoError(t, err)

	// Calibration set: amplitude decay circuits for the relaxation times
	// and Ramsey circuits for the dephasing times.
	circuits, _ := T1Circuits([]int{10, 50, 100, 200, 400}, 100, 2)
	ramsey, _ := T2RamseyCircuits([]int{5, 25, 50, 100, 200}, 100, 2)
	circuits = append(circuits, ramsey...)

	sim := NewSimulator(SimConfig{Seed: 1})

	runs := make([]CalibrationRun, len(circuits))
	for i, c := range circuits {
		reference, err := sim.Run(context.Background(), c, truth)
		assert.NoError(t, err)

		runs[i] = CalibrationRun{Circuit: c, Reference: reference}
	}

	config := DefaultOptimizeConfig()
	config.Mask = MaskT1 | MaskT2
	config.MaxIterations = 800
	config.Tolerance = 1e-10

	fitted, diag, err := OptimizeNoiseModel(context.Background(), guess, runs, sim, AngleDivergence, config)
	assert.NoError(t, err)
	assert.NotNil(t, fitted)

	// Every decay time is recovered to within one percent despite the
	// guess being an order of magnitude off on dephasing.
	assert.InEpsilon(t, 1234, fitted.T1(0), 0.01)
	assert.InEpsilon(t, 1324, fitted.T1(1), 0.01)
	assert.InEpsilon(t, 100123, fitted.T2(0), 0.01)
	assert.InEpsilon(t, 100432, fitted.T2(1), 0.01)

	// Convergence lands inside 400 iterations even though the run budget
	// allows more, and no convergence warning is raised.
	assert.LessOrEqual(t, diag.Iterations, 400)
	assert.Nil(t, diag.Warning)

	assert.Greater(t, diag.Evaluations, 0)
	assert.Less(t, diag.FinalScore, 1e-6)
}

func TestOptimizeSurfacesSimulationFailure(t *testing.T) {
	guess, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	runs := make([]CalibrationRun, 10)
	for i := range runs {
		runs[i] = CalibrationRun{
			Circuit:   *NewCircuit(fmt.Sprintf("cal_%d", i), 1).X(0),
			Reference: Distribution{"1": 1},
		}
	}

	// The backend rejects one specific circuit for every candidate.
	failing := OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		if circuit.Name == "cal_3" {
			return nil, errors.New("backend offline")
		}

		return Distribution{"1": 1}, nil
	})

	config := DefaultOptimizeConfig()
	config.Mask = MaskT1

	fitted, diag, err := OptimizeNoiseModel(context.Background(), guess, runs, failing, AngleDivergence, config)

	// The failure names the circuit and the candidate under evaluation.
	var simErr *SimulationError

	assert.ErrorAs(t, err, &simErr)
	assert.Equal(t, 3, simErr.Circuit)
	assert.Equal(t, "cal_3", simErr.CircuitName)
	assert.NotNil(t, simErr.Candidate)

	// The run aborted, but the caller still gets a usable model back.
	assert.Equal(t, StopAborted, diag.StopReason)
	assert.Same(t, guess, fitted)
}

func TestOptimizePenalizedFailuresDoNotAbort(t *testing.T) {
	guess, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	runs := []CalibrationRun{
		{Circuit: *NewCircuit("cal", 1), Reference: Distribution{"0": 1}},
	}

	// Every simulation fails, so every candidate earns the penalty score.
	broken := OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		return nil, errors.New("backend offline")
	})

	config := DefaultOptimizeConfig()
	config.Mask = MaskT1
	config.PenalizeFailures = true

	fitted, diag, err := OptimizeNoiseModel(context.Background(), guess, runs, broken, AngleDivergence, config)

	// Penalized failures never abort the run; with no successful
	// evaluation at all, the guess comes back unchanged and the score
	// reflects that nothing was fitted.
	assert.NoError(t, err)
	assert.Same(t, guess, fitted)
	assert.True(t, math.IsInf(diag.FinalScore, 1))
	assert.Nil(t, diag.Warning)
}

func TestOptimizeEmitsProgress(t *testing.T) {
	truth, err := NewModel([]float64{1500}, []float64{15000})
	assert.NoError(t, err)

	guess, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	circuits, _ := T1Circuits([]int{10}, 100, 1)

	sim := NewSimulator(SimConfig{Seed: 1})

	reference, err := sim.Run(context.Background(), circuits[0], truth)
	assert.NoError(t, err)

	runs := []CalibrationRun{{Circuit: circuits[0], Reference: reference}}

	progressChan := make(chan ProgressUpdate, 100)

	config := DefaultOptimizeConfig()
	config.Mask = MaskT1
	config.MaxIterations = 5
	config.ProgressChan = progressChan

	_, diag, err := OptimizeNoiseModel(context.Background(), guess, runs, sim, TotalVariation, config)
	assert.NoError(t, err)

	// The tiny budget ran out before the fit converged, and progress was
	// reported along the way.
	assert.Equal(t, StopMaxIterations, diag.StopReason)
	assert.NotNil(t, diag.Warning)
	assert.Equal(t, 5, len(progressChan))
}

package noisefit

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fixedOracle returns canned distributions by circuit name, ignoring the
// candidate model.
func fixedOracle(byName map[string]Distribution) Oracle {
	return OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		return byName[circuit.Name], nil
	})
}

func evaluatorTestRuns() []CalibrationRun {
	return []CalibrationRun{
		{Circuit: *NewCircuit("a", 1), Reference: Distribution{"0": 1}},
		{Circuit: *NewCircuit("b", 1), Reference: Distribution{"0": 0.5, "1": 0.5}},
		{Circuit: *NewCircuit("c", 1), Reference: Distribution{"1": 1}},
	}
}

func TestEvaluateSumsCircuitDivergences(t *testing.T) {
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	// The oracle answers every circuit with the uniform distribution.
	oracle := fixedOracle(map[string]Distribution{
		"a": {"0": 0.5, "1": 0.5},
		"b": {"0": 0.5, "1": 0.5},
		"c": {"0": 0.5, "1": 0.5},
	})

	evaluator, err := NewEvaluator(oracle, TotalVariation, DefaultEvaluatorConfig())
	assert.NoError(t, err)

	runs := evaluatorTestRuns()

	score, err := evaluator.Evaluate(context.Background(), model, runs)
	assert.NoError(t, err)

	// Total variation is 0.5 against each point mass and 0 against the
	// matching uniform reference.
	assert.InDelta(t, 1.0, score, 1e-12)

	// The sum does not depend on the order the circuits finish in.
	reversed := []CalibrationRun{runs[2], runs[1], runs[0]}

	reversedScore, err := evaluator.Evaluate(context.Background(), model, reversed)
	assert.NoError(t, err)
	assert.InDelta(t, score, reversedScore, 1e-12)
}

func TestEvaluateReportsFailingCircuit(t *testing.T) {
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	// Ten circuits; the oracle fails on the fourth one.
	runs := make([]CalibrationRun, 10)
	for i := range runs {
		runs[i] = CalibrationRun{
			Circuit:   *NewCircuit(fmt.Sprintf("circuit_%d", i), 1),
			Reference: Distribution{"0": 1},
		}
	}

	oracle := OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		if circuit.Name == "circuit_3" {
			return nil, assert.AnError
		}

		return Distribution{"0": 1}, nil
	})

	evaluator, err := NewEvaluator(oracle, TotalVariation, EvaluatorConfig{Workers: 1})
	assert.NoError(t, err)

	_, err = evaluator.Evaluate(context.Background(), model, runs)

	// The failure names the circuit by index and name and keeps the
	// underlying cause reachable.
	var simErr *SimulationError

	assert.ErrorAs(t, err, &simErr)
	assert.Equal(t, 3, simErr.Circuit)
	assert.Equal(t, "circuit_3", simErr.CircuitName)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestEvaluateTimeout(t *testing.T) {
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	// An oracle that only answers after 200 ms against a 20 ms budget.
	slow := OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
			return Distribution{"0": 1}, nil
		}
	})

	evaluator, err := NewEvaluator(slow, TotalVariation, EvaluatorConfig{
		Workers: 2,
		Timeout: 20 * time.Millisecond,
	})
	assert.NoError(t, err)

	runs := []CalibrationRun{
		{Circuit: *NewCircuit("slow", 1), Reference: Distribution{"0": 1}},
	}

	_, err = evaluator.Evaluate(context.Background(), model, runs)

	// A timed-out circuit surfaces as a simulation failure caused by the
	// deadline.
	var simErr *SimulationError

	assert.ErrorAs(t, err, &simErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvaluateBoundsConcurrency(t *testing.T) {
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	var active, peak int32

	oracle := OracleFunc(func(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
		current := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)

		// Track the highest concurrency seen.
		for {
			old := atomic.LoadInt32(&peak)
			if current <= old || atomic.CompareAndSwapInt32(&peak, old, current) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		return Distribution{"0": 1}, nil
	})

	evaluator, err := NewEvaluator(oracle, TotalVariation, EvaluatorConfig{Workers: 2})
	assert.NoError(t, err)

	runs := make([]CalibrationRun, 8)
	for i := range runs {
		runs[i] = CalibrationRun{
			Circuit:   *NewCircuit(fmt.Sprintf("circuit_%d", i), 1),
			Reference: Distribution{"0": 1},
		}
	}

	_, err = evaluator.Evaluate(context.Background(), model, runs)
	assert.NoError(t, err)

	// No more than the configured number of circuits ran at once.
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Greater(t, atomic.LoadInt32(&peak), int32(0))
}

func TestEvaluateValidatesArguments(t *testing.T) {
	oracle := fixedOracle(nil)

	evaluator, err := NewEvaluator(oracle, TotalVariation, DefaultEvaluatorConfig())
	assert.NoError(t, err)

	var vErr *ValidationError

	// A candidate model is required.
	_, err = evaluator.Evaluate(context.Background(), nil, evaluatorTestRuns())
	assert.ErrorAs(t, err, &vErr)

	// So is at least one calibration run.
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	_, err = evaluator.Evaluate(context.Background(), model, nil)
	assert.ErrorAs(t, err, &vErr)
}

func TestNewEvaluatorValidation(t *testing.T) {
	var vErr *ValidationError

	_, err := NewEvaluator(nil, TotalVariation, DefaultEvaluatorConfig())
	assert.ErrorAs(t, err, &vErr)

	_, err = NewEvaluator(fixedOracle(nil), nil, DefaultEvaluatorConfig())
	assert.ErrorAs(t, err, &vErr)
}

func TestEvaluateHonorsParentContext(t *testing.T) {
	model, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)

	evaluator, err := NewEvaluator(fixedOracle(map[string]Distribution{
		"a": {"0": 1}, "b": {"0": 1}, "c": {"0": 1},
	}), TotalVariation, DefaultEvaluatorConfig())
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = evaluator.Evaluate(ctx, model, evaluatorTestRuns())
	assert.ErrorIs(t, err, context.Canceled)
}

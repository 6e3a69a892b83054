package noisefit

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// StopReason names the condition that ended a calibration.
type StopReason string

const (
	// StopTolerance means the objective values across the simplex came
	// within Tolerance of each other, so further iterations could not
	// improve the fit meaningfully.
	StopTolerance StopReason = "tolerance"

	// StopSimplexConverged means the simplex collapsed to a point in
	// parameter space before the objective tolerance was reached.
	StopSimplexConverged StopReason = "simplex_converged"

	// StopMaxIterations means the iteration budget ran out first. The
	// returned Diagnostics carry a ConvergenceWarning in this case.
	StopMaxIterations StopReason = "max_iterations"

	// StopAborted means an evaluation failed and the run policy was to
	// stop. The best model seen before the failure is still returned.
	StopAborted StopReason = "aborted"
)

// CalibrationRun pairs one calibration circuit with the outcome
// distribution measured for it on the target device. A calibration fits a
// noise model by reproducing these measured distributions in simulation.
type CalibrationRun struct {
	// Circuit is the gate sequence that was executed on the device.
	Circuit Circuit

	// Reference is the measured outcome distribution for the circuit.
	// Raw counts work as-is; distributions are normalized before use.
	Reference Distribution
}

// ProgressUpdate represents the current state of the calibration process.
type ProgressUpdate struct {
	// Iteration is the current search iteration number
	Iteration int

	// TotalIterations is the iteration budget for this run
	TotalIterations int

	// BestScore is the lowest objective value found so far
	BestScore float64

	// SimplexSpread is the objective spread across the current simplex;
	// the run stops once it falls below the configured tolerance
	SimplexSpread float64

	// Evaluations counts the objective evaluations performed so far
	Evaluations int
}

// OptimizeConfig holds all configuration parameters for a calibration run.
// It controls which model fields are searched, the computational budget,
// the stopping tolerance, and how evaluation failures are handled.
//
// Usage example:
//
//	config := DefaultOptimizeConfig()
//
//	// Fit only the relaxation and dephasing times.
//	config.Mask = MaskT1 | MaskT2
//
//	// Allow a longer search with a tighter tolerance.
//	config.MaxIterations = 500
//	config.Tolerance = 1e-8
//
//	// Watch progress from another goroutine.
//	progress := make(chan ProgressUpdate, 10)
//	config.ProgressChan = progress
//
// Default values recommendations:
// - MaxIterations: 200 (increase for high-dimensional fits)
// - Tolerance: 1e-6 (loosen to 1e-4 for quick exploratory fits)
// - Workers: 5 (raise toward the calibration circuit count)
type OptimizeConfig struct {
	// Mask selects which model fields the search adjusts. Fields outside
	// the mask keep the values of the initial guess. Zero means fit every
	// field the guess defines.
	Mask FieldMask

	// MaxIterations bounds the number of search iterations. When the
	// budget runs out before convergence the result carries a
	// ConvergenceWarning. Zero means 200.
	MaxIterations int

	// Tolerance is the objective spread below which the search is
	// considered converged. Zero means 1e-6.
	Tolerance float64

	// Workers bounds how many calibration circuits are simulated
	// concurrently within one objective evaluation. Zero means 5.
	Workers int

	// Timeout bounds one oracle call. A circuit that exceeds it fails
	// the evaluation with a *SimulationError. Zero means no timeout.
	Timeout time.Duration

	// PenalizeFailures keeps the search alive when an evaluation fails:
	// the failed candidate receives a prohibitively large objective value
	// and the search moves away from it. When false (the default) the
	// first failure aborts the run.
	PenalizeFailures bool

	// ProgressChan is used to send progress updates during calibration.
	// If nil, no updates will be sent. Sends never block; updates are
	// dropped when the receiver lags.
	ProgressChan chan<- ProgressUpdate

	// Log receives run-level output. Nil means the package logger.
	Log *log.Logger
}

// DefaultOptimizeConfig returns a default calibration configuration: fit
// every field, 200 iterations, 1e-6 tolerance, five concurrent circuits,
// no per-circuit timeout, abort on the first evaluation failure.
func DefaultOptimizeConfig() OptimizeConfig {
	return OptimizeConfig{
		Mask:          MaskAll,
		MaxIterations: 200,
		Tolerance:     1e-6,
		Workers:       5,
	}
}

// withDefaults fills the zero values with the package defaults.
func (c OptimizeConfig) withDefaults() OptimizeConfig {
	def := DefaultOptimizeConfig()

	if c.Mask == 0 {
		c.Mask = def.Mask
	}

	if c.MaxIterations <= 0 {
		c.MaxIterations = def.MaxIterations
	}

	if c.Tolerance <= 0 {
		c.Tolerance = def.Tolerance
	}

	if c.Workers <= 0 {
		c.Workers = def.Workers
	}

	if c.Log == nil {
		c.Log = logger
	}

	return c
}

// Diagnostics summarizes a finished calibration run.
type Diagnostics struct {
	// RunID identifies the run in log output.
	RunID string

	// Iterations is the number of search iterations completed.
	Iterations int

	// Evaluations is the number of objective evaluations performed. Each
	// evaluation simulates every calibration circuit once.
	Evaluations int

	// FinalScore is the objective value of the returned model.
	FinalScore float64

	// StopReason names the condition that ended the run.
	StopReason StopReason

	// Warning is non-nil when the run stopped without converging.
	Warning *ConvergenceWarning

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

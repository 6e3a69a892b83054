package noisefit

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

// maxSimulatedQubits bounds the register size the reference oracle will
// accept. The density matrix holds 4^n complex entries, so the bound keeps
// a single run inside a few megabytes.
const maxSimulatedQubits = 10

// defaultGateLength is the gate duration in nanoseconds assumed when
// neither the circuit nor the configuration specifies one.
const defaultGateLength = 100.0

// SimConfig configures the reference simulator.
type SimConfig struct {
	// Shots is the number of measurement samples to draw per run. Zero or
	// negative means return the exact outcome probabilities instead of
	// sampled frequencies.
	Shots int

	// Seed initializes the sampling generator. Zero means seed from the
	// wall clock; any other value makes sampled runs reproducible.
	Seed int64

	// GateLength is the default gate duration in nanoseconds, used for
	// circuits that do not carry their own. Zero means 100 ns.
	GateLength float64

	// Log receives per-job debug output. Nil means the package logger.
	Log *log.Logger
}

// DefaultSimConfig returns a default simulator configuration: exact
// probabilities, wall-clock seed, 100 ns gates.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Shots:      0,
		Seed:       0,
		GateLength: defaultGateLength,
	}
}

// Simulator is the reference Oracle implementation: a small
// density-matrix simulator with parametric noise. It exists so calibration
// runs, examples, and the test suite have an oracle whose output is the
// exact analytic consequence of a noise model.
//
// Noise semantics:
// - Before each gate is applied, its target qubit decays for the gate's
//   duration: the excited population is multiplied by exp(-d/T1) with the
//   lost mass transferred to the ground state, and the qubit's coherences
//   are multiplied by exp(-d/T2). An infinite time constant disables the
//   corresponding factor.
// - A qubit with no scheduled gates accumulates no time and therefore no
//   decay; delays are expressed as identity gates.
// - Each coupled pair acquires a conditional phase on its both-excited
//   components while the schedules of its two qubits overlap, at a rate
//   of 2*pi*strength radians per nanosecond with strength in GHz. Over a
//   whole circuit the accrued time is the smaller of the two qubits'
//   accumulated schedules.
// - Measurement error is applied to the final probability vector one
//   qubit at a time using the model's row-stochastic confusion matrices.
//
// A Simulator is safe for concurrent Run calls; only the sampling
// generator is shared and it is mutex-guarded.
type Simulator struct {
	// mu protects rng.
	mu sync.Mutex

	// rng draws measurement samples when shots are requested.
	rng *rand.Rand

	shots      int
	gateLength float64
	logger     *log.Logger
}

//////
// Methods.
//////

// Run simulates one circuit under the given noise model and returns the
// outcome distribution over full-register bitstrings.
//
// Parameters:
// - ctx: Cancels the run between gate applications
// - circuit: The gate sequence to simulate
// - model: The noise model to apply; its qubit count must match the
//   circuit's register size
//
// Returns:
// - Distribution: Exact probabilities when the simulator is configured
//   with zero shots, sampled frequencies otherwise
// - error: A *ValidationError for circuit/model mismatches, the context
//   error on cancellation, or a solver failure
func (s *Simulator) Run(ctx context.Context, circuit Circuit, model *Model) (Distribution, error) {
	if err := s.checkInputs(circuit, model); err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	started := time.Now()

	s.logger.WithFields(log.Fields{
		"job_id":  jobID,
		"circuit": circuit.Name,
		"qubits":  circuit.Qubits,
		"gates":   len(circuit.Gates),
		"shots":   s.shots,
	}).Debug("running reference simulation")

	// Start in the all-zeros pure state.
	dim := 1 << uint(circuit.Qubits)
	rho := make([][]complex128, dim)

	for i := range rho {
		rho[i] = make([]complex128, dim)
	}

	rho[0][0] = 1

	// Track each qubit's accumulated schedule for the coupling phases.
	clocks := make([]float64, circuit.Qubits)

	for _, g := range circuit.Gates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		duration := circuit.gateDuration(g, s.gateLength)

		// The qubit decays over the gate's duration, then the gate fires.
		applyDecay(rho, g.Target, duration, model.T1(g.Target), model.T2(g.Target))

		// Coupled pairs accrue their conditional phase over the part of
		// this gate's window that overlaps the partner's schedule. Summed
		// over the whole circuit the accrued time is the smaller of the
		// two qubits' schedules, and applying it between the unitaries
		// keeps the phase visible to interference circuits.
		applyCouplingWindow(rho, model, g.Target, clocks, duration)

		switch g.Kind {
		case GateIdentity:
			// Idle time only.
		case GateX:
			applySingleQubitGate(rho, g.Target, xMatrix())
		case GateHadamard:
			applySingleQubitGate(rho, g.Target, hMatrix())
		case GateRZ:
			applySingleQubitGate(rho, g.Target, rzMatrix(g.Phase))
		default:
			return nil, &ValidationError{
				Field:  "circuit",
				Reason: fmt.Sprintf("unsupported gate kind %v", g.Kind),
			}
		}

		clocks[g.Target] += duration
	}

	probs, err := measurementProbabilities(rho)
	if err != nil {
		return nil, errors.Wrapf(err, "job %s (%s)", jobID, circuit.Name)
	}

	if model.HasMeasurementError() {
		for q := 0; q < circuit.Qubits; q++ {
			applyConfusion(probs, q, model.MeasurementError(q))
		}
	}

	result := s.collect(probs, circuit.Qubits)

	s.logger.WithFields(log.Fields{
		"job_id":  jobID,
		"circuit": circuit.Name,
		"elapsed": time.Since(started),
	}).Debug("reference simulation finished")

	return result, nil
}

func (s *Simulator) checkInputs(circuit Circuit, model *Model) error {
	if circuit.Qubits < 1 || circuit.Qubits > maxSimulatedQubits {
		return &ValidationError{
			Field:  "circuit",
			Reason: fmt.Sprintf("register size %d is outside the supported 1..%d range", circuit.Qubits, maxSimulatedQubits),
		}
	}

	if model == nil {
		return &ValidationError{Field: "noise_model", Reason: "a noise model is required"}
	}

	if model.NumQubits() != circuit.Qubits {
		return &ValidationError{
			Field:  "noise_model",
			Reason: fmt.Sprintf("model describes %d qubits, circuit %q has %d", model.NumQubits(), circuit.Name, circuit.Qubits),
		}
	}

	for i, g := range circuit.Gates {
		if g.Target < 0 || g.Target >= circuit.Qubits {
			return &ValidationError{
				Field:  "circuit",
				Reason: fmt.Sprintf("gate %d targets qubit %d, register has %d", i, g.Target, circuit.Qubits),
			}
		}
	}

	return nil
}

// collect converts a probability vector into the returned distribution,
// sampling shots when configured.
func (s *Simulator) collect(probs []float64, numQubits int) Distribution {
	if s.shots <= 0 {
		out := make(Distribution, len(probs))

		for i, p := range probs {
			if p > 0 {
				out[bitstringKey(uint64(i), numQubits)] = p
			}
		}

		return out
	}

	// The sampling generator is shared across concurrent runs.
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(probs))

	for shot := 0; shot < s.shots; shot++ {
		counts[bitstringKey(uint64(chooseIndex(s.rng, probs)), numQubits)]++
	}

	return CountsToDistribution(counts)
}

//////
// Factory.
//////

// NewSimulator builds a reference simulator from a configuration. Zero
// values fall back to DefaultSimConfig semantics.
func NewSimulator(cfg SimConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	gateLength := cfg.GateLength
	if gateLength <= 0 {
		gateLength = defaultGateLength
	}

	simLog := cfg.Log
	if simLog == nil {
		simLog = logger
	}

	return &Simulator{
		rng:        rand.New(rand.NewSource(seed)),
		shots:      cfg.Shots,
		gateLength: gateLength,
		logger:     simLog,
	}
}

//////
// Helper functions.
//////

func xMatrix() [2][2]complex128 {
	return [2][2]complex128{{0, 1}, {1, 0}}
}

func hMatrix() [2][2]complex128 {
	h := complex(1/math.Sqrt2, 0)

	return [2][2]complex128{{h, h}, {h, -h}}
}

func rzMatrix(phase float64) [2][2]complex128 {
	return [2][2]complex128{{1, 0}, {0, cmplx.Exp(complex(0, phase))}}
}

// applyDecay evolves one qubit's relaxation and dephasing for a duration
// in nanoseconds. Excited populations shrink by exp(-d/T1) with the lost
// mass transferred to the matching ground-state components, and the
// qubit's coherences shrink by exp(-d/T2). The map preserves the trace.
func applyDecay(rho [][]complex128, qubit int, duration, t1, t2 float64) {
	if duration <= 0 {
		return
	}

	survive := 1.0
	if !math.IsInf(t1, 1) {
		survive = math.Exp(-duration / t1)
	}

	coherence := 1.0
	if !math.IsInf(t2, 1) {
		coherence = math.Exp(-duration / t2)
	}

	if survive == 1 && coherence == 1 {
		return
	}

	mask := 1 << uint(qubit)
	dim := len(rho)

	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			excitedI := i&mask != 0
			excitedJ := j&mask != 0

			switch {
			case excitedI && excitedJ:
				// Relaxation moves population to the components with the
				// qubit in its ground state, coherently across the rest
				// of the register.
				transfer := complex(1-survive, 0) * rho[i][j]

				rho[i][j] -= transfer
				rho[i&^mask][j&^mask] += transfer
			case excitedI != excitedJ:
				rho[i][j] *= complex(coherence, 0)
			}
		}
	}
}

// applySingleQubitGate conjugates the density matrix by a single-qubit
// unitary: rho becomes U rho U-dagger on the target qubit's index.
func applySingleQubitGate(rho [][]complex128, qubit int, u [2][2]complex128) {
	dim := len(rho)
	mask := 1 << uint(qubit)

	// Left factor: mix each row pair that differs only in the target bit.
	for i := 0; i < dim; i++ {
		if i&mask != 0 {
			continue
		}

		i1 := i | mask

		for j := 0; j < dim; j++ {
			a := rho[i][j]
			b := rho[i1][j]

			rho[i][j] = u[0][0]*a + u[0][1]*b
			rho[i1][j] = u[1][0]*a + u[1][1]*b
		}
	}

	// Right factor: mix each column pair with the conjugated unitary.
	for j := 0; j < dim; j++ {
		if j&mask != 0 {
			continue
		}

		j1 := j | mask

		for i := 0; i < dim; i++ {
			a := rho[i][j]
			b := rho[i][j1]

			rho[i][j] = a*cmplx.Conj(u[0][0]) + b*cmplx.Conj(u[0][1])
			rho[i][j1] = a*cmplx.Conj(u[1][0]) + b*cmplx.Conj(u[1][1])
		}
	}
}

// applyCouplingWindow accrues the ZZ phase of every pair containing the
// gated qubit over the window the gate occupies. Only the part of the
// window already covered by the partner's schedule counts, so lockstep
// rounds accrue each nanosecond exactly once no matter which qubit's gate
// is processed first.
func applyCouplingWindow(rho [][]complex128, model *Model, target int, clocks []float64, duration float64) {
	if duration <= 0 {
		return
	}

	windowStart := clocks[target]
	windowEnd := windowStart + duration

	for pair, strength := range model.zz {
		if pair.Low != target && pair.High != target {
			continue
		}

		partner := pair.Low
		if partner == target {
			partner = pair.High
		}

		overlap := math.Min(windowEnd, clocks[partner]) - math.Min(windowStart, clocks[partner])

		if overlap > 0 {
			applyPairPhase(rho, pair.Low, pair.High, 2*math.Pi*strength*overlap)
		}
	}
}

// applyPairPhase multiplies the components with both pair qubits excited
// by exp(-i*theta), which is how a static ZZ interaction shows up after a
// fixed evolution time.
func applyPairPhase(rho [][]complex128, low, high int, theta float64) {
	if theta == 0 {
		return
	}

	pairMask := (1 << uint(low)) | (1 << uint(high))
	phase := cmplx.Exp(complex(0, -theta))
	dim := len(rho)

	for i := 0; i < dim; i++ {
		for j := 0; j < dim; j++ {
			onI := i&pairMask == pairMask
			onJ := j&pairMask == pairMask

			switch {
			case onI && !onJ:
				rho[i][j] *= phase
			case onJ && !onI:
				rho[i][j] *= cmplx.Conj(phase)
			}
		}
	}
}

// measurementProbabilities reads the diagonal of the density matrix as a
// probability vector, clamping the tiny negative values rounding can leave
// and renormalizing.
func measurementProbabilities(rho [][]complex128) ([]float64, error) {
	probs := make([]float64, len(rho))
	total := 0.0

	for i := range rho {
		p := real(rho[i][i])
		if p < 0 {
			p = 0
		}

		probs[i] = p
		total += p
	}

	if total <= 0 {
		return nil, errors.New("density matrix lost all probability mass")
	}

	for i := range probs {
		probs[i] /= total
	}

	return probs, nil
}

// applyConfusion applies one qubit's row-stochastic confusion matrix to a
// dense probability vector in place.
func applyConfusion(probs []float64, qubit int, m [2][2]float64) {
	mask := 1 << uint(qubit)

	for i := range probs {
		if i&mask != 0 {
			continue
		}

		i1 := i | mask
		p0 := probs[i]
		p1 := probs[i1]

		probs[i] = p0*m[0][0] + p1*m[1][0]
		probs[i1] = p0*m[0][1] + p1*m[1][1]
	}
}

// chooseIndex draws one index from a normalized probability vector.
func chooseIndex(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	cumulative := 0.0

	for i, p := range probs {
		cumulative += p

		if r < cumulative {
			return i
		}
	}

	return len(probs) - 1
}

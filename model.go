package noisefit

import (
	"fmt"
	"math"
	"sort"
)

//////
// Const, vars, types.
//////

// rowSumTolerance is the absolute tolerance used when checking that each
// measurement-error matrix row is a probability distribution.
const rowSumTolerance = 1e-6

// QubitPair identifies an unordered pair of coupled qubits in canonical
// form: Low must be strictly less than High. Supplying the reverse-ordered
// duplicate of a pair is a validation error, not something the model
// silently canonicalizes, so a caller mixing (0,1) and (1,0) finds out
// immediately.
type QubitPair struct {
	// Low is the smaller qubit index of the pair.
	Low int

	// High is the larger qubit index of the pair.
	High int
}

func (p QubitPair) String() string {
	return fmt.Sprintf("(%d,%d)", p.Low, p.High)
}

// Model is a structured, physically parameterized noise description for a
// simulated quantum device. It carries, per qubit, the T1 relaxation and T2
// dephasing time constants in nanoseconds, a 2x2 row-stochastic
// measurement-error matrix, and a sparse map of residual ZZ coupling
// strengths in GHz between qubit pairs.
//
// A Model is immutable after construction. Every accessor returns copies of
// internal state, and the optimizer produces a fresh Model for each
// candidate instead of mutating one in place, so concurrent evaluation of
// candidates needs no locking.
//
// An infinite time constant (math.Inf(1)) disables the corresponding decay
// channel for that qubit. The identity measurement matrix means ideal
// readout. An absent pair in the coupling map means no interaction.
type Model struct {
	// t1 holds the T1 relaxation time per qubit, nanoseconds.
	t1 []float64

	// t2 holds the T2 dephasing time per qubit, nanoseconds.
	t2 []float64

	// meas holds one row-stochastic confusion matrix per qubit. Entry
	// meas[q][i][j] is the probability of reading outcome j when the true
	// state of qubit q is i.
	meas [][2][2]float64

	// zz maps canonical qubit pairs to coupling strengths in GHz.
	zz map[QubitPair]float64
}

// ModelOption configures optional noise sources during construction.
type ModelOption func(*Model)

// WithMeasurementError supplies per-qubit 2x2 confusion matrices. One
// matrix is required per qubit, each row must sum to 1 within tolerance,
// and every entry must lie in [0, 1].
//
// Usage example:
//
//	model, err := NewModel(t1, t2, WithMeasurementError([][2][2]float64{
//	    {{0.97, 0.03}, {0.08, 0.92}},
//	    {{0.99, 0.01}, {0.05, 0.95}},
//	}))
func WithMeasurementError(matrices [][2][2]float64) ModelOption {
	return func(m *Model) {
		// [2][2]float64 elements are array values, so append copies them.
		m.meas = append([][2][2]float64(nil), matrices...)
	}
}

// WithZZCoupling supplies pairwise coupling strengths in GHz. Every key
// must be in canonical (low, high) order with both indices inside the
// model's qubit range.
//
// Usage example:
//
//	model, err := NewModel(t1, t2, WithZZCoupling(map[QubitPair]float64{
//	    {Low: 0, High: 1}: 2.3e-5,
//	}))
func WithZZCoupling(coupling map[QubitPair]float64) ModelOption {
	return func(m *Model) {
		m.zz = make(map[QubitPair]float64, len(coupling))
		for pair, strength := range coupling {
			m.zz[pair] = strength
		}
	}
}

//////
// Factory.
//////

// NewModel validates and constructs a noise model.
//
// Parameters:
// - t1Times: T1 relaxation time per qubit in nanoseconds, strictly positive,
//   math.Inf(1) to disable relaxation for a qubit
// - t2Times: T2 dephasing time per qubit, same shape and rules as t1Times
// - opts: Optional measurement-error matrices and ZZ couplings; measurement
//   defaults to identity matrices and the coupling map defaults to empty
//
// Returns:
// - *Model: The constructed model, nil on error
// - error: A *ValidationError describing the first rule violated, nil on
//   success
//
// Validation rules:
// - t1Times and t2Times must be non-empty and of equal length
// - every time constant must be positive (or +Inf), never NaN
// - measurement matrices, when supplied, must match the qubit count, with
//   entries in [0, 1] and rows summing to 1 within 1e-6
// - coupling keys must satisfy Low < High and lie inside [0, qubit count),
//   with finite strengths
//
// Construction is pure: no side effects, and the caller's slices and maps
// are copied, never retained.
func NewModel(t1Times, t2Times []float64, opts ...ModelOption) (*Model, error) {
	m := &Model{
		t1: copyFloats(t1Times),
		t2: copyFloats(t2Times),
	}

	for _, opt := range opts {
		opt(m)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}

	// Fill in the no-noise defaults for the optional blocks.
	if m.meas == nil {
		m.meas = make([][2][2]float64, len(m.t1))
		for q := range m.meas {
			m.meas[q] = identityConfusion()
		}
	}

	if m.zz == nil {
		m.zz = map[QubitPair]float64{}
	}

	return m, nil
}

// Noiseless returns the model of an ideal device with the given number of
// qubits: infinite time constants, identity measurement, no coupling. It is
// the natural base model when decoding a fully masked parameter vector and
// the natural preset for a registry of ideal backends.
func Noiseless(numQubits int) *Model {
	t1 := make([]float64, numQubits)
	t2 := make([]float64, numQubits)

	for q := 0; q < numQubits; q++ {
		t1[q] = math.Inf(1)
		t2[q] = math.Inf(1)
	}

	m, err := NewModel(t1, t2)
	if err != nil {
		// Only reachable with numQubits < 1, which is a programming error
		// rather than user input.
		panic(err)
	}

	return m
}

//////
// Methods.
//////

func (m *Model) validate() error {
	if len(m.t1) == 0 {
		return &ValidationError{Field: "t1_times", Reason: "at least one qubit is required"}
	}

	if len(m.t2) != len(m.t1) {
		return &ValidationError{
			Field:  "t2_times",
			Reason: fmt.Sprintf("length %d does not match t1_times length %d", len(m.t2), len(m.t1)),
		}
	}

	if err := validateTimes("t1_times", m.t1); err != nil {
		return err
	}

	if err := validateTimes("t2_times", m.t2); err != nil {
		return err
	}

	if m.meas != nil {
		if len(m.meas) != len(m.t1) {
			return &ValidationError{
				Field:  "measurement_error",
				Reason: fmt.Sprintf("%d matrices for %d qubits", len(m.meas), len(m.t1)),
			}
		}

		for q, matrix := range m.meas {
			for row := 0; row < 2; row++ {
				sum := 0.0

				for col := 0; col < 2; col++ {
					entry := matrix[row][col]

					if math.IsNaN(entry) || entry < 0 || entry > 1 {
						return &ValidationError{
							Field:  "measurement_error",
							Reason: fmt.Sprintf("qubit %d entry [%d][%d] is %v, expected a probability", q, row, col, entry),
						}
					}

					sum += entry
				}

				if math.Abs(sum-1) > rowSumTolerance {
					return &ValidationError{
						Field:  "measurement_error",
						Reason: fmt.Sprintf("qubit %d row %d sums to %v, expected 1", q, row, sum),
					}
				}
			}
		}
	}

	for pair, strength := range m.zz {
		if pair.Low >= pair.High {
			return &ValidationError{
				Field:  "zz_coupling",
				Reason: fmt.Sprintf("pair %s is not in canonical (low, high) order", pair),
			}
		}

		if pair.Low < 0 || pair.High >= len(m.t1) {
			return &ValidationError{
				Field:  "zz_coupling",
				Reason: fmt.Sprintf("pair %s is outside the %d-qubit range", pair, len(m.t1)),
			}
		}

		if math.IsNaN(strength) || math.IsInf(strength, 0) {
			return &ValidationError{
				Field:  "zz_coupling",
				Reason: fmt.Sprintf("pair %s has non-finite strength %v", pair, strength),
			}
		}
	}

	return nil
}

// NumQubits returns the number of qubits the model describes.
func (m *Model) NumQubits() int {
	return len(m.t1)
}

// T1 returns the T1 relaxation time of one qubit in nanoseconds.
func (m *Model) T1(qubit int) float64 {
	return m.t1[qubit]
}

// T2 returns the T2 dephasing time of one qubit in nanoseconds.
func (m *Model) T2(qubit int) float64 {
	return m.t2[qubit]
}

// T1Times returns a copy of the per-qubit T1 times.
func (m *Model) T1Times() []float64 {
	return copyFloats(m.t1)
}

// T2Times returns a copy of the per-qubit T2 times.
func (m *Model) T2Times() []float64 {
	return copyFloats(m.t2)
}

// MeasurementError returns the confusion matrix of one qubit. The returned
// array is a value copy, so modifying it does not affect the model.
func (m *Model) MeasurementError(qubit int) [2][2]float64 {
	return m.meas[qubit]
}

// FlipProbability returns the probability of reading the outcome measured
// when qubit was prepared in the state prepared. Both state arguments must
// be 0 or 1.
func (m *Model) FlipProbability(qubit, prepared, measured int) float64 {
	return m.meas[qubit][prepared][measured]
}

// ZZ returns a copy of the coupling map.
func (m *Model) ZZ() map[QubitPair]float64 {
	out := make(map[QubitPair]float64, len(m.zz))
	for pair, strength := range m.zz {
		out[pair] = strength
	}

	return out
}

// CouplingPairs returns the coupled pairs sorted by (Low, High). The sorted
// order is the one used by Encode for the coupling block, so callers can
// relate vector entries back to pairs.
func (m *Model) CouplingPairs() []QubitPair {
	pairs := make([]QubitPair, 0, len(m.zz))
	for pair := range m.zz {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Low != pairs[j].Low {
			return pairs[i].Low < pairs[j].Low
		}

		return pairs[i].High < pairs[j].High
	})

	return pairs
}

// HasT1Decay reports whether any qubit has a finite T1 time, meaning the
// model features relaxation at all.
func (m *Model) HasT1Decay() bool {
	for _, t := range m.t1 {
		if !math.IsInf(t, 1) {
			return true
		}
	}

	return false
}

// HasT2Decay reports whether any qubit has a finite T2 time.
func (m *Model) HasT2Decay() bool {
	for _, t := range m.t2 {
		if !math.IsInf(t, 1) {
			return true
		}
	}

	return false
}

// HasMeasurementError reports whether any qubit's confusion matrix differs
// from the identity.
func (m *Model) HasMeasurementError() bool {
	for _, matrix := range m.meas {
		if matrix != identityConfusion() {
			return true
		}
	}

	return false
}

// HasZZCoupling reports whether any pair has a nonzero coupling strength.
func (m *Model) HasZZCoupling() bool {
	for _, strength := range m.zz {
		if strength != 0 {
			return true
		}
	}

	return false
}

// Equal reports whether two models agree element-wise within an absolute
// tolerance across all four parameter blocks. Infinite time constants only
// match infinite time constants. Equal exists for testing and debugging,
// not for search control flow.
func (m *Model) Equal(other *Model, tol float64) bool {
	if other == nil || m.NumQubits() != other.NumQubits() {
		return false
	}

	for q := range m.t1 {
		if !isClose(m.t1[q], other.t1[q], tol) || !isClose(m.t2[q], other.t2[q], tol) {
			return false
		}

		for row := 0; row < 2; row++ {
			for col := 0; col < 2; col++ {
				if !isClose(m.meas[q][row][col], other.meas[q][row][col], tol) {
					return false
				}
			}
		}
	}

	if len(m.zz) != len(other.zz) {
		return false
	}

	for pair, strength := range m.zz {
		otherStrength, ok := other.zz[pair]
		if !ok || !isClose(strength, otherStrength, tol) {
			return false
		}
	}

	return true
}

// String renders a compact human-readable summary of the model, suitable
// for logs and test failure messages.
func (m *Model) String() string {
	measState := "ideal"
	if m.HasMeasurementError() {
		measState = "noisy"
	}

	return fmt.Sprintf("NoiseModel(%d qubits, t1=%v, t2=%v, measurement=%s, couplings=%d)",
		m.NumQubits(), m.t1, m.t2, measState, len(m.zz))
}

//////
// Helper functions.
//////

func identityConfusion() [2][2]float64 {
	return [2][2]float64{{1, 0}, {0, 1}}
}

func validateTimes(field string, times []float64) error {
	for q, t := range times {
		if math.IsNaN(t) || t <= 0 {
			return &ValidationError{
				Field:  field,
				Reason: fmt.Sprintf("qubit %d: time constant must be positive, got %v", q, t),
			}
		}
	}

	return nil
}

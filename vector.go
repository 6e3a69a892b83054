package noisefit

import (
	"strings"
)

//////
// Const, vars, types.
//////

// paramScale converts between nanosecond-scale model values and the O(1)
// coordinates the search operates on. Every encoded entry is divided by
// this factor and every decoded entry multiplied by it, so a typical
// few-thousand-nanosecond time constant lands near 0.01 in vector space
// and default simplex steps are meaningful. The measurement and coupling
// blocks share the same scale so the vector has one unit throughout.
const paramScale = 1e5

// Clipping floors applied to proposed vectors before decoding. Time
// constants are floored at a small positive value in nanoseconds and
// measurement diagonals are clamped into (0, 1], which keeps every clipped
// proposal decodable instead of aborting the run on a non-physical one.
const (
	minTimeConstant    = 1e-3
	minStayProbability = 1e-6
)

// ParameterVector is the optimizer's native search representation: a flat,
// ordered sequence of scaled parameter values. The fixed order is the T1
// block, the T2 block, the measurement diagonal entries (stay-0 then
// stay-1 per qubit), and the coupling strengths in sorted key order.
// Off-diagonal measurement entries are not encoded because row
// stochasticity determines them.
//
// Encode and DecodeModel form a bijection for any fixed mask and base
// model: DecodeModel(m.Encode(mask), mask, m) reproduces m within floating
// tolerance.
type ParameterVector []float64

// FieldMask selects which noise-model blocks are free to vary during a
// search. Blocks outside the mask are frozen at the base model's values.
// The same mask must be used consistently across one optimization run.
type FieldMask uint8

const (
	// MaskT1 selects the per-qubit T1 block.
	MaskT1 FieldMask = 1 << iota

	// MaskT2 selects the per-qubit T2 block.
	MaskT2

	// MaskMeasurement selects the per-qubit measurement diagonal block.
	MaskMeasurement

	// MaskZZ selects the coupling-strength block.
	MaskZZ
)

// MaskAll selects every parameter block.
const MaskAll = MaskT1 | MaskT2 | MaskMeasurement | MaskZZ

// Has reports whether every bit of field is set in the mask.
func (f FieldMask) Has(field FieldMask) bool {
	return f&field == field
}

func (f FieldMask) String() string {
	if f == 0 {
		return "none"
	}

	var parts []string

	if f.Has(MaskT1) {
		parts = append(parts, "t1")
	}

	if f.Has(MaskT2) {
		parts = append(parts, "t2")
	}

	if f.Has(MaskMeasurement) {
		parts = append(parts, "measurement")
	}

	if f.Has(MaskZZ) {
		parts = append(parts, "zz")
	}

	if f&^MaskAll != 0 {
		parts = append(parts, "unknown")
	}

	return strings.Join(parts, "|")
}

//////
// Exported functionalities.
//////

// MaskDim returns the parameter-vector length implied by a mask and a base
// model: one entry per qubit for each masked time block, two entries per
// qubit for the measurement block, and one entry per coupled pair for the
// coupling block.
func MaskDim(mask FieldMask, base *Model) int {
	n := base.NumQubits()
	dim := 0

	if mask.Has(MaskT1) {
		dim += n
	}

	if mask.Has(MaskT2) {
		dim += n
	}

	if mask.Has(MaskMeasurement) {
		dim += 2 * n
	}

	if mask.Has(MaskZZ) {
		dim += len(base.zz)
	}

	return dim
}

// Encode flattens the masked blocks of the model into a parameter vector.
//
// Parameters:
// - mask: Which blocks to include; see FieldMask
//
// Returns:
// - ParameterVector: The scaled values in the fixed block order
// - error: An *EncodingError when the mask is empty or carries unknown bits
func (m *Model) Encode(mask FieldMask) (ParameterVector, error) {
	if mask == 0 {
		return nil, &EncodingError{Mask: mask, Reason: "empty mask selects no fields"}
	}

	if mask&^MaskAll != 0 {
		return nil, &EncodingError{Mask: mask, Reason: "mask carries unknown field bits"}
	}

	vec := make(ParameterVector, 0, MaskDim(mask, m))

	if mask.Has(MaskT1) {
		for _, t := range m.t1 {
			vec = append(vec, t/paramScale)
		}
	}

	if mask.Has(MaskT2) {
		for _, t := range m.t2 {
			vec = append(vec, t/paramScale)
		}
	}

	if mask.Has(MaskMeasurement) {
		for q := range m.meas {
			// The two diagonal entries are the probabilities of reading a
			// state back as itself. The off-diagonals are their row
			// complements and are rebuilt on decode.
			vec = append(vec, m.meas[q][0][0]/paramScale, m.meas[q][1][1]/paramScale)
		}
	}

	if mask.Has(MaskZZ) {
		for _, pair := range m.CouplingPairs() {
			vec = append(vec, m.zz[pair]/paramScale)
		}
	}

	return vec, nil
}

// DecodeModel rebuilds a model from a parameter vector. Masked blocks are
// taken from the vector, everything else from the base model, which also
// fixes the qubit count and the coupling topology (which pairs exist; only
// their strengths are searched).
//
// Parameters:
// - vec: The parameter vector, in the fixed block order used by Encode
// - mask: The mask the vector was encoded with
// - base: Model supplying the frozen blocks; must not be nil
//
// Returns:
// - *Model: The decoded model
// - error: A *DecodingError when the vector length does not match
//   MaskDim(mask, base), an *EncodingError for a bad mask, or a
//   *ValidationError when the decoded values are non-physical
func DecodeModel(vec ParameterVector, mask FieldMask, base *Model) (*Model, error) {
	if base == nil {
		return nil, &ValidationError{Field: "base_model", Reason: "a base model is required to decode"}
	}

	if mask == 0 {
		return nil, &EncodingError{Mask: mask, Reason: "empty mask selects no fields"}
	}

	if mask&^MaskAll != 0 {
		return nil, &EncodingError{Mask: mask, Reason: "mask carries unknown field bits"}
	}

	if want := MaskDim(mask, base); len(vec) != want {
		return nil, &DecodingError{Want: want, Got: len(vec)}
	}

	n := base.NumQubits()
	offset := 0

	t1 := base.T1Times()
	if mask.Has(MaskT1) {
		for q := 0; q < n; q++ {
			t1[q] = vec[offset] * paramScale
			offset++
		}
	}

	t2 := base.T2Times()
	if mask.Has(MaskT2) {
		for q := 0; q < n; q++ {
			t2[q] = vec[offset] * paramScale
			offset++
		}
	}

	meas := make([][2][2]float64, n)
	for q := 0; q < n; q++ {
		meas[q] = base.meas[q]
	}

	if mask.Has(MaskMeasurement) {
		for q := 0; q < n; q++ {
			stay0 := vec[offset] * paramScale
			stay1 := vec[offset+1] * paramScale
			offset += 2

			// Rebuild full row-stochastic matrices from the diagonals.
			meas[q] = [2][2]float64{{stay0, 1 - stay0}, {1 - stay1, stay1}}
		}
	}

	zz := make(map[QubitPair]float64, len(base.zz))
	for _, pair := range base.CouplingPairs() {
		if mask.Has(MaskZZ) {
			zz[pair] = vec[offset] * paramScale
			offset++
		} else {
			zz[pair] = base.zz[pair]
		}
	}

	return NewModel(t1, t2, WithMeasurementError(meas), WithZZCoupling(zz))
}

//////
// Helper functions.
//////

// clipToPhysical returns a copy of a proposed vector with every entry
// forced into the decodable region: time constants floored at a small
// positive value and measurement diagonals clamped into (0, 1]. Coupling
// strengths are unconstrained. The second return value counts how many
// entries were moved, so the caller can log that a proposal needed
// clipping.
func clipToPhysical(vec ParameterVector, mask FieldMask, base *Model) (ParameterVector, int) {
	out := ParameterVector(copyFloats(vec))
	n := base.NumQubits()
	offset := 0
	clipped := 0

	floorTimes := func(count int) {
		floor := minTimeConstant / paramScale

		for i := 0; i < count; i++ {
			if out[offset] < floor {
				out[offset] = floor
				clipped++
			}

			offset++
		}
	}

	if mask.Has(MaskT1) {
		floorTimes(n)
	}

	if mask.Has(MaskT2) {
		floorTimes(n)
	}

	if mask.Has(MaskMeasurement) {
		lo := minStayProbability / paramScale
		hi := 1.0 / paramScale

		for i := 0; i < 2*n; i++ {
			if v := clamp(out[offset], lo, hi); v != out[offset] {
				out[offset] = v
				clipped++
			}

			offset++
		}
	}

	// Coupling strengths may take any finite value, so the zz block is
	// left as proposed.

	return out, clipped
}

package noisefit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fullTestModel builds a two-qubit model exercising all four parameter
// blocks.
func fullTestModel(t *testing.T) *Model {
	t.Helper()

	model, err := NewModel(
		[]float64{1000, 2000},
		[]float64{10000, 20000},
		WithMeasurementError([][2][2]float64{
			{{0.97, 0.03}, {0.08, 0.92}},
			{{0.99, 0.01}, {0.05, 0.95}},
		}),
		WithZZCoupling(map[QubitPair]float64{
			{Low: 0, High: 1}: 0.002,
		}),
	)
	assert.NoError(t, err)

	return model
}

func TestEncodeOrdering(t *testing.T) {
	model := fullTestModel(t)

	vec, err := model.Encode(MaskAll)
	assert.NoError(t, err)

	// The fixed block order is t1, t2, measurement diagonals (stay-0 then
	// stay-1 per qubit), then coupling strengths in sorted key order, all
	// divided by the parameter scale.
	expected := []float64{
		0.01, 0.02, // t1 block
		0.1, 0.2, // t2 block
		9.7e-6, 9.2e-6, // qubit 0 stay-0, stay-1
		9.9e-6, 9.5e-6, // qubit 1 stay-0, stay-1
		2e-8, // coupling (0,1)
	}

	assert.InDeltaSlice(t, expected, vec, 1e-12)
	assert.Len(t, vec, MaskDim(MaskAll, model))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	model := fullTestModel(t)

	masks := []FieldMask{
		MaskT1,
		MaskT2,
		MaskMeasurement,
		MaskZZ,
		MaskT1 | MaskT2,
		MaskT1 | MaskZZ,
		MaskAll,
	}

	for _, mask := range masks {
		vec, err := model.Encode(mask)
		assert.NoError(t, err, "mask %s", mask)

		decoded, err := DecodeModel(vec, mask, model)
		assert.NoError(t, err, "mask %s", mask)

		// Decoding what was encoded reproduces the model for any mask.
		assert.True(t, model.Equal(decoded, 1e-6), "mask %s round trip", mask)
	}
}

func TestEncodeRejectsBadMasks(t *testing.T) {
	model := fullTestModel(t)

	var encErr *EncodingError

	// An empty mask selects nothing.
	_, err := model.Encode(0)
	assert.ErrorAs(t, err, &encErr)

	// Unknown bits are rejected rather than ignored.
	_, err = model.Encode(FieldMask(1 << 7))
	assert.ErrorAs(t, err, &encErr)
}

func TestDecodeErrors(t *testing.T) {
	model := fullTestModel(t)

	// A base model is required.
	var vErr *ValidationError

	_, err := DecodeModel(ParameterVector{0.01}, MaskT1, nil)
	assert.ErrorAs(t, err, &vErr)

	// A wrong-length vector reports both the expected and received sizes.
	var decErr *DecodingError

	_, err = DecodeModel(ParameterVector{0.01}, MaskT1|MaskT2, model)
	assert.ErrorAs(t, err, &decErr)
	assert.Equal(t, 4, decErr.Want)
	assert.Equal(t, 1, decErr.Got)

	// Decoded values still pass model validation: a negative time fails.
	_, err = DecodeModel(ParameterVector{-0.01, 0.02}, MaskT1, model)
	assert.ErrorAs(t, err, &vErr)
}

func TestDecodeFreezesUnmaskedBlocks(t *testing.T) {
	model := fullTestModel(t)

	// Change only the t1 block.
	decoded, err := DecodeModel(ParameterVector{0.05, 0.06}, MaskT1, model)
	assert.NoError(t, err)

	assert.Equal(t, []float64{5000, 6000}, decoded.T1Times())

	// Everything outside the mask keeps the base model's values.
	assert.Equal(t, model.T2Times(), decoded.T2Times())
	assert.Equal(t, model.MeasurementError(0), decoded.MeasurementError(0))
	assert.Equal(t, model.ZZ(), decoded.ZZ())
}

func TestDecodeRebuildsStochasticRows(t *testing.T) {
	model := fullTestModel(t)

	vec, err := model.Encode(MaskMeasurement)
	assert.NoError(t, err)

	decoded, err := DecodeModel(vec, MaskMeasurement, model)
	assert.NoError(t, err)

	// Only the diagonals are encoded; the off-diagonals come back as the
	// row complements.
	matrix := decoded.MeasurementError(0)
	assert.InDelta(t, 0.97, matrix[0][0], 1e-9)
	assert.InDelta(t, 0.03, matrix[0][1], 1e-9)
	assert.InDelta(t, 0.08, matrix[1][0], 1e-9)
	assert.InDelta(t, 0.92, matrix[1][1], 1e-9)
}

func TestMaskDim(t *testing.T) {
	model := fullTestModel(t)

	assert.Equal(t, 2, MaskDim(MaskT1, model))
	assert.Equal(t, 4, MaskDim(MaskT1|MaskT2, model))
	assert.Equal(t, 4, MaskDim(MaskMeasurement, model))
	assert.Equal(t, 1, MaskDim(MaskZZ, model))
	assert.Equal(t, 9, MaskDim(MaskAll, model))

	// A model without couplings has an empty coupling block.
	plain, err := NewModel([]float64{1000}, []float64{10000})
	assert.NoError(t, err)
	assert.Equal(t, 0, MaskDim(MaskZZ, plain))
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "none", FieldMask(0).String())
	assert.Equal(t, "t1", MaskT1.String())
	assert.Equal(t, "t1|t2|measurement|zz", MaskAll.String())
	assert.Equal(t, "t2|zz", (MaskT2 | MaskZZ).String())
}

func TestClipToPhysical(t *testing.T) {
	model := fullTestModel(t)

	// Propose a vector with a negative time, an impossible measurement
	// diagonal, and a negative coupling.
	vec := ParameterVector{
		-0.5, 0.02, // t1: first entry non-physical
		0.1, 0.2, // t2: fine
		2e-5, 9.2e-6, 9.9e-6, -1e-6, // measurement: first too big, last negative
		-2e-8, // coupling: negative is allowed
	}

	clipped, adjusted := clipToPhysical(vec, MaskAll, model)

	// Three coordinates needed moving.
	assert.Equal(t, 3, adjusted)

	// Times are floored at a small positive value.
	assert.Greater(t, clipped[0], 0.0)
	assert.Equal(t, 0.02, clipped[1])

	// Measurement diagonals are clamped into the valid probability range.
	assert.InDelta(t, 1e-5, clipped[4], 1e-12)
	assert.Greater(t, clipped[7], 0.0)

	// Couplings pass through untouched.
	assert.Equal(t, -2e-8, clipped[8])

	// The clipped vector decodes to a valid model.
	_, err := DecodeModel(clipped, MaskAll, model)
	assert.NoError(t, err)

	// The input vector itself is never modified.
	assert.Equal(t, -0.5, vec[0])

	// A physical vector passes through unchanged.
	encoded, err := model.Encode(MaskAll)
	assert.NoError(t, err)

	same, adjusted := clipToPhysical(encoded, MaskAll, model)
	assert.Equal(t, 0, adjusted)
	assert.Equal(t, encoded, same)
}

package noisefit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	// Raw counts normalize to frequencies over the same support.
	counts := Distribution{"00": 600, "11": 400}

	normalized, err := counts.Normalize()
	assert.NoError(t, err)
	assert.InDelta(t, 0.6, normalized["00"], 1e-12)
	assert.InDelta(t, 0.4, normalized["11"], 1e-12)

	// The input is left untouched.
	assert.Equal(t, 600.0, counts["00"])

	// Negative weights cannot be outcome frequencies.
	var vErr *ValidationError

	_, err = Distribution{"0": -1, "1": 2}.Normalize()
	assert.ErrorAs(t, err, &vErr)

	// Zero total mass has no direction to normalize toward.
	_, err = Distribution{"0": 0}.Normalize()
	assert.ErrorAs(t, err, &vErr)

	_, err = Distribution{}.Normalize()
	assert.ErrorAs(t, err, &vErr)
}

func TestCountsToDistribution(t *testing.T) {
	// Integer counts of any width convert to floating weights.
	fromInt := CountsToDistribution(map[string]int{"00": 512, "11": 512})
	assert.Equal(t, Distribution{"00": 512, "11": 512}, fromInt)

	fromInt64 := CountsToDistribution(map[string]int64{"0": 1 << 40})
	assert.Equal(t, float64(1<<40), fromInt64["0"])
}

func TestMergeCounts(t *testing.T) {
	merged := MergeCounts(
		Distribution{"00": 100, "01": 50},
		Distribution{"00": 25, "11": 10},
		Distribution{},
	)

	assert.Equal(t, Distribution{"00": 125, "01": 50, "11": 10}, merged)
}

func TestNumQubitsFromCounts(t *testing.T) {
	n, err := NumQubitsFromCounts(Distribution{"010": 5, "111": 3})
	assert.NoError(t, err)
	assert.Equal(t, 3, n)

	// Keys of mixed widths cannot belong to one register.
	var vErr *ValidationError

	_, err = NumQubitsFromCounts(Distribution{"01": 5, "111": 3})
	assert.ErrorAs(t, err, &vErr)

	// An empty distribution has no width to infer.
	_, err = NumQubitsFromCounts(Distribution{})
	assert.ErrorAs(t, err, &vErr)
}

func TestDenseProbabilities(t *testing.T) {
	// The rightmost character is qubit 0, so "10" is basis state 2.
	dense, err := Distribution{"10": 3, "01": 1}.DenseProbabilities(2)
	assert.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0.25, 0.75, 0}, dense, 1e-12)

	var vErr *ValidationError

	// Keys must match the register width exactly.
	_, err = Distribution{"010": 1}.DenseProbabilities(2)
	assert.ErrorAs(t, err, &vErr)

	// Keys must be binary strings.
	_, err = Distribution{"0x": 1}.DenseProbabilities(2)
	assert.ErrorAs(t, err, &vErr)

	// The register size must be representable.
	_, err = Distribution{"0": 1}.DenseProbabilities(0)
	assert.ErrorAs(t, err, &vErr)
}

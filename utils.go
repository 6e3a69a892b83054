package noisefit

import (
	"math"
	"strconv"
)

//////
// Helper functions.
//////

// clamp limits v to the inclusive range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}

// isClose reports whether two values agree within an absolute tolerance.
// Two infinities of the same sign compare equal, which matters because an
// infinite time constant is the canonical way to disable a decay channel.
func isClose(a, b, tol float64) bool {
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}

	return math.Abs(a-b) <= tol
}

// copyFloats returns an independent copy of a float slice. Used wherever a
// caller-supplied or internal slice must not be aliased.
func copyFloats(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	return out
}

// euclideanDistance computes the L2 distance between two points of the same
// dimensionality. Panics if the lengths differ, which indicates an internal
// bookkeeping bug rather than bad user input.
func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic("points must have the same length")
	}

	var sum float64

	for i := range a {
		diff := a[i] - b[i]

		sum += diff * diff
	}

	return math.Sqrt(sum)
}

// bitstringKey renders a basis-state index as a fixed-width bitstring key.
// The rightmost character is qubit 0, matching the ordering used by
// DenseProbabilities when it parses keys back into indices.
func bitstringKey(index uint64, numQubits int) string {
	s := strconv.FormatUint(index, 2)

	for len(s) < numQubits {
		s = "0" + s
	}

	return s
}

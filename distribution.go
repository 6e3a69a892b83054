package noisefit

import (
	"fmt"
	"math"
	"strconv"

	"golang.org/x/exp/constraints"
)

//////
// Const, vars, types.
//////

// Distribution maps measurement-outcome bitstrings to non-negative weights.
// The weights may be probabilities summing to 1 or raw shot counts summing
// to the number of shots; every consumer in this package normalizes before
// comparing, so the two scales are interchangeable. A missing key means the
// outcome was never observed and carries weight 0.
//
// Bitstring keys are fixed-width binary strings whose rightmost character
// is qubit 0.
type Distribution map[string]float64

//////
// Exported functionalities.
//////

// Normalize returns a new distribution over the same support whose weights
// sum to 1. Fails with a *ValidationError when any weight is negative or
// the total mass is not positive, because such input cannot be interpreted
// as outcome frequencies.
func (d Distribution) Normalize() (Distribution, error) {
	total, err := d.totalMass()
	if err != nil {
		return nil, err
	}

	out := make(Distribution, len(d))
	for key, weight := range d {
		out[key] = weight / total
	}

	return out, nil
}

// CountsToDistribution adapts integer shot counts, as produced by counting
// simulators and hardware result payloads, into a Distribution. The counts
// are carried over as floating weights without normalization.
func CountsToDistribution[T constraints.Integer](counts map[string]T) Distribution {
	out := make(Distribution, len(counts))
	for key, count := range counts {
		out[key] = float64(count)
	}

	return out
}

// MergeCounts sums any number of distributions key-wise into one. It is the
// aggregation step for repeated batches of the same experiment.
func MergeCounts(batches ...Distribution) Distribution {
	out := Distribution{}

	for _, batch := range batches {
		for key, weight := range batch {
			out[key] += weight
		}
	}

	return out
}

// NumQubitsFromCounts infers the qubit count from the key width of a
// distribution. Fails with a *ValidationError when the distribution is
// empty or its keys disagree on width, since a ragged distribution cannot
// belong to one register.
func NumQubitsFromCounts(d Distribution) (int, error) {
	width := -1

	for key := range d {
		if width == -1 {
			width = len(key)
			continue
		}

		if len(key) != width {
			return 0, &ValidationError{
				Field:  "distribution",
				Reason: fmt.Sprintf("bitstring %q has width %d, other keys have width %d", key, len(key), width),
			}
		}
	}

	if width <= 0 {
		return 0, &ValidationError{Field: "distribution", Reason: "no outcomes to infer a qubit count from"}
	}

	return width, nil
}

// DenseProbabilities expands the distribution into a normalized probability
// slice of length 2^numQubits, placing each outcome's mass at the index
// equal to the binary value of its bitstring. Fails with a
// *ValidationError when a key has the wrong width, contains a non-binary
// character, or the total mass is not positive.
func (d Distribution) DenseProbabilities(numQubits int) ([]float64, error) {
	if numQubits <= 0 || numQubits >= 63 {
		return nil, &ValidationError{
			Field:  "num_qubits",
			Reason: fmt.Sprintf("cannot build a dense vector for %d qubits", numQubits),
		}
	}

	total, err := d.totalMass()
	if err != nil {
		return nil, err
	}

	dense := make([]float64, 1<<uint(numQubits))

	for key, weight := range d {
		if len(key) != numQubits {
			return nil, &ValidationError{
				Field:  "distribution",
				Reason: fmt.Sprintf("bitstring %q has width %d, expected %d", key, len(key), numQubits),
			}
		}

		index, parseErr := strconv.ParseUint(key, 2, 64)
		if parseErr != nil {
			return nil, &ValidationError{
				Field:  "distribution",
				Reason: fmt.Sprintf("key %q is not a bitstring", key),
			}
		}

		dense[index] += weight / total
	}

	return dense, nil
}

//////
// Helper functions.
//////

func (d Distribution) totalMass() (float64, error) {
	total := 0.0

	for key, weight := range d {
		if weight < 0 || math.IsNaN(weight) {
			return 0, &ValidationError{
				Field:  "distribution",
				Reason: fmt.Sprintf("outcome %q has negative weight %v", key, weight),
			}
		}

		total += weight
	}

	if total <= 0 {
		return 0, &ValidationError{Field: "distribution", Reason: "total mass is zero"}
	}

	return total, nil
}

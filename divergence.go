package noisefit

import (
	"math"
	"sort"
)

//////
// Available divergence metrics for scoring candidate noise models.
// Each metric is a pure function comparing two outcome distributions over
// their joined support after normalization. All of them return 0 iff the
// two normalized distributions are identical, are invariant to
// zero-probability padding of either support, and are selected by the
// caller and injected into the optimizer, never hardcoded.
//////

// DivergenceMetric scores the discrepancy between a reference outcome
// distribution and a candidate one.
//
// Contract:
// - Deterministic and side-effect free
// - Returns a non-negative score, 0 iff the normalized distributions agree
//   over their joined support
// - A key missing from either side is treated as probability 0 on that side
// - Only degenerate input (negative weights, zero total mass) produces an
//   error
type DivergenceMetric func(reference, candidate Distribution) (float64, error)

// DefaultEpsilon is the smoothing floor used by the statistical divergences
// when the caller does not pick one. It must stay small relative to the
// smallest probability the experiments can resolve.
const DefaultEpsilon = 5e-5

// ksCutoffCoefficient is the 95% confidence coefficient of the two-sample
// Kolmogorov-Smirnov test.
const ksCutoffCoefficient = 1.36

// AngleDivergence scores two distributions by the angle, in degrees,
// between their probability vectors over the joined support.
//
// How it works:
// - Both distributions are normalized and aligned on the union of their
//   supports
// - The cosine of the angle is the inner product divided by both norms,
//   clamped into [-1, 1] against rounding
// - Identical distributions are parallel vectors, so the angle is 0; the
//   worst case, disjoint supports, gives 90 degrees
//
// When to use:
// - Robust general-purpose choice for calibration against sampled counts
// - Insensitive to the overall scale of the inputs, so raw counts and
//   probabilities can be mixed freely
func AngleDivergence(reference, candidate Distribution) (float64, error) {
	p, q, err := alignedProbabilities(reference, candidate)
	if err != nil {
		return 0, err
	}

	var dot, normP, normQ float64

	for i := range p {
		dot += p[i] * q[i]
		normP += p[i] * p[i]
		normQ += q[i] * q[i]
	}

	cosine := dot / (math.Sqrt(normP) * math.Sqrt(normQ))

	return math.Acos(clamp(cosine, -1, 1)) * 180 / math.Pi, nil
}

// KLDivergence builds a Kullback-Leibler metric with epsilon smoothing.
//
// How it works:
// - Zero entries on either side make the raw KL sum blow up through log(0),
//   so both vectors are smoothed first: every zero becomes epsilon and the
//   nonzero entries each give up an equal share of the added mass. Entries
//   the share would push below epsilon are floored at epsilon, and the
//   vector is renormalized so it still sums to 1
// - The score is the sum of p*ln(p/q) over the smoothed vectors
//
// Parameters:
// - epsilon: Smoothing floor; values <= 0 fall back to DefaultEpsilon
//
// When to use:
// - When the information-theoretic weighting of rare outcomes matters
// - Note that KL is asymmetric: the reference distribution is the first
//   argument
func KLDivergence(epsilon float64) DivergenceMetric {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	return func(reference, candidate Distribution) (float64, error) {
		p, q, err := alignedProbabilities(reference, candidate)
		if err != nil {
			return 0, err
		}

		return klVector(smoothProbabilities(p, epsilon), smoothProbabilities(q, epsilon)), nil
	}
}

// JSDivergence builds a Jensen-Shannon metric with epsilon smoothing. It
// is the symmetrized, bounded relative of KL: the average of each vector's
// KL divergence to their midpoint. Values <= 0 for epsilon fall back to
// DefaultEpsilon.
func JSDivergence(epsilon float64) DivergenceMetric {
	if epsilon <= 0 {
		epsilon = DefaultEpsilon
	}

	return func(reference, candidate Distribution) (float64, error) {
		p, q, err := alignedProbabilities(reference, candidate)
		if err != nil {
			return 0, err
		}

		p = smoothProbabilities(p, epsilon)
		q = smoothProbabilities(q, epsilon)

		mid := make([]float64, len(p))
		for i := range mid {
			mid[i] = (p[i] + q[i]) / 2
		}

		return 0.5*klVector(p, mid) + 0.5*klVector(q, mid), nil
	}
}

// TotalVariation scores two distributions by half the L1 distance between
// their probability vectors, the largest difference in probability the two
// assign to any event.
func TotalVariation(reference, candidate Distribution) (float64, error) {
	p, q, err := alignedProbabilities(reference, candidate)
	if err != nil {
		return 0, err
	}

	var sum float64

	for i := range p {
		sum += math.Abs(p[i] - q[i])
	}

	return sum / 2, nil
}

// L2Distance scores two distributions by the Euclidean distance between
// their probability vectors.
func L2Distance(reference, candidate Distribution) (float64, error) {
	p, q, err := alignedProbabilities(reference, candidate)
	if err != nil {
		return 0, err
	}

	var sum float64

	for i := range p {
		diff := p[i] - q[i]

		sum += diff * diff
	}

	return math.Sqrt(sum), nil
}

// KSDivergence scores two distributions by the two-sample
// Kolmogorov-Smirnov statistic: the largest absolute difference between
// their empirical CDFs over the joined support in sorted key order. For
// the fixed-width bitstring keys this package produces, sorted key order
// is ascending basis-state order.
//
// Combine with KSSameDistribution to turn the statistic into an
// accept/reject decision at a given shot count.
func KSDivergence(reference, candidate Distribution) (float64, error) {
	p, q, err := alignedProbabilities(reference, candidate)
	if err != nil {
		return 0, err
	}

	var cumP, cumQ, statistic float64

	for i := range p {
		cumP += p[i]
		cumQ += q[i]

		if diff := math.Abs(cumP - cumQ); diff > statistic {
			statistic = diff
		}
	}

	return statistic, nil
}

// KSSameDistribution reports whether a KS statistic is small enough, at
// the given number of samples, to accept that both sides were drawn from
// the same distribution at 95% confidence. The cutoff is
// 1.36/sqrt(numSamples).
func KSSameDistribution(statistic float64, numSamples int) bool {
	if numSamples <= 0 {
		return false
	}

	return statistic < ksCutoffCoefficient/math.Sqrt(float64(numSamples))
}

//////
// Helper functions.
//////

// alignedProbabilities normalizes both distributions and lays them out
// over the sorted union of their supports. Keys carrying zero probability
// on both sides are dropped: they contribute nothing to any metric, and
// skipping them is what makes every metric exactly invariant to
// zero-probability padding.
func alignedProbabilities(reference, candidate Distribution) ([]float64, []float64, error) {
	refTotal, err := reference.totalMass()
	if err != nil {
		return nil, nil, err
	}

	candTotal, err := candidate.totalMass()
	if err != nil {
		return nil, nil, err
	}

	support := make(map[string]struct{}, len(reference)+len(candidate))
	for key := range reference {
		support[key] = struct{}{}
	}

	for key := range candidate {
		support[key] = struct{}{}
	}

	keys := make([]string, 0, len(support))
	for key := range support {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	p := make([]float64, 0, len(keys))
	q := make([]float64, 0, len(keys))

	for _, key := range keys {
		pi := reference[key] / refTotal
		qi := candidate[key] / candTotal

		if pi == 0 && qi == 0 {
			continue
		}

		p = append(p, pi)
		q = append(q, qi)
	}

	return p, q, nil
}

// smoothProbabilities replaces zeros with epsilon and takes the added mass
// back from the nonzero entries in equal shares. An entry the correction
// would push below epsilon is floored at epsilon instead, and the vector is
// renormalized, so the output is strictly positive and sums to 1 even when
// a genuine probability is smaller than the correction. A vector without
// zeros is returned unchanged.
func smoothProbabilities(p []float64, epsilon float64) []float64 {
	zeros := 0

	for _, v := range p {
		if v == 0 {
			zeros++
		}
	}

	if zeros == 0 {
		return p
	}

	correction := float64(zeros) * epsilon / float64(len(p)-zeros)

	out := make([]float64, len(p))
	total := 0.0

	for i, v := range p {
		smoothed := v - correction

		if smoothed < epsilon {
			smoothed = epsilon
		}

		out[i] = smoothed
		total += smoothed
	}

	for i := range out {
		out[i] /= total
	}

	return out
}

// klVector computes the Kullback-Leibler divergence between two strictly
// positive probability vectors of equal length.
func klVector(p, q []float64) float64 {
	var sum float64

	for i := range p {
		sum += p[i] * math.Log(p[i]/q[i])
	}

	return sum
}

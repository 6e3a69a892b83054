package noisefit

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

//////
// Const, vars, types.
//////

const (
	// reflectionCoeff scales the reflection of the worst vertex through
	// the centroid of the others.
	reflectionCoeff = 1.0

	// expansionCoeff stretches a successful reflection further along the
	// same direction.
	expansionCoeff = 2.0

	// contractionCoeff pulls a failed reflection back toward the simplex.
	contractionCoeff = 0.5

	// shrinkCoeff collapses every vertex toward the best one when neither
	// reflection nor contraction improves the fit.
	shrinkCoeff = 0.5

	// diameterTolerance is the simplex extent in parameter space below
	// which the search reports geometric convergence.
	diameterTolerance = 1e-6

	// initialPerturbation is the relative step used to build the initial
	// simplex around the starting point.
	initialPerturbation = 0.05

	// zeroPerturbation is the absolute step used for coordinates whose
	// starting value is zero, where a relative step would go nowhere.
	zeroPerturbation = 0.00025

	// penaltyScore replaces the objective value of a failed candidate
	// when the run policy is to keep searching. It is large enough that
	// the search always moves away from the failed region.
	penaltyScore = math.MaxFloat64 / 2
)

// objectiveFunc scores one point in parameter space. Lower is better.
type objectiveFunc func(ctx context.Context, point ParameterVector) (float64, error)

// clipFunc projects a proposed point back into the physically meaningful
// region before it is evaluated.
type clipFunc func(point ParameterVector) ParameterVector

// vertex is one corner of the simplex: a point with its objective value.
type vertex struct {
	point ParameterVector
	score float64
}

// searchOutcome reports how a search ended.
type searchOutcome struct {
	reason     StopReason
	warning    *ConvergenceWarning
	iterations int
}

// simplexSearch runs a Nelder-Mead downhill simplex over the encoded
// parameter space. The method maintains a simplex of dim+1 candidate
// points and walks it downhill by reflecting, expanding, contracting, or
// shrinking it each iteration, using only objective values. That makes it
// a good match for calibration objectives, which are noisy, derivative
// free, and expensive.
//
// Every proposed point passes through the clip function before it is
// evaluated, so the simplex never leaves the physical region. The best
// point ever evaluated is tracked separately from the simplex and is what
// the caller receives, so a late failed iteration cannot corrupt the
// result.
type simplexSearch struct {
	objective objectiveFunc
	clip      clipFunc
	cfg       OptimizeConfig
	log       *log.Entry

	// start is the encoded initial guess the simplex is built around.
	start ParameterVector

	// mu protects bestPoint, bestScore, and evaluations.
	mu          sync.Mutex
	bestPoint   ParameterVector
	bestScore   float64
	evaluations int
}

//////
// Methods.
//////

// run executes the search until it converges, exhausts its iteration
// budget, is canceled, or a candidate evaluation fails.
func (s *simplexSearch) run(ctx context.Context) (searchOutcome, error) {
	// Build and score the initial simplex around the starting point.
	points := initialSimplex(s.start)

	for i := range points {
		points[i] = s.clip(points[i])
	}

	scores, err := s.evaluateBatch(ctx, points)
	if err != nil {
		return searchOutcome{reason: StopAborted}, errors.Wrap(err, "initial simplex")
	}

	verts := make([]vertex, len(points))

	for i := range points {
		verts[i] = vertex{point: points[i], score: scores[i]}
	}

	for it := 1; it <= s.cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return searchOutcome{reason: StopAborted, iterations: it - 1}, err
		}

		// Order the simplex from best to worst fit.
		sort.Slice(verts, func(i, j int) bool { return verts[i].score < verts[j].score })

		// Convergence checks run before the iteration does any work, so
		// the reported iteration count is the number actually completed.
		spread := verts[len(verts)-1].score - verts[0].score

		if spread < s.cfg.Tolerance {
			return searchOutcome{reason: StopTolerance, iterations: it - 1}, nil
		}

		if simplexDiameter(verts) < diameterTolerance {
			return searchOutcome{reason: StopSimplexConverged, iterations: it - 1}, nil
		}

		s.sendProgress(it, spread)

		centroid := centroidOf(verts)
		worst := verts[len(verts)-1]

		// Reflect the worst vertex through the centroid of the others.
		reflected := s.clip(pointToward(centroid, worst.point, -reflectionCoeff))

		reflectedScore, err := s.evalPoint(ctx, reflected)
		if err != nil {
			return searchOutcome{reason: StopAborted, iterations: it - 1}, errors.Wrapf(err, "iteration %d", it)
		}

		switch {
		case reflectedScore < verts[0].score:
			// The reflection beat the whole simplex; try stretching
			// further in the same direction before accepting it.
			expanded := s.clip(pointToward(centroid, reflected, expansionCoeff))

			expandedScore, err := s.evalPoint(ctx, expanded)
			if err != nil {
				return searchOutcome{reason: StopAborted, iterations: it - 1}, errors.Wrapf(err, "iteration %d", it)
			}

			if expandedScore < reflectedScore {
				verts[len(verts)-1] = vertex{point: expanded, score: expandedScore}
			} else {
				verts[len(verts)-1] = vertex{point: reflected, score: reflectedScore}
			}
		case reflectedScore < verts[len(verts)-2].score:
			// Better than the second worst: accept the reflection.
			verts[len(verts)-1] = vertex{point: reflected, score: reflectedScore}
		default:
			if err := s.contract(ctx, verts, centroid, reflected, reflectedScore); err != nil {
				return searchOutcome{reason: StopAborted, iterations: it - 1}, errors.Wrapf(err, "iteration %d", it)
			}
		}
	}

	warning := &ConvergenceWarning{
		Iterations: s.cfg.MaxIterations,
		Tolerance:  s.cfg.Tolerance,
	}

	return searchOutcome{
		reason:     StopMaxIterations,
		warning:    warning,
		iterations: s.cfg.MaxIterations,
	}, nil
}

// contract handles the iteration branch where the reflection did not beat
// the second-worst vertex: pull the proposal back toward the simplex, and
// if even that fails, shrink the whole simplex toward its best vertex.
func (s *simplexSearch) contract(ctx context.Context, verts []vertex, centroid, reflected ParameterVector, reflectedScore float64) error {
	worst := verts[len(verts)-1]

	if reflectedScore < worst.score {
		// Outside contraction, between the centroid and the reflection.
		contracted := s.clip(pointToward(centroid, reflected, contractionCoeff))

		contractedScore, err := s.evalPoint(ctx, contracted)
		if err != nil {
			return err
		}

		if contractedScore <= reflectedScore {
			verts[len(verts)-1] = vertex{point: contracted, score: contractedScore}

			return nil
		}
	} else {
		// Inside contraction, between the centroid and the worst vertex.
		contracted := s.clip(pointToward(centroid, worst.point, contractionCoeff))

		contractedScore, err := s.evalPoint(ctx, contracted)
		if err != nil {
			return err
		}

		if contractedScore < worst.score {
			verts[len(verts)-1] = vertex{point: contracted, score: contractedScore}

			return nil
		}
	}

	// Neither contraction improved the fit: shrink every vertex toward
	// the best one and rescore them.
	points := make([]ParameterVector, 0, len(verts)-1)

	for i := 1; i < len(verts); i++ {
		points = append(points, s.clip(pointToward(verts[0].point, verts[i].point, shrinkCoeff)))
	}

	scores, err := s.evaluateBatch(ctx, points)
	if err != nil {
		return err
	}

	for i := 1; i < len(verts); i++ {
		verts[i] = vertex{point: points[i-1], score: scores[i-1]}
	}

	return nil
}

// evalPoint scores one candidate point and folds the result into the
// best-seen tracking. A failed evaluation either becomes the penalty
// score or aborts the search, depending on the run policy.
func (s *simplexSearch) evalPoint(ctx context.Context, point ParameterVector) (float64, error) {
	score, err := s.objective(ctx, point)

	s.mu.Lock()
	s.evaluations++
	s.mu.Unlock()

	if err != nil {
		if s.cfg.PenalizeFailures {
			s.log.WithError(err).Warn("penalizing failed evaluation")

			return penaltyScore, nil
		}

		attachCandidate(err, point)

		return 0, err
	}

	s.updateBest(point, score)

	return score, nil
}

// evaluateBatch scores several candidate points concurrently, at most
// Workers at a time. The first failure cancels the rest of the batch.
func (s *simplexSearch) evaluateBatch(ctx context.Context, points []ParameterVector) ([]float64, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	scores := make([]float64, len(points))
	sem := make(chan struct{}, s.cfg.Workers)

	for i, point := range points {
		wg.Add(1)

		go func(i int, point ParameterVector) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-batchCtx.Done():
				return
			}

			score, err := s.evalPoint(batchCtx, point)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err

					cancel()
				}
				mu.Unlock()

				return
			}

			scores[i] = score
		}(i, point)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return scores, nil
}

// updateBest safely updates the best point and score if a new best is
// found.
func (s *simplexSearch) updateBest(point ParameterVector, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if score < s.bestScore {
		s.bestScore = score
		s.bestPoint = ParameterVector(copyFloats(point))
	}
}

// best returns the best point seen so far with its score and the number
// of objective evaluations performed.
func (s *simplexSearch) best() (ParameterVector, float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.bestPoint, s.bestScore, s.evaluations
}

// sendProgress sends a progress update without blocking the search.
func (s *simplexSearch) sendProgress(iteration int, spread float64) {
	if s.cfg.ProgressChan == nil {
		return
	}

	s.mu.Lock()

	update := ProgressUpdate{
		Iteration:       iteration,
		TotalIterations: s.cfg.MaxIterations,
		BestScore:       s.bestScore,
		SimplexSpread:   spread,
		Evaluations:     s.evaluations,
	}

	s.mu.Unlock()

	select {
	case s.cfg.ProgressChan <- update:
	default:
		// Skip update if channel is full.
	}
}

//////
// Factory.
//////

// newSimplexSearch builds a search around an encoded starting point. The
// configuration must already have its defaults filled in.
func newSimplexSearch(objective objectiveFunc, clip clipFunc, start ParameterVector, cfg OptimizeConfig, logEntry *log.Entry) *simplexSearch {
	return &simplexSearch{
		objective: objective,
		clip:      clip,
		cfg:       cfg,
		log:       logEntry,
		start:     ParameterVector(copyFloats(start)),
		bestScore: math.Inf(1),
	}
}

//////
// Helper functions.
//////

// initialSimplex builds dim+1 starting points: the start itself plus one
// point per axis with that coordinate nudged by a relative step, or by a
// small absolute step when the coordinate is zero.
func initialSimplex(start ParameterVector) []ParameterVector {
	points := make([]ParameterVector, len(start)+1)
	points[0] = ParameterVector(copyFloats(start))

	for i := range start {
		point := ParameterVector(copyFloats(start))

		if point[i] != 0 {
			point[i] *= 1 + initialPerturbation
		} else {
			point[i] = zeroPerturbation
		}

		points[i+1] = point
	}

	return points
}

// pointToward returns from + t*(to-from): the point reached by moving a
// fraction t of the way from one point toward another. Negative t moves
// away, t beyond one overshoots.
func pointToward(from, to ParameterVector, t float64) ParameterVector {
	out := make(ParameterVector, len(from))

	for i := range from {
		out[i] = from[i] + t*(to[i]-from[i])
	}

	return out
}

// centroidOf averages every vertex except the worst, which the caller has
// already sorted to the end.
func centroidOf(verts []vertex) ParameterVector {
	dim := len(verts) - 1
	centroid := make(ParameterVector, dim)

	for _, v := range verts[:dim] {
		for i, coord := range v.point {
			centroid[i] += coord
		}
	}

	for i := range centroid {
		centroid[i] /= float64(dim)
	}

	return centroid
}

// simplexDiameter measures the largest distance from the best vertex to
// any other vertex.
func simplexDiameter(verts []vertex) float64 {
	diameter := 0.0

	for _, v := range verts[1:] {
		if d := euclideanDistance(verts[0].point, v.point); d > diameter {
			diameter = d
		}
	}

	return diameter
}

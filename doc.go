// Package noisefit calibrates parametric noise models for quantum devices.
// It searches for the relaxation times, dephasing times, readout errors,
// and ZZ couplings under which simulated circuit outcomes best reproduce
// the outcome distributions measured on real hardware.
//
// # Features
//
// The package includes the following key features:
//
//   - Parametric Noise Models: Per-qubit T1 and T2 times, row-stochastic
//     readout confusion matrices, and pairwise ZZ coupling strengths
//   - Derivative-free Calibration: A downhill simplex search fits the
//     model without gradients, which suits noisy simulation objectives
//   - Selective Fitting: A field mask restricts the search to any subset
//     of the model, holding the remaining fields at their guessed values
//   - Multiple Divergence Metrics: Angle, Kullback-Leibler,
//     Jensen-Shannon, total variation, L2, and Kolmogorov-Smirnov
//     comparisons between outcome distributions
//   - Pluggable Simulation: Any backend implementing the Oracle interface
//     can score candidates; a reference density-matrix simulator is
//     included
//   - Concurrent Evaluation: Calibration circuits are simulated in
//     parallel with a bounded worker count and optional per-circuit
//     timeouts
//   - Progress Monitoring: Real-time updates on calibration progress via
//     channels
//   - Calibration Circuit Builders: Ready-made T1 decay and T2 Ramsey
//     sweeps with their delay metadata
//
// # Installation
//
// To install the package, use:
//
//	go get github.com/qsimtools/noisefit
//
// # Divergence Metrics
//
// The library provides several metrics for comparing a simulated outcome
// distribution against a measured one:
//
// 1. Angle divergence:
//
//   - Angle in degrees between the distributions viewed as vectors
//
//   - Insensitive to total counts, smooth far from the optimum
//
//   - Default choice, works well in most calibrations
//
//     fitted, diag, err := OptimizeNoiseModel(ctx, guess, runs, oracle, AngleDivergence, config)
//
// 2. Kullback-Leibler divergence:
//
//   - Information-theoretic distance, sharp near the optimum
//
//   - Smoothed so empty outcome bins stay finite
//
//     metric := KLDivergence(0) // 0 selects the default smoothing
//
// 3. Jensen-Shannon divergence:
//
//   - Symmetric, bounded variant of Kullback-Leibler
//
//     metric := JSDivergence(0)
//
// 4. Kolmogorov-Smirnov statistic:
//
//   - Largest gap between the two cumulative distributions
//
//   - Pairs with KSSameDistribution for accept/reject checks
//
//     metric := KSDivergence
//
// Total variation and L2 distance round out the set for callers that want
// plain geometric comparisons.
//
// # Configuration
//
// The OptimizeConfig struct allows customization of the calibration
// process:
//
//	type OptimizeConfig struct {
//	    Mask             FieldMask             // Which model fields to fit
//	    MaxIterations    int                   // Search iteration budget
//	    Tolerance        float64               // Convergence tolerance
//	    Workers          int                   // Concurrent circuit simulations
//	    Timeout          time.Duration         // Per-circuit oracle timeout
//	    PenalizeFailures bool                  // Keep searching past failures
//	    ProgressChan     chan<- ProgressUpdate // For progress monitoring
//	    Log              *logrus.Logger        // Run-level logger
//	}
//
// Recommended settings:
//   - MaxIterations: 100-500 (more dimensions need more iterations)
//   - Tolerance: 1e-6 (loosen for quick exploratory fits)
//   - Workers: match the calibration circuit count when memory allows
//
// # Thread Safety
//
// All components are designed to be thread-safe:
//   - Safe for concurrent calibration runs with different configs
//   - Models are immutable after construction and safe to share
//   - The reference simulator guards its sampling generator with a mutex
//   - Progress channel updates are properly synchronized
//
// # Contributing
//
// To contribute to the project:
//  1. Fork the repository
//  2. Clone your fork
//  3. Create a feature branch
//  4. Make your changes
//  5. Run tests
//  6. Create a pull request
package noisefit

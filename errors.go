package noisefit

import (
	"errors"
	"fmt"
)

//////
// Error taxonomy.
//////

// ValidationError reports a malformed noise model, distribution, or
// optimization input supplied by the caller. It is returned immediately at
// construction or call time and is never silently corrected.
//
// Fields:
// - Field: Name of the offending attribute (for example "t1_times")
// - Reason: Human-readable description of what is wrong with it
type ValidationError struct {
	// Field names the attribute that failed validation.
	Field string

	// Reason describes the failure.
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EncodingError reports a parameter mask that cannot be applied to a noise
// model, for example an empty mask or one carrying unknown field bits. It is
// returned at the encode boundary, never from inside the search loop.
type EncodingError struct {
	// Mask is the mask that could not be applied.
	Mask FieldMask

	// Reason describes the failure.
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode with mask %s: %s", e.Mask, e.Reason)
}

// DecodingError reports a parameter vector whose length does not match the
// dimensionality implied by the mask and the base model. It is returned at
// the decode boundary, never from inside the search loop.
type DecodingError struct {
	// Want is the expected vector length for the mask.
	Want int

	// Got is the length of the vector that was supplied.
	Got int
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("cannot decode parameter vector: expected %d values, got %d", e.Want, e.Got)
}

// SimulationError reports that the simulation oracle failed to produce a
// distribution for one circuit of an evaluation, including timeouts. The
// evaluator never swallows it: a single failed circuit invalidates the whole
// candidate, so the error propagates up with enough context to reproduce the
// failure.
//
// Fields:
// - Circuit: Zero-based index of the failing circuit within the batch
// - CircuitName: Name of the failing circuit, if it has one
// - Candidate: Parameter vector being evaluated when the failure occurred.
//   Filled in by the optimizer; nil when the evaluator was called directly.
// - Err: The underlying oracle failure (also available through Unwrap)
type SimulationError struct {
	// Circuit is the zero-based index of the failing circuit.
	Circuit int

	// CircuitName is the name of the failing circuit, possibly empty.
	CircuitName string

	// Candidate is the parameter vector under evaluation, when known.
	Candidate ParameterVector

	// Err is the underlying cause.
	Err error
}

func (e *SimulationError) Error() string {
	if e.CircuitName != "" {
		return fmt.Sprintf("simulation failed on circuit %d (%s): %v", e.Circuit, e.CircuitName, e.Err)
	}

	return fmt.Sprintf("simulation failed on circuit %d: %v", e.Circuit, e.Err)
}

// Unwrap exposes the underlying oracle failure so errors.Is and errors.As
// can reach causes such as context.DeadlineExceeded.
func (e *SimulationError) Unwrap() error {
	return e.Err
}

// ConvergenceWarning signals that the optimizer exhausted its iteration
// budget before the tolerance criterion fired. It is carried in Diagnostics
// rather than returned as an error because the best-effort result is still
// usable.
type ConvergenceWarning struct {
	// Iterations is the budget that was exhausted.
	Iterations int

	// Tolerance is the criterion that was not met.
	Tolerance float64
}

func (w *ConvergenceWarning) String() string {
	return fmt.Sprintf("stopped after %d iterations without reaching tolerance %g", w.Iterations, w.Tolerance)
}

// attachCandidate records the parameter vector under evaluation on the
// SimulationError in err's chain, if there is one. The evaluator does not
// know which candidate it is scoring, so the search loop fills this in
// before surfacing the error.
func attachCandidate(err error, candidate ParameterVector) {
	var simErr *SimulationError
	if errors.As(err, &simErr) {
		simErr.Candidate = append(ParameterVector(nil), candidate...)
	}
}

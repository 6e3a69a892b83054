package noisefit

import "fmt"

//////
// Const, vars, types.
//////

// rzGateLength is the fixed duration in nanoseconds of a phase rotation,
// which devices realize as a fast frame update rather than a full pulse.
const rzGateLength = 10.0

// GateKind enumerates the gate set the reference oracle understands.
type GateKind int

const (
	// GateIdentity is an idle period of one gate length. Calibration
	// sequences use runs of identity gates as their delay element.
	GateIdentity GateKind = iota

	// GateX is a bit flip.
	GateX

	// GateHadamard moves a qubit between the computational basis and the
	// superposition basis.
	GateHadamard

	// GateRZ is a phase rotation by Gate.Phase radians.
	GateRZ
)

func (k GateKind) String() string {
	switch k {
	case GateIdentity:
		return "id"
	case GateX:
		return "x"
	case GateHadamard:
		return "h"
	case GateRZ:
		return "rz"
	default:
		return fmt.Sprintf("gate(%d)", int(k))
	}
}

// Gate is one scheduled operation on a single qubit.
type Gate struct {
	// Kind selects the operation.
	Kind GateKind

	// Target is the qubit the gate acts on.
	Target int

	// Phase is the rotation angle in radians, used by GateRZ only.
	Phase float64
}

// Circuit is an ordered gate sequence on a fixed-size register. Every
// qubit is measured at the end of the circuit; there is no explicit
// measurement gate.
type Circuit struct {
	// Name identifies the circuit in results, logs, and errors.
	Name string

	// Qubits is the register size.
	Qubits int

	// Gates is the sequence, applied in order per qubit.
	Gates []Gate

	// GateLength is the duration in nanoseconds of each gate on this
	// circuit. Zero means the oracle's configured default applies.
	GateLength float64
}

// NewCircuit returns an empty circuit on the given register size.
func NewCircuit(name string, qubits int) *Circuit {
	return &Circuit{Name: name, Qubits: qubits}
}

// X appends a bit flip on one qubit.
func (c *Circuit) X(qubit int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateX, Target: qubit})

	return c
}

// H appends a Hadamard on one qubit.
func (c *Circuit) H(qubit int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateHadamard, Target: qubit})

	return c
}

// Identity appends one gate length of idle time on one qubit.
func (c *Circuit) Identity(qubit int) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateIdentity, Target: qubit})

	return c
}

// RZ appends a phase rotation by phase radians on one qubit.
func (c *Circuit) RZ(qubit int, phase float64) *Circuit {
	c.Gates = append(c.Gates, Gate{Kind: GateRZ, Target: qubit, Phase: phase})

	return c
}

// gateDuration resolves the duration of one gate in nanoseconds given the
// oracle's default gate length.
func (c *Circuit) gateDuration(g Gate, defaultGateLength float64) float64 {
	if g.Kind == GateRZ {
		return rzGateLength
	}

	if c.GateLength > 0 {
		return c.GateLength
	}

	return defaultGateLength
}

//////
// Calibration circuit builders.
//////

// T1Circuits builds the inversion-recovery sweep used to characterize T1
// relaxation: every qubit is excited with an X gate, idles for a growing
// number of identity gates, and is measured. The excited population decays
// as exp(-delay/T1).
//
// Parameters:
// - numGates: Number of identity gates per sweep point
// - gateLength: Duration of one gate in nanoseconds
// - numQubits: Register size; every qubit runs the sequence in parallel
//
// Returns:
// - []Circuit: One circuit per sweep point
// - []float64: The matching idle delays in nanoseconds (numGates[i] times
//   gateLength), the x-axis a decay fit would use
func T1Circuits(numGates []int, gateLength float64, numQubits int) ([]Circuit, []float64) {
	circuits := make([]Circuit, 0, len(numGates))
	delays := make([]float64, 0, len(numGates))

	for _, k := range numGates {
		c := NewCircuit(fmt.Sprintf("t1_recovery_%d", k), numQubits)
		c.GateLength = gateLength

		for q := 0; q < numQubits; q++ {
			c.X(q)
		}

		for i := 0; i < k; i++ {
			for q := 0; q < numQubits; q++ {
				c.Identity(q)
			}
		}

		circuits = append(circuits, *c)
		delays = append(delays, float64(k)*gateLength)
	}

	return circuits, delays
}

// T2RamseyCircuits builds the Ramsey sweep used to characterize T2
// dephasing: every qubit is put into superposition, idles, and is rotated
// back before measurement. The ground-state probability follows
// (1 + exp(-delay/T2)) / 2.
//
// The parameters and return values mirror T1Circuits, except that the
// returned delays are (numGates[i]+1) times gateLength: the superposition
// keeps dephasing through the closing rotation's own gate window, so that
// window belongs to the delay a decay fit would use.
func T2RamseyCircuits(numGates []int, gateLength float64, numQubits int) ([]Circuit, []float64) {
	circuits := make([]Circuit, 0, len(numGates))
	delays := make([]float64, 0, len(numGates))

	for _, k := range numGates {
		c := NewCircuit(fmt.Sprintf("t2_ramsey_%d", k), numQubits)
		c.GateLength = gateLength

		for q := 0; q < numQubits; q++ {
			c.H(q)
		}

		for i := 0; i < k; i++ {
			for q := 0; q < numQubits; q++ {
				c.Identity(q)
			}
		}

		for q := 0; q < numQubits; q++ {
			c.H(q)
		}

		circuits = append(circuits, *c)
		delays = append(delays, float64(k+1)*gateLength)
	}

	return circuits, delays
}

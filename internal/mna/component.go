package mna

// Component is the contract every MNA element implements: it stamps its
// contribution into the system matrix and right-hand side vector for the
// current switch state. Full electrical component physics (resistor,
// inductor, source models) are external collaborators; this interface is
// the thin seam they plug into.
type Component interface {
	// ID returns the component's unique name within its subsystem.
	ID() string
	// ApplySystemMatrixStamp adds this component's admittance contribution
	// into m for the current step.
	ApplySystemMatrixStamp(m *Matrix[complex128])
	// ApplyRightSideVectorStamp adds this component's current-source
	// contribution into v for the current step.
	ApplyRightSideVectorStamp(v Vector[complex128])
}

// Switch is a Component that can also report its open/closed state,
// contributing one bit to a SwitchKey.
type Switch interface {
	Component
	// Closed reports whether the switch is currently closed.
	Closed() bool
}

// Harmonic is a Component that stamps a distinct contribution per harmonic
// frequency index, for the harmonic-parallel solve mode.
type Harmonic interface {
	Component
	// ApplyHarmonicStamp stamps this component's contribution for harmonic
	// index h into m/v instead of the fundamental-frequency stamp.
	ApplyHarmonicStamp(h int, m *Matrix[complex128], v Vector[complex128])
	// HarmonicCount returns how many harmonic indices this component
	// contributes to.
	HarmonicCount() int
}

// Signal is a Component with no electrical stamp of its own — a
// decoupling-line endpoint or other signal-only task — that only
// participates in the task graph via attribute reads/writes.
type Signal interface {
	ID() string
}

// RealComponent is a Component that also stamps the real-domain (float64)
// system matrix and right-hand side, the EMT/DC scalar variant Solver.
// SolveReal runs instead of the default complex128 phasor path.
type RealComponent interface {
	Component
	// ApplyRealSystemMatrixStamp adds this component's admittance
	// contribution into m for the current step, in the real domain.
	ApplyRealSystemMatrixStamp(m *Matrix[float64])
	// ApplyRealRightSideVectorStamp adds this component's current-source
	// contribution into v for the current step, in the real domain.
	ApplyRealRightSideVectorStamp(v Vector[float64])
}

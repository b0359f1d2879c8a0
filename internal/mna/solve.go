package mna

import "fmt"

// Solver drives the assembly/factorize/solve cycle for one subsystem: it
// stamps the switched system matrix and right-hand side from the
// registry's components, reuses a cached factorization for the current
// switch state, and solves for the node voltage vector.
//
// The original's eight-step initialization
// (identifyTopologyObjects/collectVirtualNodes/assignMatrixNodeIndices/
// createEmptyVectors/initializeSystemWithPrecomputedMatrices/
// updateSwitchStatus/...) is collapsed here into NewSolver (topology and
// node-index assignment are the external component layer's responsibility,
// per this module's scope) plus the lazy per-switch-state factorization
// SwitchedSystem already provides.
type Solver struct {
	Size     int
	Registry *Registry
	system   *SwitchedSystem
}

// NewSolver returns a Solver for an n-node (including ground-referenced
// auxiliary rows for voltage sources) subsystem backed by registry.
func NewSolver(n int, registry *Registry) *Solver {
	return &Solver{Size: n, Registry: registry, system: NewSwitchedSystem(n)}
}

func (s *Solver) assemble() *Matrix[complex128] {
	m := NewMatrix[complex128](s.Size, s.Size)
	for _, c := range s.Registry.Components() {
		c.ApplySystemMatrixStamp(m)
	}
	return m
}

// Solve stamps the right-hand side for the current component states,
// factorizes (or reuses a cached factorization for) the current switch
// state, and returns the solved node-voltage/branch-current vector.
func (s *Solver) Solve() (Vector[complex128], error) {
	key := s.Registry.SwitchState()
	lu, err := s.system.EnsureComplex(key, s.assemble)
	if err != nil {
		return nil, fmt.Errorf("mna: factorizing switch state %d: %w", key, err)
	}

	v := NewVector[complex128](s.Size)
	for _, c := range s.Registry.Components() {
		c.ApplyRightSideVectorStamp(v)
	}

	x, err := lu.Solve(v)
	if err != nil {
		return nil, fmt.Errorf("mna: solving switch state %d: %w", key, err)
	}
	return x, nil
}

func (s *Solver) assembleReal() *Matrix[float64] {
	m := NewMatrix[float64](s.Size, s.Size)
	for _, c := range s.Registry.Reals() {
		c.ApplyRealSystemMatrixStamp(m)
	}
	return m
}

// SolveReal runs the real-domain (float64) EMT/DC solve path over every
// registered RealComponent, the gonum-backed dense factorization
// SwitchedSystem.EnsureReal caches per switch state, parallel to Solve's
// complex128 phasor path.
func (s *Solver) SolveReal() (Vector[float64], error) {
	key := s.Registry.SwitchState()
	lu, err := s.system.EnsureReal(key, s.assembleReal)
	if err != nil {
		return nil, fmt.Errorf("mna: factorizing real switch state %d: %w", key, err)
	}

	v := NewVector[float64](s.Size)
	for _, c := range s.Registry.Reals() {
		c.ApplyRealRightSideVectorStamp(v)
	}

	x, err := lu.Solve(v)
	if err != nil {
		return nil, fmt.Errorf("mna: solving real switch state %d: %w", key, err)
	}
	return x, nil
}

// SolveHarmonics runs one solve per harmonic index in [0, count), the
// harmonic-parallel mode in which each frequency gets its own independent
// system matrix and right-hand side built from every registered Harmonic
// component's per-harmonic stamp.
func (s *Solver) SolveHarmonics(count int) ([]Vector[complex128], error) {
	harmonics := s.Registry.Harmonics()
	out := make([]Vector[complex128], count)
	for h := 0; h < count; h++ {
		m := NewMatrix[complex128](s.Size, s.Size)
		v := NewVector[complex128](s.Size)
		for _, c := range harmonics {
			c.ApplyHarmonicStamp(h, m, v)
		}
		lu, err := Decompose(m)
		if err != nil {
			return nil, fmt.Errorf("mna: factorizing harmonic %d: %w", h, err)
		}
		x, err := lu.Solve(v)
		if err != nil {
			return nil, fmt.Errorf("mna: solving harmonic %d: %w", h, err)
		}
		out[h] = x
	}
	return out, nil
}

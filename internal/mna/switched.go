package mna

// SwitchKey is a bitset encoding of every switch's open/closed state,
// indexing the precomputed factorization table. Bit i corresponds to the
// i-th registered Switch component.
type SwitchKey uint64

// SwitchedSystem holds one system matrix and one cached factorization per
// reachable switch-state key, avoiding a refactorization on every switching
// event: the original's switchedMatrixStamp/factorization table.
type SwitchedSystem struct {
	size         int
	realTable    map[SwitchKey]*RealFactorization
	complexTable map[SwitchKey]*GenericLU[complex128]
}

// NewSwitchedSystem returns an empty table over an n x n system.
func NewSwitchedSystem(n int) *SwitchedSystem {
	return &SwitchedSystem{
		size:         n,
		realTable:    make(map[SwitchKey]*RealFactorization),
		complexTable: make(map[SwitchKey]*GenericLU[complex128]),
	}
}

// EnsureComplex returns the cached complex128 factorization for key,
// computing and caching it from assemble if this is the first time key is
// seen. assemble stamps the full system matrix for the given switch state.
func (s *SwitchedSystem) EnsureComplex(key SwitchKey, assemble func() *Matrix[complex128]) (*GenericLU[complex128], error) {
	if lu, ok := s.complexTable[key]; ok {
		return lu, nil
	}
	lu, err := Decompose(assemble())
	if err != nil {
		return nil, err
	}
	s.complexTable[key] = lu
	return lu, nil
}

// EnsureReal returns the cached float64 factorization for key, computing
// and caching it from assemble if this is the first time key is seen.
func (s *SwitchedSystem) EnsureReal(key SwitchKey, assemble func() *Matrix[float64]) (*RealFactorization, error) {
	if lu, ok := s.realTable[key]; ok {
		return lu, nil
	}
	lu, err := FactorizeReal(assemble())
	if err != nil {
		return nil, err
	}
	s.realTable[key] = lu
	return lu, nil
}

// Forget drops a cached factorization, forcing recomputation the next time
// key is requested. Used when a component's topology (not just switch
// state) changes between steps.
func (s *SwitchedSystem) Forget(key SwitchKey) {
	delete(s.realTable, key)
	delete(s.complexTable, key)
}

package mna

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vk/gridflow/internal/ctxlog"
)

// CapacityError reports a registry state that exceeds a configured bound,
// such as more switches than the solve core can key a factorization cache
// on.
type CapacityError struct {
	Msg string
}

func (e *CapacityError) Error() string { return e.Msg }

// maxSwitchBits is the bit width of SwitchKey; registering more switches
// than this would silently overflow the bitset SwitchState builds.
const maxSwitchBits = 64

// Registry is a tagged-variant capability registry: components self-declare
// which capabilities they support at registration time, and the solver
// iterates pre-filtered slices instead of type-asserting each component on
// every step. This generalizes the teacher's RegisterRunner/
// RegisterAssetHandler panic-on-duplicate registration pattern from HCL
// runner/asset names to MNA component capability tags.
type Registry struct {
	mu sync.RWMutex

	logger *slog.Logger

	byID       map[string]Component
	components []Component
	switches   []Switch
	harmonics  []Harmonic
	signals    []Signal
	reals      []RealComponent
}

// NewRegistry returns an empty component registry. ctx supplies the
// context-carried logger every registration call logs through.
func NewRegistry(ctx context.Context) *Registry {
	return &Registry{byID: make(map[string]Component), logger: ctxlog.FromContext(ctx)}
}

// RegisterComponent adds c to the registry, automatically extending it into
// the switches/harmonics/reals slices if c also implements those
// interfaces. Registering the same component id twice is a programmer
// error and panics.
func (r *Registry) RegisterComponent(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID()]; exists {
		panic(fmt.Sprintf("mna: component %q already registered", c.ID()))
	}
	r.logger.Debug("mna: registering component", "id", c.ID())

	r.byID[c.ID()] = c
	r.components = append(r.components, c)
	if sw, ok := c.(Switch); ok {
		r.switches = append(r.switches, sw)
	}
	if h, ok := c.(Harmonic); ok {
		r.harmonics = append(r.harmonics, h)
	}
	if rc, ok := c.(RealComponent); ok {
		r.reals = append(r.reals, rc)
	}
}

// RegisterSignal adds a signal-only component (no electrical stamp).
func (r *Registry) RegisterSignal(s Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

// Components returns every registered MNA component, in registration order.
func (r *Registry) Components() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Component(nil), r.components...)
}

// Switches returns every registered switch-capable component.
func (r *Registry) Switches() []Switch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Switch(nil), r.switches...)
}

// Harmonics returns every registered harmonic-capable component.
func (r *Registry) Harmonics() []Harmonic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Harmonic(nil), r.harmonics...)
}

// Reals returns every registered real-domain-capable component.
func (r *Registry) Reals() []RealComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RealComponent(nil), r.reals...)
}

// SwitchState computes the current SwitchKey by reading every registered
// switch's Closed() state, bit i set for switches[i].Closed().
func (r *Registry) SwitchState() SwitchKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var key SwitchKey
	for i, sw := range r.switches {
		if sw.Closed() {
			key |= 1 << uint(i)
		}
	}
	return key
}

// ValidateSwitchBound reports a CapacityError if the number of registered
// switches exceeds bound (the scenario's SWITCH_NUM configuration, spec.md
// §3/§4.6 step 1) or the SwitchKey bitset's own 64-bit width, whichever is
// smaller.
func (r *Registry) ValidateSwitchBound(bound int) error {
	r.mu.RLock()
	n := len(r.switches)
	r.mu.RUnlock()

	limit := bound
	if limit <= 0 || limit > maxSwitchBits {
		limit = maxSwitchBits
	}
	if n > limit {
		return &CapacityError{Msg: fmt.Sprintf("mna: %d switches registered exceeds the bound of %d", n, limit)}
	}
	return nil
}

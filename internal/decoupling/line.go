// Package decoupling implements the traveling-wave decoupling line used to
// break a large system into independently solvable subsystems: each line
// end looks like a resistor plus a current source driven by a delayed,
// interpolated sample of both ends' voltage and current.
package decoupling

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gammazero/deque"

	"github.com/vk/gridflow/internal/mna"
)

// Params are the physical parameters of one decoupling line.
type Params struct {
	R, L, C float64
	// NominalFrequencyHz is used for the steady-state phase correction
	// applied on every step after the first, the same 50 Hz assumption the
	// original hard-codes.
	NominalFrequencyHz float64
}

// CapacityError reports a decoupling line whose propagation delay cannot be
// represented at the configured time step.
type CapacityError struct {
	Msg string
}

func (e *CapacityError) Error() string { return e.Msg }

// sample is one historical (voltage, current) pair stored in a ring buffer
// for interpolated delayed lookup.
type sample struct {
	voltage complex128
	current complex128
}

// Line is one decoupling line: a non-split Line owns both electrical ends
// locally (both ring buffers are advanced by this process's own solves); a
// split Line owns only its local end, and the other end's ring buffer is
// populated from a remote rank via SetTailValues.
type Line struct {
	id     string
	params Params

	// surgeImpedance Z = sqrt(L/C); delay tau = sqrt(L*C).
	surgeImpedance float64
	delay          float64
	// bufferLen is N = ceil(tau/dt); alpha is the fractional interpolation
	// weight between the two bracketing ring-buffer samples.
	bufferLen int
	alpha     float64

	localRing  *deque.Deque[sample]
	remoteRing *deque.Deque[sample]

	// split reports whether this Line owns only its own electrical end and
	// needs the other end's history delivered across a rank boundary via
	// SetTailValues, rather than computed locally via PostStepRemote.
	split bool

	nodeLocal, nodeRemote int // matrix node indices; -1 for ground
	dt                    float64
	stepCount             int

	// lastSrcLocal/lastSrcRemote are the current-source values computed by
	// the most recent ApplyRightSideVectorStamp call, consumed by the
	// matching PostStep/PostStepRemote call the way the original's step()
	// and postStep() share mSrcCur1Ref/mSrcCur2Ref across the same tick.
	lastSrcLocal, lastSrcRemote complex128
}

// New returns a decoupling line for the given parameters and simulation
// time step dt, with node indices for the two electrical ends it connects.
// split selects whether the far end is owned by a different rank. It
// returns a CapacityError if the line's propagation delay is smaller than
// dt, the same bound the original enforces before a line can be simulated.
func New(id string, p Params, dt float64, nodeLocal, nodeRemote int, split bool) (*Line, error) {
	z := math.Sqrt(p.L / p.C)
	tau := math.Sqrt(p.L * p.C)
	if tau < dt {
		return nil, &CapacityError{Msg: fmt.Sprintf("decoupling: line %q delay %g is smaller than time step %g", id, tau, dt)}
	}

	n := int(math.Ceil(tau / dt))
	if n < 1 {
		n = 1
	}
	alpha := 1 - (float64(n) - tau/dt)

	l := &Line{
		id:             id,
		params:         p,
		surgeImpedance: z,
		delay:          tau,
		bufferLen:      n,
		alpha:          alpha,
		localRing:      newRing(n),
		remoteRing:     newRing(n),
		split:          split,
		nodeLocal:      nodeLocal,
		nodeRemote:     nodeRemote,
		dt:             dt,
	}
	return l, nil
}

func newRing(n int) *deque.Deque[sample] {
	r := deque.New[sample](n)
	for i := 0; i < n; i++ {
		r.PushBack(sample{})
	}
	return r
}

// interpolate returns the linearly-interpolated historical sample between
// the two ring-buffer entries bracketing the required delay: far is N steps
// old and near N-1, and alpha = tau/dt - (N-1) is the weight of far.
func (l *Line) interpolate(r *deque.Deque[sample]) sample {
	far := r.At(0)
	near := r.At(1)
	return sample{
		voltage: complex(l.alpha, 0)*far.voltage + complex(1-l.alpha, 0)*near.voltage,
		current: complex(l.alpha, 0)*far.current + complex(1-l.alpha, 0)*near.current,
	}
}

// ID identifies this line end for registration and logging.
func (l *Line) ID() string { return l.id }

// seriesImpedance is Z + R/4, the lumped series resistance split four ways
// across the line's two end resistors.
func (l *Line) seriesImpedance() complex128 {
	return complex(l.surgeImpedance+l.params.R/4, 0)
}

// ApplySystemMatrixStamp stamps the Norton-equivalent shunt conductance
// 1/(Z+R/4) at each locally-owned node. A non-split line owns both ends and
// stamps both; a split line stamps only its local end.
func (l *Line) ApplySystemMatrixStamp(m *mna.Matrix[complex128]) {
	y := 1 / l.seriesImpedance()
	if l.nodeLocal >= 0 {
		m.Add(l.nodeLocal, l.nodeLocal, y)
	}
	if !l.split && l.nodeRemote >= 0 {
		m.Add(l.nodeRemote, l.nodeRemote, y)
	}
}

// ApplyRightSideVectorStamp injects the traveling-wave equivalent current
// source computed from both ends' delayed, interpolated history. On the
// very first step the line has no real history yet, so it falls back to
// the same notional estimate the original uses; every later step computes
// the coupled two-end update and applies the per-tick phase correction
// exp(-j*2*pi*50*tau), matching original_source's step().
func (l *Line) ApplyRightSideVectorStamp(v mna.Vector[complex128]) {
	local := l.interpolate(l.localRing)
	remote := l.interpolate(l.remoteRing)
	zp := l.seriesImpedance()

	l.lastSrcLocal = l.sourceCurrent(local, remote, zp)
	if l.nodeLocal >= 0 {
		v[l.nodeLocal] += l.lastSrcLocal
	}

	if !l.split {
		l.lastSrcRemote = l.sourceCurrent(remote, local, zp)
		if l.nodeRemote >= 0 {
			v[l.nodeRemote] += l.lastSrcRemote
		}
	}
}

// sourceCurrent computes one end's equivalent current source from its own
// interpolated history (own) and the other end's (other).
func (l *Line) sourceCurrent(own, other sample, zp complex128) complex128 {
	if l.stepCount == 0 {
		return own.current - own.voltage/zp
	}

	denom := zp * zp
	zMinusR4 := complex(l.surgeImpedance-l.params.R/4, 0)
	z := complex(l.surgeImpedance, 0)
	r4 := complex(l.params.R/4, 0)

	src := -z/denom*(other.voltage+zMinusR4*other.current) - r4/denom*(own.voltage+zMinusR4*own.current)
	return src * l.phaseCorrection()
}

// phaseCorrection is exp(-j*2*pi*f*tau), the steady-state phase shift the
// original applies to every per-tick (non-initial) source-current update.
func (l *Line) phaseCorrection() complex128 {
	freq := l.params.NominalFrequencyHz
	if freq == 0 {
		freq = 50
	}
	return cmplx.Exp(complex(0, -2*math.Pi*freq*l.delay))
}

// PostStep advances the local-end ring buffer with the node voltage the
// host subsystem just solved for, deriving the matching current sample
// from this line's own shunt admittance and the source current computed by
// the preceding ApplyRightSideVectorStamp call, the way the original's
// postStep() derives mVolt1/mCur1 from mRes1's observed voltage/current.
func (l *Line) PostStep(localVoltage complex128) {
	l.localRing.PopFront()
	l.localRing.PushBack(l.endSample(localVoltage, l.lastSrcLocal))
	l.stepCount++
}

// PostStepRemote advances the remote-end ring buffer directly from this
// process's own solve, for a non-split line whose other end never leaves
// the local rank. Split lines must use SetTailValues instead.
func (l *Line) PostStepRemote(remoteVoltage complex128) {
	if l.split {
		panic("decoupling: PostStepRemote called on a split line; use SetTailValues")
	}
	l.remoteRing.PopFront()
	l.remoteRing.PushBack(l.endSample(remoteVoltage, l.lastSrcRemote))
}

func (l *Line) endSample(nodeVoltage, srcCurrent complex128) sample {
	v := -nodeVoltage
	cur := -nodeVoltage/l.seriesImpedance() + srcCurrent
	return sample{voltage: v, current: cur}
}

// TailValues returns the local ring buffer's newest sample (voltage then
// current), the payload sent to the line's remote counterpart once per
// exchange for a split line.
func (l *Line) TailValues() [2]complex128 {
	tail := l.localRing.At(l.localRing.Len() - 1)
	return [2]complex128{tail.voltage, tail.current}
}

// SetTailValues installs a remote rank's tail sample as this line's next
// remote-ring entry, the receive half of the exchange for a split line.
func (l *Line) SetTailValues(voltage, current complex128) {
	l.remoteRing.PopFront()
	l.remoteRing.PushBack(sample{voltage: voltage, current: current})
}

// SplitLine returns two independent Line instances, one per electrical
// end, sharing the same physical parameters but each owning only its own
// local node. Used when a line's two ends are assigned to different
// subsystems so each half can be solved and exchanged independently.
func SplitLine(id string, p Params, dt float64, nodeA, nodeB int) (a, b *Line, err error) {
	a, err = New(id+".a", p, dt, nodeA, -1, true)
	if err != nil {
		return nil, nil, err
	}
	b, err = New(id+".b", p, dt, nodeB, -1, true)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

package transport

import (
	"context"
	"sync"
)

// localHub is the shared state behind every rank's *Local handle for one
// simulation run. It exists so Barrier/Broadcast can rendezvous all ranks
// without an external process, the in-process analog of an MPI communicator.
type localHub struct {
	mu   sync.Mutex
	size int

	barrierGen  int
	barrierCond *sync.Cond
	arrived     int

	bcastGen    int
	bcastCond   *sync.Cond
	bcastIn     [][]byte
	bcastWaiting int
}

func newLocalHub(size int) *localHub {
	h := &localHub{size: size}
	h.barrierCond = sync.NewCond(&h.mu)
	h.bcastCond = sync.NewCond(&h.mu)
	h.bcastIn = make([][]byte, size)
	return h
}

// Local is an in-process Fabric implementation: every rank is a goroutine
// sharing one localHub. It is what internal/executor.Distributed's tests
// and single-binary multi-rank runs use; true multi-process deployment
// uses SocketRelay instead.
type Local struct {
	hub  *localHub
	rank int
	key  string
}

// NewLocalFabric returns size Fabric handles, one per rank, sharing a single
// in-process hub. key identifies the shared hub for the refcounted
// acquire/finalize bookkeeping; each returned handle holds one reference.
func NewLocalFabric(key string, size int) []Fabric {
	hub := newLocalHub(size)
	fabrics := make([]Fabric, size)
	for r := 0; r < size; r++ {
		f := &Local{hub: hub, rank: r, key: key}
		_ = shared.acquire(key, func() error { return nil })
		fabrics[r] = f
	}
	return fabrics
}

func (f *Local) Rank() int { return f.rank }
func (f *Local) Size() int { return f.hub.size }

func (f *Local) Barrier(ctx context.Context) error {
	h := f.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := h.barrierGen
	h.arrived++
	if h.arrived == h.size {
		h.arrived = 0
		h.barrierGen++
		h.barrierCond.Broadcast()
		return nil
	}
	for h.barrierGen == gen {
		h.barrierCond.Wait()
		if ctx.Err() != nil {
			return &TransportError{Op: "barrier", Err: ctx.Err()}
		}
	}
	return nil
}

func (f *Local) Broadcast(ctx context.Context, payload []byte) ([][]byte, error) {
	h := f.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	gen := h.bcastGen
	h.bcastIn[f.rank] = payload
	h.bcastWaiting++

	if h.bcastWaiting == h.size {
		out := make([][]byte, h.size)
		copy(out, h.bcastIn)
		h.bcastWaiting = 0
		h.bcastGen++
		h.bcastCond.Broadcast()
		return out, nil
	}

	for h.bcastGen == gen {
		h.bcastCond.Wait()
		if ctx.Err() != nil {
			return nil, &TransportError{Op: "broadcast", Err: ctx.Err()}
		}
	}
	out := make([][]byte, h.size)
	copy(out, h.bcastIn)
	return out, nil
}

func (f *Local) Finalize() error {
	return shared.release(f.key, func() error { return nil })
}

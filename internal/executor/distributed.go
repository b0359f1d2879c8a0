package executor

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/vk/gridflow/internal/decoupling"
	"github.com/vk/gridflow/internal/schedule"
	"github.com/vk/gridflow/internal/transport"
)

// endpointStride is the wire size of one transport.EndpointPayload carrying
// a split decoupling-line's tail index plus its 2 complex128 samples.
const endpointStride = 4 + 2*16

// ExchangeLine pairs one decoupling-line endpoint with the ranks that own
// its two sides, the unit of work the distributed executor's exchange
// phase moves once per tick. Every rank constructs the same Lines slice —
// it is derived deterministically from the scenario's subsystem
// assignment, the same way every rank independently computes ownerOf — so
// any rank can compute any other rank's outgoing payload size without
// asking it.
type ExchangeLine struct {
	Line       *decoupling.Line
	LocalRank  int
	RemoteRank int
}

// Distributed runs a schedule across a fleet of ranks, each owning a subset
// of subsystems (subsystem ownership assigned by hash(subsystem) mod
// fabric.Size()). Within a rank, every owned level runs to completion with
// no inter-level synchronization; only after all local work for the tick
// is done does the rank take part in the cross-rank decoupling-line tail
// exchange, the two-phase structure the spec's distributed executor uses.
// Unlike Threaded's single-process errgroup fan-out, ranks may be separate
// processes, so the only synchronization primitive available is the
// fabric's collective operations.
type Distributed struct {
	Schedule *schedule.Schedule
	Fabric   transport.Fabric
	// Lines is the full, rank-independent set of decoupling-line endpoints
	// that need cross-rank exchange. Callers set it after construction,
	// the same way tests already reassign Schedule.
	Lines []ExchangeLine
	rank  int
	size  int
}

// NewDistributed returns a Distributed executor for s, using fabric for
// cross-rank synchronization. rank is this process's rank within fabric
// (normally fabric.Rank(), accepted explicitly so tests can construct an
// executor against a fabric handle obtained separately).
func NewDistributed(s *schedule.Schedule, fabric transport.Fabric, rank int) *Distributed {
	return &Distributed{Schedule: s, Fabric: fabric, rank: rank, size: fabric.Size()}
}

// owns reports whether this rank is responsible for running tasks belonging
// to subsystem.
func (e *Distributed) owns(subsystem string) bool {
	if e.size <= 1 {
		return true
	}
	return ownerOf(subsystem, e.size) == e.rank
}

func ownerOf(subsystem string, size int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(subsystem))
	return int(h.Sum32() % uint32(size))
}

// Owner returns the rank responsible for subsystem out of size ranks,
// exported so callers assembling ExchangeLine pairs (deciding whether a
// decoupling line needs a split endpoint) can match the executor's own
// ownership assignment without duplicating the hash.
func Owner(subsystem string, size int) int {
	return ownerOf(subsystem, size)
}

// Step runs every task this rank owns across every level, with no
// inter-level barrier since local execution within a rank is sequential,
// then performs the exchange phase: for each source rank r in turn, every
// rank barriers, r's outgoing decoupling-line tails are broadcast, every
// rank barriers again, non-owning ranks decode the result into their local
// "other end" line state, and every rank barriers a third time before
// moving to the next source rank. A rank with no owned subsystems and no
// exchange lines still takes part in every barrier and broadcast.
func (e *Distributed) Step(ctx context.Context, time float64, step int) error {
	for _, level := range e.Schedule.Levels {
		for _, t := range level {
			if !e.owns(t.Subsystem) {
				continue
			}
			if err := t.Run(time, step); err != nil {
				return fmt.Errorf("rank %d: task %s failed at step %d: %w", e.rank, t.ID, step, err)
			}
		}
	}

	if e.size > 1 {
		if err := e.exchange(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// exchange runs the three-barrier-per-source-rank decoupling-line tail
// broadcast, the direct analog of the original's MPILevelScheduler rank
// loop built on transport.Fabric.Barrier/Broadcast instead of raw MPI
// collectives.
func (e *Distributed) exchange(ctx context.Context, step int) error {
	for r := 0; r < e.size; r++ {
		if err := e.Fabric.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d: exchange barrier before broadcast from rank %d at step %d: %w", e.rank, r, step, err)
		}

		var payload []byte
		if e.rank == r {
			payload = e.encodeOutgoing(r)
		}

		received, err := e.Fabric.Broadcast(ctx, payload)
		if err != nil {
			return fmt.Errorf("rank %d: broadcasting from rank %d at step %d: %w", e.rank, r, step, err)
		}

		if err := e.Fabric.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d: exchange barrier after broadcast from rank %d at step %d: %w", e.rank, r, step, err)
		}

		if e.rank != r {
			if err := e.decodeIncoming(r, received[r]); err != nil {
				return fmt.Errorf("rank %d: decoding broadcast from rank %d at step %d: %w", e.rank, r, step, err)
			}
		}

		if err := e.Fabric.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d: exchange barrier after decode of rank %d at step %d: %w", e.rank, r, step, err)
		}
	}
	return nil
}

// linesOwnedBy returns, in a deterministic order identical on every rank,
// the exchange lines whose local end belongs to rank r.
func (e *Distributed) linesOwnedBy(r int) []ExchangeLine {
	var out []ExchangeLine
	for _, ln := range e.Lines {
		if ln.LocalRank == r {
			out = append(out, ln)
		}
	}
	return out
}

// payloadSize returns the number of bytes rank r contributes during the
// exchange phase, the precomputation the original's
// defineSizesOfDecouplingLineValues performs once after scheduling so
// every rank can size its receive buffer without asking.
func (e *Distributed) payloadSize(r int) int {
	return len(e.linesOwnedBy(r)) * endpointStride
}

func (e *Distributed) encodeOutgoing(r int) []byte {
	lines := e.linesOwnedBy(r)
	endpoints := make([]transport.EndpointPayload, len(lines))
	for i, ln := range lines {
		tail := ln.Line.TailValues()
		endpoints[i] = transport.EndpointPayload{TailIndex: uint32(i), Samples: tail[:]}
	}
	return transport.EncodeEndpoints(endpoints)
}

func (e *Distributed) decodeIncoming(r int, payload []byte) error {
	lines := e.linesOwnedBy(r)
	if len(lines) == 0 {
		return nil
	}
	if len(payload) != e.payloadSize(r) {
		return &transport.TransportError{Op: "decode", Err: fmt.Errorf("payload is %d bytes, want %d", len(payload), e.payloadSize(r))}
	}
	endpoints, err := transport.DecodeEndpoints(payload, len(lines), 2)
	if err != nil {
		return err
	}
	for i, ln := range lines {
		s := endpoints[i].Samples
		ln.Line.SetTailValues(s[0], s[1])
	}
	return nil
}

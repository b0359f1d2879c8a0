package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketRelayConfig configures a SocketRelay connection to an external
// relay process that sequences barriers and forwards broadcast payloads
// between ranks. Multi-process distributed runs need a relay process
// listening at URL; no such server is part of this module (see DESIGN.md).
type SocketRelayConfig struct {
	URL                string
	Namespace          string
	Rank               int
	Size               int
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// SocketRelay is a Fabric backed by a socket.io client connection, for real
// multi-process distributed runs. Its connect/event-wiring sequence mirrors
// the module's single socket.io client call site: parse the URL into a base
// address and path, restrict transports to WebSocket, and resolve a
// channel on the relevant lifecycle event rather than polling.
type SocketRelay struct {
	cfg     SocketRelayConfig
	io      *socket.Socket
	mu      sync.Mutex
	pending map[string]chan []byte // correlation id -> response channel
}

// NewSocketRelay connects to the relay described by cfg and returns a ready
// Fabric, or an error if the initial connection does not complete within
// cfg.Timeout.
func NewSocketRelay(cfg SocketRelayConfig) (*SocketRelay, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing relay URL: %w", err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	opts := socket.DefaultOptions()
	opts.SetPath(parsed.Path)
	if cfg.InsecureSkipVerify {
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	r := &SocketRelay{cfg: cfg, io: io, pending: make(map[string]chan []byte)}

	connected := make(chan struct{}, 1)
	connectErr := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		connected <- struct{}{}
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				connectErr <- e
				return
			}
		}
		connectErr <- fmt.Errorf("transport: relay connect failed")
	})
	io.On(types.EventName("relay:deliver"), func(data ...any) {
		r.deliver(data)
	})

	io.Connect()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	select {
	case <-connected:
		return r, nil
	case err := <-connectErr:
		return nil, fmt.Errorf("transport: connecting to relay: %w", err)
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Err: ctx.Err()}
	}
}

func (r *SocketRelay) deliver(data []any) {
	if len(data) < 2 {
		return
	}
	id, ok := data[0].(string)
	if !ok {
		return
	}
	payload, ok := data[1].([]byte)
	if !ok {
		return
	}
	r.mu.Lock()
	ch, exists := r.pending[id]
	r.mu.Unlock()
	if exists {
		ch <- payload
	}
}

func (r *SocketRelay) Rank() int { return r.cfg.Rank }
func (r *SocketRelay) Size() int { return r.cfg.Size }

func (r *SocketRelay) Barrier(ctx context.Context) error {
	_, err := r.roundTrip(ctx, "relay:barrier", nil)
	return err
}

func (r *SocketRelay) Broadcast(ctx context.Context, payload []byte) ([][]byte, error) {
	reply, err := r.roundTrip(ctx, "relay:broadcast", payload)
	if err != nil {
		return nil, err
	}
	return DecodeBroadcastReply(reply, r.cfg.Size)
}

func (r *SocketRelay) roundTrip(ctx context.Context, event string, payload []byte) ([]byte, error) {
	id := fmt.Sprintf("%d-%d", r.cfg.Rank, time.Now().UnixNano())
	ch := make(chan []byte, 1)
	r.mu.Lock()
	r.pending[id] = ch
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
	}()

	r.io.Emit(event, id, payload)

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, &TransportError{Op: event, Err: ctx.Err()}
	}
}

func (r *SocketRelay) Finalize() error {
	r.io.Disconnect()
	return nil
}

// DecodeBroadcastReply splits a relay's concatenated broadcast reply back
// into per-rank byte spans. The relay is expected to frame each rank's
// contribution with a 4-byte big-endian length prefix.
func DecodeBroadcastReply(buf []byte, size int) ([][]byte, error) {
	out := make([][]byte, 0, size)
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, fmt.Errorf("transport: truncated broadcast reply frame")
		}
		n := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
		buf = buf[4:]
		if len(buf) < n {
			return nil, fmt.Errorf("transport: truncated broadcast reply payload")
		}
		out = append(out, buf[:n])
		buf = buf[n:]
	}
	if len(out) != size {
		return nil, fmt.Errorf("transport: broadcast reply has %d frames, want %d", len(out), size)
	}
	return out, nil
}

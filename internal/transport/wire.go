package transport

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EndpointPayload is the record exchanged once per barrier for a single
// decoupling-line endpoint: a big-endian uint32 index followed by either 4
// (non-split) or 2 (split) complex128 samples, encoded as big-endian
// float64 pairs. Records carry no length prefix, so DecodeEndpoints must be
// told the endpoint count and samples per endpoint. The index is carried as
// given; internal/executor.Distributed fills it with the endpoint's
// position among its owning rank's lines, not a ring-buffer index.
type EndpointPayload struct {
	TailIndex uint32
	Samples   []complex128 // len 2 or 4
}

// EncodeEndpoints concatenates the wire encoding of every endpoint in
// subsystem-then-insertion order into one broadcast payload.
func EncodeEndpoints(endpoints []EndpointPayload) []byte {
	var total int
	for _, e := range endpoints {
		total += 4 + len(e.Samples)*16
	}
	buf := make([]byte, 0, total)
	for _, e := range endpoints {
		buf = appendEndpoint(buf, e)
	}
	return buf
}

func appendEndpoint(buf []byte, e EndpointPayload) []byte {
	var head [4]byte
	binary.BigEndian.PutUint32(head[:], e.TailIndex)
	buf = append(buf, head[:]...)
	for _, s := range e.Samples {
		buf = appendComplex(buf, s)
	}
	return buf
}

func appendComplex(buf []byte, c complex128) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], math.Float64bits(real(c)))
	binary.BigEndian.PutUint64(b[8:16], math.Float64bits(imag(c)))
	return append(buf, b[:]...)
}

// DecodeEndpoints reverses EncodeEndpoints. samplesPerEndpoint must match
// what the caller encoded (4 for a non-split line end, 2 for split).
func DecodeEndpoints(buf []byte, count, samplesPerEndpoint int) ([]EndpointPayload, error) {
	stride := 4 + samplesPerEndpoint*16
	if len(buf) != stride*count {
		return nil, fmt.Errorf("transport: wire payload has %d bytes, want %d for %d endpoints of %d samples", len(buf), stride*count, count, samplesPerEndpoint)
	}
	out := make([]EndpointPayload, count)
	for i := 0; i < count; i++ {
		off := i * stride
		tail := binary.BigEndian.Uint32(buf[off : off+4])
		samples := make([]complex128, samplesPerEndpoint)
		for j := 0; j < samplesPerEndpoint; j++ {
			so := off + 4 + j*16
			re := math.Float64frombits(binary.BigEndian.Uint64(buf[so : so+8]))
			im := math.Float64frombits(binary.BigEndian.Uint64(buf[so+8 : so+16]))
			samples[j] = complex(re, im)
		}
		out[i] = EndpointPayload{TailIndex: tail, Samples: samples}
	}
	return out, nil
}

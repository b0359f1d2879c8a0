package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFabricBarrier(t *testing.T) {
	fabrics := NewLocalFabric("barrier-test", 4)

	var wg sync.WaitGroup
	order := make([]int32, 4)
	var counter int32
	for i, f := range fabrics {
		wg.Add(1)
		go func(rank int, f Fabric) {
			defer wg.Done()
			require.NoError(t, f.Barrier(context.Background()))
			order[rank] = counter
			counter++
		}(i, f)
	}
	wg.Wait()

	for _, f := range fabrics {
		assert.NoError(t, f.Finalize())
	}
}

func TestLocalFabricBroadcast(t *testing.T) {
	fabrics := NewLocalFabric("broadcast-test", 3)

	var wg sync.WaitGroup
	results := make([][][]byte, 3)
	for i, f := range fabrics {
		wg.Add(1)
		go func(rank int, f Fabric) {
			defer wg.Done()
			payload := []byte{byte(rank)}
			out, err := f.Broadcast(context.Background(), payload)
			require.NoError(t, err)
			results[rank] = out
		}(i, f)
	}
	wg.Wait()

	for rank, out := range results {
		require.Len(t, out, 3)
		for i := 0; i < 3; i++ {
			assert.Equal(t, byte(i), out[i][0], "rank %d saw wrong payload from rank %d", rank, i)
		}
	}
}

func TestWireCodecRoundTrip(t *testing.T) {
	endpoints := []EndpointPayload{
		{TailIndex: 7, Samples: []complex128{1 + 2i, 3 - 4i}},
		{TailIndex: 42, Samples: []complex128{5, -6i}},
	}
	buf := EncodeEndpoints(endpoints)

	decoded, err := DecodeEndpoints(buf, 2, 2)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, endpoints[0].TailIndex, decoded[0].TailIndex)
	assert.Equal(t, endpoints[0].Samples, decoded[0].Samples)
	assert.Equal(t, endpoints[1].TailIndex, decoded[1].TailIndex)
	assert.Equal(t, endpoints[1].Samples, decoded[1].Samples)
}

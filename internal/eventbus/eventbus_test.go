package eventbus

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxelgen/internal/logging"
	"github.com/annel0/voxelgen/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ev, err := NewEnvelope("test", EventChunkRebuilt, 5, ChunkRebuilt{Coords: vec.Vec3{X: 1, Y: 0, Z: -1}, Primitives: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, ev.Version)

	var payload ChunkRebuilt
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, vec.Vec3{X: 1, Y: 0, Z: -1}, payload.Coords)
	assert.Equal(t, 3, payload.Primitives)
}

func TestMemoryBusDeliversInOrderWithFilter(t *testing.T) {
	bus := NewMemoryBus(16)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	_, err := bus.Subscribe(ctx, Filter{Types: []string{EventChunkRebuilt}}, func(ctx context.Context, ev *Envelope) {
		mu.Lock()
		got = append(got, ev.ID)
		mu.Unlock()
	})
	require.NoError(t, err)

	var want []string
	for i := 0; i < 5; i++ {
		ev, err := NewEnvelope("test", EventChunkRebuilt, 5, ChunkRebuilt{Version: uint64(i)})
		require.NoError(t, err)
		want = append(want, ev.ID)
		require.NoError(t, bus.Publish(ctx, ev))
	}
	other, err := NewEnvelope("test", EventChunkUnloaded, 5, ChunkUnloaded{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, other))

	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)

	stats := bus.Metrics()
	assert.Equal(t, uint64(6), stats.Published)
	assert.Equal(t, uint64(5), stats.Consumed)
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrBusClosed)
	_, err := bus.Subscribe(context.Background(), Filter{}, func(context.Context, *Envelope) {})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()
	ctx := context.Background()

	block := make(chan struct{})
	_, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { <-block })
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "x", Priority: 0}))
	}
	close(block)
	assert.Greater(t, bus.Metrics().Dropped, uint64(0))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(8)
	ctx := context.Background()

	count := 0
	sub, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { count++ })
	require.NoError(t, err)
	sub.Unsubscribe()

	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "x"}))
	require.NoError(t, bus.Close())
	assert.Equal(t, 0, count)
}

func TestLoggingListener(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewWriterLogger("bus", &buf, logging.DEBUG)
	bus := NewMemoryBus(4)
	ctx := context.Background()

	_, err := StartLoggingListener(ctx, bus, log)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, &Envelope{ID: "ev-1", EventType: EventChunkUnloaded}))
	require.NoError(t, bus.Close())

	assert.Contains(t, buf.String(), "ev-1 ChunkUnloaded")
}

func TestMetricsExporterSync(t *testing.T) {
	bus := NewMemoryBus(4)
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "x"}))
	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "x"}))

	prev := me.sync(Stats{})
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	require.NoError(t, bus.Publish(ctx, &Envelope{EventType: "x"}))
	me.sync(prev)
	assert.Equal(t, 3.0, testutil.ToFloat64(me.published))

	me.Start(time.Hour)
	me.Stop()
	require.NoError(t, bus.Close())
}

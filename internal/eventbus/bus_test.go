package eventbus_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

func newTestBus(opts ...eventbus.Option) *eventbus.Bus {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := idgen.NewSequential(0)

	return eventbus.New(clk, ids, &mlog.NoneLogger{}, opts...)
}

func TestPublishRecordsHistory(t *testing.T) {
	bus := newTestBus()

	id, err := bus.Publish(context.Background(), "sample.created", "sample-service", map[string]any{"sample_id": "abc"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	hist := bus.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "sample.created", hist[0].EventType)
	assert.Equal(t, id, hist[0].EventID)
}

func TestHistoryTrimsFIFO(t *testing.T) {
	bus := newTestBus(eventbus.WithHistorySize(3))

	for i := 0; i < 5; i++ {
		_, err := bus.Publish(context.Background(), fmt.Sprintf("event.%d", i), "test", nil, nil)
		require.NoError(t, err)
	}

	hist := bus.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "event.2", hist[0].EventType)
	assert.Equal(t, "event.4", hist[2].EventType)
}

func TestProcessPendingDispatchesToMatchingHandlers(t *testing.T) {
	bus := newTestBus()

	var handled []string
	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "sample-handler",
		Match:       func(env eventbus.Envelope) bool { return env.EventType == "sample.created" },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			handled = append(handled, env.EventID)
			return nil, nil
		},
	})

	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "storage-handler",
		Match:       func(env eventbus.Envelope) bool { return env.EventType == "storage.moved" },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			t.Fatal("storage handler should not match sample.created")
			return nil, nil
		},
	})

	id, err := bus.Publish(context.Background(), "sample.created", "sample-service", nil, nil)
	require.NoError(t, err)

	results, err := bus.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].Envelope.EventID)
	assert.Empty(t, results[0].HandlerErrors)
	assert.Equal(t, []string{id}, handled)
}

func TestProcessPendingRecordsHandlerErrors(t *testing.T) {
	bus := newTestBus()

	boom := fmt.Errorf("boom")
	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "failing-handler",
		Match:       func(eventbus.Envelope) bool { return true },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			return nil, boom
		},
	})

	_, err := bus.Publish(context.Background(), "anything", "test", nil, nil)
	require.NoError(t, err)

	results, err := bus.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].HandlerErrors["failing-handler"], boom)

	snap := bus.Metrics()
	assert.Equal(t, int64(1), snap.HandlerErrors)
}

func TestRepublishChainsUpToMaxDepth(t *testing.T) {
	bus := newTestBus()

	const chainLength = eventbus.MaxRepublishDepth + 2

	count := 0
	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "chainer",
		Match:       func(eventbus.Envelope) bool { return true },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			count++
			if count >= chainLength {
				return nil, nil
			}
			return []eventbus.Envelope{{EventType: "chain.next", SourceComponent: "test"}}, nil
		},
	})

	_, err := bus.Publish(context.Background(), "chain.start", "test", nil, nil)
	require.NoError(t, err)

	for i := 0; i < chainLength+2; i++ {
		if _, err := bus.ProcessPending(context.Background()); err != nil {
			t.Fatalf("ProcessPending returned error: %v", err)
		}
	}

	assert.LessOrEqual(t, count, eventbus.MaxRepublishDepth+2)

	snap := bus.Metrics()
	assert.Greater(t, snap.Dropped, int64(0))
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	bus := newTestBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	id, err := bus.Publish(context.Background(), "audit.append", "audit", nil, nil)
	require.NoError(t, err)

	select {
	case env := <-ch:
		assert.Equal(t, id, env.EventID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestSubscribeDropsWhenBufferFull(t *testing.T) {
	bus := newTestBus()

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	const overflow = eventbus.DefaultSubscriberBuffer + 10

	for i := 0; i < overflow; i++ {
		_, err := bus.Publish(context.Background(), "flood", "test", nil, nil)
		require.NoError(t, err)
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			snap := bus.Metrics()
			assert.Equal(t, int64(overflow), snap.Published)
			assert.Greater(t, snap.Dropped, int64(0))
			assert.LessOrEqual(t, drained, eventbus.DefaultSubscriberBuffer)
			return
		}
	}
}

func TestParallelDispatchRunsAllHandlers(t *testing.T) {
	bus := newTestBus(eventbus.WithParallelDispatch(true))

	results := make(chan string, 2)
	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "a",
		Match:       func(eventbus.Envelope) bool { return true },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			results <- "a"
			return nil, nil
		},
	})
	bus.RegisterHandler(eventbus.HandlerFunc{
		HandlerName: "b",
		Match:       func(eventbus.Envelope) bool { return true },
		Fn: func(ctx context.Context, env eventbus.Envelope) ([]eventbus.Envelope, error) {
			results <- "b"
			return nil, nil
		},
	})

	_, err := bus.Publish(context.Background(), "fan.out", "test", nil, nil)
	require.NoError(t, err)

	_, err = bus.ProcessPending(context.Background())
	require.NoError(t, err)

	close(results)

	seen := map[string]bool{}
	for r := range results {
		seen[r] = true
	}
	assert.True(t, seen["a"])
	assert.True(t, seen["b"])
}

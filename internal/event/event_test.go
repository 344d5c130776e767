package event

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testType EventType = "test.event"

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	bus := NewBus(nil)
	_, ch := bus.Subscribe(testType)

	bus.Publish(testType, NewEvent(testType, "payload"))

	select {
	case evt := <-ch:
		require.Equal(t, testType, evt.Type)
		require.Equal(t, "payload", evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishOnlyReachesMatchingType(t *testing.T) {
	bus := NewBus(nil)
	_, ch := bus.Subscribe(testType)

	bus.Publish("other.event", NewEvent("other.event", nil))

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %v", evt)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	subID, ch := bus.Subscribe(testType)

	bus.Unsubscribe(testType, subID)

	_, open := <-ch
	require.False(t, open)

	// publishing after unsubscribe must not panic on the closed channel
	bus.Publish(testType, NewEvent(testType, nil))
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	registry := prometheus.NewRegistry()
	bus := NewBus(registry)
	_, ch := bus.Subscribe(testType)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < EventQueueSize+10; i++ {
			bus.Publish(testType, NewEvent(testType, i))
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber queue")
	}

	require.Len(t, ch, EventQueueSize)
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	bus := NewBus(nil)
	_, first := bus.Subscribe(testType)
	_, second := bus.Subscribe(testType)

	bus.Publish(testType, NewEvent(testType, "x"))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
}

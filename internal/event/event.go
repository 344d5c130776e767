// Package event provides the in-process bus that carries persisted-store
// change notifications and dashboard status publications.
package event

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const EventQueueSize = 50

type EventType string

type SubscriberID int

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type Bus struct {
	subscribers map[EventType]map[SubscriberID]chan Event
	lastSubID   SubscriberID
	metrics     *busMetrics
	mu          sync.RWMutex
}

type busMetrics struct {
	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

func NewBus(promRegistry prometheus.Registerer) *Bus {
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]chan Event),
	}
	if promRegistry != nil {
		b.metrics = &busMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "engine_events_published_total",
				Help: "Events published to the bus, by event type",
			}, []string{"type"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "engine_events_dropped_total",
				Help: "Events dropped due to a full subscriber queue, by event type",
			}, []string{"type"}),
		}
		promRegistry.MustRegister(b.metrics.published, b.metrics.dropped)
	}
	return b
}

// Subscribe registers for events of the given type. The returned channel is
// owned by the bus and closed on Unsubscribe.
func (b *Bus) Subscribe(eventType EventType) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSubID++
	subID := b.lastSubID
	ch := make(chan Event, EventQueueSize)
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]chan Event)
	}
	b.subscribers[eventType][subID] = ch
	return subID, ch
}

func (b *Bus) Unsubscribe(eventType EventType, subID SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[eventType]; ok {
		if ch, ok := subs[subID]; ok {
			delete(subs, subID)
			close(ch)
		}
	}
}

// Publish delivers the event to every subscriber of its type. Delivery never
// blocks: a subscriber whose queue is full misses the event and the drop is
// counted.
func (b *Bus) Publish(eventType EventType, evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.metrics != nil {
		b.metrics.published.WithLabelValues(string(eventType)).Inc()
	}
	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- evt:
		default:
			if b.metrics != nil {
				b.metrics.dropped.WithLabelValues(string(eventType)).Inc()
			}
		}
	}
}

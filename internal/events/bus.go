// Package events carries pipeline lifecycle events to in-process observers
// and an append-only audit log.
package events

import (
	"sync"
	"time"
)

// EventType identifies a pipeline lifecycle event.
type EventType string

const (
	// EventRecordIngested is published when the ingestor writes a new record.
	EventRecordIngested EventType = "record_ingested"
	// EventRecordProcessed is published when a stage handler moves a record
	// into processed/.
	EventRecordProcessed EventType = "record_processed"
	// EventRecordPublished is published when the vault publisher files a
	// document into the vault.
	EventRecordPublished EventType = "record_published"
	// EventRecordQuarantined is published when an unparseable record is moved
	// to quarantine.
	EventRecordQuarantined EventType = "record_quarantined"
	// EventTranscriptionFailed is published when the transcription adapter
	// reports a typed failure.
	EventTranscriptionFailed EventType = "transcription_failed"
	// EventRecordDeadLettered is published when a voice pair exhausts its
	// attempt budget.
	EventRecordDeadLettered EventType = "record_dead_lettered"
	// EventDigestUpdated is published after a daily digest append.
	EventDigestUpdated EventType = "digest_updated"
)

// Event is one published occurrence.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// Subscriber receives events.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe fan-out. Delivery is asynchronous
// through buffered channels; a full subscriber channel drops the event rather
// than stalling a stage handler.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. fn runs on its own goroutine; panics are contained so a bad
// subscriber cannot take down the bus.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every known event type and returns a single
// unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	types := []EventType{
		EventRecordIngested,
		EventRecordProcessed,
		EventRecordPublished,
		EventRecordQuarantined,
		EventTranscriptionFailed,
		EventRecordDeadLettered,
		EventDigestUpdated,
	}
	unsubs := make([]func(), 0, len(types))
	for _, et := range types {
		unsubs = append(unsubs, b.Subscribe(et, fn))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Publish delivers an event to all subscribers of its type without blocking.
func (b *Bus) Publish(eventType EventType, data map[string]any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Channel full; drop rather than stall the publisher.
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}

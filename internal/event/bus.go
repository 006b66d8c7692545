// Package event provides the subscribe/notify hub every cchat store
// publishes its mutations to.
package event

import (
	"sync"
	"time"
)

// Topic names the store that emitted an event.
type Topic string

const (
	TopicCredential   Topic = "credential"
	TopicConversation Topic = "conversation"
	TopicUsage        Topic = "usage"
	TopicSettings     Topic = "settings"
	TopicDispatch     Topic = "dispatch"
	TopicChat         Topic = "chat"
)

// Event describes one state change. Subject is usually the ID of the
// affected record. Err is set when the change failed or persisted badly.
type Event struct {
	ID      int64     `json:"id"`
	Topic   Topic     `json:"topic"`
	Kind    string    `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Handler receives events. It runs on the publisher's goroutine and must
// not block.
type Handler func(Event)

const defaultBuffer = 200

// Bus fans events out to subscribers and keeps a ring of recent events.
// The zero value is not usable; call NewBus.
type Bus struct {
	mu      sync.RWMutex
	nextID  int64
	nextSub int
	subs    map[int]Handler
	order   []int
	events  []Event
	buffer  int
	now     func() time.Time
}

// NewBus returns a bus retaining the last buffer events (200 when < 1).
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[int]Handler),
		buffer: buffer,
		now:    time.Now,
	}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (cancel func()) {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subs[id] = h
	b.order = append(b.order, id)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish stamps ev, records it and calls every subscriber in
// subscription order. Handlers run outside the bus lock.
func (b *Bus) Publish(ev Event) Event {
	if b == nil {
		return ev
	}
	b.mu.Lock()
	b.nextID++
	ev.ID = b.nextID
	if ev.At.IsZero() {
		ev.At = b.now()
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.buffer {
		b.events = b.events[len(b.events)-b.buffer:]
	}
	ids := append([]int(nil), b.order...)
	b.mu.Unlock()

	for _, id := range ids {
		b.mu.RLock()
		h, ok := b.subs[id]
		b.mu.RUnlock()
		if ok {
			h(ev)
		}
	}
	return ev
}

// Emit is shorthand for publishing a topic/kind pair about subject.
func (b *Bus) Emit(topic Topic, kind, subject string, err error) {
	ev := Event{Topic: topic, Kind: kind, Subject: subject}
	if err != nil {
		ev.Err = err.Error()
	}
	b.Publish(ev)
}

// Recent returns a copy of the retained events, oldest first.
func (b *Bus) Recent() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

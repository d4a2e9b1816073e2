package serve

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/everydev1618/toolrunner"
)

const (
	maxSubscribers   = 50
	subscriberBuffer = 64
)

// ErrTooManySubscribers is returned by Subscribe when the broker is full.
var ErrTooManySubscribers = errors.New("too many subscribers")

// EventBroker fans out published tool events to SSE subscribers of the
// event's channel. It implements toolrunner.Publisher.
type EventBroker struct {
	subscribers map[string]map[chan toolrunner.PublishedEvent]struct{}
	count       int
	closed      bool
	mu          sync.RWMutex
}

// NewEventBroker creates a new broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		subscribers: make(map[string]map[chan toolrunner.PublishedEvent]struct{}),
	}
}

// Subscribe returns a channel that receives events published to channel.
// The caller must call Unsubscribe when done.
func (b *EventBroker) Subscribe(channel string) (chan toolrunner.PublishedEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, toolrunner.ErrStreamClosed
	}
	if b.count >= maxSubscribers {
		return nil, ErrTooManySubscribers
	}

	ch := make(chan toolrunner.PublishedEvent, subscriberBuffer)
	subs, ok := b.subscribers[channel]
	if !ok {
		subs = make(map[chan toolrunner.PublishedEvent]struct{})
		b.subscribers[channel] = subs
	}
	subs[ch] = struct{}{}
	b.count++
	return ch, nil
}

// Unsubscribe removes a subscriber channel.
func (b *EventBroker) Unsubscribe(channel string, ch chan toolrunner.PublishedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[channel]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	b.count--
	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}
}

// Close closes all subscriber channels, causing SSE handlers to exit.
// Events published afterwards are discarded.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	b.count = 0
	b.closed = true
}

// Subscribers returns the number of subscribers on channel.
func (b *EventBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[channel])
}

// Publish sends an event to every subscriber of channel.
// Non-blocking: if a subscriber's buffer is full, the event is dropped for that subscriber.
func (b *EventBroker) Publish(_ context.Context, channel string, event toolrunner.PublishedEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[channel] {
		// Each subscriber gets its own copy so handlers can't race on the map.
		select {
		case ch <- maps.Clone(event):
		default:
			// Subscriber too slow, drop event
		}
	}
	return nil
}

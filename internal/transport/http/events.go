package http

import (
	"sync"

	"testseries-attempt-service/internal/app"
)

// Broker fans attempt lifecycle events out to subscribers. It implements
// app.EventSink and backs the websocket event feed.
type Broker struct {
	mu          sync.Mutex
	subscribers map[chan app.Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan app.Event]struct{})}
}

// Publish delivers the event to every subscriber. Slow subscribers lose
// their oldest pending event instead of blocking the publisher.
func (b *Broker) Publish(e app.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- e
		}
	}
}

// Subscribe returns a channel of events. The caller must invoke the returned
// cancel function to avoid leaks.
func (b *Broker) Subscribe() (<-chan app.Event, func()) {
	ch := make(chan app.Event, 16)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 5 * time.Second
)

var (
	ErrQueueFull = errors.New("events: queue full, event dropped")
	ErrClosed    = errors.New("events: publisher closed")
)

// Async hands events to a single background goroutine so that Publish never
// waits on the broker. Delivery errors are logged, not returned. When the
// queue is full the event is dropped.
type Async struct {
	next    Publisher
	queue   chan Message
	done    chan struct{}
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:    next,
		queue:   make(chan Message, size),
		done:    make(chan struct{}),
		logger:  logger.With("component", "events"),
		timeout: DefaultPublishTimeout,
	}
	go a.run()
	return a
}

func (a *Async) Publish(_ context.Context, topic, key string, event any) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}

	select {
	case a.queue <- Message{Topic: topic, Key: key, Event: event}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for m := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, m.Topic, m.Key, m.Event); err != nil {
			a.logger.Error("event_publish_failed", "topic", m.Topic, "key", m.Key, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events, delivers what is queued and closes the
// underlying publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Sender is what the dispatcher forwards to; *Publisher satisfies it.
type Sender interface {
	Publish(ctx context.Context, ev TripEvent) error
}

// ErrDispatcherFull is returned when the buffer is full and the event was
// dropped.
var ErrDispatcherFull = errors.New("event buffer full")

// ErrDispatcherClosed is returned after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher decouples request handling from the broker: Publish only
// enqueues, and Run forwards events one at a time.
type Dispatcher struct {
	next Sender
	log  *slog.Logger
	ch   chan TripEvent

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(next Sender, size int, log *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{next: next, log: log, ch: make(chan TripEvent, size), done: make(chan struct{})}
}

// Publish enqueues ev without blocking.
func (d *Dispatcher) Publish(_ context.Context, ev TripEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.ch <- ev:
		return nil
	default:
		return ErrDispatcherFull
	}
}

// Run forwards queued events until Close is called and the buffer is
// drained, or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.ch:
			if !ok {
				return
			}
			sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := d.next.Publish(sendCtx, ev); err != nil {
				d.log.Warn("trip event dropped", "id", ev.ID, "type", ev.Type, "room_id", ev.RoomID, "error", err)
			}
			cancel()
		}
	}
}

// Close stops accepting events and waits for Run to drain the buffer.
// Run must have been started.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}

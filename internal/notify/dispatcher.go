package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Delivery outcomes reported to the observer.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Dispatcher decouples request handling from delivery: Notify only enqueues,
// a single goroutine hands messages to the downstream notifier. A full queue
// drops the message.
type Dispatcher struct {
	next     Notifier
	queue    chan Message
	timeout  time.Duration
	log      *zap.Logger
	observe  func(kind, outcome string)
	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	startOne sync.Once
}

type DispatcherOption func(*Dispatcher)

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Message, n)
		}
	}
}

func WithDeliveryTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// WithObserver registers a callback invoked once per message with its outcome.
func WithObserver(fn func(kind, outcome string)) DispatcherOption {
	return func(d *Dispatcher) { d.observe = fn }
}

func NewDispatcher(next Notifier, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:    next,
		queue:   make(chan Message, 256),
		timeout: 3 * time.Second,
		log:     log,
		observe: func(string, string) {},
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the delivery goroutine. Calling it more than once is a no-op.
func (d *Dispatcher) Start() {
	d.startOne.Do(func() {
		go d.run()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.next.Notify(ctx, msg)
		cancel()
		if err != nil {
			d.log.Warn("notification delivery failed",
				zap.String("kind", msg.Kind),
				zap.Stringer("target", msg.Target),
				zap.Error(err),
			)
			d.observe(msg.Kind, OutcomeFailed)
			continue
		}
		d.observe(msg.Kind, OutcomeSent)
	}
}

func (d *Dispatcher) Notify(_ context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.observe(msg.Kind, OutcomeDropped)
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits until queued ones are delivered or
// ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

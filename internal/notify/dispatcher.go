package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 256

// Dispatcher drains a bounded intent queue onto a Notifier. Enqueue never
// blocks: when the queue is full the intent is dropped and logged, since
// notifications are best-effort by contract.
type Dispatcher struct {
	notifier Notifier
	queue    chan Intent
	timeout  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher with the given queue capacity.
// capacity <= 0 selects the default.
func NewDispatcher(notifier Notifier, capacity int) *Dispatcher {
	if capacity <= 0 {
		capacity = defaultQueueSize
	}
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan Intent, capacity),
		timeout:  10 * time.Second,
		done:     make(chan struct{}),
	}
}

// Start launches the delivery goroutine. It returns when ctx is cancelled
// and the queue has been drained.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		go d.run(ctx)
	})
}

// Enqueue queues an intent for delivery. Returns false when dropped.
func (d *Dispatcher) Enqueue(intent Intent) bool {
	select {
	case d.queue <- intent:
		return true
	default:
		slog.Warn("notification queue full, dropping intent",
			"kind", intent.Kind, "to", intent.To)
		return false
	}
}

// Done is closed once the delivery goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.stopOnce.Do(func() { close(d.done) })
	for {
		select {
		case intent := <-d.queue:
			d.deliver(intent)
		case <-ctx.Done():
			// Drain whatever is already queued, then exit.
			for {
				select {
				case intent := <-d.queue:
					d.deliver(intent)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(intent Intent) {
	if d.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.notifier.Send(ctx, intent); err != nil {
		slog.Warn("notification delivery failed",
			"kind", intent.Kind, "to", intent.To, "err", err)
	}
}

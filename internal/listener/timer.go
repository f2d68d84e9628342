package listener

import (
	"context"
	"log"
	"time"

	"github.com/nholden/tidewatch/internal/trigger"
)

// queueTimer polls one queue on an adaptive interval. After a tick that
// found a message the interval halves (never below the minimum) to drain
// bursts quickly; after an empty tick it snaps back to the normal
// interval. Each timer runs on its own goroutine with no shared mutable
// state, so a slow invocation on one queue never stalls another.
type queueTimer struct {
	trig    *trigger.Queue
	inv     Invoker
	metrics *metrics

	current time.Duration
	stop    chan struct{}
	done    chan struct{}
}

func newQueueTimer(t *trigger.Queue, inv Invoker, m *metrics) *queueTimer {
	return &queueTimer{
		trig:    t,
		inv:     inv,
		metrics: m,
		current: t.NormalInterval,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (qt *queueTimer) run(ctx context.Context) {
	defer close(qt.done)

	timer := time.NewTimer(qt.current)
	defer timer.Stop()

	for {
		select {
		case <-qt.stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// The stop signal takes priority over a tick that became due at
		// the same moment: no new tick starts after Stop is requested.
		select {
		case <-qt.stop:
			return
		default:
		}

		found := qt.tick(ctx)
		qt.current = qt.next(found)
		timer.Reset(qt.current)
	}
}

// next applies the speed-up / slow-down policy. The exact curve is a
// placeholder (halving toward the floor); only the bounds are contract:
// never below MinimumInterval, reset to NormalInterval on an empty tick.
func (qt *queueTimer) next(found bool) time.Duration {
	if !found {
		return qt.trig.NormalInterval
	}
	d := qt.current / 2
	if d < qt.trig.MinimumInterval {
		d = qt.trig.MinimumInterval
	}
	return d
}

// tick dequeues at most one visible message and invokes the job for it.
// Reports whether a message was found. A failed invocation leaves the
// message unacknowledged; the queue's own redelivery mechanism is the
// sole retry path.
func (qt *queueTimer) tick(ctx context.Context) bool {
	q := qt.trig.Queue
	msg, err := q.DequeueVisible(ctx)
	if err != nil {
		log.Printf("[queue] %s: dequeue: %v", qt.trig.Name, err)
		qt.metrics.queueTick(qt.trig.Name, "error")
		return false
	}
	if msg == nil {
		qt.metrics.queueTick(qt.trig.Name, "empty")
		return false
	}

	if err := qt.inv.InvokeQueue(ctx, qt.trig, msg); err != nil {
		log.Printf("[queue] %s: message %s: invoke: %v", qt.trig.Name, msg.ID, err)
		qt.metrics.queueTick(qt.trig.Name, "invoke_failed")
		return true
	}

	if err := q.Delete(ctx, msg); err != nil {
		// Job succeeded but the ack failed: the message redelivers and
		// the job runs again.
		log.Printf("[queue] %s: message %s: delete: %v", qt.trig.Name, msg.ID, err)
		qt.metrics.queueTick(qt.trig.Name, "delete_failed")
		return true
	}

	qt.metrics.queueTick(qt.trig.Name, "invoked")
	return true
}

// requestStop signals the timer to exit. An in-flight tick completes.
func (qt *queueTimer) requestStop() {
	close(qt.stop)
}

// wait blocks until the timer goroutine has exited.
func (qt *queueTimer) wait() {
	<-qt.done
}

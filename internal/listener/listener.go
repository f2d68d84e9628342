// Package listener composes the trigger registry, change detectors,
// path matcher, and freshness evaluator into the host-facing surface:
// caller-paced blob polls, an out-of-band hint path, and start/stop of
// the per-queue adaptive timers.
package listener

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nholden/tidewatch/internal/detect"
	"github.com/nholden/tidewatch/internal/freshness"
	"github.com/nholden/tidewatch/internal/match"
	"github.com/nholden/tidewatch/internal/registry"
	"github.com/nholden/tidewatch/internal/storage"
	"github.com/nholden/tidewatch/internal/trigger"
)

// Invoker runs the job bound to a trigger. Implementations may fail; the
// listener does not retry blob invocations, and a failed queue invocation
// leaves the message to the queue's own redelivery.
type Invoker interface {
	InvokeBlob(ctx context.Context, t *trigger.Blob, blob storage.Blob, rv match.RouteValues) error
	InvokeQueue(ctx context.Context, t *trigger.Queue, msg *storage.Message) error
}

// Options configures optional listener collaborators.
type Options struct {
	// Registerer receives the listener's metrics. Nil disables metrics.
	Registerer prometheus.Registerer

	// Detector overrides the strategy chosen by detect.Select.
	// Tests use this; production composition leaves it nil.
	Detector detect.Detector
}

// Listener is the orchestrator. Construct with New, drive blob polling
// via Poll at the host's own cadence, and manage queue timers with
// StartPolling / StopPolling.
type Listener struct {
	reg     *registry.Registry
	det     detect.Detector
	inv     Invoker
	metrics *metrics

	mu     sync.Mutex
	timers []*queueTimer
}

// New builds a Listener over the given registry. The blob detection
// strategy is fixed here: full scan when any registered container is on
// a deterministic local store, change feed otherwise.
func New(reg *registry.Registry, inv Invoker, opts Options) *Listener {
	det := opts.Detector
	if det == nil {
		det = detect.Select(reg)
	}
	return &Listener{
		reg:     reg,
		det:     det,
		inv:     inv,
		metrics: newMetrics(opts.Registerer),
	}
}

// Poll runs one detection cycle over all registered containers. Each
// candidate blob goes through matching, freshness, and invocation. A
// transient store fault aborts the cycle silently — the next poll
// re-discovers whatever was missed. All other faults propagate.
func (l *Listener) Poll(ctx context.Context) error {
	err := l.det.Poll(ctx, l.evaluate)
	if err != nil {
		if errors.Is(err, storage.ErrTransient) {
			log.Printf("[listener] transient store fault, will retry next poll: %v", err)
			l.metrics.transientFault()
			return nil
		}
		return err
	}
	l.metrics.poll()
	return nil
}

// InvokeTriggersForBlob is the hint path: an out-of-band notification
// that a specific blob may have changed. It runs exactly the same
// matching-plus-freshness logic as poll discovery, so hinted and polled
// decisions are identical for the same storage state. Hints for
// containers nobody watches are ignored.
func (l *Listener) InvokeTriggersForBlob(ctx context.Context, accountID, containerName, blobName string) error {
	id := storage.ContainerID{Account: accountID, Name: containerName}
	if _, ok := l.reg.Container(id); !ok {
		return nil
	}
	return l.evaluate(ctx, storage.Blob{Container: id, Name: blobName})
}

// evaluate runs one candidate blob through every trigger registered for
// its container: match the input pattern, read the input's modification
// time, apply the freshness check, invoke on a positive verdict.
func (l *Listener) evaluate(ctx context.Context, blob storage.Blob) error {
	triggers := l.reg.TriggersFor(blob.Container)
	if len(triggers) == 0 {
		return nil
	}
	container, ok := l.reg.Container(blob.Container)
	if !ok {
		return nil
	}
	l.metrics.blobEvaluated()

	resolve := func(path string) (time.Time, bool, error) {
		return container.LastModified(ctx, path)
	}

	var inputTime time.Time
	haveInputTime := false

	for _, t := range triggers {
		rv, matched := match.Match(t.Pattern, blob.Name)
		if !matched {
			continue
		}

		if !haveInputTime {
			mt, exists, err := container.LastModified(ctx, blob.Name)
			if err != nil {
				return err
			}
			if !exists {
				// Discovered then vanished before the metadata read: skip.
				return nil
			}
			inputTime, haveInputTime = mt, true
		}

		should, err := freshness.ShouldInvoke(t, rv, inputTime, resolve)
		if err != nil {
			var unresolved *match.UnresolvedPlaceholderError
			if errors.As(err, &unresolved) {
				// Configuration-shape fault scoped to this trigger; the
				// rest of the cycle proceeds.
				log.Printf("[listener] trigger %s: %v", t.Name, err)
				l.metrics.invocation(t.Name, "unresolved_pattern")
				continue
			}
			return err
		}
		if !should {
			l.metrics.invocation(t.Name, "fresh")
			continue
		}

		if err := l.inv.InvokeBlob(ctx, t, blob, rv); err != nil {
			// Blob invocations are not retried in-core.
			log.Printf("[listener] trigger %s: blob %s: invoke: %v", t.Name, blob, err)
			l.metrics.invocation(t.Name, "failed")
			continue
		}
		l.metrics.invocation(t.Name, "invoked")
	}
	return nil
}

// StartPolling launches one adaptive timer per queue trigger. Blob
// polling stays caller-paced and is never self-scheduled here. Calling
// StartPolling while timers are already running is a no-op.
func (l *Listener) StartPolling(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timers != nil {
		return
	}
	for _, t := range l.reg.QueueTriggers() {
		qt := newQueueTimer(t, l.inv, l.metrics)
		l.timers = append(l.timers, qt)
		go qt.run(ctx)
	}
	log.Printf("[listener] started %d queue timer(s)", len(l.timers))
}

// StopPolling signals every queue timer to stop and waits for in-flight
// ticks to complete. Timers carry no state across stop/start cycles.
func (l *Listener) StopPolling() {
	l.mu.Lock()
	timers := l.timers
	l.timers = nil
	l.mu.Unlock()

	for _, qt := range timers {
		qt.requestStop()
	}
	for _, qt := range timers {
		qt.wait()
	}
	if len(timers) > 0 {
		log.Printf("[listener] stopped %d queue timer(s)", len(timers))
	}
}

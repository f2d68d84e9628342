// Package registry groups trigger descriptors by the container or queue
// they watch. A Registry is built once from a descriptor snapshot and is
// immutable afterwards, so concurrent readers need no locking; adding a
// trigger means building a new Registry.
package registry

import (
	"fmt"

	"github.com/nholden/tidewatch/internal/storage"
	"github.com/nholden/tidewatch/internal/trigger"
)

// Registry is the immutable trigger map.
type Registry struct {
	containers  []storage.Container                        // deduped, registration order
	byContainer map[storage.ContainerID][]*trigger.Blob    // registration order within a container
	handles     map[storage.ContainerID]storage.Container  // first-registered handle per ID
	queues      []*trigger.Queue
	hasLocal    bool
}

// New builds a Registry from descriptor snapshots. Containers are
// deduplicated by (account identity, name); the first-registered handle
// wins. Queue triggers must not share a queue.
func New(blobs []*trigger.Blob, queues []*trigger.Queue) (*Registry, error) {
	r := &Registry{
		byContainer: make(map[storage.ContainerID][]*trigger.Blob),
		handles:     make(map[storage.ContainerID]storage.Container),
	}

	for _, t := range blobs {
		if t.Container == nil {
			return nil, fmt.Errorf("trigger %q: no container", t.Name)
		}
		id := t.Container.ID()
		if _, seen := r.handles[id]; !seen {
			r.handles[id] = t.Container
			r.containers = append(r.containers, t.Container)
			if t.Container.Deterministic() {
				r.hasLocal = true
			}
		}
		r.byContainer[id] = append(r.byContainer[id], t)
	}

	seenQueues := make(map[storage.QueueID]string)
	for _, t := range queues {
		if t.Queue == nil {
			return nil, fmt.Errorf("trigger %q: no queue", t.Name)
		}
		id := t.Queue.ID()
		if prev, dup := seenQueues[id]; dup {
			return nil, fmt.Errorf("triggers %q and %q both watch queue %s", prev, t.Name, id)
		}
		seenQueues[id] = t.Name
		r.queues = append(r.queues, t)
	}

	return r, nil
}

// Containers returns the deduplicated container handles in
// registration order. Callers must not mutate the slice.
func (r *Registry) Containers() []storage.Container {
	return r.containers
}

// Container returns the registered handle for id, if any.
func (r *Registry) Container(id storage.ContainerID) (storage.Container, bool) {
	c, ok := r.handles[id]
	return c, ok
}

// TriggersFor returns the blob triggers watching the given container,
// in registration order.
func (r *Registry) TriggersFor(id storage.ContainerID) []*trigger.Blob {
	return r.byContainer[id]
}

// QueueTriggers returns every registered queue trigger.
func (r *Registry) QueueTriggers() []*trigger.Queue {
	return r.queues
}

// UsesDeterministicStore reports whether any registered container lives
// on a deterministic local store. Detector selection keys off this: such
// stores offer no change feed but enumerate completely and reproducibly.
func (r *Registry) UsesDeterministicStore() bool {
	return r.hasLocal
}

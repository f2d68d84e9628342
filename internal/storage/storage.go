// Package storage defines the capability surface the trigger core consumes:
// accounts resolved from connection strings, containers of blobs with
// last-modified metadata, and queues with visibility-timeout dequeue
// semantics. Concrete backends live in subpackages.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a named container, queue, or blob does not
// exist on the backing store.
var ErrNotFound = errors.New("not found")

// ErrTransient marks a connectivity or availability fault during a store
// operation. Backends wrap network-level failures with it; the listener
// discards it during a poll and retries naturally on the next cycle.
// Everything else propagates.
var ErrTransient = errors.New("transient store fault")

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Account is a resolved connection identity. Two accounts with the same ID
// refer to the same underlying store.
type Account interface {
	// ID returns a stable identity string, e.g. "dev:./data.db".
	ID() string

	// Deterministic reports whether this is a local store with complete,
	// reproducible enumeration. Registries containing a deterministic
	// account select the full-scan detector.
	Deterministic() bool

	// Container resolves a named blob container.
	Container(name string) (Container, error)

	// Queue resolves a named message queue.
	Queue(name string) (Queue, error)
}

// ContainerID identifies a container by account identity plus name.
// It is a value type with ordinary == equality, safe as a map key.
type ContainerID struct {
	Account string
	Name    string
}

func (id ContainerID) String() string {
	return id.Account + "/" + id.Name
}

// QueueID identifies a queue by account identity plus name.
type QueueID struct {
	Account string
	Name    string
}

func (id QueueID) String() string {
	return id.Account + "/" + id.Name
}

// Blob names one item within a container.
type Blob struct {
	Container ContainerID
	Name      string
}

func (b Blob) String() string {
	return b.Container.String() + "/" + b.Name
}

// Container is a resolved blob container handle.
type Container interface {
	ID() ContainerID

	// Deterministic mirrors the owning account's Deterministic flag.
	Deterministic() bool

	// List enumerates every blob currently in the container.
	List(ctx context.Context) ([]Blob, error)

	// LastModified returns the blob's last-modified time in UTC.
	// ok is false when the blob does not exist; that is not an error.
	LastModified(ctx context.Context, name string) (t time.Time, ok bool, err error)
}

// ChangeFeed is implemented by containers whose store exposes a change
// log. Changes returns blobs recorded after the cursor position along
// with the next cursor; an empty cursor starts from the beginning of the
// retained log. The feed may lag or drop entries — callers must tolerate
// both, which the freshness check makes safe.
type ChangeFeed interface {
	Changes(ctx context.Context, cursor string) (blobs []Blob, next string, err error)
}

// Message is one dequeued queue item. Receipt is the backend's token for
// acknowledging this specific delivery.
type Message struct {
	ID      string
	Body    []byte
	Receipt string
}

// Queue is a resolved message queue handle. A dequeued message that is
// never deleted becomes visible again via the backend's own redelivery
// mechanism; the core relies on that rather than retrying itself.
type Queue interface {
	ID() QueueID

	// DequeueVisible returns at most one currently visible message,
	// or nil when the queue is empty.
	DequeueVisible(ctx context.Context) (*Message, error)

	// Delete acknowledges a previously dequeued message so it is never
	// redelivered.
	Delete(ctx context.Context, msg *Message) error
}

// Package detect produces candidate changed blobs from a set of
// registered containers. Two interchangeable strategies exist: a full
// container scan (complete and deterministic, O(total blobs) per poll)
// and a change-feed reader (scalable, but may lag or drop entries).
// Both feed the same downstream freshness check, so a dropped feed entry
// only delays work, never loses it.
package detect

import (
	"context"

	"github.com/nholden/tidewatch/internal/registry"
	"github.com/nholden/tidewatch/internal/storage"
)

// Callback receives one candidate blob. Returning an error aborts the
// current poll.
type Callback func(ctx context.Context, blob storage.Blob) error

// Detector enumerates candidate blobs across the registered containers.
// Implementations are not safe for concurrent Poll calls; the host
// drives polling from a single goroutine.
type Detector interface {
	Poll(ctx context.Context, fn Callback) error
}

// Select picks the strategy for a registry: full scan when any container
// lives on a deterministic local store (those offer no change feed),
// otherwise the change-feed reader.
func Select(r *registry.Registry) Detector {
	if r.UsesDeterministicStore() {
		return NewScanDetector(r.Containers())
	}
	return NewFeedDetector(r.Containers())
}

// ScanDetector enumerates every blob in every container on each poll.
type ScanDetector struct {
	containers []storage.Container
}

func NewScanDetector(containers []storage.Container) *ScanDetector {
	return &ScanDetector{containers: containers}
}

func (d *ScanDetector) Poll(ctx context.Context, fn Callback) error {
	for _, c := range d.containers {
		blobs, err := c.List(ctx)
		if err != nil {
			return err
		}
		for _, b := range blobs {
			if err := fn(ctx, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// FeedDetector reads each container's change feed, remembering the
// cursor between polls. Cursors live only in memory: after a restart the
// feed is re-read from the start of its retained window, and the
// idempotent freshness check absorbs the duplicates. A container with no
// feed falls back to a full scan each poll.
type FeedDetector struct {
	containers []storage.Container
	cursors    map[storage.ContainerID]string
}

func NewFeedDetector(containers []storage.Container) *FeedDetector {
	return &FeedDetector{
		containers: containers,
		cursors:    make(map[storage.ContainerID]string),
	}
}

func (d *FeedDetector) Poll(ctx context.Context, fn Callback) error {
	for _, c := range d.containers {
		feed, ok := c.(storage.ChangeFeed)
		if !ok {
			blobs, err := c.List(ctx)
			if err != nil {
				return err
			}
			for _, b := range blobs {
				if err := fn(ctx, b); err != nil {
					return err
				}
			}
			continue
		}

		id := c.ID()
		blobs, next, err := feed.Changes(ctx, d.cursors[id])
		if err != nil {
			return err
		}
		for _, b := range blobs {
			if err := fn(ctx, b); err != nil {
				return err
			}
		}
		d.cursors[id] = next
	}
	return nil
}

// Package plugin defines the statically compiled extension point: an
// Extension may claim blob triggers and listen for them itself (for
// example against a push-notification source) instead of the core poll
// loop. Extensions are registered explicitly at composition time; there
// is no runtime discovery.
package plugin

import (
	"context"

	"github.com/nholden/tidewatch/internal/trigger"
)

// Listener is an extension-owned watch for one trigger.
type Listener interface {
	// Start begins watching and blocks until ctx is cancelled.
	Start(ctx context.Context) error
}

// Extension is the fixed capability interface a compiled-in plugin
// implements.
type Extension interface {
	// Name identifies the extension in logs.
	Name() string

	// MapTrigger reports whether the extension claims the trigger and,
	// if so, returns the listener that will serve it.
	MapTrigger(t *trigger.Blob) (Listener, bool)
}

// Registry is an explicit, ordered list of extensions. The first
// extension that maps a trigger wins.
type Registry struct {
	exts []Extension
}

// Register appends an extension. Call during composition, before Map.
func (r *Registry) Register(ext Extension) {
	r.exts = append(r.exts, ext)
}

// Map partitions triggers into extension-claimed listeners and the
// remainder left to the core.
func (r *Registry) Map(triggers []*trigger.Blob) (claimed []Listener, rest []*trigger.Blob) {
	for _, t := range triggers {
		var l Listener
		for _, ext := range r.exts {
			if cand, ok := ext.MapTrigger(t); ok {
				l = cand
				break
			}
		}
		if l != nil {
			claimed = append(claimed, l)
		} else {
			rest = append(rest, t)
		}
	}
	return claimed, rest
}

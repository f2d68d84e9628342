// Package trigger holds the plain-data descriptors binding storage
// inputs to job invocations. Descriptors are produced by an external
// indexing layer (here, the config package) and passed into the core;
// the core never discovers triggers on its own.
package trigger

import (
	"fmt"
	"time"

	"github.com/nholden/tidewatch/internal/storage"
)

// Blob binds an input path pattern within one container to a job,
// optionally gated by the freshness of output patterns.
type Blob struct {
	Name      string
	Container storage.Container
	Pattern   string   // input pattern with {placeholder} captures
	Outputs   []string // output patterns, in declared order; may be empty
	Command   string   // job command handed to the invoker
}

func (t *Blob) String() string {
	return fmt.Sprintf("blob(%s %s) → %s", t.Container.ID(), t.Pattern, t.Name)
}

// Queue binds a message queue to a job, polled on an adaptive interval.
type Queue struct {
	Name            string
	Queue           storage.Queue
	Command         string
	NormalInterval  time.Duration // steady-state poll interval
	MinimumInterval time.Duration // floor the interval never drops below
}

func (t *Queue) String() string {
	return fmt.Sprintf("queue(%s) → %s", t.Queue.ID(), t.Name)
}

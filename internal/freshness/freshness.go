// Package freshness decides whether a blob trigger's job needs to run,
// by comparing the input blob's modification time against the trigger's
// declared outputs. The decision is pure and repeatable: scans, change
// feeds, and out-of-band hints may all re-discover the same blob, and
// every path reaches the same verdict for the same storage state.
package freshness

import (
	"fmt"
	"time"

	"github.com/nholden/tidewatch/internal/match"
	"github.com/nholden/tidewatch/internal/trigger"
)

// TimeResolver looks up the last-modified time of a concrete path.
// ok is false when the path does not exist.
type TimeResolver func(path string) (t time.Time, ok bool, err error)

// ShouldInvoke reports whether the trigger's job should run for an input
// observed at inputTime with the given route values.
//
//   - No declared outputs: always true; freshness does not apply.
//   - Any output missing: true.
//   - Any output strictly older than the input: true.
//   - Every output exists with time ≥ input time: false.
//
// Equal timestamps count as fresh, so an input and output written in the
// same instant do not re-trigger each other.
//
// An unresolvable output pattern or a resolver failure returns an error
// scoped to this one evaluation.
func ShouldInvoke(t *trigger.Blob, rv match.RouteValues, inputTime time.Time, resolve TimeResolver) (bool, error) {
	if len(t.Outputs) == 0 {
		return true, nil
	}

	for _, pattern := range t.Outputs {
		path, err := match.Resolve(pattern, rv)
		if err != nil {
			return false, err
		}
		outTime, ok, err := resolve(path)
		if err != nil {
			return false, fmt.Errorf("resolving output time for %q: %w", path, err)
		}
		if !ok {
			return true, nil
		}
		if inputTime.After(outTime) {
			return true, nil
		}
	}
	return false, nil
}

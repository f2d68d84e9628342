package freshness

import (
	"errors"
	"testing"
	"time"

	"github.com/nholden/tidewatch/internal/match"
	"github.com/nholden/tidewatch/internal/trigger"
)

// fixedResolver resolves output times from a map; paths absent from the
// map do not exist.
func fixedResolver(times map[string]time.Time) TimeResolver {
	return func(path string) (time.Time, bool, error) {
		t, ok := times[path]
		return t, ok, nil
	}
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestShouldInvoke_NoOutputs(t *testing.T) {
	trig := &trigger.Blob{Name: "t", Pattern: "in/{name}.txt"}

	got, err := ShouldInvoke(trig, match.RouteValues{"name": "a"}, at(100), fixedResolver(nil))
	if err != nil {
		t.Fatalf("ShouldInvoke() unexpected error: %v", err)
	}
	if !got {
		t.Error("ShouldInvoke() = false for trigger without outputs, want true")
	}
}

func TestShouldInvoke_OutputStates(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "t",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{name}.txt"},
	}
	rv := match.RouteValues{"name": "a"}

	tests := []struct {
		name    string
		input   time.Time
		outputs map[string]time.Time
		want    bool
	}{
		{
			name:    "output missing",
			input:   at(100),
			outputs: map[string]time.Time{},
			want:    true,
		},
		{
			name:    "output older than input",
			input:   at(200),
			outputs: map[string]time.Time{"out/a.txt": at(150)},
			want:    true,
		},
		{
			name:    "output newer than input",
			input:   at(100),
			outputs: map[string]time.Time{"out/a.txt": at(150)},
			want:    false,
		},
		{
			name:    "equal timestamps are fresh",
			input:   at(100),
			outputs: map[string]time.Time{"out/a.txt": at(100)},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ShouldInvoke(trig, rv, tt.input, fixedResolver(tt.outputs))
			if err != nil {
				t.Fatalf("ShouldInvoke() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldInvoke() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldInvoke_MultipleOutputs(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "t",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{name}.a", "out/{name}.b"},
	}
	rv := match.RouteValues{"name": "x"}

	// One fresh output is not enough: the second is stale.
	got, err := ShouldInvoke(trig, rv, at(100), fixedResolver(map[string]time.Time{
		"out/x.a": at(200),
		"out/x.b": at(50),
	}))
	if err != nil {
		t.Fatalf("ShouldInvoke() unexpected error: %v", err)
	}
	if !got {
		t.Error("ShouldInvoke() = false with one stale output, want true")
	}

	// Every output fresh → no invocation.
	got, err = ShouldInvoke(trig, rv, at(100), fixedResolver(map[string]time.Time{
		"out/x.a": at(200),
		"out/x.b": at(100),
	}))
	if err != nil {
		t.Fatalf("ShouldInvoke() unexpected error: %v", err)
	}
	if got {
		t.Error("ShouldInvoke() = true with all outputs fresh, want false")
	}
}

// TestShouldInvoke_Lifecycle walks the canonical sequence: new input with
// no output, then output written, then input rewritten.
func TestShouldInvoke_Lifecycle(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "copy",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{name}.txt"},
	}
	rv, ok := match.Match(trig.Pattern, "in/a.txt")
	if !ok {
		t.Fatal("Match() failed for in/a.txt")
	}

	outputs := map[string]time.Time{}

	got, err := ShouldInvoke(trig, rv, at(100), fixedResolver(outputs))
	if err != nil || !got {
		t.Fatalf("step 1: ShouldInvoke() = %v, %v; want true, nil", got, err)
	}

	outputs["out/a.txt"] = at(150)
	got, err = ShouldInvoke(trig, rv, at(100), fixedResolver(outputs))
	if err != nil || got {
		t.Fatalf("step 2: ShouldInvoke() = %v, %v; want false, nil", got, err)
	}

	got, err = ShouldInvoke(trig, rv, at(200), fixedResolver(outputs))
	if err != nil || !got {
		t.Fatalf("step 3: ShouldInvoke() = %v, %v; want true, nil", got, err)
	}
}

// TestShouldInvoke_Idempotent re-evaluates the same state twice and
// expects identical verdicts.
func TestShouldInvoke_Idempotent(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "t",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{name}.txt"},
	}
	rv := match.RouteValues{"name": "a"}
	resolver := fixedResolver(map[string]time.Time{"out/a.txt": at(150)})

	first, err := ShouldInvoke(trig, rv, at(100), resolver)
	if err != nil {
		t.Fatalf("first ShouldInvoke() error: %v", err)
	}
	second, err := ShouldInvoke(trig, rv, at(100), resolver)
	if err != nil {
		t.Fatalf("second ShouldInvoke() error: %v", err)
	}
	if first != second {
		t.Errorf("ShouldInvoke() not idempotent: %v then %v", first, second)
	}
}

func TestShouldInvoke_UnresolvedPlaceholder(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "t",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{other}.txt"},
	}

	_, err := ShouldInvoke(trig, match.RouteValues{"name": "a"}, at(100), fixedResolver(nil))
	var unresolved *match.UnresolvedPlaceholderError
	if !errors.As(err, &unresolved) {
		t.Fatalf("ShouldInvoke() error = %v, want *UnresolvedPlaceholderError", err)
	}
}

func TestShouldInvoke_ResolverError(t *testing.T) {
	trig := &trigger.Blob{
		Name:    "t",
		Pattern: "in/{name}.txt",
		Outputs: []string{"out/{name}.txt"},
	}
	boom := errors.New("boom")
	resolver := func(string) (time.Time, bool, error) {
		return time.Time{}, false, boom
	}

	_, err := ShouldInvoke(trig, match.RouteValues{"name": "a"}, at(100), resolver)
	if !errors.Is(err, boom) {
		t.Fatalf("ShouldInvoke() error = %v, want wrapped resolver error", err)
	}
}

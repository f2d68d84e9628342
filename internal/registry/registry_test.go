package registry

import (
	"context"
	"testing"
	"time"

	"github.com/nholden/tidewatch/internal/storage"
	"github.com/nholden/tidewatch/internal/trigger"
)

type fakeContainer struct {
	id  storage.ContainerID
	det bool
}

func (f *fakeContainer) ID() storage.ContainerID { return f.id }
func (f *fakeContainer) Deterministic() bool     { return f.det }
func (f *fakeContainer) List(context.Context) ([]storage.Blob, error) {
	return nil, nil
}
func (f *fakeContainer) LastModified(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, nil
}

type fakeQueue struct {
	id storage.QueueID
}

func (f *fakeQueue) ID() storage.QueueID { return f.id }
func (f *fakeQueue) DequeueVisible(context.Context) (*storage.Message, error) {
	return nil, nil
}
func (f *fakeQueue) Delete(context.Context, *storage.Message) error {
	return nil
}

func container(account, name string, det bool) *fakeContainer {
	return &fakeContainer{id: storage.ContainerID{Account: account, Name: name}, det: det}
}

func TestNew_DedupsContainersByIdentity(t *testing.T) {
	// Two distinct handles for the same (account, name) pair.
	c1 := container("acct", "data", false)
	c2 := container("acct", "data", false)
	c3 := container("acct", "other", false)

	reg, err := New([]*trigger.Blob{
		{Name: "a", Container: c1, Pattern: "in/{n}"},
		{Name: "b", Container: c2, Pattern: "raw/{n}"},
		{Name: "c", Container: c3, Pattern: "x/{n}"},
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if got := len(reg.Containers()); got != 2 {
		t.Fatalf("Containers() returned %d, want 2 (deduplicated)", got)
	}

	// The first-registered handle wins.
	h, ok := reg.Container(c1.ID())
	if !ok {
		t.Fatal("Container() did not find registered id")
	}
	if h != storage.Container(c1) {
		t.Error("Container() returned a later handle, want the first-registered one")
	}

	// Both triggers on the shared container, registration order.
	trigs := reg.TriggersFor(c1.ID())
	if len(trigs) != 2 || trigs[0].Name != "a" || trigs[1].Name != "b" {
		t.Errorf("TriggersFor() = %v, want [a b]", trigs)
	}
}

func TestNew_DetectsDeterministicStore(t *testing.T) {
	remote := container("remote", "data", false)
	local := container("dev:x", "data", true)

	reg, err := New([]*trigger.Blob{{Name: "a", Container: remote, Pattern: "{n}"}}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if reg.UsesDeterministicStore() {
		t.Error("UsesDeterministicStore() = true with only remote containers")
	}

	reg, err = New([]*trigger.Blob{
		{Name: "a", Container: remote, Pattern: "{n}"},
		{Name: "b", Container: local, Pattern: "{n}"},
	}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !reg.UsesDeterministicStore() {
		t.Error("UsesDeterministicStore() = false with a local container registered")
	}
}

func TestNew_RejectsDuplicateQueue(t *testing.T) {
	q := &fakeQueue{id: storage.QueueID{Account: "acct", Name: "jobs"}}

	_, err := New(nil, []*trigger.Queue{
		{Name: "a", Queue: q, NormalInterval: time.Second, MinimumInterval: time.Second},
		{Name: "b", Queue: q, NormalInterval: time.Second, MinimumInterval: time.Second},
	})
	if err == nil {
		t.Fatal("New() expected error for two triggers on one queue")
	}
}

func TestNew_RejectsNilHandles(t *testing.T) {
	if _, err := New([]*trigger.Blob{{Name: "a"}}, nil); err == nil {
		t.Error("New() expected error for blob trigger without container")
	}
	if _, err := New(nil, []*trigger.Queue{{Name: "q"}}); err == nil {
		t.Error("New() expected error for queue trigger without queue")
	}
}

package devstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dev.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestBlobs_PutListStat(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.PutBlob(ctx, "images", "in/a.jpg", []byte("x"), at(100)); err != nil {
		t.Fatalf("PutBlob() error: %v", err)
	}
	if err := s.PutBlob(ctx, "images", "in/b.jpg", nil, at(200)); err != nil {
		t.Fatalf("PutBlob() error: %v", err)
	}

	c, err := s.Container("images")
	if err != nil {
		t.Fatalf("Container() error: %v", err)
	}

	blobs, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(blobs) != 2 {
		t.Fatalf("List() returned %d blobs, want 2", len(blobs))
	}

	mt, ok, err := c.LastModified(ctx, "in/a.jpg")
	if err != nil || !ok {
		t.Fatalf("LastModified() = %v, %v, %v", mt, ok, err)
	}
	if !mt.Equal(at(100)) {
		t.Errorf("LastModified() = %v, want %v", mt, at(100))
	}

	// Overwrite moves the timestamp.
	if err := s.PutBlob(ctx, "images", "in/a.jpg", []byte("y"), at(300)); err != nil {
		t.Fatal(err)
	}
	mt, ok, err = c.LastModified(ctx, "in/a.jpg")
	if err != nil || !ok || !mt.Equal(at(300)) {
		t.Errorf("after overwrite LastModified() = %v, %v, %v; want %v", mt, ok, err, at(300))
	}

	// Absent blob is not an error.
	_, ok, err = c.LastModified(ctx, "in/missing.jpg")
	if err != nil {
		t.Fatalf("LastModified(missing) error: %v", err)
	}
	if ok {
		t.Error("LastModified(missing) ok = true, want false")
	}
}

func TestBlobs_ContainersAreIsolated(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.PutBlob(ctx, "a", "x", nil, at(1)); err != nil {
		t.Fatal(err)
	}

	other, err := s.Container("b")
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := other.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 0 {
		t.Errorf("container b lists %v, want empty", blobs)
	}
}

func TestQueue_DequeueDeleteCycle(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	q, err := s.Queue("jobs")
	if err != nil {
		t.Fatal(err)
	}

	// Empty queue dequeues nothing.
	msg, err := q.DequeueVisible(ctx)
	if err != nil {
		t.Fatalf("DequeueVisible() error: %v", err)
	}
	if msg != nil {
		t.Fatalf("DequeueVisible() on empty queue = %v, want nil", msg)
	}

	if err := s.Enqueue(ctx, "jobs", []byte("work")); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	msg, err = q.DequeueVisible(ctx)
	if err != nil {
		t.Fatalf("DequeueVisible() error: %v", err)
	}
	if msg == nil || string(msg.Body) != "work" {
		t.Fatalf("DequeueVisible() = %v, want the enqueued message", msg)
	}

	// The claimed message is invisible to a second dequeue.
	again, err := q.DequeueVisible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Fatalf("second DequeueVisible() = %v, want nil while claimed", again)
	}

	if err := q.Delete(ctx, msg); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	// Deleted for good.
	s.SetVisibilityTimeout(0)
	gone, err := q.DequeueVisible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Fatalf("DequeueVisible() after delete = %v, want nil", gone)
	}
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	s := openStore(t)
	s.SetVisibilityTimeout(10 * time.Millisecond)
	ctx := context.Background()

	if err := s.Enqueue(ctx, "jobs", []byte("retry me")); err != nil {
		t.Fatal(err)
	}
	q, err := s.Queue("jobs")
	if err != nil {
		t.Fatal(err)
	}

	first, err := q.DequeueVisible(ctx)
	if err != nil || first == nil {
		t.Fatalf("first dequeue = %v, %v", first, err)
	}

	// Never deleted: becomes visible again after the timeout.
	time.Sleep(20 * time.Millisecond)
	second, err := q.DequeueVisible(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second == nil {
		t.Fatal("message not redelivered after visibility timeout")
	}
	if second.ID != first.ID {
		t.Errorf("redelivered ID = %s, want %s", second.ID, first.ID)
	}
	if second.Receipt == first.Receipt {
		t.Error("redelivery kept the old receipt, want a fresh one")
	}

	// The stale receipt from the first delivery cannot delete it.
	if err := q.Delete(ctx, first); err == nil {
		t.Error("Delete() with stale receipt succeeded, want error")
	}
	if err := q.Delete(ctx, second); err != nil {
		t.Errorf("Delete() with current receipt: %v", err)
	}
}

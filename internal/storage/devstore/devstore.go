// Package devstore is the well-known local deterministic store: an
// embedded SQLite database holding containers, blobs, and queues. It
// enumerates completely and reproducibly, which makes it the store of
// choice for local development and tests, and the reason registries that
// touch it run the full-scan detector — it offers no change feed.
package devstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nholden/tidewatch/internal/storage"
)

const timeFormat = time.RFC3339Nano

// DefaultVisibilityTimeout hides a dequeued message for this long before
// it becomes visible again if never deleted.
const DefaultVisibilityTimeout = 30 * time.Second

const schemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
    container TEXT NOT NULL,
    name TEXT NOT NULL,
    content BLOB,
    last_modified TEXT NOT NULL,
    PRIMARY KEY (container, name)
);
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    queue TEXT NOT NULL,
    body BLOB NOT NULL,
    visible_at TEXT NOT NULL,
    receipt TEXT
);
CREATE INDEX IF NOT EXISTS idx_messages_queue_visible ON messages(queue, visible_at);
`

var (
	_ storage.Account   = (*Store)(nil)
	_ storage.Container = (*container)(nil)
	_ storage.Queue     = (*queue)(nil)
)

// Store is a devstore account backed by one SQLite file.
type Store struct {
	db  *sql.DB
	id  string
	vis time.Duration
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema. The account identity is "dev:" + path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode lets queue timers and blob polls read concurrently.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, id: "dev:" + path, vis: DefaultVisibilityTimeout}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetVisibilityTimeout overrides the dequeue visibility timeout.
func (s *Store) SetVisibilityTimeout(d time.Duration) {
	s.vis = d
}

func (s *Store) ID() string          { return s.id }
func (s *Store) Deterministic() bool { return true }

// Container resolves a named container. Containers exist implicitly;
// an empty container lists zero blobs.
func (s *Store) Container(name string) (storage.Container, error) {
	if name == "" {
		return nil, fmt.Errorf("container name required: %w", storage.ErrNotFound)
	}
	return &container{store: s, name: name}, nil
}

// Queue resolves a named queue. Queues exist implicitly.
func (s *Store) Queue(name string) (storage.Queue, error) {
	if name == "" {
		return nil, fmt.Errorf("queue name required: %w", storage.ErrNotFound)
	}
	return &queue{store: s, name: name}, nil
}

// PutBlob writes a blob with an explicit modification time. Fixtures and
// local tooling use this; the trigger core itself only reads.
func (s *Store) PutBlob(ctx context.Context, containerName, blobName string, content []byte, modified time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (container, name, content, last_modified) VALUES (?, ?, ?, ?)
		ON CONFLICT (container, name) DO UPDATE SET content = excluded.content, last_modified = excluded.last_modified`,
		containerName, blobName, content, modified.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("put blob %s/%s: %w", containerName, blobName, err)
	}
	return nil
}

// DeleteBlob removes a blob if present.
func (s *Store) DeleteBlob(ctx context.Context, containerName, blobName string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE container = ? AND name = ?`, containerName, blobName)
	if err != nil {
		return fmt.Errorf("delete blob %s/%s: %w", containerName, blobName, err)
	}
	return nil
}

// Enqueue appends a message, immediately visible.
func (s *Store) Enqueue(ctx context.Context, queueName string, body []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO messages (queue, body, visible_at) VALUES (?, ?, ?)`,
		queueName, body, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", queueName, err)
	}
	return nil
}

type container struct {
	store *Store
	name  string
}

func (c *container) ID() storage.ContainerID {
	return storage.ContainerID{Account: c.store.id, Name: c.name}
}

func (c *container) Deterministic() bool { return true }

func (c *container) List(ctx context.Context) ([]storage.Blob, error) {
	rows, err := c.store.db.QueryContext(ctx, `SELECT name FROM blobs WHERE container = ? ORDER BY name`, c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	defer rows.Close()

	id := c.ID()
	var blobs []storage.Blob
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list %s: %w", c.name, err)
		}
		blobs = append(blobs, storage.Blob{Container: id, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return blobs, nil
}

func (c *container) LastModified(ctx context.Context, name string) (time.Time, bool, error) {
	var raw string
	err := c.store.db.QueryRowContext(ctx,
		`SELECT last_modified FROM blobs WHERE container = ? AND name = ?`, c.name, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat %s/%s: %w", c.name, name, err)
	}
	t, err := time.Parse(timeFormat, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat %s/%s: bad timestamp %q: %w", c.name, name, raw, err)
	}
	return t, true, nil
}

type queue struct {
	store *Store
	name  string
}

func (q *queue) ID() storage.QueueID {
	return storage.QueueID{Account: q.store.id, Name: q.name}
}

// DequeueVisible claims the oldest visible message by pushing its
// visible_at past the visibility timeout and stamping a fresh receipt.
// The claim is a single UPDATE guarded on the previous visibility, so
// concurrent dequeuers never claim the same delivery.
func (q *queue) DequeueVisible(ctx context.Context) (*storage.Message, error) {
	now := time.Now().UTC()
	for {
		var (
			id   int64
			body []byte
		)
		err := q.store.db.QueryRowContext(ctx, `
			SELECT id, body FROM messages
			WHERE queue = ? AND visible_at <= ?
			ORDER BY id LIMIT 1`,
			q.name, now.Format(timeFormat)).Scan(&id, &body)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("dequeue from %s: %w", q.name, err)
		}

		receipt := uuid.NewString()
		res, err := q.store.db.ExecContext(ctx, `
			UPDATE messages SET visible_at = ?, receipt = ?
			WHERE id = ? AND visible_at <= ?`,
			now.Add(q.store.vis).Format(timeFormat), receipt, id, now.Format(timeFormat))
		if err != nil {
			return nil, fmt.Errorf("claim message %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim message %d: %w", id, err)
		}
		if n == 0 {
			// Lost the claim race; try the next visible message.
			continue
		}

		return &storage.Message{
			ID:      fmt.Sprintf("%d", id),
			Body:    body,
			Receipt: receipt,
		}, nil
	}
}

// Delete acknowledges a claimed message. The receipt must match the
// claiming dequeue: a message that timed out and was re-dequeued carries
// a new receipt, so a stale delete is a no-op rather than a lost message.
func (q *queue) Delete(ctx context.Context, msg *storage.Message) error {
	res, err := q.store.db.ExecContext(ctx,
		`DELETE FROM messages WHERE queue = ? AND id = ? AND receipt = ?`,
		q.name, msg.ID, msg.Receipt)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("delete message %s: receipt no longer valid: %w", msg.ID, storage.ErrNotFound)
	}
	return nil
}

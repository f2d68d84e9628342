// Package pgstore is a PostgreSQL-backed blob store. Blobs live in a
// plain table; every write appends to a blob_changes log, which the
// change-feed detector consumes instead of rescanning whole containers.
// The log is advisory — it may be trimmed or lag replication — and the
// downstream freshness check keeps that safe.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nholden/tidewatch/internal/storage"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS blobs (
    container TEXT NOT NULL,
    name TEXT NOT NULL,
    content BYTEA,
    last_modified TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (container, name)
);
CREATE TABLE IF NOT EXISTS blob_changes (
    seq BIGSERIAL PRIMARY KEY,
    container TEXT NOT NULL,
    name TEXT NOT NULL,
    changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_blob_changes_container_seq ON blob_changes(container, seq);
`

// feedBatchSize caps the changes returned per feed read.
const feedBatchSize = 256

var (
	_ storage.Account    = (*Store)(nil)
	_ storage.Container  = (*container)(nil)
	_ storage.ChangeFeed = (*container)(nil)
)

// Store is a pgstore account over one connection pool.
type Store struct {
	pool *pgxpool.Pool
	id   string
}

// Open connects to the database at dsn and ensures the schema exists.
// The account identity is the DSN itself.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool, id: dsn}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ID() string          { return s.id }
func (s *Store) Deterministic() bool { return false }

// Container resolves a named container. Containers exist implicitly.
func (s *Store) Container(name string) (storage.Container, error) {
	if name == "" {
		return nil, fmt.Errorf("container name required: %w", storage.ErrNotFound)
	}
	return &container{store: s, name: name}, nil
}

// Queue returns ErrNotFound: pgstore holds blobs only. Queue accounts
// come from the amqpqueue or devstore backends.
func (s *Store) Queue(name string) (storage.Queue, error) {
	return nil, fmt.Errorf("pgstore has no queues (%q): %w", name, storage.ErrNotFound)
}

// PutBlob writes a blob and records the change in the feed log.
func (s *Store) PutBlob(ctx context.Context, containerName, blobName string, content []byte, modified time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("put blob %s/%s: %w", containerName, blobName, err))
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO blobs (container, name, content, last_modified) VALUES ($1, $2, $3, $4)
		ON CONFLICT (container, name) DO UPDATE SET content = EXCLUDED.content, last_modified = EXCLUDED.last_modified`,
		containerName, blobName, content, modified.UTC())
	if err != nil {
		return classify(fmt.Errorf("put blob %s/%s: %w", containerName, blobName, err))
	}
	_, err = tx.Exec(ctx, `INSERT INTO blob_changes (container, name) VALUES ($1, $2)`, containerName, blobName)
	if err != nil {
		return classify(fmt.Errorf("log change %s/%s: %w", containerName, blobName, err))
	}
	return tx.Commit(ctx)
}

type container struct {
	store *Store
	name  string
}

func (c *container) ID() storage.ContainerID {
	return storage.ContainerID{Account: c.store.id, Name: c.name}
}

func (c *container) Deterministic() bool { return false }

func (c *container) List(ctx context.Context) ([]storage.Blob, error) {
	rows, err := c.store.pool.Query(ctx, `SELECT name FROM blobs WHERE container = $1 ORDER BY name`, c.name)
	if err != nil {
		return nil, classify(fmt.Errorf("list %s: %w", c.name, err))
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
		return nil, classify(fmt.Errorf("list %s: %w", c.name, err))
	}
	return blobs, nil
}

func (c *container) LastModified(ctx context.Context, name string) (time.Time, bool, error) {
	var t time.Time
	err := c.store.pool.QueryRow(ctx,
		`SELECT last_modified FROM blobs WHERE container = $1 AND name = $2`, c.name, name).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, classify(fmt.Errorf("stat %s/%s: %w", c.name, name, err))
	}
	return t.UTC(), true, nil
}

// Changes reads the blob_changes log after the cursor (a sequence
// number; empty means the start of the retained log) and returns the
// next cursor. Consecutive duplicates for the same blob are collapsed.
func (c *container) Changes(ctx context.Context, cursor string) ([]storage.Blob, string, error) {
	var after int64
	if cursor != "" {
		var err error
		after, err = strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("bad change cursor %q: %w", cursor, err)
		}
	}

	rows, err := c.store.pool.Query(ctx, `
		SELECT seq, name FROM blob_changes
		WHERE container = $1 AND seq > $2
		ORDER BY seq LIMIT $3`,
		c.name, after, feedBatchSize)
	if err != nil {
		return nil, "", classify(fmt.Errorf("read change feed %s: %w", c.name, err))
	}
	defer rows.Close()

	id := c.ID()
	last := after
	seen := make(map[string]bool)
	var blobs []storage.Blob
	for rows.Next() {
		var (
			seq  int64
			name string
		)
		if err := rows.Scan(&seq, &name); err != nil {
			return nil, "", fmt.Errorf("read change feed %s: %w", c.name, err)
		}
		last = seq
		if seen[name] {
			continue
		}
		seen[name] = true
		blobs = append(blobs, storage.Blob{Container: id, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, "", classify(fmt.Errorf("read change feed %s: %w", c.name, err))
	}
	return blobs, strconv.FormatInt(last, 10), nil
}

// classify wraps connectivity-level failures as transient. A PgError
// means the server processed and rejected the statement — that is a real
// fault and propagates untouched, as do context cancellations.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storage.Transient(err)
}

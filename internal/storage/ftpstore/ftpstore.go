// Package ftpstore exposes a remote FTP directory tree as a read-only
// blob account: each container is a subdirectory, each file a blob, with
// modification times taken from the server listing. FTP has no change
// feed, so containers here are always enumerated by full scan.
package ftpstore

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/nholden/tidewatch/internal/storage"
)

// Config holds the connection settings for one FTP account.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	TLS      bool
	BaseDir  string // directory whose subdirectories are containers
}

var (
	_ storage.Account   = (*Store)(nil)
	_ storage.Container = (*container)(nil)
)

// Store is an FTP-backed account. Connections are dialed per operation
// and closed when the operation finishes; FTP control connections are
// cheap and idle servers drop them anyway.
type Store struct {
	cfg Config
	id  string
}

// Open validates the config and returns the account. No connection is
// made until a container operation runs.
func Open(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("ftp host required")
	}
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "/"
	}
	id := fmt.Sprintf("ftp://%s@%s:%d%s", cfg.User, cfg.Host, cfg.Port, cfg.BaseDir)
	return &Store{cfg: cfg, id: id}, nil
}

func (s *Store) ID() string          { return s.id }
func (s *Store) Deterministic() bool { return false }

func (s *Store) Container(name string) (storage.Container, error) {
	if name == "" {
		return nil, fmt.Errorf("container name required: %w", storage.ErrNotFound)
	}
	return &container{store: s, name: name}, nil
}

// Queue returns ErrNotFound: FTP has no queue semantics.
func (s *Store) Queue(name string) (storage.Queue, error) {
	return nil, fmt.Errorf("ftp account has no queues (%q): %w", name, storage.ErrNotFound)
}

// connect dials and logs in. Dial and login failures are connectivity
// faults, wrapped transient.
func (s *Store) connect() (*ftp.ServerConn, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var opts []ftp.DialOption
	if s.cfg.TLS {
		opts = append(opts, ftp.DialWithExplicitTLS(nil))
	}

	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, storage.Transient(fmt.Errorf("connecting to %s: %w", addr, err))
	}
	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		conn.Quit()
		return nil, storage.Transient(fmt.Errorf("login as %q: %w", s.cfg.User, err))
	}
	return conn, nil
}

type container struct {
	store *Store
	name  string
}

func (c *container) ID() storage.ContainerID {
	return storage.ContainerID{Account: c.store.id, Name: c.name}
}

func (c *container) Deterministic() bool { return false }

func (c *container) dir() string {
	return path.Join(c.store.cfg.BaseDir, c.name)
}

func (c *container) List(ctx context.Context) ([]storage.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := c.store.connect()
	if err != nil {
		return nil, err
	}
	defer conn.Quit()

	entries, err := conn.List(c.dir())
	if err != nil {
		return nil, storage.Transient(fmt.Errorf("listing %q: %w", c.dir(), err))
	}

	id := c.ID()
	var blobs []storage.Blob
	for _, entry := range entries {
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		blobs = append(blobs, storage.Blob{Container: id, Name: entry.Name})
	}
	return blobs, nil
}

func (c *container) LastModified(ctx context.Context, name string) (time.Time, bool, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, false, err
	}
	conn, err := c.store.connect()
	if err != nil {
		return time.Time{}, false, err
	}
	defer conn.Quit()

	t, err := conn.GetTime(path.Join(c.dir(), name))
	if err != nil {
		var proto *textproto.Error
		if errors.As(err, &proto) && proto.Code == ftp.StatusFileUnavailable {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, storage.Transient(fmt.Errorf("stat %q: %w", name, err))
	}
	return t.UTC(), true, nil
}

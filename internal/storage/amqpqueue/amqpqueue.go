// Package amqpqueue exposes AMQP 0-9-1 queues through the storage.Queue
// contract. DequeueVisible maps to basic.get with manual acknowledgement
// and Delete to basic.ack. AMQP has no timed visibility window, so a
// delivery the caller never deletes is negatively acknowledged with
// requeue on the next dequeue — redelivery deferred by one poll interval
// stands in for the visibility timeout.
package amqpqueue

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nholden/tidewatch/internal/storage"
)

var (
	_ storage.Account = (*Store)(nil)
	_ storage.Queue   = (*queue)(nil)
)

// Store is an AMQP account: one connection, one channel, queues only.
type Store struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Open records the broker URL. The connection is dialed lazily on first
// use and redialed after a broker-side close.
func Open(url string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	return &Store{url: url}, nil
}

// Close shuts down the broker connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn, s.ch = nil, nil
	return err
}

func (s *Store) ID() string          { return s.url }
func (s *Store) Deterministic() bool { return false }

// Container returns ErrNotFound: an AMQP broker holds no blobs.
func (s *Store) Container(name string) (storage.Container, error) {
	return nil, fmt.Errorf("amqp account has no blob containers (%q): %w", name, storage.ErrNotFound)
}

func (s *Store) Queue(name string) (storage.Queue, error) {
	if name == "" {
		return nil, fmt.Errorf("queue name required: %w", storage.ErrNotFound)
	}
	return &queue{store: s, name: name}, nil
}

// channel returns a live channel, dialing if necessary. Callers hold
// s.mu.
func (s *Store) channel() (*amqp.Channel, error) {
	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}
	if s.conn == nil || s.conn.IsClosed() {
		conn, err := amqp.Dial(s.url)
		if err != nil {
			return nil, storage.Transient(fmt.Errorf("dial %s: %w", s.url, err))
		}
		s.conn = conn
	}
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, storage.Transient(fmt.Errorf("open channel: %w", err))
	}
	s.ch = ch
	return ch, nil
}

type queue struct {
	store *Store
	name  string

	// pending is the delivery tag of the last dequeued-but-undeleted
	// message, nacked back to the broker on the next dequeue.
	pending    uint64
	hasPending bool
}

func (q *queue) ID() storage.QueueID {
	return storage.QueueID{Account: q.store.url, Name: q.name}
}

func (q *queue) DequeueVisible(ctx context.Context) (*storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.store.mu.Lock()
	defer q.store.mu.Unlock()

	ch, err := q.store.channel()
	if err != nil {
		return nil, err
	}

	// Requeue the previous undeleted delivery before fetching a new one.
	if q.hasPending {
		if err := ch.Nack(q.pending, false, true); err != nil {
			return nil, storage.Transient(fmt.Errorf("requeue pending delivery: %w", err))
		}
		q.hasPending = false
	}

	delivery, ok, err := ch.Get(q.name, false)
	if err != nil {
		return nil, storage.Transient(fmt.Errorf("get from %s: %w", q.name, err))
	}
	if !ok {
		return nil, nil
	}

	q.pending = delivery.DeliveryTag
	q.hasPending = true

	id := delivery.MessageId
	if id == "" {
		id = strconv.FormatUint(delivery.DeliveryTag, 10)
	}
	return &storage.Message{
		ID:      id,
		Body:    delivery.Body,
		Receipt: strconv.FormatUint(delivery.DeliveryTag, 10),
	}, nil
}

func (q *queue) Delete(ctx context.Context, msg *storage.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tag, err := strconv.ParseUint(msg.Receipt, 10, 64)
	if err != nil {
		return fmt.Errorf("bad receipt %q: %w", msg.Receipt, err)
	}

	q.store.mu.Lock()
	defer q.store.mu.Unlock()

	ch, err := q.store.channel()
	if err != nil {
		return err
	}
	if err := ch.Ack(tag, false); err != nil {
		return storage.Transient(fmt.Errorf("ack delivery %d: %w", tag, err))
	}
	if q.hasPending && q.pending == tag {
		q.hasPending = false
	}
	return nil
}

// Package memory implements an in-process queue broker backed by channels.
// Used by tests and local runs; messages do not survive a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
)

// DefaultCapacity is the per-queue buffer size.
const DefaultCapacity = 4096

type message struct {
	id   string
	body []byte
}

// Broker is an in-memory queue.Broker.
type Broker struct {
	mu       sync.Mutex
	queues   map[string]chan message
	capacity int
	acked    map[string]int

	closed chan struct{}
	once   sync.Once
}

// New creates a broker whose queues buffer up to capacity messages.
func New(capacity int) *Broker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broker{
		queues:   make(map[string]chan message),
		capacity: capacity,
		acked:    make(map[string]int),
		closed:   make(chan struct{}),
	}
}

func (b *Broker) queue(name string) chan message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = make(chan message, b.capacity)
		b.queues[name] = q
	}
	return q
}

// Publish appends a message. It blocks while the queue is full.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	if b.isClosed() {
		return queue.ErrClosed
	}

	msg := message{id: uuid.NewString(), body: append([]byte(nil), body...)}
	select {
	case b.queue(queueName) <- msg:
		return nil
	case <-b.closed:
		return queue.ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("memory publish %s: %w", queueName, ctx.Err())
	}
}

// Receive returns the next message of the queue.
func (b *Broker) Receive(ctx context.Context, queueName string) (*queue.Delivery, error) {
	select {
	case msg := <-b.queue(queueName):
		return queue.NewDelivery(msg.id, msg.body, func(context.Context) error {
			b.mu.Lock()
			b.acked[queueName]++
			b.mu.Unlock()
			return nil
		}), nil
	case <-b.closed:
		return nil, queue.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of messages waiting in the queue.
func (b *Broker) Len(queueName string) int {
	return len(b.queue(queueName))
}

// Acked returns the number of acknowledged deliveries of the queue.
func (b *Broker) Acked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked[queueName]
}

// Ping fails after Close.
func (b *Broker) Ping(context.Context) error {
	if b.isClosed() {
		return queue.ErrClosed
	}
	return nil
}

// Close wakes blocked callers. Safe to call more than once.
func (b *Broker) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *Broker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

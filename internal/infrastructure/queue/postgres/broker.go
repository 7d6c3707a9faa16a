package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
)

const (
	publishQuery = `INSERT INTO queue_messages (queue, body) VALUES ($1, $2)`

	claimQuery = `
		UPDATE queue_messages
		SET visible_at = NOW() + $2 * INTERVAL '1 millisecond',
		    attempts = attempts + 1
		WHERE id = (
			SELECT id FROM queue_messages
			WHERE queue = $1 AND visible_at <= NOW()
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, body`

	ackQuery = `DELETE FROM queue_messages WHERE id = $1`
)

// Broker is a queue.Broker over a PostgreSQL table.
type Broker struct {
	pool *pgxpool.Pool
	cfg  Config

	closeOnce sync.Once
	closed    chan struct{}
}

// Open connects to the database and applies the queue migrations.
func Open(ctx context.Context, cfg Config) (*Broker, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := NewMigrator(pool).Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool, cfg), nil
}

// New wraps an existing pool. The queue table must exist.
func New(pool *pgxpool.Pool, cfg Config) *Broker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Lease <= 0 {
		cfg.Lease = def.Lease
	}
	return &Broker{pool: pool, cfg: cfg, closed: make(chan struct{})}
}

// Publish inserts a message row.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	if b.isClosed() {
		return queue.ErrClosed
	}
	if _, err := b.pool.Exec(ctx, publishQuery, queueName, body); err != nil {
		return fmt.Errorf("postgres publish %s: %w", queueName, err)
	}
	return nil
}

// Receive claims the oldest visible message, polling while the queue is empty.
func (b *Broker) Receive(ctx context.Context, queueName string) (*queue.Delivery, error) {
	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if b.isClosed() {
			return nil, queue.ErrClosed
		}

		var (
			id   int64
			body []byte
		)
		err := b.pool.QueryRow(ctx, claimQuery, queueName, b.cfg.Lease.Milliseconds()).Scan(&id, &body)
		switch {
		case err == nil:
			return queue.NewDelivery(strconv.FormatInt(id, 10), body, func(ctx context.Context) error {
				_, err := b.pool.Exec(ctx, ackQuery, id)
				return err
			}), nil
		case errors.Is(err, pgx.ErrNoRows):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case b.isClosed():
			return nil, queue.ErrClosed
		default:
			return nil, fmt.Errorf("postgres claim %s: %w", queueName, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.closed:
			return nil, queue.ErrClosed
		case <-ticker.C:
		}
	}
}

// Ping checks the database.
func (b *Broker) Ping(ctx context.Context) error {
	if b.isClosed() {
		return queue.ErrClosed
	}
	return b.pool.Ping(ctx)
}

// Close closes the pool.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.pool.Close()
	})
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

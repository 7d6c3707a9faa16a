// Package redis implements the queue broker on Redis Streams.
//
// Publish appends to a stream (XADD with an approximate MAXLEN cap). Receive reads
// through a consumer group (XREADGROUP), so a delivery stays in the group's pending
// list until Ack (XACK). After a restart the consumer first re-reads its own pending
// entries, which gives at-least-once delivery.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection and stream configuration.
type Config struct {
	// Addr is the Redis server address in "host:port" format.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// Group is the consumer group name shared by all service instances.
	Group string

	// Consumer identifies this process inside the group.
	Consumer string

	// MaxLen caps each stream approximately (0 = unbounded).
	MaxLen int64

	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		DialTimeout: 5 * time.Second,
		Group:       "leaderboard",
		Consumer:    "leaderboard-1",
		MaxLen:      100000,
		Block:       time.Second,
	}
}

// bodyField is the stream entry field holding the message body.
const bodyField = "body"

// ══════════════════════════════════════════════════════════════════════════════
// BROKER
// ══════════════════════════════════════════════════════════════════════════════

// Broker is a queue.Broker over Redis Streams.
type Broker struct {
	client *redis.Client
	cfg    Config

	mu sync.Mutex
	// groups records streams whose consumer group exists.
	groups map[string]bool
	// backlogDone records streams whose own pending entries were re-read.
	backlogDone map[string]bool
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Broker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		// XREADGROUP blocks on the socket longer than a normal command.
		ReadTimeout: cfg.Block + 3*time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", cfg.Addr, err)
	}

	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client *redis.Client, cfg Config) *Broker {
	def := DefaultConfig()
	if cfg.Group == "" {
		cfg.Group = def.Group
	}
	if cfg.Consumer == "" {
		cfg.Consumer = def.Consumer
	}
	if cfg.Block <= 0 {
		cfg.Block = def.Block
	}

	return &Broker{
		client:      client,
		cfg:         cfg,
		groups:      make(map[string]bool),
		backlogDone: make(map[string]bool),
	}
}

// Publish appends body to the stream named queueName.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	args := &redis.XAddArgs{
		Stream: queueName,
		Values: map[string]any{bodyField: body},
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis xadd %s: %w", queueName, err)
	}
	return nil
}

// Receive returns the next entry of the stream for this consumer.
func (b *Broker) Receive(ctx context.Context, queueName string) (*queue.Delivery, error) {
	if err := b.ensureGroup(ctx, queueName); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// "0" re-reads entries delivered to this consumer but never acknowledged,
		// ">" asks for entries never delivered to the group.
		start := ">"
		if !b.isBacklogDone(queueName) {
			start = "0"
		}

		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{queueName, start},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()

		switch {
		case errors.Is(err, redis.Nil):
			if start == "0" {
				b.markBacklogDone(queueName)
			}
			continue
		case errors.Is(err, redis.ErrClosed):
			return nil, queue.ErrClosed
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("redis xreadgroup %s: %w", queueName, err)
		}

		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			if start == "0" {
				b.markBacklogDone(queueName)
			}
			continue
		}

		return b.delivery(queueName, streams[0].Messages[0]), nil
	}
}

func (b *Broker) delivery(queueName string, msg redis.XMessage) *queue.Delivery {
	var body []byte
	switch v := msg.Values[bodyField].(type) {
	case string:
		body = []byte(v)
	case []byte:
		body = v
	}

	id := msg.ID
	return queue.NewDelivery(id, body, func(ctx context.Context) error {
		if err := b.client.XAck(ctx, queueName, b.cfg.Group, id).Err(); err != nil {
			return fmt.Errorf("redis xack %s %s: %w", queueName, id, err)
		}
		return nil
	})
}

// ensureGroup creates the consumer group (and the stream) once per queue.
func (b *Broker) ensureGroup(ctx context.Context, queueName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.groups[queueName] {
		return nil
	}

	err := b.client.XGroupCreateMkStream(ctx, queueName, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis xgroup create %s: %w", queueName, err)
	}

	b.groups[queueName] = true
	return nil
}

func (b *Broker) isBacklogDone(queueName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlogDone[queueName]
}

func (b *Broker) markBacklogDone(queueName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backlogDone[queueName] = true
}

// Ping checks if Redis is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

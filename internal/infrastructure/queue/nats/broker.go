// Package nats implements the queue broker on NATS JetStream.
//
// Every queue is a stream with one subject of the same name. Receive pulls from a
// durable consumer with explicit acks, so a message that is not acknowledged within
// AckWait is redelivered.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
)

// Config holds the NATS connection and JetStream settings.
type Config struct {
	// URL is the server URL, e.g. "nats://localhost:4222".
	URL string

	// Name identifies the connection on the server.
	Name string

	// Durable is the consumer name shared by all service instances.
	Durable string

	// AckWait is how long the server waits for an ack before redelivery.
	AckWait time.Duration

	// PollWait is how long one pull request waits for a message.
	PollWait time.Duration

	// MaxMsgs caps each stream (0 = unbounded).
	MaxMsgs int64
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		URL:      nats.DefaultURL,
		Name:     "leaderboard",
		Durable:  "leaderboard",
		AckWait:  30 * time.Second,
		PollWait: time.Second,
		MaxMsgs:  100000,
	}
}

// Broker is a queue.Broker over JetStream.
type Broker struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	cfg Config

	mu        sync.Mutex
	streams   map[string]bool
	consumers map[string]jetstream.Consumer
}

// Dial connects to NATS and opens JetStream.
func Dial(ctx context.Context, cfg Config) (*Broker, error) {
	cfg = withDefaults(cfg)

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: failed to connect to %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: failed to open jetstream: %w", err)
	}

	if _, err := js.AccountInfo(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream unavailable: %w", err)
	}

	return &Broker{
		nc:        nc,
		js:        js,
		cfg:       cfg,
		streams:   make(map[string]bool),
		consumers: make(map[string]jetstream.Consumer),
	}, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Durable == "" {
		cfg.Durable = def.Durable
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = def.AckWait
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = def.PollWait
	}
	return cfg
}

// streamConfig describes the stream backing a queue.
func (b *Broker) streamConfig(queueName string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      queueName,
		Subjects:  []string{queueName},
		Retention: jetstream.WorkQueuePolicy,
		Storage:   jetstream.FileStorage,
		MaxMsgs:   maxMsgs(b.cfg.MaxMsgs),
	}
}

func maxMsgs(n int64) int64 {
	if n <= 0 {
		return -1
	}
	return n
}

func (b *Broker) ensureStream(ctx context.Context, queueName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.streams[queueName] {
		return nil
	}
	if _, err := b.js.CreateOrUpdateStream(ctx, b.streamConfig(queueName)); err != nil {
		return fmt.Errorf("nats: create stream %s: %w", queueName, err)
	}
	b.streams[queueName] = true
	return nil
}

func (b *Broker) consumer(ctx context.Context, queueName string) (jetstream.Consumer, error) {
	if err := b.ensureStream(ctx, queueName); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.consumers[queueName]; ok {
		return c, nil
	}

	c, err := b.js.CreateOrUpdateConsumer(ctx, queueName, jetstream.ConsumerConfig{
		Durable:       b.cfg.Durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		FilterSubject: queueName,
		MaxAckPending: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: create consumer %s/%s: %w", queueName, b.cfg.Durable, err)
	}
	b.consumers[queueName] = c
	return c, nil
}

// Publish stores body in the queue stream and waits for the server ack.
func (b *Broker) Publish(ctx context.Context, queueName string, body []byte) error {
	if err := b.ensureStream(ctx, queueName); err != nil {
		return err
	}
	if _, err := b.js.Publish(ctx, queueName, body); err != nil {
		return fmt.Errorf("nats publish %s: %w", queueName, err)
	}
	return nil
}

// Receive pulls the next message of the queue.
func (b *Broker) Receive(ctx context.Context, queueName string) (*queue.Delivery, error) {
	c, err := b.consumer(ctx, queueName)
	if err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.nc.IsClosed() {
			return nil, queue.ErrClosed
		}

		msg, err := c.Next(jetstream.FetchMaxWait(b.cfg.PollWait))
		switch {
		case errors.Is(err, nats.ErrTimeout), errors.Is(err, jetstream.ErrNoMessages):
			continue
		case errors.Is(err, nats.ErrConnectionClosed):
			return nil, queue.ErrClosed
		case err != nil:
			return nil, fmt.Errorf("nats fetch %s: %w", queueName, err)
		}

		return queue.NewDelivery(messageID(msg), msg.Data(), func(context.Context) error {
			return msg.Ack()
		}), nil
	}
}

// messageID returns the stream sequence of msg.
func messageID(msg jetstream.Msg) string {
	meta, err := msg.Metadata()
	if err != nil {
		return ""
	}
	return strconv.FormatUint(meta.Sequence.Stream, 10)
}

// Ping checks that the connection is up.
func (b *Broker) Ping(context.Context) error {
	if status := b.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats: connection %s", status)
	}
	return nil
}

// Close drains and closes the connection.
func (b *Broker) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}

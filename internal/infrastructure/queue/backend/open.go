// Package backend opens the queue broker selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/alem-hub/weekly-leaderboard/config"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/memory"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/nats"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/postgres"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/redis"
)

// Open connects to the configured backend.
func Open(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (queue.Broker, error) {
	if log == nil {
		log = slog.Default()
	}

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory queue, messages are lost on exit")
		return memory.New(0), nil

	case config.BackendRedis:
		rc, err := RedisConfig(cfg.Redis)
		if err != nil {
			return nil, err
		}
		b, err := redis.Dial(ctx, rc)
		if err != nil {
			return nil, err
		}
		log.Info("queue connected", "backend", cfg.Backend, "addr", rc.Addr, "group", rc.Group)
		return b, nil

	case config.BackendNATS:
		nc := NATSConfig(cfg.NATS)
		b, err := nats.Dial(ctx, nc)
		if err != nil {
			return nil, err
		}
		log.Info("queue connected", "backend", cfg.Backend, "url", nc.URL, "durable", nc.Durable)
		return b, nil

	case config.BackendPostgres:
		b, err := postgres.Open(ctx, PostgresConfig(cfg.Postgres))
		if err != nil {
			return nil, err
		}
		log.Info("queue connected", "backend", cfg.Backend)
		return b, nil
	}

	return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
}

// RedisConfig maps the environment settings to the broker config.
// A REDIS_URL takes precedence over the discrete fields.
func RedisConfig(c config.RedisConfig) (redis.Config, error) {
	rc := redis.DefaultConfig()
	rc.Addr = c.Addr()
	rc.Password = c.Password
	rc.DB = c.DB

	if c.URL != "" {
		opts, err := goredis.ParseURL(c.URL)
		if err != nil {
			return redis.Config{}, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rc.Addr = opts.Addr
		rc.Password = opts.Password
		rc.DB = opts.DB
	}

	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.Group != "" {
		rc.Group = c.Group
	}
	if c.Consumer != "" {
		rc.Consumer = c.Consumer
	}
	if c.Block > 0 {
		rc.Block = c.Block
	}
	rc.MaxLen = c.StreamMaxLen
	return rc, nil
}

// NATSConfig maps the environment settings to the broker config.
func NATSConfig(c config.NATSConfig) nats.Config {
	nc := nats.DefaultConfig()
	if c.URL != "" {
		nc.URL = c.URL
	}
	if c.Durable != "" {
		nc.Durable = c.Durable
	}
	if c.AckWait > 0 {
		nc.AckWait = c.AckWait
	}
	if c.PollWait > 0 {
		nc.PollWait = c.PollWait
	}
	nc.MaxMsgs = c.MaxMsgs
	return nc
}

// PostgresConfig maps the environment settings to the broker config.
func PostgresConfig(c config.PostgresConfig) postgres.Config {
	pc := postgres.DefaultConfig()
	pc.URL = c.URL
	if c.MaxConns > 0 {
		pc.MaxConns = int32(c.MaxConns)
	}
	if c.PollInterval > 0 {
		pc.PollInterval = c.PollInterval
	}
	if c.Lease > 0 {
		pc.Lease = c.Lease
	}
	return pc
}

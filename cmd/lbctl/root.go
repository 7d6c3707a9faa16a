package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alem-hub/weekly-leaderboard/config"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/backend"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// opener открывает брокер по конфигурации очередей.
type opener func(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (queue.Broker, error)

// openBroker - opener по умолчанию.
func openBroker(ctx context.Context, cfg config.QueueConfig, log *slog.Logger) (queue.Broker, error) {
	return backend.Open(ctx, cfg, log)
}

// cli - общее состояние подкоманд.
type cli struct {
	open    opener
	backend string
	verbose bool

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd(open opener) *cobra.Command {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "lbctl",
		Short:         "Produce commands to and monitor the queues of the weekly leaderboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&c.backend, "backend", "", "queue backend override (memory, redis, nats, postgres)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newProduceCmd(c),
		newLoadCmd(c),
		newMonitorCmd(c),
	)
	return root
}

// setup загружает конфигурацию и настраивает логирование.
func (c *cli) setup(logOutput io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.backend != "" {
		cfg.Queue.Backend = strings.ToLower(c.backend)
	}

	level := logger.ParseLevel("warn")
	if c.verbose {
		level = logger.ParseLevel("debug")
	}

	opts := logger.DefaultOptions()
	opts.Output = logOutput
	opts.Level = level
	opts.Format = logger.FormatText

	c.cfg = cfg
	c.log = logger.New(opts)
	return nil
}

// connect открывает брокер. Закрыть его обязан вызывающий.
func (c *cli) connect(ctx context.Context) (queue.Broker, error) {
	broker, err := c.open(ctx, c.cfg.Queue, c.log)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue broker: %w", err)
	}
	return broker, nil
}

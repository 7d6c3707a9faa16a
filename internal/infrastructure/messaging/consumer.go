package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
	"github.com/alem-hub/weekly-leaderboard/pkg/retry"
)

// Handler processes one raw inbound message.
type Handler interface {
	Dispatch(ctx context.Context, raw []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, raw []byte) error

// Dispatch calls f.
func (f HandlerFunc) Dispatch(ctx context.Context, raw []byte) error {
	return f(ctx, raw)
}

// ConsumerConfig contains configuration for the Consumer.
type ConsumerConfig struct {
	// Queue is the source queue name.
	Queue string

	// Retrier wraps every receive (default: retry.ReceiveRetrier(5)).
	Retrier *retry.Retrier

	// AckTimeout bounds each acknowledgement.
	AckTimeout time.Duration

	Logger *slog.Logger
}

// Consumer receives inbound messages one at a time, hands them to the handler
// and acknowledges them whatever the outcome. Failed commands are not redelivered;
// only messages lost before Ack (crash, transport error) are.
type Consumer struct {
	receiver   queue.Receiver
	handler    Handler
	queue      string
	retrier    *retry.Retrier
	ackTimeout time.Duration
	logger     *slog.Logger
}

// NewConsumer creates a consumer reading from receiver.
func NewConsumer(receiver queue.Receiver, handler Handler, config ConsumerConfig) *Consumer {
	if config.Queue == "" {
		config.Queue = queue.DefaultInbound
	}
	if config.Retrier == nil {
		config.Retrier = retry.ReceiveRetrier(5)
	}
	if config.AckTimeout <= 0 {
		config.AckTimeout = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Consumer{
		receiver:   receiver,
		handler:    handler,
		queue:      config.Queue,
		retrier:    config.Retrier,
		ackTimeout: config.AckTimeout,
		logger:     config.Logger.With(logger.Component("consumer"), logger.Queue(config.Queue)),
	}
}

// Run consumes until ctx is cancelled (returns nil) or receiving keeps failing
// after all retries (returns the error).
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("inbound consumer started")
	defer c.logger.Info("inbound consumer stopped")

	for {
		d, err := c.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive from %s: %w", c.queue, err)
		}

		c.handle(ctx, d)
	}
}

func (c *Consumer) receive(ctx context.Context) (*queue.Delivery, error) {
	var d *queue.Delivery
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		var err error
		d, err = c.receiver.Receive(ctx, c.queue)
		if errors.Is(err, queue.ErrClosed) {
			return retry.Permanent(err)
		}
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("receive failed", logger.Err(err))
		}
		return err
	})
	return d, err
}

// handle dispatches the message and acknowledges it.
func (c *Consumer) handle(ctx context.Context, d *queue.Delivery) {
	if err := c.dispatch(ctx, d); err != nil {
		c.logger.Debug("message processed with error", slog.String("delivery_id", d.ID), logger.Err(err))
	}

	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.ackTimeout)
	defer cancel()

	if err := d.Ack(ackCtx); err != nil {
		c.logger.Warn("ack failed, message may be redelivered",
			slog.String("delivery_id", d.ID),
			logger.Err(err),
		)
	}
}

// dispatch calls the handler, turning a panic into an error.
func (c *Consumer) dispatch(ctx context.Context, d *queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while handling message",
				slog.String("delivery_id", d.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return c.handler.Dispatch(ctx, d.Body)
}

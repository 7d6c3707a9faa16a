// Package messaging moves messages between the leaderboard and its queues: the
// outbound channel that publishes snapshot texts in order, and the inbound consumer
// that feeds raw commands to the dispatcher.
package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
	"github.com/alem-hub/weekly-leaderboard/pkg/circuitbreaker"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
	"github.com/alem-hub/weekly-leaderboard/pkg/retry"
)

// ErrOutboundStopped is returned by Flush when the worker stops with messages pending.
var ErrOutboundStopped = errors.New("outbound: stopped with pending messages")

// Outbound publish results.
const (
	ResultSent     = "sent"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
	ResultDropped  = "dropped"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// OutboundConfig contains configuration for the Outbound channel.
type OutboundConfig struct {
	// Queue is the destination queue name.
	Queue string

	// Retrier wraps every publish (default: retry.PublishRetrier(3, 5s)).
	Retrier *retry.Retrier

	// Breaker guards whole publishes including retries (nil disables it).
	Breaker *circuitbreaker.CircuitBreaker

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND
// ══════════════════════════════════════════════════════════════════════════════

// Outbound is an unbounded FIFO of messages drained by a single worker that
// publishes them one at a time. Enqueue never blocks.
type Outbound struct {
	mu       sync.Mutex
	pending  []string
	inFlight bool
	drained  chan struct{} // closed while nothing is pending or in flight

	notify   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	publisher queue.Publisher
	queue     string
	retrier   *retry.Retrier
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewOutbound creates an outbound channel publishing to publisher.
func NewOutbound(publisher queue.Publisher, config OutboundConfig) *Outbound {
	if config.Queue == "" {
		config.Queue = queue.DefaultOutbound
	}
	if config.Retrier == nil {
		config.Retrier = retry.PublishRetrier(3, 5*time.Second)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	drained := make(chan struct{})
	close(drained)

	return &Outbound{
		drained:   drained,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		publisher: publisher,
		queue:     config.Queue,
		retrier:   config.Retrier,
		breaker:   config.Breaker,
		logger:    config.Logger.With(logger.Component("outbound"), logger.Queue(config.Queue)),
		metrics:   config.Metrics,
	}
}

// Enqueue appends a message and wakes the worker.
func (o *Outbound) Enqueue(message string) {
	o.mu.Lock()
	if len(o.pending) == 0 && !o.inFlight {
		o.drained = make(chan struct{})
	}
	o.pending = append(o.pending, message)
	n := len(o.pending)
	o.mu.Unlock()

	o.metrics.SetOutboundPending(n)

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued messages, not counting one being published.
func (o *Outbound) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Run publishes messages until Stop is called or ctx is cancelled.
// Messages still queued at that point are dropped.
func (o *Outbound) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, o.Stop)
	defer stop()

	o.logger.Info("outbound worker started")
	defer o.logger.Info("outbound worker stopped")

	for {
		select {
		case <-o.done:
			o.dropPending()
			return nil
		default:
		}

		message, ok := o.take()
		if !ok {
			select {
			case <-o.notify:
			case <-o.done:
			}
			continue
		}

		o.publish(ctx, message)
		o.finish()
	}
}

// Stop makes Run return at its next wake. Safe to call more than once.
func (o *Outbound) Stop() {
	o.stopOnce.Do(func() { close(o.done) })
}

// Flush waits until every queued message has been published or dropped by the
// retry policy. It returns ctx.Err() on timeout and ErrOutboundStopped when the
// worker stops first.
func (o *Outbound) Flush(ctx context.Context) error {
	o.mu.Lock()
	drained := o.drained
	o.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-o.done:
		select {
		case <-drained:
			return nil
		default:
			return ErrOutboundStopped
		}
	}
}

// take pops the front message and marks it in flight.
func (o *Outbound) take() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.pending) == 0 {
		return "", false
	}
	message := o.pending[0]
	o.pending[0] = ""
	o.pending = o.pending[1:]
	o.inFlight = true
	return message, true
}

// finish clears the in-flight mark and signals Flush when the queue is empty.
func (o *Outbound) finish() {
	o.mu.Lock()
	o.inFlight = false
	n := len(o.pending)
	if n == 0 {
		close(o.drained)
	}
	o.mu.Unlock()

	o.metrics.SetOutboundPending(n)
}

func (o *Outbound) publish(ctx context.Context, message string) {
	start := time.Now()
	send := func(ctx context.Context) error {
		return o.retrier.Do(ctx, func(ctx context.Context) error {
			return o.publisher.Publish(ctx, o.queue, []byte(message))
		})
	}

	var err error
	if o.breaker != nil {
		err = o.breaker.Execute(ctx, send)
	} else {
		err = send(ctx)
	}

	if circuitbreaker.IsRejected(err) {
		o.metrics.OutboundMessage(ResultRejected)
		o.logger.Warn("outbound circuit open, message dropped", slog.Int("bytes", len(message)))
		return
	}
	if err != nil {
		o.metrics.OutboundMessage(ResultFailed)
		o.logger.Error("outbound publish failed, message dropped",
			slog.Int("bytes", len(message)),
			logger.Err(err),
		)
		return
	}

	o.metrics.OutboundMessage(ResultSent)
	o.logger.Debug("outbound message published", logger.Latency(time.Since(start)))
}

func (o *Outbound) dropPending() {
	o.mu.Lock()
	n := len(o.pending)
	o.pending = nil
	o.mu.Unlock()

	if n == 0 {
		return
	}
	o.metrics.SetOutboundPending(0)
	for i := 0; i < n; i++ {
		o.metrics.OutboundMessage(ResultDropped)
	}
	o.logger.Warn("outbound stopped with pending messages", slog.Int("dropped", n))
}

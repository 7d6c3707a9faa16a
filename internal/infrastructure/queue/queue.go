// Package queue defines the transport collaborators of the leaderboard service:
// a durable queue with at-least-once delivery. Inbound commands are received one
// at a time and acknowledged after processing; outbound snapshot messages are
// published without acknowledgement.
//
// Implementations live in the sub-packages memory, redis, nats and postgres.
package queue

import (
	"context"
	"errors"
	"sync"
)

// Default queue names.
const (
	DefaultInbound  = "leaderboard_input"
	DefaultOutbound = "leaderboard_output"
)

var (
	// ErrClosed is returned by a broker after Close.
	ErrClosed = errors.New("queue: broker closed")

	// ErrAlreadyAcked is returned when a delivery is acknowledged twice.
	ErrAlreadyAcked = errors.New("queue: delivery already acknowledged")
)

// Publisher sends one message to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Receiver blocks until the next message of a queue is available or ctx is done.
type Receiver interface {
	Receive(ctx context.Context, queue string) (*Delivery, error)
}

// Broker is a queue transport.
type Broker interface {
	Publisher
	Receiver

	// Ping checks that the transport is reachable.
	Ping(ctx context.Context) error

	// Close releases the connection. Blocked Receive calls return ErrClosed or ctx errors.
	Close() error
}

// Delivery is one received message. It must be acknowledged once processed;
// unacknowledged deliveries are redelivered by the durable backends.
type Delivery struct {
	ID   string
	Body []byte

	ack  func(ctx context.Context) error
	once sync.Once
}

// NewDelivery creates a delivery with the backend specific acknowledge function.
func NewDelivery(id string, body []byte, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{ID: id, Body: body, ack: ack}
}

// Ack acknowledges the delivery. A second call returns ErrAlreadyAcked.
func (d *Delivery) Ack(ctx context.Context) error {
	err := ErrAlreadyAcked
	d.once.Do(func() {
		err = nil
		if d.ack != nil {
			err = d.ack(ctx)
		}
	})
	return err
}

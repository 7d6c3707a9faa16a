package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(t *testing.T) (*Broker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.Block = 20 * time.Millisecond
	return New(client, cfg), client
}

func TestBroker_PublishReceiveAck(t *testing.T) {
	b, client := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "leaderboard_input", []byte("user_registered\n1\nalice")))
	require.NoError(t, b.Publish(ctx, "leaderboard_input", []byte("user_connected\n1")))

	n, err := client.XLen(ctx, "leaderboard_input").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	d, err := b.Receive(ctx, "leaderboard_input")
	require.NoError(t, err)
	assert.Equal(t, "user_registered\n1\nalice", string(d.Body))
	assert.NotEmpty(t, d.ID)
	require.NoError(t, d.Ack(ctx))

	d, err = b.Receive(ctx, "leaderboard_input")
	require.NoError(t, err)
	assert.Equal(t, "user_connected\n1", string(d.Body))
	require.NoError(t, d.Ack(ctx))
}

func TestBroker_RedeliversUnacked(t *testing.T) {
	b, client := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, "q", []byte("deal")))

	first, err := b.Receive(ctx, "q")
	require.NoError(t, err)

	// A restarted process with the same consumer name sees the pending entry again.
	restarted := New(client, b.cfg)
	again, err := restarted.Receive(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "deal", string(again.Body))
	require.NoError(t, again.Ack(ctx))

	// Once acknowledged nothing is left.
	afterAck := New(client, b.cfg)
	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = afterAck.Receive(waitCtx, "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBroker_ReceiveEmptyHonoursContext(t *testing.T) {
	b, _ := newTestBroker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Receive(ctx, "empty")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestBroker_ReceiveWakesOnPublish(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		d, err := b.Receive(ctx, "out")
		if err == nil {
			got <- string(d.Body)
		}
		close(got)
	}()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "out", []byte("User:\n1. alice (id:1)  0.00")))

	assert.Equal(t, "User:\n1. alice (id:1)  0.00", <-got)
}

func TestBroker_Ping(t *testing.T) {
	b, _ := newTestBroker(t)
	assert.NoError(t, b.Ping(context.Background()))
}

func TestDial_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, cfg)
	assert.Error(t, err)
}

package scheduler

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRenderer renders the personal leaderboard text of a user.
type SnapshotRenderer interface {
	Render(userID int64) (string, error)
}

// MessageSink accepts outbound messages without blocking.
type MessageSink interface {
	Enqueue(message string)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG
// ══════════════════════════════════════════════════════════════════════════════

// ReminderConfig contains configuration for the Reminder.
type ReminderConfig struct {
	// Delay is the re-arm delay shared by every connected user.
	Delay time.Duration

	// IdlePoll is how long the loop sleeps when nobody is connected.
	IdlePoll time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// DefaultReminderConfig returns sensible defaults.
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Delay:    time.Minute,
		IdlePoll: time.Minute,
		Logger:   slog.Default(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REMINDER
// ══════════════════════════════════════════════════════════════════════════════

// reminderEntry is the next wake-up of one connected user.
type reminderEntry struct {
	userID int64
	due    time.Time
}

// Reminder periodically sends the leaderboard snapshot to every connected user.
//
// Connected users form a round-robin delay queue: the front holds the earliest due
// entry, a fired entry goes to the back with due = now + Delay. Since every entry is
// re-armed with the same delay, insertion order keeps the queue sorted by due time.
type Reminder struct {
	mu      sync.Mutex
	queue   *list.List // of *reminderEntry, front = earliest due
	entries map[int64]*list.Element

	stopped atomic.Bool
	waiter  *Waiter

	board SnapshotRenderer
	out   MessageSink

	delay    time.Duration
	idlePoll time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewReminder creates a Reminder reading snapshots from board and sending them to out.
func NewReminder(board SnapshotRenderer, out MessageSink, config ReminderConfig) *Reminder {
	def := DefaultReminderConfig()
	if config.Delay <= 0 {
		config.Delay = def.Delay
	}
	if config.IdlePoll <= 0 {
		config.IdlePoll = def.IdlePoll
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &Reminder{
		queue:    list.New(),
		entries:  make(map[int64]*list.Element),
		waiter:   NewWaiter(),
		board:    board,
		out:      out,
		delay:    config.Delay,
		idlePoll: config.IdlePoll,
		now:      config.Clock,
		logger:   config.Logger.With(logger.Component("reminder")),
		metrics:  config.Metrics,
	}
}

// Connect starts reminders for a user. The first reminder is due immediately.
func (r *Reminder) Connect(userID int64) error {
	r.mu.Lock()
	if _, ok := r.entries[userID]; ok {
		r.mu.Unlock()
		return shared.NewDomainError("reminder", "Connect", shared.ErrAlreadyConnected,
			fmt.Sprintf("user %d already connected", userID))
	}
	r.entries[userID] = r.queue.PushFront(&reminderEntry{userID: userID, due: r.now()})
	connected := len(r.entries)
	r.mu.Unlock()

	r.waiter.Interrupt()
	r.metrics.SetConnectedUsers(connected)
	r.logger.Debug("user connected", logger.UserID(userID), slog.Int("connected", connected))
	return nil
}

// Disconnect stops reminders for a user. Unknown users are ignored.
func (r *Reminder) Disconnect(userID int64) {
	r.mu.Lock()
	el, ok := r.entries[userID]
	if ok {
		r.queue.Remove(el)
		delete(r.entries, userID)
	}
	connected := len(r.entries)
	r.mu.Unlock()

	if ok {
		r.metrics.SetConnectedUsers(connected)
		r.logger.Debug("user disconnected", logger.UserID(userID), slog.Int("connected", connected))
	}
}

// IsConnected reports whether the user receives reminders.
func (r *Reminder) IsConnected(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[userID]
	return ok
}

// Connected returns the number of connected users.
func (r *Reminder) Connected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run executes the reminder loop until Stop is called or ctx is cancelled.
func (r *Reminder) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, r.Stop)
	defer stop()

	r.logger.Info("reminder scheduler started",
		slog.Duration("delay", r.delay),
		slog.Duration("idle_poll", r.idlePoll),
	)

	for !r.stopped.Load() {
		wake, userID, due := r.next()
		if due {
			r.remind(userID)
		}
		r.waiter.WaitUntil(wake)
	}

	r.logger.Info("reminder scheduler stopped")
	return nil
}

// Stop makes Run return after the current iteration. Safe to call more than once.
func (r *Reminder) Stop() {
	r.stopped.Store(true)
	r.waiter.Shutdown()
}

// next inspects the front of the queue. When the front entry is due it is moved to
// the back with a new due time and its user is returned for a reminder.
func (r *Reminder) next() (wake time.Time, userID int64, due bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	front := r.queue.Front()
	if front == nil {
		return now.Add(r.idlePoll), 0, false
	}

	e := front.Value.(*reminderEntry)
	if e.due.After(now) {
		return e.due, 0, false
	}

	e.due = now.Add(r.delay)
	r.queue.MoveToBack(front)

	return r.queue.Front().Value.(*reminderEntry).due, e.userID, true
}

// remind renders the snapshot and hands it to the outbound channel.
// Runs without the scheduler lock.
func (r *Reminder) remind(userID int64) {
	text, err := r.board.Render(userID)
	if err != nil {
		r.metrics.SnapshotFailed()

		level := slog.LevelWarn
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrEmptyBoard) {
			level = slog.LevelDebug
		}
		r.logger.Log(context.Background(), level, "reminder snapshot failed",
			logger.UserID(userID),
			logger.Kind(shared.Kind(err)),
			logger.Err(err),
		)
		return
	}

	r.out.Enqueue(text)
	r.metrics.ReminderFired()
	r.logger.Debug("reminder sent", logger.UserID(userID))
}

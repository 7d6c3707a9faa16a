package scheduler

import (
	"sync"
	"time"
)

// WakeReason tells why WaitUntil returned.
type WakeReason int

const (
	// WakeDeadline means the deadline was reached.
	WakeDeadline WakeReason = iota
	// WakeInterrupted means Interrupt was called.
	WakeInterrupted
	// WakeShutdown means Shutdown was called.
	WakeShutdown
)

// String returns the reason name for logs.
func (r WakeReason) String() string {
	switch r {
	case WakeDeadline:
		return "deadline"
	case WakeInterrupted:
		return "interrupted"
	case WakeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Waiter is an interruptible sleep.
//
// Interrupt leaves a token in a one-slot channel. A token left while nobody waits
// is consumed by the next WaitUntil, so an Interrupt that races with the start of
// a wait is never lost. Several interrupts before a wait collapse into one wake-up.
// Neither Interrupt nor Shutdown blocks or takes a lock shared with the waiting side.
type Waiter struct {
	interrupt chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWaiter creates a Waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		interrupt: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// WaitUntil blocks until deadline, Interrupt or Shutdown, whichever comes first.
// After Shutdown every call returns WakeShutdown immediately.
func (w *Waiter) WaitUntil(deadline time.Time) WakeReason {
	select {
	case <-w.done:
		return WakeShutdown
	default:
	}

	d := time.Until(deadline)
	if d <= 0 {
		// The deadline already passed: drop a stale token so it does not
		// cut the next wait short.
		select {
		case <-w.interrupt:
			return WakeInterrupted
		default:
			return WakeDeadline
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.done:
		return WakeShutdown
	case <-w.interrupt:
		return WakeInterrupted
	case <-timer.C:
		return WakeDeadline
	}
}

// Interrupt wakes the current or the next WaitUntil.
func (w *Waiter) Interrupt() {
	select {
	case w.interrupt <- struct{}{}:
	default:
	}
}

// Shutdown wakes the current wait and makes all later waits return at once.
// Safe to call more than once.
func (w *Waiter) Shutdown() {
	w.closeOnce.Do(func() {
		close(w.done)
	})
}

// IsShutdown reports whether Shutdown was called.
func (w *Waiter) IsShutdown() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

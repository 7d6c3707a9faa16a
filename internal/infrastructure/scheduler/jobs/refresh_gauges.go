package jobs

import (
	"context"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH GAUGES JOB
// ══════════════════════════════════════════════════════════════════════════════

// Sources of the gauge values.
type (
	BoardSizer interface{ Len() int }

	ConnectionCounter interface{ Connected() int }

	PendingCounter interface{ Pending() int }
)

// RefreshGaugesJob copies the current sizes of the board, the reminder queue
// and the outbound queue into the Prometheus gauges.
type RefreshGaugesJob struct {
	board    BoardSizer
	reminder ConnectionCounter
	outbound PendingCounter
	metrics  *metrics.Metrics
}

// NewRefreshGaugesJob creates a new gauge refresh job.
func NewRefreshGaugesJob(board BoardSizer, reminder ConnectionCounter, outbound PendingCounter, m *metrics.Metrics) *RefreshGaugesJob {
	return &RefreshGaugesJob{
		board:    board,
		reminder: reminder,
		outbound: outbound,
		metrics:  m,
	}
}

// Name returns the job name.
func (j *RefreshGaugesJob) Name() string {
	return "refresh_gauges"
}

// Run executes the refresh.
func (j *RefreshGaugesJob) Run(_ context.Context) error {
	j.metrics.SetBoardUsers(j.board.Len())
	j.metrics.SetConnectedUsers(j.reminder.Connected())
	j.metrics.SetOutboundPending(j.outbound.Pending())
	return nil
}

// Package jobs contains the periodic maintenance jobs of the leaderboard service.
package jobs

import (
	"context"
	"log/slog"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEK ROLLOVER JOB
// ══════════════════════════════════════════════════════════════════════════════

// WeekRoller applies the weekly reset check.
type WeekRoller interface {
	RollWeek() bool
}

// WeekRolloverJob resets the board right after the week boundary, so the reset
// happens on time even when no command or reminder touches the board.
type WeekRolloverJob struct {
	board  WeekRoller
	logger *slog.Logger
}

// NewWeekRolloverJob creates a new week rollover job.
func NewWeekRolloverJob(board WeekRoller, logger *slog.Logger) *WeekRolloverJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &WeekRolloverJob{board: board, logger: logger}
}

// Name returns the job name.
func (j *WeekRolloverJob) Name() string {
	return "week_rollover"
}

// Run executes the rollover check.
func (j *WeekRolloverJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !j.board.RollWeek() {
		j.logger.Debug("week rollover: window still current")
	}
	return nil
}

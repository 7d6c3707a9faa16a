package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Board is the part of the leaderboard the commands write to.
type Board interface {
	AddUser(id int64, name string) error
	RenameUser(id int64, name string) error
	AddScore(id int64, when time.Time, amount decimal.Decimal) error
	AssertUser(id int64) error
}

// Connections starts and stops periodic snapshots.
type Connections interface {
	Connect(userID int64) error
	Disconnect(userID int64)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Location of deal dates (default: UTC).
	Location *time.Location

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Dispatcher decodes raw messages and applies them.
type Dispatcher struct {
	decoder     Decoder
	board       Board
	connections Connections
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewDispatcher creates a new command dispatcher.
func NewDispatcher(board Board, connections Connections, config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Dispatcher{
		decoder:     NewDecoder(config.Location),
		board:       board,
		connections: connections,
		logger:      config.Logger.With(logger.Component("dispatcher")),
		metrics:     config.Metrics,
	}
}

// Dispatch decodes and executes one raw command. The returned error is for the
// caller's information only: it has already been logged and counted.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) error {
	start := time.Now()
	log := logger.WithRequestID(d.logger, uuid.NewString())

	cmdType := TypeUnknown
	cmd, err := d.decoder.Decode(raw)
	if err == nil {
		cmdType = cmd.Type()
		log = log.With(logger.CommandType(cmdType), logger.UserID(cmd.User()))
		err = d.Execute(cmd)
	}

	took := time.Since(start)
	d.metrics.ObserveCommand(cmdType, shared.Kind(err), took)

	switch {
	case err == nil:
		log.DebugContext(ctx, "command applied", logger.Latency(took))
	case shared.IsClassified(err):
		log.InfoContext(ctx, "command rejected", logger.Kind(shared.Kind(err)), logger.Err(err))
	default:
		log.ErrorContext(ctx, "command failed", logger.Err(err))
	}
	return err
}

// Execute applies a decoded command.
func (d *Dispatcher) Execute(cmd Command) error {
	switch c := cmd.(type) {
	case RegisterUser:
		return d.board.AddUser(c.UserID, c.Name)

	case RenameUser:
		return d.board.RenameUser(c.UserID, c.Name)

	case RecordDeal:
		return d.board.AddScore(c.UserID, c.At, c.Amount)

	case ConnectUser:
		if err := d.board.AssertUser(c.UserID); err != nil {
			return err
		}
		return d.connections.Connect(c.UserID)

	case DisconnectUser:
		if err := d.board.AssertUser(c.UserID); err != nil {
			return err
		}
		d.connections.Disconnect(c.UserID)
		return nil
	}

	return fmt.Errorf("unsupported command %T", cmd)
}

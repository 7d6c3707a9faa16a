// Package main - точка входа сервиса недельного лидерборда.
//
// Сервис читает команды из входной очереди, ведёт рейтинг пользователей за
// текущую неделю и периодически публикует снимки рейтинга подключённым
// пользователям в выходную очередь.
//
// Запуск:
//
//	go run ./cmd/leaderboard
//
// Конфигурация через переменные окружения (см. config/config.go).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/weekly-leaderboard/config"
	"github.com/alem-hub/weekly-leaderboard/internal/application/command"
	"github.com/alem-hub/weekly-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/messaging"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue/backend"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/scheduler"
	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/scheduler/jobs"
	httpserver "github.com/alem-hub/weekly-leaderboard/internal/interface/http"
	"github.com/alem-hub/weekly-leaderboard/internal/interface/http/handlers"
	"github.com/alem-hub/weekly-leaderboard/pkg/circuitbreaker"
	"github.com/alem-hub/weekly-leaderboard/pkg/logger"
	"github.com/alem-hub/weekly-leaderboard/pkg/retry"
	"github.com/alem-hub/weekly-leaderboard/pkg/timeutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run собирает компоненты сервиса и работает до отмены ctx или фатальной ошибки.
func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ И МЕТРИК
	// ─────────────────────────────────────────────────────────────────────────
	log := logger.New(logger.Options{
		Output:  os.Stdout,
		Level:   logger.ParseLevel(cfg.Observability.LogLevel),
		Format:  logger.Format(cfg.Observability.LogFormat),
		Service: cfg.App.Name,
	})
	slog.SetDefault(log)

	log.Info("starting weekly leaderboard",
		"version", cfg.App.Version,
		"environment", string(cfg.App.Environment),
		"timezone", cfg.App.Timezone,
		"queue_backend", cfg.Queue.Backend,
	)

	m := metrics.New(cfg.Observability.MetricsNamespace)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЛИДЕРБОРД
	// ─────────────────────────────────────────────────────────────────────────
	week := timeutil.NewWeek(cfg.Leaderboard.WeekStart, cfg.App.Location)
	board := leaderboard.NewBoard(
		leaderboard.WithWeek(week),
		leaderboard.WithLimits(cfg.Leaderboard.Leaders, cfg.Leaderboard.Neighbours),
		leaderboard.WithLogger(log),
		leaderboard.WithResetHook(func(_, _ time.Time) {
			m.WeekReset()
		}),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПОДКЛЮЧЕНИЕ К ОЧЕРЕДЯМ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to queue broker...", "backend", cfg.Queue.Backend)
	broker, err := backend.Open(ctx, cfg.Queue, log)
	if err != nil {
		return fmt.Errorf("failed to open queue broker: %w", err)
	}
	defer func() {
		log.Info("closing queue broker...")
		if err := broker.Close(); err != nil {
			log.Warn("failed to close queue broker", logger.Err(err))
		}
	}()
	log.Info("queue broker connected",
		"inbound", cfg.Queue.Inbound,
		"outbound", cfg.Queue.Outbound,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ВЫХОДНОЙ КАНАЛ, НАПОМИНАНИЯ, ДИСПЕТЧЕР
	// ─────────────────────────────────────────────────────────────────────────
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.Outbound.BreakerCooldown > 0 {
		breaker = circuitbreaker.PublishBreaker(cfg.Outbound.BreakerCooldown, func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		})
	}

	outbound := messaging.NewOutbound(broker, messaging.OutboundConfig{
		Queue:   cfg.Queue.Outbound,
		Retrier: retry.PublishRetrier(cfg.Outbound.PublishAttempts, cfg.Outbound.PublishTimeout,
			retry.WithOnRetry(logRetry(log, "publish"))),
		Breaker: breaker,
		Logger:  log,
		Metrics: m,
	})

	reminder := scheduler.NewReminder(board, outbound, scheduler.ReminderConfig{
		Delay:    cfg.Reminder.Delay,
		IdlePoll: cfg.Reminder.IdlePoll,
		Logger:   log,
		Metrics:  m,
	})

	dispatcher := command.NewDispatcher(board, reminder, command.DispatcherConfig{
		Location: cfg.App.Location,
		Logger:   log,
		Metrics:  m,
	})

	consumer := messaging.NewConsumer(broker, dispatcher, messaging.ConsumerConfig{
		Queue:      cfg.Queue.Inbound,
		Retrier:    retry.ReceiveRetrier(cfg.Inbound.ReceiveAttempts),
		AckTimeout: cfg.Inbound.AckTimeout,
		Logger:     log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК ОБСЛУЖИВАЮЩИХ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:   log,
		Location: cfg.App.Location,
	})
	if cfg.Scheduler.Enabled {
		rollover, err := scheduler.ParseCronExpression(scheduler.WeeklyAt(week.StartDay()))
		if err != nil {
			return fmt.Errorf("invalid rollover schedule: %w", err)
		}
		if err := sched.Register(jobs.NewWeekRolloverJob(board, log), rollover); err != nil {
			return fmt.Errorf("failed to register rollover job: %w", err)
		}
		gauges := jobs.NewRefreshGaugesJob(board, reminder, outbound, m)
		if err := sched.Register(gauges, scheduler.Every(cfg.Scheduler.GaugeRefreshInterval)); err != nil {
			return fmt.Errorf("failed to register gauges job: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	var server *httpserver.Server
	if cfg.HTTP.Enabled {
		health := handlers.NewCompositeHealthChecker(cfg.App.Version)
		health.AddCheck("queue", handlers.NewPingCheck(broker))

		server = httpserver.NewServer(httpserver.Config{
			Addr:         cfg.HTTP.Addr,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			IdleTimeout:  httpserver.DefaultConfig().IdleTimeout,
		}, httpserver.Dependencies{
			Board:   board,
			Jobs:    sched,
			Health:  health,
			Metrics: m.Handler(),
			Logger:  log,
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	// Выходной канал живёт на своём контексте: при остановке он ещё может
	// дослать накопленные сообщения.
	outboundCtx, stopOutbound := context.WithCancel(context.WithoutCancel(ctx))
	defer stopOutbound()
	outboundDone := make(chan error, 1)
	go func() { outboundDone <- outbound.Run(outboundCtx) }()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Run(gctx); err != nil {
			return fmt.Errorf("consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return reminder.Run(gctx)
	})
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if server != nil {
		g.Go(func() error {
			return server.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	log.Info("weekly leaderboard is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 9. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("service stopped with error", logger.Err(runErr))
	} else {
		runErr = nil
		log.Info("shutdown signal received, stopping...")
	}

	if cfg.Outbound.FlushOnShutdown {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		if err := outbound.Flush(flushCtx); err != nil {
			log.Warn("outbound flush incomplete",
				"pending", outbound.Pending(),
				logger.Err(err),
			)
		}
		cancel()
	}
	outbound.Stop()
	stopOutbound()
	if err := <-outboundDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("outbound worker stopped with error", logger.Err(err))
	}

	log.Info("shutdown completed")
	return runErr
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// logRetry возвращает колбэк retry, пишущий каждую повторную попытку в лог.
func logRetry(log *slog.Logger, operation string) func(attempt int, err error, delay time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("queue operation failed, retrying",
			logger.Operation(operation),
			"attempt", attempt,
			"delay", delay,
			logger.Err(err),
		)
	}
}

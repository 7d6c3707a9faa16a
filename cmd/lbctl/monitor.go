package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/weekly-leaderboard/internal/infrastructure/queue"
)

func newMonitorCmd(c *cli) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Print and acknowledge messages of the outbound queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			broker, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer broker.Close()

			err = monitor(ctx, broker, c.cfg.Queue.Outbound, count, cmd.OutOrStdout(), time.Now)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after N messages (0 means run until interrupted)")
	return cmd
}

// monitor печатает сообщения очереди name с заголовком-временем получения и
// подтверждает их. При count > 0 выходит после count сообщений.
func monitor(ctx context.Context, r queue.Receiver, name string, count int, out io.Writer, now func() time.Time) error {
	for seen := 0; count <= 0 || seen < count; seen++ {
		d, err := r.Receive(ctx, name)
		if err != nil {
			return fmt.Errorf("receive from %s: %w", name, err)
		}

		fmt.Fprintf(out, "── %s ──\n%s\n\n", now().Format(time.RFC3339), d.Body)

		if err := d.Ack(ctx); err != nil {
			return fmt.Errorf("ack %s: %w", d.ID, err)
		}
	}
	return nil
}

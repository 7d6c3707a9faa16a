package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/weekly-leaderboard/internal/application/command"
)

func newProduceCmd(c *cli) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "produce <type> <user_id> [fields...]",
		Short: "Publish one command to the inbound queue",
		Example: `  lbctl produce user_registered 1 alice
  lbctl produce user_deal_won 1 "2024-05-06 12:00:00" 150.5
  lbctl produce user_connected 1`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := encodeCommand(args, c.cfg.App.Location, raw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			broker, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer broker.Close()

			if err := broker.Publish(ctx, c.cfg.Queue.Inbound, body); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", args[0], c.cfg.Queue.Inbound)
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "skip local validation and send the fields as is")
	return cmd
}

// encodeCommand собирает сообщение из аргументов. Без raw сообщение проверяется
// декодером сервиса.
func encodeCommand(args []string, loc *time.Location, raw bool) ([]byte, error) {
	body := []byte(strings.Join(args, "\n"))
	if raw {
		return body, nil
	}
	if _, err := command.NewDecoder(loc).Decode(body); err != nil {
		return nil, fmt.Errorf("invalid command (use --raw to send anyway): %w", err)
	}
	return body, nil
}

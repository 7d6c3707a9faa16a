package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/alem-hub/weekly-leaderboard/internal/application/command"
	"github.com/alem-hub/weekly-leaderboard/pkg/timeutil"
)

// loadOptions - параметры генерации тестовой нагрузки.
type loadOptions struct {
	Users    int
	FirstID  int64
	Fake     bool
	Seed     uint64
	Connect  bool
	Interval time.Duration
}

func newLoadCmd(c *cli) *cobra.Command {
	opts := loadOptions{Users: 10, FirstID: 1}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Register users and give each of them one deal dated now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Users <= 0 {
				return fmt.Errorf("--users must be positive, got %d", opts.Users)
			}

			messages := generateLoad(opts, time.Now(), c.cfg.App.Location)

			ctx := cmd.Context()
			broker, err := c.connect(ctx)
			if err != nil {
				return err
			}
			defer broker.Close()

			for i, msg := range messages {
				if err := broker.Publish(ctx, c.cfg.Queue.Inbound, msg); err != nil {
					return fmt.Errorf("publish message %d of %d: %w", i+1, len(messages), err)
				}
				if opts.Interval > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(opts.Interval):
					}
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "published %d messages for %d users to %s\n",
				len(messages), opts.Users, c.cfg.Queue.Inbound)
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Users, "users", opts.Users, "number of users to generate")
	cmd.Flags().Int64Var(&opts.FirstID, "first-id", opts.FirstID, "id of the first generated user")
	cmd.Flags().BoolVar(&opts.Fake, "fake", false, "random names and amounts instead of user<N> and N")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "seed for --fake (0 means random)")
	cmd.Flags().BoolVar(&opts.Connect, "connect", false, "also connect every user")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between messages")
	return cmd
}

// generateLoad строит сообщения: регистрация, одна сделка с датой now и,
// по запросу, подключение для каждого пользователя.
func generateLoad(opts loadOptions, now time.Time, loc *time.Location) [][]byte {
	var faker *gofakeit.Faker
	if opts.Fake {
		faker = gofakeit.New(opts.Seed)
	}

	at := timeutil.FormatEventTime(now, loc)
	messages := make([][]byte, 0, opts.Users*3)

	for i := 0; i < opts.Users; i++ {
		id := strconv.FormatInt(opts.FirstID+int64(i), 10)

		name := "user" + id
		amount := decimal.NewFromInt(int64(i + 1))
		if faker != nil {
			name = fakeName(faker, name)
			amount = decimal.NewFromFloat(faker.Float64Range(1, 10000)).Round(2)
			if !amount.IsPositive() {
				amount = decimal.NewFromInt(1)
			}
		}

		messages = append(messages,
			encode(command.TypeUserRegistered, id, name),
			encode(command.TypeUserDealWon, id, at, amount.String()),
		)
		if opts.Connect {
			messages = append(messages, encode(command.TypeUserConnected, id))
		}
	}
	return messages
}

// fakeName возвращает случайное имя из латинских букв и цифр или fallback.
func fakeName(faker *gofakeit.Faker, fallback string) string {
	raw := faker.FirstName() + faker.Numerify("##")
	name := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			name = append(name, ch)
		}
	}
	if _, err := command.ParseName(string(name)); err != nil {
		return fallback
	}
	return string(name)
}

func encode(fields ...string) []byte {
	return []byte(strings.Join(fields, "\n"))
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/events"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewPollCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "poll",
		Short:   "Poll the UPS now",
		GroupID: gBasic,
		Long: `Ask the daemon to read the UPS right away instead of waiting for the next scheduled poll.

If the read fails, the error is printed and the daemon keeps serving the last good reading.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := apiClient.Poll()
			if err != nil {
				return err
			}

			cmd.Printf("Voltage: %s\n", bold("%.2f V", r.Voltage))
			cmd.Printf("Capacity: %s\n", bold("%d%%", r.Capacity))
			return nil
		},
	}
}

func NewSensorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sensors",
		Short:   "List registered sensors",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sensors, err := apiClient.GetSensors()
			if err != nil {
				return err
			}

			for _, s := range sensors {
				state := "unknown"
				if s.State != nil {
					state = fmt.Sprintf("%v %s", *s.State, s.Unit)
				}
				cmd.Printf("%s: %s\n", bold("%s", s.Name), state)
				cmd.Printf("  ID: %s\n", s.UniqueID)
				cmd.Printf("  Icon: %s\n", s.Icon)
			}
			return nil
		},
	}
}

func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the daemon configuration",
		GroupID: gBasic,
		Long:    `Print the configuration the daemon is running with, defaults filled in. The MQTT password is never printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := apiClient.GetConfig()
			if err != nil {
				return err
			}

			b, err := json.MarshalIndent(conf, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			cmd.Println(string(b))
			return nil
		},
	}
}

func NewWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "watch",
		Short:   "Stream readings as the daemon polls",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch, err := apiClient.SubscribeEvents(ctx)
			if err != nil {
				return err
			}

			for ev := range ch {
				switch ev.Name {
				case events.ReadingUpdated:
					r, err := events.DecodeAs[events.ReadingEvent](ev)
					if err != nil {
						return fmt.Errorf("failed to decode %s: %w", ev.Name, err)
					}
					cmd.Printf("%s  %s  %s\n", formatTs(r.Ts), bold("%.2f V", r.Voltage), bold("%d%%", r.Capacity))
				case events.PollFailed:
					p, err := events.DecodeAs[events.PollFailedEvent](ev)
					if err != nil {
						return fmt.Errorf("failed to decode %s: %w", ev.Name, err)
					}
					cmd.Printf("%s  poll failed (%d in a row): %s\n", formatTs(p.Ts), p.Failures, p.Error)
				}
			}
			return nil
		},
	}
}

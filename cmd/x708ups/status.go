package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/types"
)

type statusData struct {
	reading *types.ReadingResponse
	sensors []types.SensorResponse
	config  *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	reading, err := apiClient.GetReading()
	if err != nil {
		return nil, fmt.Errorf("failed to get reading: %w", err)
	}

	sensors, err := apiClient.GetSensors()
	if err != nil {
		return nil, fmt.Errorf("failed to get sensors: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		reading: reading,
		sensors: sensors,
		config:  conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of x708ups",
		Long:    `Get the last UPS reading, registered sensors, and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(data.config, "")
			r := data.reading

			cmd.Println(bold("UPS status:"))
			cmd.Printf("  Voltage: %s\n", bold("%.2f V", r.Voltage))
			cmd.Printf("  Capacity: %s\n", capacityText(r.Capacity))
			cmd.Printf("  Last reading: %s\n", bold("%s", timeText(r.UpdatedAt)))
			cmd.Printf("  Next poll: %s\n", bold("%s", timeText(r.NextPoll)))
			cmd.Printf("  Last poll succeeded: %s\n", bool2Text(r.ConsecutiveFailures == 0))
			if r.LastError != "" {
				cmd.Printf("    Last error at %s: %s\n", timeText(r.LastErrorAt), r.LastError)
				cmd.Printf("    Failed polls in a row: %d (values above are from the last good reading)\n", r.ConsecutiveFailures)
			}

			cmd.Println()

			cmd.Println(bold("Sensors:"))
			for _, s := range data.sensors {
				cmd.Printf("  %s (%s)\n", s.Name, s.UniqueID)
			}

			cmd.Println()

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Name: %s\n", bold("%s", conf.Name()))
			cmd.Printf("  Device: %s\n", bold("0x%02x on /dev/i2c-%d", conf.I2CAddress(), conf.I2CBus()))
			cmd.Printf("  Poll interval: %s\n", bold("%s", conf.PollInterval()))
			m := conf.MQTT()
			cmd.Printf("  MQTT: %s\n", bool2Text(m.Enabled))
			if m.Enabled {
				cmd.Printf("    Broker: %s\n", m.Broker)
				cmd.Printf("    Discovery prefix: %s\n", m.DiscoveryPrefix)
			}
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			return nil
		},
	}
}

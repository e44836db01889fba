package main

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/ups"
)

func NewReadCommand() *cobra.Command {
	timeout := 10 * time.Second

	cmd := &cobra.Command{
		Use:     "read",
		Short:   "Read the UPS directly, without the daemon",
		GroupID: gAdvanced,
		Long: `Open the I2C bus and read the UPS once, bypassing the daemon.

This performs the same settled first read the daemon does at startup, so it takes about half a second. Accessing /dev/i2c-* usually requires root or membership in the i2c group.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return pkgerrors.Wrap(err, "invalid config")
			}

			addr := uint16(conf.I2CAddress())
			bus, err := ups.OpenBus(conf.I2CBus(), addr)
			if err != nil {
				return fmt.Errorf("UPS sensor not detected at 0x%02x: %w", addr, err)
			}
			device := ups.NewDevice(bus, conf.I2CBus(), addr)
			defer func() {
				if err := device.Close(); err != nil {
					logrus.Warnf("failed to close bus: %v", err)
				}
			}()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			h, err := sensor.Setup(ctx, device)
			if err != nil {
				return err
			}

			v, _ := h.Voltage()
			c, _ := h.Capacity()
			cmd.Printf("Voltage: %s\n", bold("%.2f V", v))
			cmd.Printf("Capacity: %s\n", capacityText(c))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", timeout, "give up waiting for the bus after this long")

	return cmd
}

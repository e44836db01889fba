package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/daemon"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}

	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run x708ups daemon in the foreground",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("x708ups daemon starting")

			opts.ConfigPath = configPath
			opts.UnixSocketPath = unixSocketPath
			return daemon.Run(opts)
		},
	}

	f := cmd.Flags()

	f.BoolVar(&opts.AllowNonRoot, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.BoolVar(&opts.Mock, "mock", false,
		"Use an in-memory UPS instead of the I2C bus. Useful for testing without the HAT.")

	return cmd
}

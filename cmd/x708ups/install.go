package main

import (
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	daemonutils "github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/utils/daemon"
)

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install x708ups as a systemd service",
		GroupID: gInstallation,
		Long: `Install x708ups daemon as a systemd service (system-wide).

This makes x708ups run in the background and automatically start on boot. You must run this command as root.

By default, only root user is allowed to access the x708ups daemon. If you want to allow non-root users to run x708ups status and friends, use the --allow-non-root-access flag.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := config.NewFile(configPath)
			if err != nil {
				return err
			}
			if err := conf.Validate(); err != nil {
				return pkgerrors.Wrap(err, "invalid config")
			}

			conf.SetAllowNonRootAccess(allowNonRootAccess)
			if allowNonRootAccess {
				logrus.Info("non-root users are allowed to access the x708ups daemon.")
			} else {
				logrus.Info("only root user is allowed to access the x708ups daemon.")
			}

			// Save first so the service starts with the new config.
			err = conf.Save()
			if err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			err = daemonutils.Install(configPath)
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %v. Are you root?", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("systemd will use current binary (%s) at startup so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run `x708ups install' again.\n", exePath)

			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to access x708ups daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall the x708ups systemd service",
		GroupID: gInstallation,
		Long: `Stop the x708ups daemon and remove its systemd unit.

Retained MQTT discovery topics are left on the broker. You must run this command as root.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				// check if current user is root
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			fmt.Println("successfully uninstalled")

			cmd.Printf("Your config is kept in %s, in case you want to use `x708ups' again. If you want a complete uninstall, you can remove both config file and x708ups itself manually.\n", configPath)

			return nil
		},
	}
}

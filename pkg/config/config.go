package config

import "github.com/sirupsen/logrus"

type Config interface {
	Name() string
	I2CAddress() int
	I2CBus() int
	MonitoredConditions() []string
	PollInterval() string
	AllowNonRootAccess() bool
	MQTT() MQTT

	SetName(string)
	SetAllowNonRootAccess(bool)

	// Validate checks values that cannot be fixed by falling back to defaults.
	Validate() error
	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}

// MQTT is the resolved MQTT section, defaults applied.
type MQTT struct {
	Enabled         bool
	Broker          string
	ClientID        string
	Username        string
	Password        string
	DiscoveryPrefix string
	StatePrefix     string
}

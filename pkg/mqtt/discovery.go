package mqtt

import (
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/version"
)

// discoveryDevice groups all entities of one UPS in Home Assistant.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version"`
}

// discoveryConfig is the retained payload of a Home Assistant MQTT sensor.
type discoveryConfig struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	ObjectID          string          `json:"object_id"`
	StateTopic        string          `json:"state_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	UnitOfMeasurement string          `json:"unit_of_measurement"`
	DeviceClass       string          `json:"device_class,omitempty"`
	StateClass        string          `json:"state_class"`
	Icon              string          `json:"icon,omitempty"`
	Device            discoveryDevice `json:"device"`
}

func (p *Publisher) discoveryTopic(e *sensor.Entity) string {
	return p.discoveryPrefix + "/sensor/" + e.UniqueID() + "/config"
}

func (p *Publisher) stateTopic(e *sensor.Entity) string {
	return p.statePrefix + "/" + e.UniqueID() + "/state"
}

func (p *Publisher) availabilityTopic() string {
	return p.statePrefix + "/status"
}

func (p *Publisher) discoveryPayload(e *sensor.Entity) discoveryConfig {
	return discoveryConfig{
		Name:              e.Name(),
		UniqueID:          e.UniqueID(),
		ObjectID:          e.UniqueID(),
		StateTopic:        p.stateTopic(e),
		AvailabilityTopic: p.availabilityTopic(),
		UnitOfMeasurement: e.Unit(),
		DeviceClass:       e.Metric().Info().DeviceClass,
		StateClass:        "measurement",
		Icon:              e.Icon(),
		Device: discoveryDevice{
			Identifiers:  []string{p.deviceID},
			Name:         p.deviceName,
			Model:        "X708 UPS HAT",
			Manufacturer: "Geekworm",
			SWVersion:    version.Version,
		},
	}
}

package sensor

import "fmt"

// Metric is one value exposed by the UPS.
type Metric string

const (
	MetricVoltage  Metric = "voltage"
	MetricCapacity Metric = "capacity"
)

// MetricInfo describes how a metric is presented.
type MetricInfo struct {
	Label       string
	Unit        string
	DeviceClass string
}

var metrics = map[Metric]MetricInfo{
	MetricVoltage:  {Label: "Voltage", Unit: "V", DeviceClass: "voltage"},
	MetricCapacity: {Label: "Capacity", Unit: "%", DeviceClass: "battery"},
}

// DefaultMetrics are monitored when nothing else is configured.
var DefaultMetrics = []Metric{MetricVoltage, MetricCapacity}

// Info returns the presentation of m.
func (m Metric) Info() MetricInfo {
	return metrics[m]
}

// ParseMetric validates a monitored condition name. Names are matched
// exactly.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if _, ok := metrics[m]; !ok {
		return "", fmt.Errorf("unknown monitored condition %q, must be one of %s, %s", s, MetricVoltage, MetricCapacity)
	}
	return m, nil
}

// ParseMetrics validates a list of monitored conditions, dropping duplicates.
func ParseMetrics(ss []string) ([]Metric, error) {
	var ret []Metric
	seen := make(map[Metric]bool, len(ss))
	for _, s := range ss {
		m, err := ParseMetric(s)
		if err != nil {
			return nil, err
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		ret = append(ret, m)
	}
	return ret, nil
}

// Icon picks a Material Design icon for a metric state.
// Capacity tiers have inclusive lower bounds: 80, 50 and 20.
func Icon(m Metric, state float64, ok bool) string {
	if m == MetricVoltage {
		return "mdi:sine-wave"
	}

	switch {
	case !ok:
		return "mdi:battery-unknown"
	case state >= 80:
		return "mdi:battery-high"
	case state >= 50:
		return "mdi:battery-medium"
	case state >= 20:
		return "mdi:battery-low"
	default:
		return "mdi:battery-alert"
	}
}

package sensor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// Entity is a named, unit-tagged view over one metric of a Handler, the
// unit a home-automation platform registers.
type Entity struct {
	handler    *Handler
	metric     Metric
	clientName string
	uniqueID   string

	mu       sync.RWMutex
	state    float64
	hasState bool
}

// DeviceID identifies a UPS by its bus and address.
func DeviceID(bus int, address uint16) string {
	return fmt.Sprintf("x708ups_%d_%02x", bus, address)
}

// NewEntities creates one entity per monitored metric. States are empty
// until the first Refresh or Update.
func NewEntities(h *Handler, name, deviceID string, monitored []Metric) []*Entity {
	ret := make([]*Entity, 0, len(monitored))
	for _, m := range monitored {
		ret = append(ret, &Entity{
			handler:    h,
			metric:     m,
			clientName: name,
			uniqueID:   deviceID + "_" + string(m),
		})
	}
	return ret
}

// Name returns "<name> <label>", e.g. "UPS Sensor Voltage".
func (e *Entity) Name() string {
	return e.clientName + " " + e.metric.Info().Label
}

func (e *Entity) UniqueID() string {
	return e.uniqueID
}

func (e *Entity) Metric() Metric {
	return e.metric
}

func (e *Entity) Unit() string {
	return e.metric.Info().Unit
}

// Update polls the handler and refreshes the state. A failed poll still
// refreshes from the previous cached reading.
func (e *Entity) Update(ctx context.Context) error {
	err := e.handler.Update(ctx)
	e.Refresh()
	return err
}

// Refresh copies the rounded value from the handler cache.
func (e *Entity) Refresh() {
	var (
		v  float64
		ok bool
	)

	switch e.metric {
	case MetricVoltage:
		v, ok = e.handler.Voltage()
	case MetricCapacity:
		var c int
		c, ok = e.handler.Capacity()
		v = float64(c)
	}

	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = v
	e.hasState = true
}

// State returns the last refreshed state.
func (e *Entity) State() (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.hasState
}

// FormattedState renders the state the way it is published, with at most
// two decimals for voltage and none for capacity. It is empty without state.
func (e *Entity) FormattedState() string {
	v, ok := e.State()
	if !ok {
		return ""
	}
	if e.metric == MetricCapacity {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (e *Entity) Icon() string {
	v, ok := e.State()
	return Icon(e.metric, v, ok)
}

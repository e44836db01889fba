package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/events"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/types"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/ups"
)

var errNack = errors.New("remote I/O error")

// fakePublisher records what the daemon sends to the host platform.
type fakePublisher struct {
	published [][]string
}

func (f *fakePublisher) Register([]*sensor.Entity) error { return nil }
func (f *fakePublisher) Close()                          {}
func (f *fakePublisher) PublishStates(entities []*sensor.Entity) error {
	var states []string
	for _, e := range entities {
		states = append(states, e.FormattedState())
	}
	f.published = append(f.published, states)
	return nil
}

func newTestDaemon(t *testing.T, raw *config.RawFileConfig) (*daemon, *ups.MockBus) {
	t.Helper()

	bus := ups.NewMock(map[uint8]uint16{
		ups.VoltageRegister:  0x00CD, // 4.1 V
		ups.CapacityRegister: 0x8052, // 82.5 %
	})
	conf := config.NewFileFromConfig(raw, "")
	d, err := newDaemon(context.Background(), conf, ups.NewDevice(bus, conf.I2CBus(), uint16(conf.I2CAddress())))
	if err != nil {
		t.Fatalf("newDaemon() error = %v", err)
	}
	if err := d.poller.Schedule(conf.PollInterval()); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	return d, bus
}

func TestNewDaemonInitFailure(t *testing.T) {
	bus := ups.NewMock(nil)
	bus.FailNext(10, errNack)

	conf := config.NewFileFromConfig(nil, "")
	_, err := newDaemon(context.Background(), conf, ups.NewDevice(bus, 1, 0x36))
	if !errors.Is(err, sensor.ErrNotInitialized) {
		t.Fatalf("newDaemon() error = %v, want ErrNotInitialized", err)
	}
	if !errors.Is(err, ups.ErrCommunication) {
		t.Errorf("newDaemon() error = %v, want it to wrap ErrCommunication", err)
	}
}

func TestNewDaemonMonitoredConditions(t *testing.T) {
	d, _ := newTestDaemon(t, &config.RawFileConfig{MonitoredConditions: &[]string{"capacity"}})
	if len(d.entities) != 1 || d.entities[0].Metric() != sensor.MetricCapacity {
		t.Fatalf("entities = %v, want only capacity", d.entities)
	}
	if got := d.entities[0].FormattedState(); got != "82" {
		t.Errorf("initial capacity state = %q, want 82", got)
	}
}

func TestNewDaemonNoMonitoredConditions(t *testing.T) {
	d, _ := newTestDaemon(t, &config.RawFileConfig{MonitoredConditions: &[]string{}})
	if len(d.entities) != 0 {
		t.Fatalf("entities = %v, want none", d.entities)
	}
	if _, ok := d.handler.Reading(); !ok {
		t.Error("handler has no reading after setup")
	}
}

func TestPollStaleOnFailure(t *testing.T) {
	d, bus := newTestDaemon(t, nil)
	pub := &fakePublisher{}
	d.publisher = pub

	ch := d.hub.Subscribe()
	defer d.hub.Unsubscribe(ch)

	if err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if ev := <-ch; ev.Name != events.ReadingUpdated {
		t.Errorf("event = %s, want %s", ev.Name, events.ReadingUpdated)
	}

	bus.Set(ups.CapacityRegister, 0x0010) // 0x1000 / 256 = 16 %
	bus.FailNext(1, errNack)

	if err := d.poll(context.Background()); !errors.Is(err, ups.ErrCommunication) {
		t.Fatalf("poll() error = %v, want ErrCommunication", err)
	}
	ev := <-ch
	if ev.Name != events.PollFailed {
		t.Fatalf("event = %s, want %s", ev.Name, events.PollFailed)
	}
	payload, err := events.DecodeAs[events.PollFailedEvent](ev)
	if err != nil || payload.Failures != 1 {
		t.Errorf("poll failed payload = %+v, %v", payload, err)
	}

	if len(pub.published) != 2 {
		t.Fatalf("published %d times, want 2", len(pub.published))
	}
	if got := strings.Join(pub.published[1], " "); got != "4.1 82" {
		t.Errorf("states after failed poll = %s, want stale 4.1 82", got)
	}

	if err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}
	if got := strings.Join(pub.published[2], " "); got != "4.1 16" {
		t.Errorf("states after recovery = %s, want 4.1 16", got)
	}
}

func TestHTTPHandlers(t *testing.T) {
	d, bus := newTestDaemon(t, &config.RawFileConfig{
		MQTT: &config.RawMQTTConfig{Broker: "tcp://broker:1883", Password: "secret"},
	})
	router := d.setupRoutes()

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, nil)
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("reading", func(t *testing.T) {
		w := do(http.MethodGet, "/reading")
		if w.Code != http.StatusOK {
			t.Fatalf("GET /reading = %d", w.Code)
		}
		var r types.ReadingResponse
		if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if r.Voltage != 4.1 || r.Capacity != 82 || r.RawCapacity != 82.5 {
			t.Errorf("reading = %+v", r)
		}
		if r.NextPoll.IsZero() {
			t.Error("next poll not reported")
		}
	})

	t.Run("sensors", func(t *testing.T) {
		w := do(http.MethodGet, "/sensors")
		var sensors []types.SensorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &sensors); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if len(sensors) != 2 {
			t.Fatalf("got %d sensors", len(sensors))
		}
		if sensors[1].Name != "UPS Sensor Capacity" || sensors[1].Icon != "mdi:battery-high" || sensors[1].State == nil || *sensors[1].State != 82 {
			t.Errorf("capacity sensor = %+v", sensors[1])
		}
	})

	t.Run("config hides password", func(t *testing.T) {
		w := do(http.MethodGet, "/config")
		if w.Code != http.StatusOK {
			t.Fatalf("GET /config = %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "secret") {
			t.Errorf("config leaked the mqtt password: %s", w.Body.String())
		}
	})

	t.Run("forced poll", func(t *testing.T) {
		bus.Set(ups.CapacityRegister, 0x0014) // 0x1400 / 256 = 20 %
		w := do(http.MethodPut, "/poll")
		if w.Code != http.StatusOK {
			t.Fatalf("PUT /poll = %d: %s", w.Code, w.Body.String())
		}
		var r types.ReadingResponse
		if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if r.Capacity != 20 {
			t.Errorf("capacity after forced poll = %d, want 20", r.Capacity)
		}
	})

	t.Run("forced poll failure", func(t *testing.T) {
		bus.FailNext(1, errNack)
		if w := do(http.MethodPut, "/poll"); w.Code != http.StatusInternalServerError {
			t.Fatalf("PUT /poll = %d, want 500", w.Code)
		}
		w := do(http.MethodGet, "/reading")
		var r types.ReadingResponse
		if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if r.Capacity != 20 || r.ConsecutiveFailures != 1 || r.LastError == "" {
			t.Errorf("reading after failed poll = %+v", r)
		}
	})

	t.Run("version", func(t *testing.T) {
		if w := do(http.MethodGet, "/version"); w.Code != http.StatusOK {
			t.Fatalf("GET /version = %d", w.Code)
		}
	})
}

func TestEventStream(t *testing.T) {
	d, _ := newTestDaemon(t, nil)
	srv := httptest.NewServer(d.setupRoutes())
	defer srv.Close()
	defer close(d.stopCh)

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		resp, err := http.Get(srv.URL + "/events")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for d.hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.poll(context.Background()); err != nil {
		t.Fatalf("poll() error = %v", err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("event stream closed early")
			}
			if line == "event:"+events.ReadingUpdated {
				return
			}
		case <-timeout:
			t.Fatal("no reading event received")
		}
	}
}

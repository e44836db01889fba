package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/events"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/mqtt"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/ups"
)

// Options control how the daemon starts.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
	// Mock replaces the I2C bus with an in-memory gauge, for running
	// without the HAT.
	Mock bool
}

// statePublisher is a host platform sink for sensor states.
type statePublisher interface {
	Register(entities []*sensor.Entity) error
	PublishStates(entities []*sensor.Entity) error
	Close()
}

type daemon struct {
	conf      config.Config
	device    *ups.Device
	handler   *sensor.Handler
	entities  []*sensor.Entity
	hub       *events.Hub
	publisher statePublisher
	poller    *Poller

	// stopCh ends long-lived event streams on shutdown.
	stopCh chan struct{}
}

func (d *daemon) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/reading", d.getReading)
	router.GET("/sensors", d.getSensors)
	router.PUT("/poll", d.forcePoll)
	router.GET("/config", d.getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", d.streamEvents)

	return router
}

// poll updates the handler once and fans the result out to every sink.
// A failed poll is only logged: sensors keep serving the cached reading.
func (d *daemon) poll(ctx context.Context) error {
	err := d.handler.Update(ctx)
	for _, e := range d.entities {
		e.Refresh()
	}

	if err != nil {
		status := d.handler.Status()
		logrus.WithFields(logrus.Fields{
			"consecutiveFailures": status.Failures,
		}).Warnf("failed to poll UPS, keeping previous reading: %v", err)
		d.hub.Publish(events.PollFailed, events.PollFailedEvent{
			Error:    err.Error(),
			Failures: status.Failures,
			Ts:       time.Now().Unix(),
		})
	} else {
		v, _ := d.handler.Voltage()
		c, _ := d.handler.Capacity()
		printStatus(v, c)
		d.hub.Publish(events.ReadingUpdated, events.ReadingEvent{
			Voltage:  v,
			Capacity: c,
			Ts:       time.Now().Unix(),
		})
	}

	if d.publisher != nil {
		if perr := d.publisher.PublishStates(d.entities); perr != nil {
			if errors.Is(perr, mqtt.ErrNotConnected) {
				logrus.Debugf("skipping mqtt publish: %v", perr)
			} else {
				logrus.Errorf("failed to publish sensor states: %v", perr)
			}
		}
	}

	return err
}

func openDevice(conf config.Config, mock bool) (*ups.Device, error) {
	addr := uint16(conf.I2CAddress())

	var bus ups.WordReader
	if mock {
		logrus.Warn("using a mocked UPS, no hardware will be accessed")
		bus = ups.NewMock(map[uint8]uint16{
			ups.VoltageRegister:  0x00CD, // 4.10 V
			ups.CapacityRegister: 0x8052, // 82.5 %, shown as 82
		})
	} else {
		b, err := ups.OpenBus(conf.I2CBus(), addr)
		if err != nil {
			return nil, err
		}
		bus = b
	}

	return ups.NewDevice(bus, conf.I2CBus(), addr), nil
}

// newDaemon performs the settled first read on device. Any failure is
// fatal: no sensors are registered.
func newDaemon(ctx context.Context, conf config.Config, device *ups.Device) (*daemon, error) {
	monitored, err := sensor.ParseMetrics(conf.MonitoredConditions())
	if err != nil {
		return nil, err
	}

	handler, err := sensor.Setup(ctx, device)
	if err != nil {
		if errors.Is(err, ups.ErrCommunication) {
			logrus.Errorf("UPS sensor not detected at 0x%02x", device.Address())
		} else {
			logrus.Error("UPS sensor failed to initialize")
		}
		return nil, err
	}

	d := &daemon{
		conf:     conf,
		device:   device,
		handler:  handler,
		entities: sensor.NewEntities(handler, conf.Name(), sensor.DeviceID(device.Bus(), device.Address()), monitored),
		hub:      events.NewHub(),
		stopCh:   make(chan struct{}),
	}
	if len(d.entities) == 0 {
		logrus.Warn("monitored_conditions is empty, no sensors will be registered")
	}
	for _, e := range d.entities {
		e.Refresh()
	}
	d.poller = NewPoller(func() { _ = d.poll(context.Background()) })

	return d, nil
}

func Run(opts Options) error {
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrap(err, "invalid config")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	device, err := openDevice(conf, opts.Mock)
	if err != nil {
		logrus.Errorf("UPS sensor not detected at 0x%02x", conf.I2CAddress())
		return err
	}

	d, err := newDaemon(context.Background(), conf, device)
	if err != nil {
		_ = device.Close()
		return err
	}

	if m := conf.MQTT(); m.Enabled {
		p := mqtt.New(m, sensor.DeviceID(d.device.Bus(), d.device.Address()), conf.Name())
		if err := p.Connect(); err != nil {
			logrus.Warnf("mqtt: %v, will keep retrying in the background", err)
		}
		if err := p.Register(d.entities); err != nil {
			logrus.Errorf("failed to register sensors: %v", err)
		}
		d.publisher = p
	}

	for _, e := range d.entities {
		logrus.WithFields(logrus.Fields{
			"uniqueID": e.UniqueID(),
			"unit":     e.Unit(),
			"state":    e.FormattedState(),
		}).Infof("sensor %q ready", e.Name())
	}

	if err := d.poller.Schedule(conf.PollInterval()); err != nil {
		return pkgerrors.Wrapf(err, "invalid poll interval %q", conf.PollInterval())
	}
	d.poller.Start()

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			d.reload()
		}
	}()

	srv := &http.Server{
		Handler:           d.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Remove a stale socket left over by a crashed daemon.
	if _, err := os.Stat(opts.UnixSocketPath); err == nil {
		logrus.Warnf("removing stale socket %s", opts.UnixSocketPath)
		if err := os.Remove(opts.UnixSocketPath); err != nil {
			return pkgerrors.Wrapf(err, "failed to remove %s", opts.UnixSocketPath)
		}
	}

	l, err := net.Listen("unix", opts.UnixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.UnixSocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.UnixSocketPath)
		if err := os.Chmod(opts.UnixSocketPath, 0777); err != nil {
			return pkgerrors.Wrapf(err, "failed to chmod %s", opts.UnixSocketPath)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-serveErr:
		runErr = fmt.Errorf("http server failed: %w", err)
	}

	d.shutdown(srv)
	return runErr
}

func (d *daemon) reload() {
	if err := d.conf.Load(); err != nil {
		logrus.Errorf("failed to reload config: %v", err)
		return
	}
	if err := d.conf.Validate(); err != nil {
		logrus.Errorf("reloaded config is invalid, keeping the running setup: %v", err)
		return
	}
	if err := d.poller.Schedule(d.conf.PollInterval()); err != nil {
		logrus.Errorf("failed to apply poll interval: %v", err)
		return
	}
	logrus.WithFields(d.conf.LogrusFields()).Infof("config reloaded, bus and sensor changes need a restart")
}

func (d *daemon) shutdown(srv *http.Server) {
	logrus.Info("stopping poller")
	d.poller.Stop()

	close(d.stopCh)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if d.publisher != nil {
		logrus.Info("disconnecting from mqtt broker")
		d.publisher.Close()
	}

	logrus.Info("closing i2c bus")
	if err := d.device.Close(); err != nil {
		logrus.Errorf("failed to close i2c bus: %v", err)
	}

	logrus.Info("exiting")
}

package mqtt

import (
	"encoding/json"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/sensor"
)

// ErrNotConnected is returned while the broker is unreachable. paho keeps
// reconnecting in the background.
var ErrNotConnected = pkgerrors.New("not connected to mqtt broker")

const (
	qos            = 1
	publishTimeout = 10 * time.Second

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// client is the part of paho.Client the publisher needs.
type client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Publisher registers entities with Home Assistant through MQTT discovery
// and publishes their states.
type Publisher struct {
	client          client
	discoveryPrefix string
	statePrefix     string
	deviceID        string
	deviceName      string

	mu sync.Mutex
	// icons holds the icon last announced per entity; capacity icons follow
	// the charge tier and need a new discovery message when they change.
	icons map[string]string
}

// New creates a Publisher for the broker in c. deviceID and deviceName
// identify the UPS the entities belong to.
func New(c config.MQTT, deviceID, deviceName string) *Publisher {
	p := &Publisher{
		discoveryPrefix: c.DiscoveryPrefix,
		statePrefix:     c.StatePrefix,
		deviceID:        deviceID,
		deviceName:      deviceName,
		icons:           make(map[string]string),
	}

	opts := paho.NewClientOptions().
		AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.availabilityTopic(), payloadOffline, qos, true).
		SetOnConnectHandler(func(cl paho.Client) {
			logrus.WithField("broker", c.Broker).Info("connected to mqtt broker")
			cl.Publish(p.availabilityTopic(), qos, true, payloadOnline)
			// Discovery is retained, but the broker may have been restarted
			// without persistence. Announce everything again on the next publish.
			p.mu.Lock()
			p.icons = make(map[string]string)
			p.mu.Unlock()
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logrus.WithField("broker", c.Broker).Warnf("lost connection to mqtt broker: %v", err)
		})

	p.client = paho.NewClient(opts)
	return p
}

func newWithClient(cl client, discoveryPrefix, statePrefix, deviceID, deviceName string) *Publisher {
	return &Publisher{
		client:          cl,
		discoveryPrefix: discoveryPrefix,
		statePrefix:     statePrefix,
		deviceID:        deviceID,
		deviceName:      deviceName,
		icons:           make(map[string]string),
	}
}

// Connect connects to the broker and announces the daemon as online. If the
// broker cannot be reached in time, the connection is retried in the
// background and ErrNotConnected is returned.
func (p *Publisher) Connect() error {
	t := p.client.Connect()
	if !t.WaitTimeout(publishTimeout) {
		return ErrNotConnected
	}
	if err := t.Error(); err != nil {
		return pkgerrors.Wrap(err, "failed to connect to mqtt broker")
	}
	return p.publish(p.availabilityTopic(), true, payloadOnline)
}

// Register publishes a discovery config for every entity. While
// disconnected, registration is deferred to the first PublishStates after
// the connection comes up.
func (p *Publisher) Register(entities []*sensor.Entity) error {
	if !p.client.IsConnectionOpen() {
		logrus.Info("mqtt broker not connected yet, sensors will be registered once it is")
		return nil
	}
	for _, e := range entities {
		if err := p.announce(e); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"entity": e.Name(),
			"topic":  p.discoveryTopic(e),
		}).Info("registered sensor")
	}
	return nil
}

func (p *Publisher) announce(e *sensor.Entity) error {
	b, err := json.Marshal(p.discoveryPayload(e))
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to marshal discovery config of %s", e.UniqueID())
	}
	if err := p.publish(p.discoveryTopic(e), true, b); err != nil {
		return err
	}

	p.mu.Lock()
	p.icons[e.UniqueID()] = e.Icon()
	p.mu.Unlock()
	return nil
}

// PublishStates publishes the current state of each entity that has one,
// re-announcing entities whose icon changed.
func (p *Publisher) PublishStates(entities []*sensor.Entity) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	for _, e := range entities {
		state := e.FormattedState()
		if state == "" {
			continue
		}

		p.mu.Lock()
		announced, ok := p.icons[e.UniqueID()]
		p.mu.Unlock()
		if !ok || announced != e.Icon() {
			if err := p.announce(e); err != nil {
				return err
			}
		}

		if err := p.publish(p.stateTopic(e), true, state); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the daemon offline and disconnects.
func (p *Publisher) Close() {
	if !p.client.IsConnectionOpen() {
		p.client.Disconnect(0)
		return
	}
	if err := p.publish(p.availabilityTopic(), true, payloadOffline); err != nil {
		logrus.Warnf("failed to publish offline status: %v", err)
	}
	p.client.Disconnect(250)
}

func (p *Publisher) publish(topic string, retained bool, payload interface{}) error {
	logrus.WithFields(logrus.Fields{
		"topic":    topic,
		"retained": retained,
	}).Trace("publishing to mqtt")

	if err := wait(p.client.Publish(topic, qos, retained, payload)); err != nil {
		return pkgerrors.Wrapf(err, "failed to publish to %s", topic)
	}
	return nil
}

func wait(t paho.Token) error {
	if !t.WaitTimeout(publishTimeout) {
		return pkgerrors.New("timed out waiting for mqtt broker")
	}
	return t.Error()
}

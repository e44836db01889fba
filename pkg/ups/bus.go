package ups

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var _ WordReader = &PeriphBus{}

// PeriphBus is a WordReader on a Linux i2c-dev bus, backed by periph.io.
type PeriphBus struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// OpenBus opens /dev/i2c-<busNum> and binds it to address.
func OpenBus(busNum int, address uint16) (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to initialize periph host drivers")
	}

	name := fmt.Sprintf("/dev/i2c-%d", busNum)
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open %s", name)
	}

	logrus.WithFields(logrus.Fields{
		"bus":     name,
		"address": fmt.Sprintf("0x%02x", address),
	}).Debug("i2c bus opened")

	return &PeriphBus{
		bus: bus,
		dev: &i2c.Dev{Addr: address, Bus: bus},
	}, nil
}

// ReadWord writes the register offset and reads two bytes back,
// assembling them low byte first.
func (b *PeriphBus) ReadWord(reg uint8) (uint16, error) {
	buf := make([]byte, 2)
	if err := b.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// Close closes the bus.
func (b *PeriphBus) Close() error {
	return b.bus.Close()
}

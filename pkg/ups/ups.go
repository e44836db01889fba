package ups

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// WordReader reads 16-bit words from the registers of a single I2C device.
type WordReader interface {
	// ReadWord reads the word at reg, low byte first, like SMBus read_word_data.
	ReadWord(reg uint8) (uint16, error)
	// Close releases the underlying bus.
	Close() error
}

// Device is the UPS fuel gauge sitting on a bus. The bus handle is owned by
// the Device and shared by all reads.
type Device struct {
	bus     WordReader
	busNum  int
	address uint16

	// mu keeps the two register reads of one sample back to back.
	mu sync.Mutex
}

// NewDevice returns a Device reading from an already opened bus.
func NewDevice(bus WordReader, busNum int, address uint16) *Device {
	return &Device{
		bus:     bus,
		busNum:  busNum,
		address: address,
	}
}

// Bus returns the bus number the device was opened on.
func (d *Device) Bus() int {
	return d.busNum
}

// Address returns the I2C address of the device.
func (d *Device) Address() uint16 {
	return d.address
}

// Read samples voltage and capacity. Either both values are returned or an
// error matching ErrCommunication. It does not retry.
func (d *Device) Read() (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rawVoltage, err := d.readWord(VoltageRegister)
	if err != nil {
		return Reading{}, err
	}

	rawCapacity, err := d.readWord(CapacityRegister)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		Voltage:  DecodeVoltage(rawVoltage),
		Capacity: DecodeCapacity(rawCapacity),
	}

	logrus.WithFields(logrus.Fields{
		"rawVoltage":  rawVoltage,
		"rawCapacity": rawCapacity,
		"voltage":     r.Voltage,
		"capacity":    r.Capacity,
	}).Trace("Read from UPS succeed")

	return r, nil
}

// Close closes the bus.
func (d *Device) Close() error {
	return d.bus.Close()
}

func (d *Device) readWord(reg uint8) (uint16, error) {
	logrus.WithFields(logrus.Fields{
		"address":  d.address,
		"register": reg,
	}).Trace("Trying to read from UPS")

	w, err := d.bus.ReadWord(reg)
	if err != nil {
		return 0, &CommError{Address: d.address, Register: reg, Err: err}
	}

	return w, nil
}

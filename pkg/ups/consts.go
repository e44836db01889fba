package ups

const (
	// DefaultAddress is the I2C address of the X708 fuel gauge.
	DefaultAddress = 0x36
	// DefaultBus is the I2C bus the HAT is wired to on a Raspberry Pi.
	DefaultBus = 1

	// VoltageRegister holds the cell voltage, 78.125uV per LSB.
	VoltageRegister uint8 = 0x02
	// CapacityRegister holds the state of charge, 1/256 % per LSB.
	CapacityRegister uint8 = 0x04
)

package ups

// Reading is one decoded sample of the UPS fuel gauge.
type Reading struct {
	// Voltage is the battery voltage in volts.
	Voltage float64 `json:"voltage"`
	// Capacity is the remaining capacity in percent. It is not clamped,
	// so a freshly calibrated gauge may report slightly above 100.
	Capacity float64 `json:"capacity"`
}

// SwapBytes exchanges the high and low byte of a 16-bit word.
//
// An SMBus word read returns the low byte first, while the gauge sends the
// most significant byte first.
func SwapBytes(w uint16) uint16 {
	return w<<8 | w>>8
}

// DecodeVoltage converts a raw word, as returned by the bus, to volts.
func DecodeVoltage(raw uint16) float64 {
	return float64(SwapBytes(raw)) * 1.25 / 1000 / 16
}

// DecodeCapacity converts a raw word, as returned by the bus, to percent.
func DecodeCapacity(raw uint16) float64 {
	return float64(SwapBytes(raw)) / 256
}

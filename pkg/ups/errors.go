package ups

import (
	"errors"
	"fmt"
)

// ErrCommunication is matched by every error caused by a failed bus transaction.
var ErrCommunication = errors.New("i2c communication failed")

// CommError is returned when reading a register from the device fails.
type CommError struct {
	Address  uint16
	Register uint8
	Err      error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("failed to read register 0x%02x from device at 0x%02x: %v", e.Register, e.Address, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

func (e *CommError) Is(target error) bool {
	return target == ErrCommunication
}

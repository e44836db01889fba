package ups

import (
	"errors"
	"sync"
)

var _ WordReader = &MockBus{}

// ErrMockUnmapped is returned by MockBus for registers that were never set.
var ErrMockUnmapped = errors.New("register not mapped")

// MockBus is an in-memory WordReader. It is used by tests and by the
// daemon's --mock mode on machines without the HAT.
type MockBus struct {
	mu        sync.Mutex
	registers map[uint8]uint16
	failures  int
	failErr   error
	reads     int
	closed    bool
}

// NewMock returns a MockBus with prefilled registers, holding raw words as
// the bus would return them.
func NewMock(prefill map[uint8]uint16) *MockBus {
	m := &MockBus{
		registers: make(map[uint8]uint16, len(prefill)),
	}
	for reg, w := range prefill {
		m.registers[reg] = w
	}
	return m
}

// Set updates a raw register word.
func (m *MockBus) Set(reg uint8, w uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registers[reg] = w
}

// FailNext makes the next n reads fail with err.
func (m *MockBus) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

// Reads returns how many reads were attempted.
func (m *MockBus) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// Closed reports whether Close was called.
func (m *MockBus) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockBus) ReadWord(reg uint8) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	if m.failures > 0 {
		m.failures--
		return 0, m.failErr
	}

	w, ok := m.registers[reg]
	if !ok {
		return 0, ErrMockUnmapped
	}
	return w, nil
}

func (m *MockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

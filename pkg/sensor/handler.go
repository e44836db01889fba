package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/ups"
)

// SettleDelay is how long the gauge needs after power-up before its
// registers can be trusted.
const SettleDelay = 500 * time.Millisecond

// ErrNotInitialized is returned by Setup when the first settled read
// produced no voltage.
var ErrNotInitialized = errors.New("UPS sensor failed to initialize")

// Reader is implemented by *ups.Device.
type Reader interface {
	Read() (ups.Reading, error)
}

// Status is a snapshot of the handler cache.
type Status struct {
	Reading     ups.Reading `json:"reading"`
	Valid       bool        `json:"valid"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	LastError   string      `json:"lastError,omitempty"`
	LastErrorAt time.Time   `json:"lastErrorAt"`
	Failures    int         `json:"consecutiveFailures"`
}

// Handler polls a Reader and keeps the last good reading. Once created it
// is always ready; a failed poll leaves the cache untouched.
type Handler struct {
	reader Reader

	// pollMu serializes polls, the bus is not safe for parallel use.
	pollMu sync.Mutex

	mu          sync.RWMutex
	reading     ups.Reading
	valid       bool
	updatedAt   time.Time
	lastErr     error
	lastErrorAt time.Time
	failures    int
}

// Setup performs a throwaway read, waits SettleDelay and reads again. It
// fails permanently if that read leaves no voltage.
func Setup(ctx context.Context, reader Reader) (*Handler, error) {
	return setup(ctx, reader, SettleDelay)
}

func setup(ctx context.Context, reader Reader, settle time.Duration) (*Handler, error) {
	h := &Handler{reader: reader}

	// The first read right after power-up is almost always garbage.
	if _, err := reader.Read(); err != nil {
		logrus.Debugf("discarding first UPS read: %v", err)
	}

	timer := time.NewTimer(settle)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}

	if err := h.Update(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, err)
	}
	if _, ok := h.Reading(); !ok {
		return nil, ErrNotInitialized
	}

	return h, nil
}

// Update polls the reader once. The blocking bus read runs on its own
// goroutine: cancelling ctx stops the wait but not the read, whose result is
// still cached when it eventually completes.
func (h *Handler) Update(ctx context.Context) error {
	done := make(chan error, 1)

	go func() {
		h.pollMu.Lock()
		defer h.pollMu.Unlock()

		r, err := h.reader.Read()
		h.store(r, err)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) store(r ups.Reading, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	if err != nil {
		h.lastErr = err
		h.lastErrorAt = now
		h.failures++
		return
	}

	h.reading = r
	h.valid = true
	h.updatedAt = now
	h.failures = 0
}

// Reading returns the cached reading and whether one was ever taken.
func (h *Handler) Reading() (ups.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reading, h.valid
}

// Voltage returns the cached voltage rounded to 2 decimal places.
func (h *Handler) Voltage() (float64, bool) {
	r, ok := h.Reading()
	if !ok {
		return 0, false
	}
	return RoundVoltage(r.Voltage), true
}

// Capacity returns the cached capacity rounded to the nearest percent.
func (h *Handler) Capacity() (int, bool) {
	r, ok := h.Reading()
	if !ok {
		return 0, false
	}
	return RoundCapacity(r.Capacity), true
}

// Status returns a snapshot of the cache and the poll history.
func (h *Handler) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Status{
		Reading:     h.reading,
		Valid:       h.valid,
		UpdatedAt:   h.updatedAt,
		LastErrorAt: h.lastErrorAt,
		Failures:    h.failures,
	}
	if h.lastErr != nil {
		s.LastError = h.lastErr.Error()
	}
	return s
}

// RoundVoltage rounds v to 2 decimal places. The exact binary value is
// rounded, so 4.094999... becomes 4.09 and not 4.1.
func RoundVoltage(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// RoundCapacity rounds c to the nearest integer, halves to even.
func RoundCapacity(c float64) int {
	return int(math.RoundToEven(c))
}

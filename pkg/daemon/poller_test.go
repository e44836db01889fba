package daemon

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
)

func TestCronParse(t *testing.T) {
	schedule, err := config.CronParser.Parse("@every 30s")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	now := time.Now()
	next1 := schedule.Next(now)
	next2 := schedule.Next(next1)
	if next2.Sub(next1) != 30*time.Second {
		t.Fatalf("expected 30s between runs, got next1=%v next2=%v", next1, next2)
	}
}

func TestPollerScheduleStatus(t *testing.T) {
	p := NewPoller(func() {})

	if err := p.Schedule("@every 1m"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	next, running := p.Status()
	if running {
		t.Fatalf("poller should not be running")
	}
	if next.IsZero() {
		t.Fatalf("next run should be set after scheduling")
	}

	if err := p.Schedule("not a schedule"); err == nil {
		t.Fatalf("Schedule accepted an invalid expression")
	}
}

func TestPollerRuns(t *testing.T) {
	var runs int32
	ran := make(chan struct{}, 10)

	p := NewPoller(func() {
		atomic.AddInt32(&runs, 1)
		ran <- struct{}{}
	})
	if err := p.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	p.mu.Lock()
	p.nextRun = time.Now().Add(20 * time.Millisecond)
	p.mu.Unlock()

	p.Start()
	defer p.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("task did not run in time")
	}

	next, running := p.Status()
	if !running {
		t.Fatalf("poller should be running")
	}
	if !next.After(time.Now()) {
		t.Fatalf("next run %v should be in the future", next)
	}
}

func TestPollerReschedule(t *testing.T) {
	ran := make(chan struct{}, 10)
	p := NewPoller(func() { ran <- struct{}{} })
	if err := p.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	p.Start()
	defer p.Stop()

	if err := p.Schedule("@every 1s"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not run after rescheduling")
	}
}

func TestPollerStop(t *testing.T) {
	p := NewPoller(func() {})
	if err := p.Schedule("@every 1h"); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	p.Start()
	p.Stop()
	p.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, running := p.Status(); !running {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("poller still running after Stop")
}

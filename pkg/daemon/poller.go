package daemon

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/aIexus/HA-Geekworm-X708-UPS-HAT/pkg/config"
)

// TaskFunc represents a runnable task.
type TaskFunc func()

// Poller runs a task on a cron schedule. Runs never overlap: a run that
// takes longer than the interval delays the next one.
type Poller struct {
	Task TaskFunc

	parser cron.Parser

	mu       sync.Mutex
	schedule cron.Schedule
	nextRun  time.Time
	running  bool

	resetCh chan cron.Schedule
	stopCh  chan struct{}
}

func NewPoller(task TaskFunc) *Poller {
	if task == nil {
		panic("task function cannot be nil")
	}

	return &Poller{
		Task:    task,
		parser:  config.CronParser,
		resetCh: make(chan cron.Schedule, 1),
		stopCh:  make(chan struct{}),
	}
}

// Schedule sets or replaces the cron expression. A running poller picks up
// the new schedule immediately.
func (p *Poller) Schedule(expr string) error {
	sh, err := p.parser.Parse(expr)
	if err != nil {
		return err
	}

	p.mu.Lock()
	running := p.running
	if !running {
		p.schedule = sh
		p.nextRun = sh.Next(time.Now())
	}
	p.mu.Unlock()

	if running {
		// Replace a pending reset that was not consumed yet.
		select {
		case <-p.resetCh:
		default:
		}
		p.resetCh <- sh
	}
	return nil
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	go p.run()
}

func (p *Poller) Stop() {
	select {
	case <-p.stopCh: // already closed
	default:
		close(p.stopCh)
	}
}

// Status returns the next scheduled run and whether the poller is running.
func (p *Poller) Status() (nextRun time.Time, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.nextRun, p.running
}

func (p *Poller) run() {
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		logrus.Debug("poller stopped")
	}()

	logrus.Debug("poller started")

	for {
		p.mu.Lock()
		schedule, nextRun := p.schedule, p.nextRun
		p.mu.Unlock()

		var timer *time.Timer
		if schedule == nil || nextRun.IsZero() {
			timer = time.NewTimer(time.Hour * 10000)
		} else {
			wait := time.Until(nextRun)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
		}

		select {
		case <-timer.C:
			if schedule == nil {
				continue
			}
			logrus.Tracef("running scheduled poll at %s", nextRun.Format(time.DateTime))
			p.Task()

			p.mu.Lock()
			// Skip runs missed while the task was blocked on the bus.
			p.nextRun = p.schedule.Next(time.Now())
			p.mu.Unlock()
		case sh := <-p.resetCh:
			timer.Stop()
			p.mu.Lock()
			p.schedule = sh
			p.nextRun = sh.Next(time.Now())
			p.mu.Unlock()
			logrus.Debugf("poll schedule changed, next poll at %s", p.nextRunString())
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

func (p *Poller) nextRunString() string {
	next, _ := p.Status()
	return next.Format(time.DateTime)
}

// Package scheduler runs check cycles on an interval, inside market hours,
// one at a time.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"stock-tracker-alerts/config"
	"stock-tracker-alerts/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

const DefaultInterval = time.Hour

type State int

const (
	Stopped State = iota
	Running
	ShuttingDown
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	}
	return "stopped"
}

// Runner executes one check cycle.
type Runner interface {
	RunCycle(ctx context.Context) (types.CycleReport, error)
}

type Options struct {
	Interval    time.Duration
	MarketHours config.MarketHours
	// PIDFile, when set, is locked for the lifetime of the loop.
	PIDFile string
	// Recover runs once on Start before the first cycle.
	Recover func(ctx context.Context) error
	// RunOnStart runs the first cycle as soon as the loop starts, even
	// outside market hours.
	RunOnStart bool
}

// Status is a snapshot of the scheduler, served by the admin endpoint.
type Status struct {
	State         string             `json:"state"`
	Alive         bool               `json:"alive"`
	Runs          int                `json:"runs"`
	LastRunAt     time.Time          `json:"last_run_at"`
	LastSuccessAt time.Time          `json:"last_success_at"`
	LastError     string             `json:"last_error,omitempty"`
	NextRunAt     time.Time          `json:"next_run_at"`
	LastReport    *types.CycleReport `json:"last_report,omitempty"`
}

type Scheduler struct {
	runner Runner
	opts   Options
	now    func() time.Time

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	pid    *PIDFile
	status Status

	// runMu keeps the loop and RunNow from overlapping.
	runMu sync.Mutex
}

func New(runner Runner, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MarketHours.Location == nil {
		opts.MarketHours.Location = time.UTC
	}
	return &Scheduler{runner: runner, opts: opts, now: time.Now}
}

// Start locks the PID file, runs the recovery hook and starts the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Stopped {
		return ErrAlreadyRunning
	}

	if s.opts.PIDFile != "" {
		pid, err := AcquirePIDFile(s.opts.PIDFile)
		if err != nil {
			return err
		}
		s.pid = pid
	}

	if s.opts.Recover != nil {
		if err := s.opts.Recover(ctx); err != nil {
			log.WithField("component", "scheduler").WithError(err).Warn("Startup recovery failed")
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = Running
	go s.loop(loopCtx, s.done)

	log.WithField("component", "scheduler").Infof("✅ Scheduler started, interval %s, market hours only %t", s.opts.Interval, s.opts.MarketHours.Enabled)
	return nil
}

// Stop cancels the loop and waits for the running cycle until ctx expires.
// No cycle starts after Stop returns. The PID file is released only once no
// cycle is left running, so when ctx expires first it stays locked until the
// late cycle ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = ShuttingDown
	s.cancel()
	done := s.done
	s.mu.Unlock()

	logger := log.WithField("component", "scheduler")
	logger.Info("🛑 Stopping scheduler...")

	idle := make(chan struct{})
	go func() {
		<-done
		// a RunNow from the admin endpoint may outlive the loop
		s.runMu.Lock()
		defer s.runMu.Unlock()
		s.release()
		close(idle)
	}()

	select {
	case <-idle:
		logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		err := errors.Wrap(ctx.Err(), "running cycle did not finish in time")
		logger.WithError(err).Warn("Shutdown grace period expired, PID file kept until the cycle ends")
		return err
	}
}

func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pid != nil {
		if err := s.pid.Release(); err != nil {
			log.WithField("component", "scheduler").WithError(err).Warn("Failed to remove PID file")
		}
		s.pid = nil
	}
	s.state = Stopped
	s.status.NextRunAt = time.Time{}
}

// RunNow runs one cycle immediately, after any cycle already in progress.
func (s *Scheduler) RunNow(ctx context.Context) (types.CycleReport, error) {
	if s.State() != Running {
		return types.CycleReport{}, ErrNotRunning
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	// Stop may have begun while waiting for the loop's cycle
	if s.State() != Running {
		return types.CycleReport{}, ErrNotRunning
	}
	return s.cycle(ctx)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.status
	st.State = s.state.String()
	if s.done != nil && s.state == Running {
		select {
		case <-s.done:
		default:
			st.Alive = true
		}
	}
	return st
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	next := s.now()
	if !s.opts.RunOnStart && !s.inWindow(next) {
		next = s.nextOpen(next)
		log.WithField("component", "scheduler").Infof("Outside market hours, first check at %s", next.Format(time.RFC3339))
	}

	for {
		s.setNextRun(next)

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.runOnce(ctx) {
			return
		}
		next = s.nextRun(s.now())
	}
}

// runOnce runs a loop cycle unless the loop was cancelled while waiting for
// a RunNow. It reports whether the loop should go on.
func (s *Scheduler) runOnce(ctx context.Context) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	s.cycle(ctx)
	return ctx.Err() == nil
}

// cycle runs the runner once with runMu held, turning a panic into an error.
func (s *Scheduler) cycle(ctx context.Context) (report types.CycleReport, err error) {
	startedAt := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("cycle panicked: %v", r)
			log.WithField("component", "scheduler").Errorf("%v\n%s", err, debug.Stack())
		}
		s.record(startedAt, report, err)
	}()

	return s.runner.RunCycle(ctx)
}

func (s *Scheduler) record(startedAt time.Time, report types.CycleReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Runs++
	s.status.LastRunAt = startedAt
	s.status.LastReport = &report
	if err != nil {
		s.status.LastError = err.Error()
		log.WithField("component", "scheduler").WithError(err).Error("❌ Check cycle failed")
		return
	}
	s.status.LastError = ""
	s.status.LastSuccessAt = startedAt
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.status.NextRunAt = t
	s.mu.Unlock()
}

// nextRun is one interval after the last cycle finished, deferred to the next
// open when that falls outside market hours.
func (s *Scheduler) nextRun(after time.Time) time.Time {
	next := after.Add(s.opts.Interval)
	if !s.inWindow(next) {
		return s.nextOpen(next)
	}
	return next
}

// inWindow reports whether t is a weekday between open and close, inclusive.
func (s *Scheduler) inWindow(t time.Time) bool {
	mh := s.opts.MarketHours
	if !mh.Enabled {
		return true
	}
	local := t.In(mh.Location)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	offset := local.Sub(midnight(local, 0))
	return offset >= mh.Open && offset <= mh.Close
}

// nextOpen returns the first weekday market open strictly after t.
func (s *Scheduler) nextOpen(t time.Time) time.Time {
	mh := s.opts.MarketHours
	local := t.In(mh.Location)
	for days := 0; days <= 7; days++ {
		open := midnight(local, days).Add(mh.Open)
		if !open.After(local) {
			continue
		}
		if open.Weekday() == time.Saturday || open.Weekday() == time.Sunday {
			continue
		}
		return open
	}
	return t.Add(s.opts.Interval)
}

func midnight(t time.Time, addDays int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+addDays, 0, 0, 0, 0, t.Location())
}

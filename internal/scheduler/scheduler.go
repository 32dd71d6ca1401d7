// Package scheduler opens and closes the daily capture window.
package scheduler

import (
	"context"
	"time"

	"firestige.xyz/xdump/internal/core"
	"firestige.xyz/xdump/internal/log"
	"firestige.xyz/xdump/internal/metrics"
)

// minSleep bounds the wake-up rate when a boundary is imminent.
const minSleep = 10 * time.Millisecond

// Scheduler is the only writer of the capture state. It sleeps until the next
// window boundary and then sets the state to whether now lies inside the window.
type Scheduler struct {
	window Window
	state  *core.CaptureState
	logger log.Logger
	now    func() time.Time

	nextStart time.Time
	nextEnd   time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(window Window, state *core.CaptureState, logger log.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		window: window,
		state:  state,
		logger: logger.WithField("component", "scheduler"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	now := s.now()
	s.nextStart = window.Start(now)
	s.nextEnd = window.End(now)
	return s
}

// Run toggles the capture state at every boundary until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithField("op", "run").Infof("scheduler started, window %s", s.window)

	for {
		wait := s.step(s.now())

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.WithField("op", "run").Info("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Prime applies the state for the current time once, so that consumers started
// afterwards already see it.
func (s *Scheduler) Prime() {
	s.step(s.now())
}

// step handles any boundary crossed by now and returns how long to sleep.
// Boundaries already in the past when the scheduler starts count as crossed,
// so a start inside the window enables capture at once and a start after the
// end leaves it disabled.
func (s *Scheduler) step(now time.Time) time.Duration {
	if !now.Before(s.nextStart) || !now.Before(s.nextEnd) {
		enabled := s.window.Contains(now)
		if s.state.Set(enabled) {
			s.logger.WithField("op", "step").Infof("capture state changed - %t", enabled)
		}
		metrics.BoolGauge(metrics.CaptureEnabled, enabled)

		for !s.nextStart.After(now) {
			s.nextStart = s.window.Start(s.nextStart.AddDate(0, 0, 1))
		}
		for !s.nextEnd.After(now) {
			s.nextEnd = s.window.End(s.nextEnd.AddDate(0, 0, 1))
		}
	}

	next := s.nextStart
	if s.nextEnd.Before(next) {
		next = s.nextEnd
	}
	if s.logger.IsDebugEnabled() {
		s.logger.WithField("op", "step").Debugf("now: %s, next_start: %s, next_end: %s", now, s.nextStart, s.nextEnd)
	}

	wait := next.Sub(now)
	if wait < minSleep {
		wait = minSleep
	}
	return wait
}

// NextBoundaries returns the upcoming start and end instants.
func (s *Scheduler) NextBoundaries() (start, end time.Time) {
	return s.nextStart, s.nextEnd
}

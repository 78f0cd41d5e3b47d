// Package scheduler owns the single deferred-execution slot described in
// spec.md §4.3 and §5: at most one outband sequence in flight globally,
// plus the blocking, EINTR-retried Suspend action.
package scheduler

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"

	"github.com/nokia-audio/alsapolicyd/internal/model"
)

type state int

const (
	stateIdle state = iota
	stateScheduled
)

// RunFunc runs a deferred rule tail as a fresh top-level invocation. The
// Scheduler never runs rules itself; it only owns the timing.
type RunFunc func(tail []*model.Rule)

// Scheduler is the process-wide outband slot (spec.md §9: model as an
// explicit value, not ambient state — Daemon owns the one instance).
type Scheduler struct {
	mu    sync.Mutex
	state state
	timer *time.Timer
	tail  []*model.Rule

	runner RunFunc
	log    *log.Logger
}

// New returns an idle Scheduler that invokes runner when a deferred tail
// fires.
func New(runner RunFunc, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}

	return &Scheduler{runner: runner, log: logger.With("component", "scheduler")}
}

// OutbandExecute installs tail to run after delayMS (0 runs on the next
// loop tick rather than inline). Returns ErrBusy if a sequence is already
// pending.
func (s *Scheduler) OutbandExecute(delayMS int, tail []*model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateScheduled {
		return ErrBusy
	}

	s.state = stateScheduled
	s.tail = tail
	s.timer = time.AfterFunc(time.Duration(delayMS)*time.Millisecond, s.fire)

	s.log.Info("outband execution scheduled", "delay_ms", delayMS)

	return nil
}

// fire runs when the pending timer elapses. It returns the slot to Idle
// before invoking the runner, so an OutbandExecute inside the tail is
// permissible (spec.md §4.3).
func (s *Scheduler) fire() {
	s.mu.Lock()
	tail := s.tail
	s.state = stateIdle
	s.tail = nil
	s.timer = nil
	s.mu.Unlock()

	s.runner(tail)
}

// OutbandCancel removes a pending timer, if any. It does not abort an
// already-in-progress invocation (spec.md §5).
func (s *Scheduler) OutbandCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateScheduled {
		return
	}

	s.timer.Stop()
	s.timer = nil
	s.tail = nil
	s.state = stateIdle

	s.log.Info("outband execution cancelled")
}

// Suspend blocks the calling goroutine for us microseconds using an
// interruptible sleep, retrying across EINTR until the full duration has
// elapsed (spec.md §4.3). It does not affect a pending outband timer.
func (s *Scheduler) Suspend(us int64) {
	s.log.Info("suspending execution", "usec", us)

	remaining := unix.NsecToTimespec(us * 1000)

	for {
		rem := unix.Timespec{}

		err := unix.Nanosleep(&remaining, &rem)
		if err == nil {
			return
		}

		if err != unix.EINTR {
			return
		}

		remaining = rem
	}
}

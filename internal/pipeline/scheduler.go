package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/energy-weather-etl/internal/observability"
)

var (
	// ErrAlreadyStarted is returned by Start when the scheduler has left the idle state.
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrCrashed is returned by Run when a cycle panicked.
	ErrCrashed = errors.New("scheduler crashed")
)

// State is the lifecycle of a Scheduler: Idle, then Running, then Stopped or Crashed.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Status is a point-in-time view of a Scheduler.
type Status struct {
	State           string    `json:"state"`
	CyclesCompleted int64     `json:"cycles_completed"`
	LastOutcome     Outcome   `json:"last_outcome,omitempty"`
	LastCycleAt     time.Time `json:"last_cycle_at,omitzero"`
}

// lastCycle records how the most recent cycle ended.
type lastCycle struct {
	outcome Outcome
	at      time.Time
}

// Cycler runs one cycle. *Pipeline implements it.
type Cycler interface {
	RunCycle(ctx context.Context) (Outcome, error)
}

// SchedulerConfig tunes a Scheduler.
type SchedulerConfig struct {
	Interval time.Duration
	// MaxCycles stops the loop after that many cycles. Zero means unbounded.
	MaxCycles int
	// Clock drives the inter-cycle wait. Defaults to the real clock.
	Clock clockwork.Clock
}

// Scheduler runs cycles back to back with a fixed wait between them. Cycles
// never overlap.
type Scheduler struct {
	cycler    Cycler
	interval  time.Duration
	maxCycles int
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	state     atomic.Int32
	completed atomic.Int64
	last      atomic.Pointer[lastCycle]
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates an idle Scheduler.
func NewScheduler(c Cycler, cfg SchedulerConfig, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		cycler:    c,
		interval:  cfg.Interval,
		maxCycles: cfg.MaxCycles,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		done:      make(chan struct{}),
	}
}

// Start launches the loop on its own goroutine and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Info("scheduler started", "interval", s.interval, "max_cycles", s.maxCycles)
	go s.loop(ctx)
	return nil
}

// Run starts the scheduler and blocks until the loop exits.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-s.done
	if s.State() == StateCrashed {
		return ErrCrashed
	}
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to return.
// Stopping an idle scheduler moves it straight to Stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
		close(s.done)
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	<-s.done
}

// Done is closed when the loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Completed returns the number of cycles that have returned.
func (s *Scheduler) Completed() int64 {
	return s.completed.Load()
}

// Status reports the lifecycle state, the cycle count and how the most recent
// cycle ended.
func (s *Scheduler) Status() Status {
	st := Status{
		State:           s.State().String(),
		CyclesCompleted: s.Completed(),
	}
	if last := s.last.Load(); last != nil {
		st.LastOutcome = last.outcome
		st.LastCycleAt = last.at
	}
	return st
}

// CheckReadiness fails once the loop has crashed and otherwise defers to the
// cycler when it reports readiness.
func (s *Scheduler) CheckReadiness(ctx context.Context) error {
	if s.State() == StateCrashed {
		return ErrCrashed
	}
	if rc, ok := s.cycler.(sharedobs.ReadinessChecker); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	s.metrics.SchedulerRunning.Set(1)
	defer s.metrics.SchedulerRunning.Set(0)
	defer func() {
		if r := recover(); r != nil {
			s.state.Store(int32(StateCrashed))
			s.logger.Error("cycle panicked, scheduler crashed",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			return
		}
		s.state.Store(int32(StateStopped))
	}()

	for {
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return
		}

		// Failures are logged by the cycle itself and never end the loop.
		outcome, _ := s.cycler.RunCycle(ctx)
		s.last.Store(&lastCycle{outcome: outcome, at: s.clock.Now()})

		n := s.completed.Add(1)
		if s.maxCycles > 0 && n >= int64(s.maxCycles) {
			s.logger.Info("cycle limit reached", "cycles", n)
			return
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return
		case <-s.clock.After(s.interval):
		}
	}
}

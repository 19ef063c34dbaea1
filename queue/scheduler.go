// Package queue serializes print jobs onto the printer: one job at a time,
// in submission order.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nixxel-company-limited/escpos-dispatcher/job"
)

const (
	DefaultCooldown            = 2 * time.Second
	DefaultOpenFailureCooldown = 500 * time.Millisecond
)

// ErrClosed is returned by Submit after Shutdown, and is the error of jobs
// dropped by a Shutdown that timed out.
var ErrClosed = errors.New("scheduler closed")

// Runner executes a job to completion. *job.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, j job.Job) job.Result
}

// Config holds the pauses between jobs. Zero values select the defaults.
type Config struct {
	// Cooldown follows a job that opened the printer.
	Cooldown time.Duration
	// OpenFailureCooldown follows a job whose printer could not be opened.
	OpenFailureCooldown time.Duration
}

// Status is a snapshot of the scheduler.
type Status struct {
	Busy      bool   `json:"busy"`
	Current   string `json:"current,omitempty"`
	Pending   int    `json:"pending"`
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Closed    bool   `json:"closed"`
}

type entry struct {
	job    job.Job
	handle *Handle
}

// Scheduler is a FIFO queue with a single worker. Submit never blocks; the
// head job runs once the previous one finished and its cooldown elapsed.
type Scheduler struct {
	runner Runner
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	queue   []*entry
	busy    bool
	current *entry
	closed  bool
	drained chan struct{}
	stats   Status
}

// NewScheduler creates an idle scheduler.
func NewScheduler(runner Runner, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.OpenFailureCooldown <= 0 {
		cfg.OpenFailureCooldown = DefaultOpenFailureCooldown
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit appends j to the queue and returns its completion handle.
func (s *Scheduler) Submit(j job.Job) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	h := newHandle(j.ID)
	s.queue = append(s.queue, &entry{job: j, handle: h})
	s.stats.Submitted++
	pending := len(s.queue)
	s.mu.Unlock()

	s.logger.Debug().Str("job", j.ID).Str("mode", string(j.Mode)).Int("pending", pending).Msg("job queued")

	s.advance()
	return h, nil
}

// advance starts the head job unless one is running or the queue is empty.
func (s *Scheduler) advance() {
	s.mu.Lock()
	if s.busy || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	e := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.busy = true
	s.current = e
	s.mu.Unlock()

	go s.run(e)
}

func (s *Scheduler) run(e *entry) {
	res := s.execute(e.job)

	s.mu.Lock()
	if res.Success {
		s.stats.Succeeded++
	} else {
		s.stats.Failed++
	}
	s.mu.Unlock()

	e.handle.resolve(res)

	delay := s.cfg.Cooldown
	if res.OpenFailed() {
		delay = s.cfg.OpenFailureCooldown
	}

	s.logger.Debug().Str("job", e.job.ID).Dur("cooldown", delay).Msg("cooling down")
	time.AfterFunc(delay, s.release)
}

// execute shields the scheduler from a panicking runner.
func (s *Scheduler) execute(j job.Job) (res job.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("job", j.ID).Interface("panic", r).Msg("runner panicked")
			res = job.Failure(j, job.StateRendering, fmt.Errorf("runner panic: %v", r))
		}
	}()
	return s.runner.Execute(s.ctx, j)
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.busy = false
	s.current = nil
	if len(s.queue) == 0 && s.drained != nil {
		close(s.drained)
		s.drained = nil
	}
	s.mu.Unlock()

	s.advance()
}

// Status returns a snapshot of the queue.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.Busy = s.busy
	st.Pending = len(s.queue)
	st.Closed = s.closed
	if s.current != nil {
		st.Current = s.current.job.ID
	}
	return st
}

// Shutdown stops accepting jobs and waits until every queued job ran. If ctx
// ends first, jobs still queued are resolved with ErrClosed; a running job is
// left to finish on its own.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	if !s.busy && len(s.queue) == 0 {
		s.mu.Unlock()
		s.cancel()
		return nil
	}
	if s.drained == nil {
		s.drained = make(chan struct{})
	}
	drained := s.drained
	s.mu.Unlock()

	s.logger.Info().Msg("waiting for queued jobs")

	select {
	case <-drained:
		s.cancel()
		return nil
	case <-ctx.Done():
	}

	s.cancel()

	s.mu.Lock()
	dropped := s.queue
	s.queue = nil
	s.stats.Failed += uint64(len(dropped))
	s.mu.Unlock()

	for _, e := range dropped {
		e.handle.resolve(job.Failure(e.job, job.StateQueued, ErrClosed))
	}
	if len(dropped) > 0 {
		s.logger.Warn().Int("dropped", len(dropped)).Msg("shutdown timed out, queued jobs dropped")
	}
	return ctx.Err()
}

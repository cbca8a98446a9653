// Package cron runs the periodic index rebuild on a cron schedule.
package cron

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultTimeout is the hard deadline for a single scheduled run.
const DefaultTimeout = 30 * time.Minute

// specParser accepts the seconds-first form the scheduler is built with.
var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeSpec converts a standard 5-field expression to the 6-field form
// used internally by prefixing a zero seconds field. Other input is returned
// trimmed.
func NormalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if len(strings.Fields(spec)) == 5 {
		return "0 " + spec
	}
	return spec
}

// ParseSpec validates a 5-field, 6-field or descriptor (@every 1h, @daily)
// expression.
func ParseSpec(spec string) (cron.Schedule, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, &InvalidScheduleError{Schedule: spec, Message: "empty expression"}
	}
	sched, err := specParser.Parse(NormalizeSpec(spec))
	if err != nil {
		return nil, &InvalidScheduleError{Schedule: spec, Message: err.Error()}
	}
	return sched, nil
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Name identifies the job in logs and errors. Defaults to "rebuild".
	Name     string
	Spec     string
	Location *time.Location
	// Run performs one job execution.
	Run     func(ctx context.Context) error
	Retry   RetryPolicy
	Timeout time.Duration
	Logger  zerolog.Logger
}

// Scheduler runs a single job on a cron schedule. A tick that fires while the
// previous run is still active is skipped.
type Scheduler struct {
	name    string
	spec    string
	run     func(ctx context.Context) error
	retry   RetryPolicy
	timeout time.Duration
	logger  zerolog.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	mu      sync.RWMutex
	running bool

	executing atomic.Bool
	wg        sync.WaitGroup
}

// NewScheduler validates the schedule and creates a stopped Scheduler.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Run == nil {
		return nil, errors.New("cron: run function is required")
	}
	if _, err := ParseSpec(opts.Spec); err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = "rebuild"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	logger := opts.Logger.With().Str("job_name", opts.Name).Logger()
	return &Scheduler{
		name:    opts.Name,
		spec:    NormalizeSpec(opts.Spec),
		run:     opts.Run,
		retry:   opts.Retry,
		timeout: opts.Timeout,
		logger:  logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLogger{logger}),
		),
	}, nil
}

// Start registers the job and starts ticking.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSchedulerRunning
	}

	if s.entry == 0 {
		id, err := s.cron.AddFunc(s.spec, s.tick)
		if err != nil {
			return &InvalidScheduleError{Schedule: s.spec, Message: err.Error()}
		}
		s.entry = id
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.spec).Msg("scheduler started")
	return nil
}

// Stop stops scheduling new runs. The returned context is done once any
// active run has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	cronCtx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()

	s.logger.Info().Msg("scheduler stopped")
	return ctx
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Executing reports whether a run is in progress.
func (s *Scheduler) Executing() bool {
	return s.executing.Load()
}

// NextRun returns the next scheduled run time.
func (s *Scheduler) NextRun() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.running || s.entry == 0 {
		return time.Time{}, false
	}
	entry := s.cron.Entry(s.entry)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// RunNow executes the job immediately, outside the schedule. It returns
// ErrJobRunning if a run is already active.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.executing.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer s.executing.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	return s.execute(ctx)
}

// tick is the cron callback.
func (s *Scheduler) tick() {
	if !s.executing.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("skipping overlapping execution, previous run still active")
		return
	}
	defer s.executing.Store(false)

	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.execute(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("scheduled execution failed")
	}
}

// execute runs the job with retries under the hard timeout.
func (s *Scheduler) execute(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	s.logger.Info().Msg("executing job")

	retries, err := s.retry.Do(ctx, s.run)
	if err != nil {
		return &ExecutionFailedError{JobName: s.name, RetryCount: retries, Cause: err}
	}

	s.logger.Info().
		Int("retries", retries).
		Dur("duration", time.Since(start)).
		Msg("job execution completed")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

/*
scheduler.go - Daily grant and expiry jobs

PURPOSE:
  Runs the two daily jobs of the leave engine:
  - expire (default 00:00): zero every lot whose expiry has passed
  - grant  (default 23:59): generate lots for employees whose next anchor
    is tomorrow, so the lot exists when the day starts

DESIGN:
  - One goroutine sleeps until the earliest next job time
  - Times are wall-clock HH:MM in the configured timezone
  - The clock and timer are injectable for tests
  - Each run takes a distributed lock (Redis) so only one replica works;
    without Redis a no-op lock is used
  - RunExpire/RunGrant are the manual triggers and return real counts

USAGE:
  s := NewScheduler(generator, sweeper, SchedulerOptions{...}, logger)
  s.Start(ctx)
  // ... later
  s.Stop()

SEE ALSO:
  - vacation/generator.go: GenerateDue
  - vacation/sweeper.go: ExpireLots
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/yukyu/generic"
	"github.com/warp/yukyu/metrics"
	"github.com/warp/yukyu/vacation"
)

const (
	JobExpire = "expire"
	JobGrant  = "grant"
)

// Clock is wall-clock HH:MM.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// next returns the first time strictly after now at c in loc.
func (c Clock) next(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	t := time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, 0, 0, loc)
	if !t.After(local) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

type SchedulerOptions struct {
	ExpireAt Clock
	GrantAt  Clock
	Location *time.Location
	LockTTL  time.Duration
	Locker   Locker
	Metrics  metrics.Provider
}

// JobStatus is the last outcome of one job.
type JobStatus struct {
	Name         string        `json:"name"`
	At           string        `json:"at"`
	NextRun      time.Time     `json:"nextRun"`
	LastRun      *time.Time    `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDurationNs,omitempty"`
	LastCount    int           `json:"lastCount"`
	LastError    string        `json:"lastError,omitempty"`
	Runs         int           `json:"runs"`
}

type SchedulerStatus struct {
	Running  bool        `json:"running"`
	Timezone string      `json:"timezone"`
	Jobs     []JobStatus `json:"jobs"`
}

// Scheduler runs the daily jobs.
type Scheduler struct {
	generator *vacation.LotGenerator
	sweeper   *vacation.Sweeper
	opts      SchedulerOptions
	logger    zerolog.Logger

	// Now and After are the clock and timer; tests replace them.
	Now   func() time.Time
	After func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	status  map[string]*JobStatus
}

func NewScheduler(generator *vacation.LotGenerator, sweeper *vacation.Sweeper, opts SchedulerOptions, logger zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = NoopLocker{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Scheduler{
		generator: generator,
		sweeper:   sweeper,
		opts:      opts,
		logger:    logger.With().Str("component", "scheduler").Logger(),
		Now:       time.Now,
		After:     time.After,
		status: map[string]*JobStatus{
			JobExpire: {Name: JobExpire, At: opts.ExpireAt.String()},
			JobGrant:  {Name: JobGrant, At: opts.GrantAt.String()},
		},
	}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	go s.run(ctx, s.done)

	s.logger.Info().
		Str("expire_at", s.opts.ExpireAt.String()).
		Str("grant_at", s.opts.GrantAt.String()).
		Str("timezone", s.opts.Location.String()).
		Msg("scheduler started")
}

// Stop cancels the loop and waits for an in-flight job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := s.Now()
		nextExpire := s.opts.ExpireAt.next(now, s.opts.Location)
		nextGrant := s.opts.GrantAt.next(now, s.opts.Location)
		s.setNext(nextExpire, nextGrant)

		job, at := JobExpire, nextExpire
		if nextGrant.Before(nextExpire) {
			job, at = JobGrant, nextGrant
		}

		select {
		case <-ctx.Done():
			return
		case <-s.After(at.Sub(now)):
		}

		switch job {
		case JobExpire:
			_, _ = s.RunExpire(ctx)
		case JobGrant:
			_, _ = s.RunGrant(ctx)
		}
	}
}

func (s *Scheduler) setNext(expire, grant time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[JobExpire].NextRun = expire
	s.status[JobGrant].NextRun = grant
}

// today is the scheduler's calendar day in its timezone.
func (s *Scheduler) today() generic.TimePoint {
	return generic.FromTime(s.Now().In(s.opts.Location))
}

// RunExpire zeroes lots that expired before today and returns how many.
func (s *Scheduler) RunExpire(ctx context.Context) (int, error) {
	var n int
	err := s.runJob(ctx, JobExpire, func(ctx context.Context) (int, error) {
		var err error
		n, err = s.sweeper.ExpireLots(ctx, s.today())
		s.opts.Metrics.AddLotsExpired(n)
		return n, err
	})
	return n, err
}

// RunGrant generates lots for employees whose next anchor is tomorrow.
func (s *Scheduler) RunGrant(ctx context.Context) (vacation.BatchResult, error) {
	var batch vacation.BatchResult
	err := s.runJob(ctx, JobGrant, func(ctx context.Context) (int, error) {
		var err error
		batch, err = s.generator.GenerateDue(ctx, s.today())
		s.opts.Metrics.AddLotsGenerated(batch.Generated)
		return batch.Generated, err
	})
	return batch, err
}

func (s *Scheduler) runJob(ctx context.Context, job string, fn func(context.Context) (int, error)) error {
	release, err := s.opts.Locker.Obtain(ctx, "yukyu:job:"+job, s.opts.LockTTL)
	if errors.Is(err, ErrJobLocked) {
		s.logger.Info().Str("job", job).Msg("job locked by another instance, skipping")
		return err
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job", job).Msg("failed to obtain job lock")
		return fmt.Errorf("obtain %s lock: %w", job, err)
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn().Err(rerr).Str("job", job).Msg("failed to release job lock")
		}
	}()

	start := s.Now()
	count, err := fn(ctx)
	elapsed := s.Now().Sub(start)
	s.opts.Metrics.ObserveJob(job, elapsed, err)

	s.mu.Lock()
	st := s.status[job]
	st.LastRun = &start
	st.LastDuration = elapsed
	st.LastCount = count
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	st.Runs++
	s.mu.Unlock()

	evt := s.logger.Info()
	if err != nil {
		evt = s.logger.Error().Err(err)
	}
	evt.Str("job", job).Int("count", count).Dur("elapsed", elapsed).Msg("job finished")
	return err
}

// Status reports whether the loop runs and each job's last outcome.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := SchedulerStatus{Running: s.running, Timezone: s.opts.Location.String()}
	for _, name := range []string{JobExpire, JobGrant} {
		st := *s.status[name]
		if st.NextRun.IsZero() {
			clock := s.opts.ExpireAt
			if name == JobGrant {
				clock = s.opts.GrantAt
			}
			st.NextRun = clock.next(s.Now(), s.opts.Location)
		}
		out.Jobs = append(out.Jobs, st)
	}
	return out
}

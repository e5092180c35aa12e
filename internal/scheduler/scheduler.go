package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/shiftbot/internal/observability"
)

const (
	JobCreatePolls = "create_polls"
	JobClosePolls  = "close_polls"
	JobReminders   = "reminders"

	defaultJobTimeout = 2 * time.Minute
)

// Jobs is what the scheduler triggers.
type Jobs interface {
	CreateDailyPolls(ctx context.Context, now time.Time) error
	CloseExpiredPolls(ctx context.Context, now time.Time) error
	SendReminders(ctx context.Context, now time.Time) error
}

// Config holds cron expressions in the standard five-field format. An empty
// expression disables the job.
type Config struct {
	Location     *time.Location
	CreateSpec   string
	CloseSpec    string
	ReminderSpec string
	JobTimeout   time.Duration
}

type Scheduler struct {
	jobs   Jobs
	cfg    Config
	now    func() time.Time
	logger *log.Entry

	runMutex  sync.Mutex
	started   bool
	cron      *cron.Cron
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func New(jobs Jobs, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	return &Scheduler{
		jobs:   jobs,
		cfg:    cfg,
		now:    time.Now,
		logger: log.WithField("context", "scheduler"),
	}
}

// Start registers the cron triggers and runs one close pass right away, so
// polls that expired while the bot was down are closed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	triggers := []struct {
		name string
		spec string
		fn   func(context.Context, time.Time) error
	}{
		{JobCreatePolls, s.cfg.CreateSpec, s.jobs.CreateDailyPolls},
		{JobClosePolls, s.cfg.CloseSpec, s.jobs.CloseExpiredPolls},
		{JobReminders, s.cfg.ReminderSpec, s.jobs.SendReminders},
	}
	for _, trigger := range triggers {
		if trigger.spec == "" {
			s.logger.WithField("job", trigger.name).Info("job disabled")
			continue
		}
		if _, err := c.AddFunc(trigger.spec, func() {
			s.run(runCtx, trigger.name, trigger.fn)
		}); err != nil {
			cancel()
			return fmt.Errorf("schedule %s %q: %w", trigger.name, trigger.spec, err)
		}
		s.logger.WithField("job", trigger.name).WithField("spec", trigger.spec).Debug("job scheduled")
	}

	s.cron = c
	s.runCancel = cancel
	c.Start()

	if s.cfg.CloseSpec != "" {
		s.workersWg.Add(1)
		go func() {
			defer s.workersWg.Done()
			s.run(runCtx, JobClosePolls, s.jobs.CloseExpiredPolls)
		}()
	}

	s.started = true
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	c := s.cron
	cancel := s.runCancel
	s.runMutex.Unlock()

	cronDone := c.Stop()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-cronDone.Done()
		s.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Trigger runs a job immediately, outside of its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	switch name {
	case JobCreatePolls:
		return s.run(ctx, name, s.jobs.CreateDailyPolls)
	case JobClosePolls:
		return s.run(ctx, name, s.jobs.CloseExpiredPolls)
	case JobReminders:
		return s.run(ctx, name, s.jobs.SendReminders)
	default:
		return fmt.Errorf("unknown job %q", name)
	}
}

func (s *Scheduler) run(ctx context.Context, name string, fn func(context.Context, time.Time) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	logger := s.logger.WithField("job", name)
	started := time.Now()
	err := fn(ctx, s.now().In(s.cfg.Location))
	observability.RecordJob(name, err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("job canceled")
			return err
		}
		logger.WithField("error", err.Error()).Error("job failed")
		return err
	}
	logger.WithField("took", time.Since(started).String()).Trace("job done")
	return nil
}

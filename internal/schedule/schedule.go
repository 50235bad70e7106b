// Package schedule runs Jobs at fixed times, expressed as cron specifications with seconds.
package schedule

import (
	"context"
	"fmt"
	"github.com/robfig/cron/v3"
	"log/slog"
	"sync"
	"time"
)

// A Job runs Run each time Spec fires. Spec is a cron specification with a seconds field, e.g. "0 30 4 * * *".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs a fixed list of Jobs.
type Scheduler struct {
	jobs     []Job
	location *time.Location
	logger   *slog.Logger
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	lock     sync.RWMutex
}

// New returns a Scheduler for jobs. It returns an error if any job has an invalid Spec.
func New(location *time.Location, logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if location == nil {
		location = time.Local
	}
	for _, job := range jobs {
		if _, err := parser.Parse(job.Spec); err != nil {
			return nil, fmt.Errorf("job %s: invalid schedule %q: %w", job.Name, job.Spec, err)
		}
	}
	return &Scheduler{
		jobs:     jobs,
		location: location,
		logger:   logger,
		entries:  make(map[string]cron.EntryID),
	}, nil
}

// Run starts the jobs and runs them until ctx is canceled. On exit, it waits (for a limited time) for running jobs to
// complete.
func (s *Scheduler) Run(ctx context.Context) error {
	l := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)),
		cron.WithLogger(l),
	)
	s.lock.Lock()
	for _, job := range s.jobs {
		id, err := c.AddFunc(job.Spec, func() {
			s.logger.Debug("running job", "job", job.Name)
			job.Run(ctx)
		})
		if err != nil {
			s.lock.Unlock()
			return fmt.Errorf("job %s: %w", job.Name, err)
		}
		s.entries[job.Name] = id
	}
	s.cron = c
	s.lock.Unlock()

	s.logger.Debug("scheduler starting", "jobs", len(s.jobs))
	c.Start()
	<-ctx.Done()
	select {
	case <-c.Stop().Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn("timeout waiting for running jobs to complete")
	}
	s.logger.Debug("scheduler stopped")
	return nil
}

// Next returns the next time each job will run. It returns an empty map if the Scheduler is not running.
func (s *Scheduler) Next() map[string]time.Time {
	s.lock.RLock()
	defer s.lock.RUnlock()
	next := make(map[string]time.Time, len(s.entries))
	if s.cron == nil {
		return next
	}
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

var _ cron.Logger = cronLogger{}

type cronLogger struct {
	logger *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Error(msg, append(keysAndValues, "err", err)...)
}

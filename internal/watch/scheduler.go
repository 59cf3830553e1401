package watch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	derrors "git.home.luguber.info/inful/seqbuild/internal/errors"
)

// Scheduler wraps a gocron scheduler for periodic rebuilds.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, derrors.WatchFailed("create scheduler", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Every registers fn to run at interval. A run that is still in progress
// when the next tick fires causes that tick to be skipped.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) (string, error) {
	if interval <= 0 {
		return "", derrors.ValidationFailed("poll", fmt.Sprintf("interval must be positive, got %s", interval))
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", derrors.WatchFailed("schedule "+name, err)
	}
	slog.Debug("Scheduled periodic job", slog.String("name", name), slog.Duration("interval", interval))
	return job.ID().String(), nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

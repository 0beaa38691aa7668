package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/cipherhub/cipher-core/internal/memory"
)

// Scheduler manages cron jobs for memory maintenance
type Scheduler struct {
	cron   *cron.Cron
	engine *memory.DecayEngine
	users  []string
	logger *slog.Logger
}

// NewScheduler creates a scheduler running decay passes on the given
// cron spec for each known user
func NewScheduler(engine *memory.DecayEngine, users []string, spec string, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		engine: engine,
		users:  users,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.runDecay); err != nil {
		return nil, err
	}
	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "users", len(s.users))
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runDecay ages every known user's memory. Users decay independently;
// one failing user does not block the rest.
func (s *Scheduler) runDecay() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, user := range s.users {
		if _, err := s.engine.Decay(ctx, user); err != nil {
			s.logger.Warn("scheduled decay failed", "user", user, "error", err)
		}
	}
}

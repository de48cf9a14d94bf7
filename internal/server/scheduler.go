package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/the-answerai/mcp-server-salesforce/internal/config"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// sweepTimeout bounds one sweep run.
const sweepTimeout = 30 * time.Second

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
}

// NewScheduler schedules sweeper on spec, a cron expression or descriptor
// such as "@every 1m".
func NewScheduler(spec string, sweeper Sweeper) (*Scheduler, error) {
	if spec == "" {
		spec = config.DefaultSweepSchedule
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		sweeper: sweeper,
	}
	if _, err := s.cron.AddFunc(spec, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return s, nil
}

// Sweep runs one sweep immediately.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	states, tokens := s.sweeper.SweepExpired(ctx)
	if states > 0 || tokens > 0 {
		logging.Info("Scheduler", "Swept %d stale authorization attempts and %d expired tokens", states, tokens)
	}
}

// Start starts the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

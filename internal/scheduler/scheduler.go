package scheduler

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"wsd/internal/providers"
	"wsd/internal/ratelimit"
	"wsd/internal/registry"
	"wsd/internal/scheduler/interfaces"
	"wsd/internal/structures"
)

const (
	defaultSaveInterval  = 5 * time.Minute
	defaultSweepInterval = time.Minute
)

// Scheduler owns the background jobs: periodic registry saves and the rate
// entry sweep. Restore and Persist bracket the process lifetime.
type Scheduler struct {
	config   *structures.Config
	logger   providers.Logger
	registry registry.RegistryInterface
	sweeper  interfaces.Sweeper
	metrics  providers.MetricsProviderInterface
	cron     *gocron.Scheduler
	opsMu    sync.Mutex
}

func (s *Scheduler) Init() error {
	s.cron = gocron.NewScheduler(time.UTC)
	s.cron.SingletonModeAll()

	saveInterval := s.config.Persistence.SaveInterval
	if saveInterval <= 0 {
		saveInterval = defaultSaveInterval
	}
	sweepInterval := s.config.RateLimit.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	if _, err := s.cron.Every(saveInterval).WaitForSchedule().Do(s.save); err != nil {
		return err
	}
	if _, err := s.cron.Every(sweepInterval).WaitForSchedule().Do(s.sweep); err != nil {
		return err
	}

	s.cron.StartAsync()
	s.logger.Infof(providers.TypeApp, "Scheduler started: save every %s, sweep every %s", saveInterval, sweepInterval)
	return nil
}

func (s *Scheduler) save() {
	if err := s.Persist(); err != nil {
		return
	}
	s.logger.Debugf(providers.TypeApp, "Persisted channel registry to %s", s.config.Persistence.FilePath)
}

func (s *Scheduler) sweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		s.logger.Debugf(providers.TypeApp, "Swept %d idle rate entries", n)
	}
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Restore loads the registry file. Records read before a corrupt one are
// kept even when an error is returned.
func (s *Scheduler) Restore() error {
	if err := s.registry.Load(); err != nil {
		return err
	}
	s.logger.Infof(providers.TypeApp, "Restored %d channels from %s", s.registry.Len(), s.config.Persistence.FilePath)
	return nil
}

func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	start := time.Now()
	err := s.registry.Persist()
	s.metrics.ObservePersistenceDuration(time.Since(start))
	if err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting channel registry: %s", err)
		return err
	}
	return nil
}

func NewScheduler(config *structures.Config, logger providers.Logger, reg registry.RegistryInterface, limiter *ratelimit.Limiter, metrics providers.MetricsProviderInterface) interfaces.SchedulerInterface {
	return &Scheduler{
		config:   config,
		logger:   logger,
		registry: reg,
		sweeper:  limiter,
		metrics:  metrics,
	}
}

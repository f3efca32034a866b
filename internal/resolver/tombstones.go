// file: internal/resolver/tombstones.go

package resolver

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"fedgate/internal/logger"
	"fedgate/internal/metrics"
)

// Tombstones remembers actor IRIs that answered 410 Gone so later
// deliveries from the same actor fail without another fetch.
type Tombstones struct {
	mu        sync.RWMutex
	entries   map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewTombstones creates a registry that keeps entries for retention
func NewTombstones(retention time.Duration) *Tombstones {
	return &Tombstones{
		entries:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// Add records iri as gone
func (t *Tombstones) Add(iri string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.entries[iri] = t.now()
	t.mu.Unlock()
}

// Has reports whether iri is a live tombstone
func (t *Tombstones) Has(iri string) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	at, ok := t.entries[iri]
	if !ok {
		return false
	}
	return t.retention <= 0 || t.now().Sub(at) < t.retention
}

// Sweep removes expired tombstones and returns how many were removed
func (t *Tombstones) Sweep() int {
	if t == nil || t.retention <= 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for iri, at := range t.entries {
		if now.Sub(at) >= t.retention {
			delete(t.entries, iri)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked tombstones, expired or not
func (t *Tombstones) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// TombstoneSweeper runs Sweep on a cron schedule
type TombstoneSweeper struct {
	scheduler  gocron.Scheduler
	job        gocron.Job
	tombstones *Tombstones
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// NewTombstoneSweeper schedules sweeps of t using a standard five-field
// cron expression. The scheduler is not started until Start.
func NewTombstoneSweeper(t *Tombstones, schedule string, log *logger.Logger, m *metrics.Metrics) (*TombstoneSweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &TombstoneSweeper{
		scheduler:  scheduler,
		tombstones: t,
		logger:     log,
		metrics:    m,
	}

	job, err := scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(s.sweep),
		gocron.WithName("tombstone-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to schedule tombstone sweep %q: %w", schedule, err)
	}
	s.job = job

	return s, nil
}

func (s *TombstoneSweeper) sweep() {
	removed := s.tombstones.Sweep()
	remaining := s.tombstones.Len()
	s.metrics.SetTombstonesTracked(float64(remaining))
	if removed > 0 {
		s.logger.Info("swept expired tombstones", "removed", removed, "remaining", remaining)
	}
}

// Start begins running the schedule
func (s *TombstoneSweeper) Start() {
	s.logger.Debug("starting tombstone sweeper")
	s.scheduler.Start()
}

// RunNow triggers a sweep outside the schedule
func (s *TombstoneSweeper) RunNow() error {
	return s.job.RunNow()
}

// Stop shuts the scheduler down and waits for a running sweep
func (s *TombstoneSweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// Package monitor owns the per-domain scan scheduling: two independent
// cadences per enabled domain, jittered first runs, two daily sweeps, and
// the state-transition logic that feeds the notification batcher.
package monitor

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rakapra/domainwatch/internal/notify"
	"github.com/rakapra/domainwatch/internal/scan"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

const (
	maxGeneralJitter = 20 * time.Second
	maxRESTJitter    = 30 * time.Second

	// Daily sweeps start well after boot so they do not compete with the
	// initial per-domain scans.
	sweepStartDelay    = 5 * time.Minute
	contentSweepOffset = 10 * time.Second
	sweepInterval      = 24 * time.Hour
)

// Scheduler runs recurring checks for every enabled domain. Each domain
// owns two cancellable cadence loops; the scheduler maps domain ID to
// their handles and is the only component allowed to touch them.
type Scheduler struct {
	store   *store.Store
	scanner *scan.Scanner
	batcher *notify.Batcher
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	domains     map[string]*domainHandles
	sweepCancel context.CancelFunc
}

// domainHandles holds the cancellation handles and in-flight guards for one
// domain's two cadences.
type domainHandles struct {
	generalCancel context.CancelFunc
	restCancel    context.CancelFunc
	generalBusy   atomic.Bool
	restBusy      atomic.Bool
}

// NewScheduler creates a stopped scheduler. Call ScheduleAll to arm it.
func NewScheduler(st *store.Store, scanner *scan.Scanner, batcher *notify.Batcher, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   st,
		scanner: scanner,
		batcher: batcher,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		domains: make(map[string]*domainHandles),
	}
}

// ScheduleAll clears every existing per-domain timer, loads all enabled
// domains, and arms both cadences for each plus the two daily sweeps.
// Idempotent: safe to call repeatedly.
func (s *Scheduler) ScheduleAll(ctx context.Context) error {
	rows, err := s.store.ListEnabled(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for id, h := range s.domains {
		h.cancelBoth()
		delete(s.domains, id)
	}
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
	for i := range rows {
		s.scheduleLocked(&rows[i])
	}
	s.armSweepsLocked()
	s.mu.Unlock()

	s.logger.Info("scheduler armed", zap.Int("domains", len(rows)))
	return nil
}

// ScheduleOne arms (or re-arms) both cadences for a single domain. A
// disabled domain only has its existing timers cancelled.
func (s *Scheduler) ScheduleOne(d *store.Domain) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.domains[d.ID]; ok {
		h.cancelBoth()
		delete(s.domains, d.ID)
	}
	if !d.Enabled {
		return
	}
	s.scheduleLocked(d)
	s.logger.Info("domain rescheduled", zap.String("domain", d.Label))
}

// RescheduleOne is the lifecycle hook for create/update/enable-toggle.
func (s *Scheduler) RescheduleOne(d *store.Domain) {
	s.ScheduleOne(d)
}

// CancelOne cancels both cadences for a domain; used before delete or on
// disable. An in-flight tick is not aborted: it completes, persists its
// result, and no new timers fire.
func (s *Scheduler) CancelOne(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.domains[id]; ok {
		h.cancelBoth()
		delete(s.domains, id)
	}
}

// Stop cancels all timers and sweeps and waits for running loops to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	for id, h := range s.domains {
		h.cancelBoth()
		delete(s.domains, id)
	}
	if s.sweepCancel != nil {
		s.sweepCancel()
		s.sweepCancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// scheduleLocked arms both cadence loops for a domain. Caller holds s.mu.
func (s *Scheduler) scheduleLocked(d *store.Domain) {
	h := &domainHandles{}
	s.domains[d.ID] = h

	// Ticks run under the scheduler's own context, not the cadence's:
	// cancelling a domain stops its timers, while an in-flight tick
	// finishes and persists its result.
	generalCtx, generalCancel := context.WithCancel(s.ctx)
	h.generalCancel = generalCancel
	s.wg.Add(1)
	go s.cadenceLoop(generalCtx, clampInterval(d.CheckIntervalMinutes), maxGeneralJitter, func() {
		s.runGeneralTick(s.ctx, d.ID, &h.generalBusy)
	})

	restCtx, restCancel := context.WithCancel(s.ctx)
	h.restCancel = restCancel
	s.wg.Add(1)
	go s.cadenceLoop(restCtx, clampInterval(d.RESTIntervalMinutes), maxRESTJitter, func() {
		s.runRESTTick(s.ctx, d.ID, &h.restBusy)
	})
}

// cadenceLoop delays its first run by a uniform random jitter, then ticks
// on the interval until cancelled.
func (s *Scheduler) cadenceLoop(ctx context.Context, interval, maxJitter time.Duration, tick func()) {
	defer s.wg.Done()

	jitter := time.Duration(rand.Int64N(int64(maxJitter)))
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter):
	}
	tick()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// armSweepsLocked starts the daily registration and content sweeps. Caller
// holds s.mu.
func (s *Scheduler) armSweepsLocked() {
	sweepCtx, cancel := context.WithCancel(s.ctx)
	s.sweepCancel = cancel

	s.wg.Add(2)
	go s.sweepLoop(sweepCtx, sweepStartDelay, s.runRegistrationSweep)
	go s.sweepLoop(sweepCtx, sweepStartDelay+contentSweepOffset, s.runContentSweep)
}

func (s *Scheduler) sweepLoop(ctx context.Context, startDelay time.Duration, sweep func(context.Context)) {
	defer s.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(startDelay):
	}
	sweep(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx)
		}
	}
}

func (h *domainHandles) cancelBoth() {
	if h.generalCancel != nil {
		h.generalCancel()
	}
	if h.restCancel != nil {
		h.restCancel()
	}
}

func clampInterval(minutes int) time.Duration {
	if minutes < 1 {
		minutes = 1
	}
	return time.Duration(minutes) * time.Minute
}

package monitor

import (
	"context"
	"math"
	"time"

	"github.com/rakapra/domainwatch/internal/notify"
	"go.uber.org/zap"
)

// runRegistrationSweep queues REGISTRATION_EXPIRING for every enabled
// domain whose cached expiry falls within the warning window. Read-only
// over the store: no network lookups here.
func (s *Scheduler) runRegistrationSweep(ctx context.Context) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("registration sweep: load settings failed", zap.Error(err))
		return
	}
	if !settings.NotifyEnabled || !settings.TriggerRegistrationExpiring {
		return
	}

	domains, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("registration sweep: list domains failed", zap.Error(err))
		return
	}

	s.logger.Info("registration sweep started", zap.Int("warn_days", settings.RegistrationWarnDays))
	for i := range domains {
		d := &domains[i]
		if d.WhoisExpiry == nil {
			continue
		}
		daysLeft := int(math.Ceil(time.Until(*d.WhoisExpiry).Hours() / 24))
		if daysLeft > 0 && daysLeft <= settings.RegistrationWarnDays {
			s.batcher.Enqueue(ctx, notify.AlertRegistrationExpiring, notify.Entry{
				DomainID:    d.ID,
				Label:       d.Label,
				URL:         d.URL,
				WhoisExpiry: d.WhoisExpiry,
			})
		}
	}
}

// runContentSweep queues CONTENT_LOW for every enabled domain whose most
// recent stored result shows a resolved future-scheduled count at or below
// the threshold. Domains whose counts never resolved are skipped rather
// than alerted on.
func (s *Scheduler) runContentSweep(ctx context.Context) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.logger.Warn("content sweep: load settings failed", zap.Error(err))
		return
	}
	if !settings.NotifyEnabled || !settings.TriggerContentLow {
		return
	}

	domains, err := s.store.ListEnabled(ctx)
	if err != nil {
		s.logger.Warn("content sweep: list domains failed", zap.Error(err))
		return
	}

	s.logger.Info("content sweep started", zap.Int("threshold", settings.ContentLowThreshold))
	for i := range domains {
		d := &domains[i]
		latest, err := s.store.GetLatestResult(ctx, d.ID)
		if err != nil {
			s.logger.Warn("content sweep: load latest result failed", zap.String("domain", d.Label), zap.Error(err))
			continue
		}
		if latest == nil || latest.FutureCount == nil || latest.PostsCount == nil {
			continue
		}
		if *latest.FutureCount <= settings.ContentLowThreshold {
			s.batcher.Enqueue(ctx, notify.AlertContentLow, notify.Entry{
				DomainID:    d.ID,
				Label:       d.Label,
				URL:         d.URL,
				FutureCount: latest.FutureCount,
			})
		}
	}
}

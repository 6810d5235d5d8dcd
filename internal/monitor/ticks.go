package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rakapra/domainwatch/internal/metrics"
	"github.com/rakapra/domainwatch/internal/notify"
	"github.com/rakapra/domainwatch/internal/scan"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// runGeneralTick executes one reachability check for a domain: scan, detect
// transitions against the latest stored result, persist merged result,
// record the tick. Any failure is tick-local: logged and skipped.
func (s *Scheduler) runGeneralTick(ctx context.Context, id string, busy *atomic.Bool) {
	if !busy.CompareAndSwap(false, true) {
		s.logger.Warn("general tick still running, skipping", zap.String("domain_id", id))
		return
	}
	defer busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("general tick panicked", zap.String("domain_id", id), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.ScansTotal.WithLabelValues(string(store.KindGeneral), outcome).Inc()
		metrics.ScanDuration.WithLabelValues(string(store.KindGeneral)).Observe(time.Since(start).Seconds())
	}()

	d, err := s.store.GetDomain(ctx, id)
	if err != nil || d == nil || !d.Enabled {
		if err != nil {
			outcome = "error"
			s.logger.Warn("general tick: load domain failed", zap.String("domain_id", id), zap.Error(err))
		}
		return
	}

	latest, err := s.store.GetLatestResult(ctx, id)
	if err != nil {
		outcome = "error"
		s.logger.Warn("general tick: load latest result failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		outcome = "error"
		s.logger.Warn("general tick: load settings failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}

	homepage := s.scanner.ScanHomepage(ctx, d, settings)

	if typ, fire, cancelDown := generalAlert(latest, homepage.Online, settings); fire {
		if cancelDown && s.batcher.CancelMember(notify.AlertDown, d.ID) {
			s.logger.Info("pending DOWN notification cancelled, domain back online", zap.String("domain", d.Label))
		}
		s.batcher.Enqueue(ctx, typ, notify.Entry{DomainID: d.ID, Label: d.Label, URL: d.URL})
	}

	now := time.Now().UTC()
	merged := mergeGeneral(latest, homepage, d.ID, now)
	if _, err := s.store.InsertResult(ctx, merged); err != nil {
		outcome = "error"
		s.logger.Warn("general tick: persist result failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}
	if err := s.store.UpdateLastCheckTime(ctx, d.ID, store.KindGeneral, now); err != nil {
		s.logger.Warn("general tick: record check time failed", zap.String("domain", d.Label), zap.Error(err))
	}
	if homepage.Online != store.Up {
		outcome = "down"
	}

	s.logger.Info("homepage check",
		zap.String("domain", d.Label),
		zap.Int("online", int(homepage.Online)),
		zap.Intp("http_status", homepage.HomepageStatus),
		zap.Int64p("response_ms", homepage.ResponseTimeMs),
		zap.Bool("used_backup", homepage.UsedBackup),
	)
}

// mergeGeneral lays the homepage scan over the previous result, keeping the
// REST-cadence fields the general tick does not touch.
func mergeGeneral(prev *store.CheckResult, homepage scan.HomepageResult, domainID string, now time.Time) *store.CheckResult {
	merged := &store.CheckResult{DomainID: domainID, CheckedAt: now}
	if prev != nil {
		// Fields owned by the REST cadence carry forward unchanged.
		merged.RESTStatus = prev.RESTStatus
		merged.PostsCount = prev.PostsCount
		merged.FutureCount = prev.FutureCount
		merged.LastScheduledPost = prev.LastScheduledPost
		merged.SearchIndexCount = prev.SearchIndexCount
		merged.RESTFallback = prev.RESTFallback
	}
	merged.Online = homepage.Online
	merged.HomepageStatus = homepage.HomepageStatus
	merged.ResponseTimeMs = homepage.ResponseTimeMs
	merged.BotVerification = homepage.BotVerification
	merged.UsedBackup = homepage.UsedBackup
	merged.ErrorMessage = homepage.ErrorMessage
	merged.RawErrorBody = homepage.RawErrorBody
	return merged
}

// runRESTTick executes one content-API check for a domain.
func (s *Scheduler) runRESTTick(ctx context.Context, id string, busy *atomic.Bool) {
	if !busy.CompareAndSwap(false, true) {
		s.logger.Warn("REST tick still running, skipping", zap.String("domain_id", id))
		return
	}
	defer busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("REST tick panicked", zap.String("domain_id", id), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.ScansTotal.WithLabelValues(string(store.KindREST), outcome).Inc()
		metrics.ScanDuration.WithLabelValues(string(store.KindREST)).Observe(time.Since(start).Seconds())
	}()

	d, err := s.store.GetDomain(ctx, id)
	if err != nil || d == nil || !d.Enabled {
		if err != nil {
			outcome = "error"
			s.logger.Warn("REST tick: load domain failed", zap.String("domain_id", id), zap.Error(err))
		}
		return
	}

	restBase, err := scan.NormalizeRESTBase(d.RESTBase, d.URL)
	if err != nil {
		outcome = "error"
		s.logger.Warn("REST tick: bad site URL", zap.String("domain", d.Label), zap.Error(err))
		return
	}

	wp := s.scanner.CheckRESTStats(ctx, restBase, d.CMSUser, d.CMSSecret)

	latest, err := s.store.GetLatestResult(ctx, id)
	if err != nil {
		outcome = "error"
		s.logger.Warn("REST tick: load latest result failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		outcome = "error"
		s.logger.Warn("REST tick: load settings failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}

	connOK := statusOK(wp.HTTPStatus)
	fullySuccessful := connOK && wp.PostsCount != nil && wp.FutureCount != nil

	if typ, fire := restAlert(latest, fullySuccessful, settings); fire {
		s.batcher.Enqueue(ctx, typ, notify.Entry{DomainID: d.ID, Label: d.Label, URL: d.URL})
	}

	now := time.Now().UTC()
	merged := mergeREST(latest, wp, connOK, fullySuccessful, d.ID, now)
	if _, err := s.store.InsertResult(ctx, merged); err != nil {
		outcome = "error"
		s.logger.Warn("REST tick: persist result failed", zap.String("domain", d.Label), zap.Error(err))
		return
	}
	if err := s.store.UpdateLastCheckTime(ctx, d.ID, store.KindREST, now); err != nil {
		s.logger.Warn("REST tick: record check time failed", zap.String("domain", d.Label), zap.Error(err))
	}
	if !fullySuccessful {
		outcome = "incomplete"
	}

	s.logger.Info("REST check",
		zap.String("domain", d.Label),
		zap.Intp("posts", wp.PostsCount),
		zap.Intp("future", wp.FutureCount),
		zap.Intp("rest_status", wp.HTTPStatus),
		zap.Bool("fallback", wp.FallbackOccurred),
	)
}

// mergeREST lays the REST scan over the previous result. Counts update only
// when the new value resolved; the incomplete-data sentinel is stored when
// the connection succeeded but data is missing.
func mergeREST(prev *store.CheckResult, wp scan.RESTStats, connOK, fullySuccessful bool, domainID string, now time.Time) *store.CheckResult {
	merged := &store.CheckResult{DomainID: domainID, CheckedAt: now}
	if prev != nil {
		merged.Online = prev.Online
		merged.HomepageStatus = prev.HomepageStatus
		merged.ResponseTimeMs = prev.ResponseTimeMs
		merged.SearchIndexCount = prev.SearchIndexCount
		merged.UsedBackup = prev.UsedBackup
		merged.ErrorMessage = prev.ErrorMessage
		merged.RawErrorBody = prev.RawErrorBody
		merged.RESTStatus = prev.RESTStatus
		merged.PostsCount = prev.PostsCount
		merged.FutureCount = prev.FutureCount
		merged.LastScheduledPost = prev.LastScheduledPost
	}

	if wp.HTTPStatus != nil {
		status := *wp.HTTPStatus
		if connOK && !fullySuccessful {
			status = store.StatusIncompleteData
		}
		merged.RESTStatus = &status
	}
	if wp.PostsCount != nil {
		merged.PostsCount = wp.PostsCount
	}
	if wp.FutureCount != nil {
		merged.FutureCount = wp.FutureCount
		if *wp.FutureCount == 0 {
			merged.LastScheduledPost = nil
		} else {
			merged.LastScheduledPost = wp.LastScheduledPost
		}
	}

	prevBot := prev != nil && prev.BotVerification
	merged.BotVerification = prevBot || wp.Blocked
	merged.RESTFallback = wp.FallbackOccurred
	return merged
}

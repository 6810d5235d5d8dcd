package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rakapra/domainwatch/internal/scan"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// ScanNow runs the full pipeline for one domain outside the schedule, for
// manual or initial scans. withWhois additionally refreshes the cached
// registration data. The result is persisted like a scheduled tick's.
func (s *Scheduler) ScanNow(ctx context.Context, id string, withWhois bool) (*store.CheckResult, error) {
	d, err := s.store.GetDomain(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, fmt.Errorf("domain %s not found", id)
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	res := s.scanner.ScanDomain(ctx, d, settings, scan.Options{WithWhois: withWhois})

	if withWhois && (res.WhoisExpiry != nil || res.Nameservers != "") {
		if err := s.store.SetDomainWhois(ctx, d.ID, res.WhoisExpiry, res.Nameservers); err != nil {
			s.logger.Warn("manual scan: cache whois failed", zap.String("domain", d.Label), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	res.CheckResult.CheckedAt = now
	if _, err := s.store.InsertResult(ctx, &res.CheckResult); err != nil {
		return nil, err
	}
	if err := s.store.UpdateLastCheckTime(ctx, d.ID, store.KindGeneral, now); err != nil {
		s.logger.Warn("manual scan: record check time failed", zap.String("domain", d.Label), zap.Error(err))
	}

	s.logger.Info("manual scan completed",
		zap.String("domain", d.Label),
		zap.Int("online", int(res.Online)),
		zap.Bool("with_whois", withWhois),
	)
	return &res.CheckResult, nil
}

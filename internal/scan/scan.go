package scan

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// Options controls the optional pipeline stages for one invocation.
type Options struct {
	// WithWhois enables the registration-data lookup. It is reserved for
	// manual/initial scans and the daily sweep: the lookup is slow and
	// rate-sensitive, so scheduled ticks skip it.
	WithWhois bool
}

// Result is the composite outcome of a full pipeline run.
type Result struct {
	store.CheckResult

	WhoisExpiry *time.Time
	Nameservers string
}

// ScanDomain runs the full pipeline for one domain: reachability, then
// content-API stats, then enrichment. Stages fail independently; one
// stage's failure never blocks the others.
func (s *Scanner) ScanDomain(ctx context.Context, d *store.Domain, settings store.Settings, opts Options) *Result {
	hostname := ""
	if u, err := url.Parse(d.URL); err == nil {
		hostname = u.Hostname()
	}

	homepage := s.ScanHomepage(ctx, d, settings)

	var wp RESTStats
	if restBase, err := NormalizeRESTBase(d.RESTBase, d.URL); err == nil {
		wp = s.CheckRESTStats(ctx, restBase, d.CMSUser, d.CMSSecret)
	} else {
		wp.Blocked = true
		wp.BlockedReason = err.Error()
	}

	search := s.SearchIndexCount(ctx, hostname, d.SearchQuery)
	if search.Err != "" {
		s.logger.Debug("search-index lookup failed", zap.String("domain", d.Label), zap.String("error", search.Err))
	}

	var whois WhoisResult
	if opts.WithWhois {
		whois = s.WhoisInfo(ctx, hostname)
		if whois.Err != "" {
			s.logger.Warn("registration lookup failed", zap.String("domain", d.Label), zap.String("error", whois.Err))
		}
	}

	errorMessage := homepage.ErrorMessage
	if errorMessage == "" && homepage.Online != store.Up {
		errorMessage = fmt.Sprintf("HTTP homepage: %s, HTTP REST API: %s",
			statusText(homepage.HomepageStatus), statusText(wp.HTTPStatus))
	}

	lastScheduled := wp.LastScheduledPost
	if wp.FutureCount != nil && *wp.FutureCount == 0 {
		lastScheduled = nil
	}

	return &Result{
		CheckResult: store.CheckResult{
			DomainID:          d.ID,
			CheckedAt:         time.Now().UTC(),
			Online:            homepage.Online,
			HomepageStatus:    homepage.HomepageStatus,
			RESTStatus:        wp.HTTPStatus,
			ResponseTimeMs:    homepage.ResponseTimeMs,
			PostsCount:        wp.PostsCount,
			FutureCount:       wp.FutureCount,
			LastScheduledPost: lastScheduled,
			SearchIndexCount:  search.Count,
			BotVerification:   homepage.BotVerification || wp.Blocked,
			UsedBackup:        homepage.UsedBackup,
			RESTFallback:      wp.FallbackOccurred,
			ErrorMessage:      errorMessage,
			RawErrorBody:      homepage.RawErrorBody,
		},
		WhoisExpiry: whois.Expiry,
		Nameservers: whois.Nameservers,
	}
}

package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// OnlineCheck is the raw outcome of the reachability probe, before it is
// mapped onto the tri-state used by results.
type OnlineCheck struct {
	OK             bool
	HTTPStatus     int // 0 when the connection itself failed
	ResponseTimeMs int64
	BotDetected    bool
	BotReason      string
	RawBody        string
	UsedBackup     bool
}

// HomepageResult is Stage A's contribution to a check result.
type HomepageResult struct {
	Online          store.Reachability
	HomepageStatus  *int
	ResponseTimeMs  *int64
	BotVerification bool
	ErrorMessage    string
	RawErrorBody    string
	UsedBackup      bool
}

// CheckOnline probes the site URL. On failure, and only when the backup
// checker is enabled in settings, the verdict of the external backup
// reachability service is adopted instead.
func (s *Scanner) CheckOnline(ctx context.Context, siteURL string, settings store.Settings) OnlineCheck {
	start := time.Now()
	var check OnlineCheck

	resp, cancel, err := s.get(ctx, siteURL, map[string]string{"Accept": "text/html,*/*;q=0.9"}, homepageTimeout)
	if err != nil {
		check.HTTPStatus = 0
		check.RawBody = fmt.Sprintf("connection failed from monitoring host: %v", err)
	} else {
		check.HTTPStatus = resp.StatusCode
		check.OK = httpSuccess(resp.StatusCode)
		// Only read the body on failure; it is kept for diagnosis.
		if !check.OK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			check.RawBody = string(body)
		}
		resp.Body.Close()
		cancel()
	}

	if settings.UseBackupChecker && !check.OK {
		if backup := s.runBackupCheck(ctx, siteURL); backup != nil {
			check.UsedBackup = true
			check.HTTPStatus = backup.StatusCode
			check.OK = httpSuccess(backup.StatusCode)
			check.RawBody = fmt.Sprintf("[backup check] server responded with status %d (%s)", backup.StatusCode, backup.StatusText)
		}
	}

	check.BotDetected, check.BotReason = detectBotChallenge(check.RawBody)
	check.ResponseTimeMs = time.Since(start).Milliseconds()
	return check
}

type backupVerdict struct {
	StatusCode int    `json:"status_code"`
	StatusText string `json:"status_text"`
}

// runBackupCheck asks the external backup reachability service for its
// verdict on the URL. Returns nil when the service itself fails.
func (s *Scanner) runBackupCheck(ctx context.Context, siteURL string) *backupVerdict {
	reqURL := s.env.BackupCheckerURL + "?url=" + url.QueryEscape(siteURL)
	resp, cancel, err := s.get(ctx, reqURL, nil, backupTimeout)
	if err != nil {
		s.logger.Warn("backup checker unreachable", zap.String("url", siteURL), zap.Error(err))
		return nil
	}
	defer cancel()
	defer resp.Body.Close()

	if !httpSuccess(resp.StatusCode) {
		return nil
	}
	var v backupVerdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		s.logger.Warn("backup checker returned malformed body", zap.Error(err))
		return nil
	}
	return &v
}

// ScanHomepage runs Stage A and maps the probe onto the reachability
// tri-state with its narrative.
func (s *Scanner) ScanHomepage(ctx context.Context, d *store.Domain, settings store.Settings) HomepageResult {
	check := s.CheckOnline(ctx, d.URL, settings)

	var res HomepageResult
	res.ResponseTimeMs = &check.ResponseTimeMs
	res.BotVerification = check.BotDetected
	res.UsedBackup = check.UsedBackup
	if check.HTTPStatus != 0 {
		status := check.HTTPStatus
		res.HomepageStatus = &status
	}

	switch {
	case check.HTTPStatus == 401 || check.HTTPStatus == 403:
		res.Online = store.AccessDenied
		var lines []string
		if check.BotDetected {
			lines = append(lines, "bot verification detected")
			if check.BotReason != "" {
				lines = append(lines, "matched: "+check.BotReason)
			}
		} else {
			lines = append(lines,
				fmt.Sprintf("access denied (HTTP %d)", check.HTTPStatus),
				"the homepage may require authentication or the monitoring host is blocked by a firewall")
		}
		res.ErrorMessage = strings.Join(lines, "\n")

	case check.OK:
		res.Online = store.Up

	default:
		res.Online = store.Down
		var lines []string
		if check.BotDetected {
			lines = append(lines, "bot verification detected")
			if check.BotReason != "" {
				lines = append(lines, "matched: "+check.BotReason)
			}
		}
		lines = append(lines, "homepage check (2xx-3xx): DOWN")
		lines = append(lines, "HTTP homepage: "+statusText(res.HomepageStatus))
		if s.env.PingDiagnostics {
			lines = append(lines, s.pingDiagnostic(ctx, d.URL))
		}
		res.ErrorMessage = strings.Join(lines, "\n")
	}

	// Raw body is only retained when the check did not fully succeed.
	if res.Online != store.Up {
		res.RawErrorBody = check.RawBody
	}
	return res
}

// pingDiagnostic sends one ICMP echo to the site host to distinguish
// host-level from HTTP-level downtime. Purely informational.
func (s *Scanner) pingDiagnostic(ctx context.Context, siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil || u.Hostname() == "" {
		return "ICMP: not attempted"
	}

	pinger, err := probing.NewPinger(u.Hostname())
	if err != nil {
		return "ICMP: not attempted"
	}
	pinger.Count = 1
	pinger.Timeout = 3 * time.Second
	pinger.SetPrivileged(false)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := pinger.Run(); runErr != nil {
			s.logger.Debug("ping diagnostic failed", zap.String("host", u.Hostname()), zap.Error(runErr))
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		pinger.Stop()
		return "ICMP: not attempted"
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return fmt.Sprintf("ICMP: host responds to ping (%.0fms)", float64(stats.AvgRtt)/float64(time.Millisecond))
	}
	return "ICMP: no reply"
}

func statusText(status *int) string {
	if status == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *status)
}

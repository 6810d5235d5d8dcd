package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// wpDateLayout is the timestamp format the content API uses for post dates.
const wpDateLayout = "2006-01-02T15:04:05"

// RESTStats is Stage B's contribution: content counts and the REST API's
// health. Nil counts mean "not resolved".
type RESTStats struct {
	PostsCount        *int
	FutureCount       *int
	LastScheduledPost *time.Time
	HTTPStatus        *int
	Blocked           bool
	BlockedReason     string
	RawErrorBody      string
	FallbackOccurred  bool
}

// CheckRESTStats queries the content API for the published-post count and
// the nearest future-scheduled post. Credentials are tried first; when the
// authenticated attempt resolves neither count (or no credentials exist),
// the published count is retried unauthenticated. The future count needs
// authentication and stays nil on the fallback path.
func (s *Scanner) CheckRESTStats(ctx context.Context, restBase, user, appSecret string) RESTStats {
	var st RESTStats

	postsURL := restBase + "/wp/v2/posts?per_page=1&status=publish&_fields=id"
	futureURL := restBase + "/wp/v2/posts?per_page=1&status=future&orderby=date&order=desc&_fields=id,date"

	authed := user != "" && appSecret != ""
	if authed {
		headers := map[string]string{
			"Accept":        "application/json",
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+appSecret)),
		}

		s.fetchPublishedCount(ctx, postsURL, headers, &st, "")
		s.fetchFutureCount(ctx, futureURL, headers, &st)
	}

	authAttemptFailed := authed && st.PostsCount == nil && st.FutureCount == nil
	if authAttemptFailed || !authed {
		if authAttemptFailed {
			s.logger.Warn("authenticated REST check failed, retrying without auth", zap.String("base", restBase))
			st.FallbackOccurred = true
			// Reset the auth attempt's error state so it is not misreported.
			st.Blocked = false
			st.BlockedReason = ""
			st.RawErrorBody = ""
		}

		s.fetchPublishedCount(ctx, postsURL, map[string]string{"Accept": "application/json"}, &st, "public ")

		// Future-scheduled data needs authentication.
		st.FutureCount = nil
		st.LastScheduledPost = nil
	}

	return st
}

// fetchPublishedCount requests the published-post count. The total comes
// from the X-WP-Total response header. reasonPrefix tags failures from the
// unauthenticated path.
func (s *Scanner) fetchPublishedCount(ctx context.Context, reqURL string, headers map[string]string, st *RESTStats, reasonPrefix string) {
	resp, cancel, err := s.get(ctx, reqURL, headers, postsTimeout)
	if err != nil {
		st.Blocked = true
		st.BlockedReason = fmt.Sprintf("%sfetch-error: %v", reasonPrefix, err)
		return
	}
	defer cancel()
	defer resp.Body.Close()

	status := resp.StatusCode
	st.HTTPStatus = &status

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		count, _ := strconv.Atoi(resp.Header.Get("X-WP-Total"))
		st.PostsCount = &count
		return
	}

	st.Blocked = true
	st.BlockedReason = fmt.Sprintf("%sHTTP %d", reasonPrefix, resp.StatusCode)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	st.RawErrorBody = string(body)
	if bot, reason := detectBotChallenge(st.RawErrorBody); bot {
		if reason == "" {
			reason = "detected"
		}
		st.BlockedReason = "bot verification: " + reason
	}
}

// fetchFutureCount requests the nearest future-scheduled post. Failures are
// silently ignored; the count simply stays unresolved.
func (s *Scanner) fetchFutureCount(ctx context.Context, reqURL string, headers map[string]string, st *RESTStats) {
	resp, cancel, err := s.get(ctx, reqURL, headers, futureTimeout)
	if err != nil {
		return
	}
	defer cancel()
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	count, _ := strconv.Atoi(resp.Header.Get("X-WP-Total"))
	st.FutureCount = &count
	if count == 0 {
		return
	}

	var posts []struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&posts); err != nil {
		return
	}
	if len(posts) > 0 && posts[0].Date != "" {
		if ts, err := time.Parse(wpDateLayout, posts[0].Date); err == nil {
			st.LastScheduledPost = &ts
		}
	}
}

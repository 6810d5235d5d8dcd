package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
)

// SearchResult is the search-index presence lookup outcome.
type SearchResult struct {
	Count *int64
	Note  string // "no-key" when no API key is configured
	Err   string
}

// WhoisResult is the registration-data lookup outcome.
type WhoisResult struct {
	Expiry      *time.Time
	Nameservers string
	Err         string
}

// SearchIndexCount queries the keyed search API for the estimated number of
// indexed pages, using the custom query override when set and a
// site-restricted query otherwise. Fail-soft.
func (s *Scanner) SearchIndexCount(ctx context.Context, hostname, overrideQuery string) SearchResult {
	if s.env.SearchAPIKey == "" {
		return SearchResult{Note: "no-key"}
	}

	q := strings.TrimSpace(overrideQuery)
	if q == "" {
		q = "site:" + hostname
	}
	reqURL := s.env.SearchEndpoint + "?q=" + url.QueryEscape(q) + "&count=0"

	resp, cancel, err := s.get(ctx, reqURL, map[string]string{"Ocp-Apim-Subscription-Key": s.env.SearchAPIKey}, enrichTimeout)
	if err != nil {
		return SearchResult{Err: err.Error()}
	}
	defer cancel()
	defer resp.Body.Close()

	if !httpSuccess(resp.StatusCode) {
		return SearchResult{Err: fmt.Sprintf("search %d", resp.StatusCode)}
	}

	var payload struct {
		WebPages struct {
			TotalEstimatedMatches *int64 `json:"totalEstimatedMatches"`
		} `json:"webPages"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return SearchResult{Err: err.Error()}
	}
	return SearchResult{Count: payload.WebPages.TotalEstimatedMatches}
}

// WhoisInfo fetches registration data via RDAP: the expiry date (first event
// whose action is "expiration") and a comma-joined nameserver list. Lookups
// go through the scanner's rate limiter; the public RDAP service is slow
// and rate-sensitive.
func (s *Scanner) WhoisInfo(ctx context.Context, hostname string) WhoisResult {
	if err := s.rdapLim.Wait(ctx); err != nil {
		return WhoisResult{Err: err.Error()}
	}

	reqURL := s.env.RDAPEndpoint + "/domain/" + url.PathEscape(hostname)
	resp, cancel, err := s.get(ctx, reqURL, nil, enrichTimeout)
	if err != nil {
		return WhoisResult{Err: err.Error()}
	}
	defer cancel()
	defer resp.Body.Close()

	if !httpSuccess(resp.StatusCode) {
		return WhoisResult{Err: fmt.Sprintf("rdap %d", resp.StatusCode)}
	}

	var payload struct {
		Events []struct {
			EventAction string `json:"eventAction"`
			EventDate   string `json:"eventDate"`
		} `json:"events"`
		Nameservers []struct {
			LDHName string `json:"ldhName"`
		} `json:"nameservers"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return WhoisResult{Err: err.Error()}
	}

	var res WhoisResult
	for _, ev := range payload.Events {
		if strings.EqualFold(ev.EventAction, "expiration") {
			if ts, perr := time.Parse(time.RFC3339, ev.EventDate); perr == nil {
				res.Expiry = &ts
			}
			break
		}
	}

	var ns []string
	for _, n := range payload.Nameservers {
		if n.LDHName != "" {
			ns = append(ns, n.LDHName)
		}
	}
	res.Nameservers = strings.Join(ns, ", ")
	return res
}

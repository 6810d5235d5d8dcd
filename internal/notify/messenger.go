package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// ErrNotConfigured is returned when the notification channel is disabled or
// its configuration is incomplete.
var ErrNotConfigured = errors.New("notifications disabled or configuration incomplete")

// Messenger delivers one composed message through an external channel.
type Messenger interface {
	Send(ctx context.Context, message string) error
}

// Compile-time interface guard.
var _ Messenger = (*Gateway)(nil)

// Gateway sends messages through the HTTP messaging gateway configured in
// settings. Settings are loaded per send so channel edits apply immediately.
type Gateway struct {
	store  *store.Store
	client *http.Client
	logger *zap.Logger
}

// NewGateway creates a Gateway backed by the given store.
func NewGateway(st *store.Store, logger *zap.Logger) *Gateway {
	return &Gateway{
		store:  st,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type gatewayResponse struct {
	Status bool   `json:"status"`
	Msg    string `json:"msg"`
}

// Send delivers a message to the configured recipient. Returns
// ErrNotConfigured when the channel is disabled or incomplete.
func (g *Gateway) Send(ctx context.Context, message string) error {
	settings, err := g.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.NotifyEnabled || settings.NotifyEndpoint == "" || settings.NotifyAPIKey == "" ||
		settings.NotifySender == "" || settings.NotifyRecipient == "" {
		return ErrNotConfigured
	}

	endpoint, err := url.Parse(settings.NotifyEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("api_key", settings.NotifyAPIKey)
	q.Set("sender", normalizePhoneNumber(settings.NotifySender))
	q.Set("number", normalizePhoneNumber(settings.NotifyRecipient))
	q.Set("message", message)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	var gr gatewayResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&gr); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !gr.Status {
		msg := gr.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("gateway refused message: %s", msg)
	}

	g.logger.Info("notification sent", zap.String("recipient", normalizePhoneNumber(settings.NotifyRecipient)))
	return nil
}

// SendTest delivers a message immediately, bypassing batching. Used for
// connectivity verification from the admin surface.
func (g *Gateway) SendTest(ctx context.Context, message string) (bool, error) {
	if err := g.Send(ctx, message); err != nil {
		return false, err
	}
	return true, nil
}

// normalizePhoneNumber canonicalizes a phone number to the gateway's
// expected country-prefixed form.
func normalizePhoneNumber(number string) string {
	if number == "" {
		return ""
	}
	num := strings.TrimSpace(number)
	num = strings.NewReplacer("-", "", " ", "", "+", "").Replace(num)
	switch {
	case strings.HasPrefix(num, "0"):
		return "62" + num[1:]
	case strings.HasPrefix(num, "62"):
		return num
	default:
		return "62" + num
	}
}

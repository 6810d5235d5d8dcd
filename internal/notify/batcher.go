package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rakapra/domainwatch/internal/metrics"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

// SettingsFunc loads the current runtime settings. Loaded on each enqueue
// and flush so window and threshold edits take effect immediately.
type SettingsFunc func(ctx context.Context) store.Settings

// Batcher accumulates same-type events across domains during a sliding
// debounce window and emits one composed message per type per window.
//
// Each alert type is either empty or pending. Enqueue extends the pending
// deadline to a full window; CancelMember removes a domain from a pending
// batch before it flushes.
type Batcher struct {
	messenger Messenger
	settings  SettingsFunc
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[AlertType]*pendingBatch
}

type pendingBatch struct {
	entries  map[string]Entry // keyed by domain id
	timer    *time.Timer
	deadline time.Time
}

// NewBatcher creates a Batcher delivering through the given messenger.
func NewBatcher(messenger Messenger, settings SettingsFunc, logger *zap.Logger) *Batcher {
	return &Batcher{
		messenger: messenger,
		settings:  settings,
		logger:    logger,
		pending:   make(map[AlertType]*pendingBatch),
	}
}

// Enqueue inserts or updates the domain in the type's pending set and
// restarts the countdown, so the window slides on each new event.
func (b *Batcher) Enqueue(ctx context.Context, typ AlertType, entry Entry) {
	settings := b.settings(ctx)
	window := time.Duration(settings.DebounceMinutes) * time.Minute
	if window < 0 {
		window = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.pending[typ]
	if !ok {
		batch = &pendingBatch{entries: make(map[string]Entry)}
		b.pending[typ] = batch
	}
	batch.entries[entry.DomainID] = entry

	if batch.timer != nil {
		batch.timer.Stop()
	}
	batch.deadline = time.Now().Add(window)
	batch.timer = time.AfterFunc(window, func() { b.flush(typ) })

	b.logger.Info("notification queued",
		zap.String("type", string(typ)),
		zap.String("domain", entry.Label),
		zap.Duration("window", window),
	)
}

// CancelMember removes a domain from a pending batch of the given type.
// Reports whether the domain was queued. An emptied batch flushes as a
// no-op when its timer fires.
func (b *Batcher) CancelMember(typ AlertType, domainID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.pending[typ]
	if !ok {
		return false
	}
	if _, queued := batch.entries[domainID]; !queued {
		return false
	}
	delete(batch.entries, domainID)
	return true
}

// Pending returns the queued entries for a type. Intended for tests and
// admin introspection.
func (b *Batcher) Pending(typ AlertType) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch, ok := b.pending[typ]
	if !ok {
		return nil
	}
	entries := make([]Entry, 0, len(batch.entries))
	for _, e := range batch.entries {
		entries = append(entries, e)
	}
	return entries
}

// Stop cancels all outstanding countdowns without flushing.
func (b *Batcher) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for typ, batch := range b.pending {
		if batch.timer != nil {
			batch.timer.Stop()
		}
		delete(b.pending, typ)
	}
}

// flush composes and delivers one message for all entries queued under the
// type, then clears the queue. Delivery is fire-and-forget: a failure is
// logged and the batch is considered attempted.
func (b *Batcher) flush(typ AlertType) {
	b.mu.Lock()
	batch, ok := b.pending[typ]
	if !ok {
		b.mu.Unlock()
		return
	}
	// A countdown can fire just as an enqueue slides the window: Stop
	// reports false and this call still runs. Re-arm to the current
	// deadline instead of delivering early.
	if now := time.Now(); now.Before(batch.deadline) {
		batch.timer = time.AfterFunc(batch.deadline.Sub(now), func() { b.flush(typ) })
		b.mu.Unlock()
		return
	}
	delete(b.pending, typ)
	entries := make([]Entry, 0, len(batch.entries))
	for _, e := range batch.entries {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	message := ComposeMessage(typ, entries, b.settings(ctx))
	if message == "" {
		return
	}

	if err := b.messenger.Send(ctx, message); err != nil {
		outcome := "error"
		if errors.Is(err, ErrNotConfigured) {
			outcome = "skipped"
		}
		metrics.NotificationsTotal.WithLabelValues(string(typ), outcome).Inc()
		b.logger.Warn("notification delivery failed",
			zap.String("type", string(typ)),
			zap.Int("domains", len(entries)),
			zap.Error(err),
		)
		return
	}

	metrics.NotificationsTotal.WithLabelValues(string(typ), "sent").Inc()
	b.logger.Info("notification batch delivered",
		zap.String("type", string(typ)),
		zap.Int("domains", len(entries)),
	)
}

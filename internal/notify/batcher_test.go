package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []string
	err  error
	ch   chan string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{ch: make(chan string, 16)}
}

func (f *fakeMessenger) Send(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	f.ch <- message
	return nil
}

func (f *fakeMessenger) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func fixedSettings(debounceMinutes int) SettingsFunc {
	return func(ctx context.Context) store.Settings {
		st := store.DefaultSettings()
		st.DebounceMinutes = debounceMinutes
		return st
	}
}

// flushNow expires the type's deadline and flushes, standing in for the
// countdown firing at the end of the window.
func (b *Batcher) flushNow(typ AlertType) {
	b.mu.Lock()
	if batch, ok := b.pending[typ]; ok {
		if batch.timer != nil {
			batch.timer.Stop()
		}
		batch.deadline = time.Now()
	}
	b.mu.Unlock()
	b.flush(typ)
}

func TestBatcher_CoalescesIntoOneMessage(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Alpha", URL: "https://a.example"})
	b.Enqueue(ctx, AlertDown, Entry{DomainID: "b", Label: "Beta", URL: "https://b.example"})
	b.Enqueue(ctx, AlertDown, Entry{DomainID: "c", Label: "Gamma", URL: "https://c.example"})

	if got := len(b.Pending(AlertDown)); got != 3 {
		t.Fatalf("Pending() = %d entries, want 3", got)
	}

	b.flushNow(AlertDown)

	msgs := fm.messages()
	if len(msgs) != 1 {
		t.Fatalf("delivered %d messages, want 1 coalesced", len(msgs))
	}
	for _, label := range []string{"Alpha", "Beta", "Gamma"} {
		if !strings.Contains(msgs[0], label) {
			t.Errorf("message missing %s:\n%s", label, msgs[0])
		}
	}
	if !strings.Contains(msgs[0], "*3 domain(s)*") {
		t.Errorf("message missing count:\n%s", msgs[0])
	}
	if len(b.Pending(AlertDown)) != 0 {
		t.Error("queue not cleared after flush")
	}
}

func TestBatcher_RequeueReplacesEntry(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Old Label"})
	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "New Label"})

	pending := b.Pending(AlertDown)
	if len(pending) != 1 {
		t.Fatalf("Pending() = %d entries, want 1 per domain", len(pending))
	}
	if pending[0].Label != "New Label" {
		t.Errorf("entry label = %q, re-queue must replace", pending[0].Label)
	}
}

func TestBatcher_WindowSlidesOnEnqueue(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(2), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Alpha"})
	b.mu.Lock()
	first := b.pending[AlertDown].deadline
	b.mu.Unlock()

	time.Sleep(10 * time.Millisecond)
	b.Enqueue(ctx, AlertDown, Entry{DomainID: "b", Label: "Beta"})
	b.mu.Lock()
	second := b.pending[AlertDown].deadline
	b.mu.Unlock()

	if !second.After(first) {
		t.Errorf("deadline did not slide: first %v, second %v", first, second)
	}
}

func TestBatcher_StaleCountdownDoesNotDeliverEarly(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Alpha"})

	// A countdown that already fired when Enqueue slid the window still
	// calls flush. With the deadline an hour out it must not deliver.
	b.flush(AlertDown)

	if msgs := fm.messages(); len(msgs) != 0 {
		t.Fatalf("delivered %d messages before the window closed", len(msgs))
	}
	if got := len(b.Pending(AlertDown)); got != 1 {
		t.Fatalf("Pending() = %d entries after early fire, want 1", got)
	}

	// Once the deadline has passed the re-armed flush delivers normally.
	b.flushNow(AlertDown)
	if msgs := fm.messages(); len(msgs) != 1 {
		t.Fatalf("delivered %d messages, want 1", len(msgs))
	}
}

func TestBatcher_ZeroWindowFlushesImmediately(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(0), zap.NewNop())
	defer b.Stop()

	b.Enqueue(context.Background(), AlertBackOnline, Entry{DomainID: "a", Label: "Alpha"})

	select {
	case msg := <-fm.ch:
		if !strings.Contains(msg, "Alpha") {
			t.Errorf("message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("zero-minute window did not flush immediately")
	}
}

func TestBatcher_CancelMemberEmptiesBatch(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Alpha"})

	if !b.CancelMember(AlertDown, "a") {
		t.Fatal("CancelMember() = false for queued domain")
	}
	if b.CancelMember(AlertDown, "a") {
		t.Error("CancelMember() = true for already removed domain")
	}
	if b.CancelMember(AlertBackOnline, "a") {
		t.Error("CancelMember() = true for type with no batch")
	}

	// An emptied batch must flush as a no-op.
	b.flushNow(AlertDown)
	if msgs := fm.messages(); len(msgs) != 0 {
		t.Errorf("empty batch delivered %d messages", len(msgs))
	}
}

func TestBatcher_TypesBatchIndependently(t *testing.T) {
	fm := newFakeMessenger()
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()
	ctx := context.Background()

	b.Enqueue(ctx, AlertDown, Entry{DomainID: "a", Label: "Alpha"})
	b.Enqueue(ctx, AlertRESTError, Entry{DomainID: "a", Label: "Alpha"})

	b.flushNow(AlertDown)
	b.flushNow(AlertRESTError)

	msgs := fm.messages()
	if len(msgs) != 2 {
		t.Fatalf("delivered %d messages, want one per type", len(msgs))
	}
	if !strings.Contains(msgs[0], "DOWN") || !strings.Contains(msgs[1], "REST API") {
		t.Errorf("messages = %q", msgs)
	}
}

func TestBatcher_DeliveryFailureDropsBatch(t *testing.T) {
	fm := newFakeMessenger()
	fm.err = ErrNotConfigured
	b := NewBatcher(fm, fixedSettings(60), zap.NewNop())
	defer b.Stop()

	b.Enqueue(context.Background(), AlertDown, Entry{DomainID: "a", Label: "Alpha"})
	b.flushNow(AlertDown)

	// Fire-and-forget: the batch is spent even when delivery failed.
	if len(b.Pending(AlertDown)) != 0 {
		t.Error("failed batch still pending")
	}
}

package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rakapra/domainwatch/internal/config"
	"github.com/rakapra/domainwatch/internal/notify"
	"github.com/rakapra/domainwatch/internal/scan"
	"github.com/rakapra/domainwatch/internal/store"
	"go.uber.org/zap"
)

type dropMessenger struct{}

func (dropMessenger) Send(ctx context.Context, message string) error { return nil }

// newTestScheduler builds a scheduler over an in-memory store. No cadence
// loops are armed; tests invoke ticks and sweeps directly.
func newTestScheduler(t *testing.T) (*Scheduler, *store.Store, *notify.Batcher) {
	t.Helper()
	st, err := store.New(":memory:", nil)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	settingsFn := func(ctx context.Context) store.Settings {
		s, err := st.GetSettings(ctx)
		if err != nil {
			return store.DefaultSettings()
		}
		return s
	}
	batcher := notify.NewBatcher(dropMessenger{}, settingsFn, zap.NewNop())
	t.Cleanup(batcher.Stop)

	scanner := scan.NewScanner(&config.Env{}, zap.NewNop())
	sched := NewScheduler(st, scanner, batcher, zap.NewNop())
	t.Cleanup(sched.Stop)
	return sched, st, batcher
}

// saveTickSettings turns the backup checker off so tick tests hit only
// their own fake servers, and opens all triggers under test.
func saveTickSettings(t *testing.T, st *store.Store, mutate func(*store.Settings)) {
	t.Helper()
	s := store.DefaultSettings()
	s.UseBackupChecker = false
	s.NotifyEnabled = true
	if mutate != nil {
		mutate(&s)
	}
	if err := st.SaveSettings(context.Background(), s); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
}

func createTickDomain(t *testing.T, st *store.Store, url string) *store.Domain {
	t.Helper()
	d := &store.Domain{Label: "Tick Site", URL: url, CMSUser: "bot", CMSSecret: "app secret", Enabled: true}
	if err := st.CreateDomain(context.Background(), d); err != nil {
		t.Fatalf("CreateDomain() error = %v", err)
	}
	return d
}

func TestRunGeneralTick_DownTransition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sched, st, batcher := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, srv.URL)

	posts := 33
	if _, err := st.InsertResult(ctx, &store.CheckResult{
		DomainID: d.ID, CheckedAt: time.Now().UTC().Add(-time.Hour),
		Online: store.Up, PostsCount: &posts,
	}); err != nil {
		t.Fatalf("InsertResult() error = %v", err)
	}

	var busy atomic.Bool
	sched.runGeneralTick(ctx, d.ID, &busy)

	pending := batcher.Pending(notify.AlertDown)
	if len(pending) != 1 || pending[0].DomainID != d.ID {
		t.Errorf("Pending(DOWN) = %+v, want the domain queued", pending)
	}

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest.Online != store.Down {
		t.Errorf("Online = %v, want Down", latest.Online)
	}
	if latest.PostsCount == nil || *latest.PostsCount != posts {
		t.Errorf("PostsCount = %v, the reachability tick must not clobber content counts", latest.PostsCount)
	}

	got, err := st.GetDomain(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDomain() error = %v", err)
	}
	if got.LastGeneralCheckAt == nil {
		t.Error("LastGeneralCheckAt not recorded")
	}
}

func TestRunGeneralTick_BackOnlineCancelsPendingDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sched, st, batcher := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, srv.URL)

	if _, err := st.InsertResult(ctx, &store.CheckResult{
		DomainID: d.ID, CheckedAt: time.Now().UTC().Add(-time.Hour), Online: store.Down,
	}); err != nil {
		t.Fatalf("InsertResult() error = %v", err)
	}
	// A DOWN notification is still pending from the earlier failure.
	batcher.Enqueue(ctx, notify.AlertDown, notify.Entry{DomainID: d.ID, Label: d.Label})

	var busy atomic.Bool
	sched.runGeneralTick(ctx, d.ID, &busy)

	if pending := batcher.Pending(notify.AlertDown); len(pending) != 0 {
		t.Errorf("Pending(DOWN) = %+v, recovery must cancel the queued DOWN", pending)
	}
	if pending := batcher.Pending(notify.AlertBackOnline); len(pending) != 1 {
		t.Errorf("Pending(BACK_ONLINE) = %+v, want the recovery queued", pending)
	}
}

func TestRunGeneralTick_SkipsWhileBusy(t *testing.T) {
	sched, st, _ := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, "https://unused.example")

	var busy atomic.Bool
	busy.Store(true)
	sched.runGeneralTick(ctx, d.ID, &busy)

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest != nil {
		t.Errorf("a skipped tick persisted a result: %+v", latest)
	}
	if !busy.Load() {
		t.Error("skip path cleared the busy flag it does not own")
	}
}

func TestRunGeneralTick_DisabledDomainIgnored(t *testing.T) {
	sched, st, _ := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, "https://unused.example")
	d.Enabled = false
	if err := st.UpdateDomain(ctx, d); err != nil {
		t.Fatalf("UpdateDomain() error = %v", err)
	}

	var busy atomic.Bool
	sched.runGeneralTick(ctx, d.ID, &busy)

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest != nil {
		t.Errorf("disabled domain was scanned: %+v", latest)
	}
}

func TestRunRESTTick_RecoveryAndMerge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("status") {
		case "publish":
			w.Header().Set("X-WP-Total", "21")
			w.Write([]byte(`[{"id":1}]`))
		case "future":
			w.Header().Set("X-WP-Total", "4")
			w.Write([]byte(`[{"id":2,"date":"2026-09-20T07:00:00"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	sched, st, batcher := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, func(s *store.Settings) {
		s.TriggerRESTRecovered = true
	})
	d := createTickDomain(t, st, srv.URL)

	broken := store.StatusIncompleteData
	if _, err := st.InsertResult(ctx, &store.CheckResult{
		DomainID: d.ID, CheckedAt: time.Now().UTC().Add(-time.Hour),
		Online: store.Up, RESTStatus: &broken,
	}); err != nil {
		t.Fatalf("InsertResult() error = %v", err)
	}

	var busy atomic.Bool
	sched.runRESTTick(ctx, d.ID, &busy)

	if pending := batcher.Pending(notify.AlertRESTRecovered); len(pending) != 1 {
		t.Errorf("Pending(REST_RECOVERED) = %+v, want the recovery queued", pending)
	}

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest.RESTStatus == nil || *latest.RESTStatus != 200 {
		t.Errorf("RESTStatus = %v, want 200", latest.RESTStatus)
	}
	if latest.PostsCount == nil || *latest.PostsCount != 21 {
		t.Errorf("PostsCount = %v, want 21", latest.PostsCount)
	}
	if latest.FutureCount == nil || *latest.FutureCount != 4 {
		t.Errorf("FutureCount = %v, want 4", latest.FutureCount)
	}
	if latest.LastScheduledPost == nil {
		t.Error("LastScheduledPost not stored")
	}
	if latest.Online != store.Up {
		t.Errorf("Online = %v, the content tick must not clobber reachability", latest.Online)
	}

	got, err := st.GetDomain(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDomain() error = %v", err)
	}
	if got.LastRESTCheckAt == nil {
		t.Error("LastRESTCheckAt not recorded")
	}
}

func TestRunRESTTick_IncompleteDataSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") == "future" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("X-WP-Total", "21")
		w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	sched, st, _ := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, srv.URL)

	var busy atomic.Bool
	sched.runRESTTick(ctx, d.ID, &busy)

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest.RESTStatus == nil || *latest.RESTStatus != store.StatusIncompleteData {
		t.Errorf("RESTStatus = %v, want the incomplete-data sentinel", latest.RESTStatus)
	}
	if latest.PostsCount == nil || *latest.PostsCount != 21 {
		t.Errorf("PostsCount = %v, the resolved count must still be stored", latest.PostsCount)
	}
	if latest.FutureCount != nil {
		t.Errorf("FutureCount = %v, want nil", latest.FutureCount)
	}
}

func TestScanNow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("status") {
		case "publish":
			w.Header().Set("X-WP-Total", "8")
			w.Write([]byte(`[{"id":1}]`))
		case "future":
			w.Header().Set("X-WP-Total", "1")
			w.Write([]byte(`[{"id":2,"date":"2026-10-01T09:00:00"}]`))
		default:
			w.Write([]byte("<html>home</html>"))
		}
	}))
	defer srv.Close()

	sched, st, _ := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, srv.URL)

	res, err := sched.ScanNow(ctx, d.ID, false)
	if err != nil {
		t.Fatalf("ScanNow() error = %v", err)
	}
	if res.Online != store.Up {
		t.Errorf("Online = %v, want Up", res.Online)
	}
	if res.PostsCount == nil || *res.PostsCount != 8 {
		t.Errorf("PostsCount = %v, want 8", res.PostsCount)
	}

	latest, err := st.GetLatestResult(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if latest == nil || latest.Online != store.Up {
		t.Error("manual scan result was not persisted")
	}

	if _, err := sched.ScanNow(ctx, "no-such-domain", false); err == nil {
		t.Error("ScanNow() for unknown domain returned nil error")
	}
}

func TestCancelOne_InFlightTickPersists(t *testing.T) {
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		<-release
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sched, st, _ := newTestScheduler(t)
	ctx := context.Background()
	saveTickSettings(t, st, nil)
	d := createTickDomain(t, st, srv.URL)

	sched.ScheduleOne(d)
	sched.mu.Lock()
	h := sched.domains[d.ID]
	sched.mu.Unlock()
	if h == nil {
		t.Fatal("ScheduleOne() did not register the domain")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.runGeneralTick(sched.ctx, d.ID, &h.generalBusy)
	}()

	<-started
	sched.CancelOne(d.ID)
	close(release)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not finish")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		latest, err := st.GetLatestResult(ctx, d.ID)
		if err != nil {
			t.Fatalf("GetLatestResult() error = %v", err)
		}
		if latest != nil {
			if latest.Online != store.Up {
				t.Errorf("Online = %v, want Up", latest.Online)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("result from the in-flight tick was lost on cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

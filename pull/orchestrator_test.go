package pull

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pithecene-io/dredge/metrics"
	"github.com/pithecene-io/dredge/types"
)

// reportBehavior decides how the test server answers one request.
// attempt is the per-path arrival count, starting at 1.
type reportBehavior func(attempt int, w http.ResponseWriter, r *http.Request)

// reportServer serves CSV reports and counts request arrivals per
// (application, kind) path so tests can assert retry traffic.
type reportServer struct {
	*httptest.Server
	mu       sync.Mutex
	attempts map[string]int
}

// newReportServer starts a server with per-path behaviors keyed by
// "appID/kind". Paths without a behavior are served immediately.
func newReportServer(t *testing.T, behaviors map[string]reportBehavior) *reportServer {
	t.Helper()
	s := &reportServer{attempts: make(map[string]int)}

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app, kind := pathTarget(r.URL.Path)
		key := app + "/" + kind

		s.mu.Lock()
		s.attempts[key]++
		attempt := s.attempts[key]
		s.mu.Unlock()

		if behavior, ok := behaviors[key]; ok {
			behavior(attempt, w, r)
			return
		}
		serveCSV(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *reportServer) attemptCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[key]
}

// pathTarget extracts the application id and report kind from a request
// path of the form /raw-data/export/app/{app}/{kind}/v5.
func pathTarget(path string) (app, kind string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 3 {
		return "", ""
	}
	return segments[len(segments)-3], segments[len(segments)-2]
}

// serveCSV writes a small CSV body with the filename derived from the
// path. Connection reuse is disabled so a dropped connection in a later
// round is never transparently retried by the client transport.
func serveCSV(w http.ResponseWriter, r *http.Request) {
	app, kind := pathTarget(r.URL.Path)
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", app+"_"+kind+".csv"))
	fmt.Fprintf(w, "media_source,match_type\n%s,%s\n", app, kind)
}

// blockUntilGone parks the handler until the client gives up, producing
// a reference that times out rather than failing.
func blockUntilGone(_ int, _ http.ResponseWriter, r *http.Request) {
	<-r.Context().Done()
}

// dropConnection kills the connection without writing a response, so the
// client sees a transport error rather than an HTTP status.
func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

// orchFixture bundles one run's collaborators around a temp reports dir.
type orchFixture struct {
	dir       string
	collector *metrics.Collector
	logBuf    *bytes.Buffer
	orch      *Orchestrator
}

func newOrchFixture(t *testing.T, baseURL string, tune func(*Config)) *orchFixture {
	t.Helper()
	dir := t.TempDir()
	logBuf := &bytes.Buffer{}
	logger := newTestLogger(logBuf)
	collector := metrics.NewCollector("local", "local", "run-test")

	config := &Config{
		Targets:       BuildTargets("app.ios", "app.android", types.AllReportKinds(), testWindow()),
		BaseURL:       baseURL,
		RunMeta:       &types.RunMeta{RunID: "run-test", Environment: "local"},
		InitialWait:   2 * time.Second,
		DrainWait:     2 * time.Second,
		RetryInterval: 10 * time.Millisecond,
		MaxAttempts:   3,
		Dispatcher:    NewDispatcher(DispatcherConfig{Token: "test-token"}, logger, collector),
		Persister:     NewPersister(PersisterConfig{Dir: dir}, logger, collector),
		Collector:     collector,
		Logger:        logger,
	}
	if tune != nil {
		tune(config)
	}

	orch, err := NewOrchestrator(config)
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	return &orchFixture{dir: dir, collector: collector, logBuf: logBuf, orch: orch}
}

// savedFiles lists the filenames under the unprocessed reports dir.
func (f *orchFixture) savedFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(f.dir, UnprocessedDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("reading reports dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// findReference returns the disposition recorded for one target.
func findReference(t *testing.T, refs []types.ReferenceResult, appID string, kind types.ReportKind) types.ReferenceResult {
	t.Helper()
	for _, ref := range refs {
		if ref.AppID == appID && ref.Kind == kind {
			return ref
		}
	}
	t.Fatalf("no reference recorded for %s/%s", appID, kind)
	return types.ReferenceResult{}
}

func TestOrchestrator_AllResolvedFirstRound(t *testing.T) {
	server := newReportServer(t, nil)
	fixture := newOrchFixture(t, server.URL, nil)

	result, err := fixture.orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", result.Outcome)
	}
	if result.Message != "8 of 8 reports saved" {
		t.Errorf("message = %q, want 8 of 8 reports saved", result.Message)
	}
	if result.RetryRounds != 0 {
		t.Errorf("retry rounds = %d, want 0", result.RetryRounds)
	}
	if result.Totals.Saved != 8 || result.Totals.Failed != 0 || result.Totals.Unresolved != 0 {
		t.Errorf("totals = %+v, want 8 saved and nothing else", result.Totals)
	}
	if got := len(fixture.savedFiles(t)); got != 8 {
		t.Errorf("saved files = %d, want 8", got)
	}

	// References come back in dispatch order: iOS targets first, kinds in
	// declaration order, then Android.
	if len(result.References) != 8 {
		t.Fatalf("references = %d, want 8", len(result.References))
	}
	kinds := types.AllReportKinds()
	for i, ref := range result.References {
		wantApp, wantPlatform := "app.ios", types.PlatformIOS
		if i >= 4 {
			wantApp, wantPlatform = "app.android", types.PlatformAndroid
		}
		if ref.AppID != wantApp || ref.Platform != wantPlatform || ref.Kind != kinds[i%4] {
			t.Errorf("reference %d = %s/%s/%s, want %s/%s/%s",
				i, ref.AppID, ref.Platform, ref.Kind, wantApp, wantPlatform, kinds[i%4])
		}
		if ref.Status != types.ReferenceSaved {
			t.Errorf("reference %d status = %q, want saved", i, ref.Status)
		}
	}

	snap := fixture.collector.Snapshot()
	if snap.References != 8 || snap.Dispatched != 8 || snap.Completed != 8 || snap.Saved != 8 {
		t.Errorf("snapshot = %+v, want 8 across references/dispatched/completed/saved", snap)
	}
	if snap.BytesWritten != result.Totals.BytesWritten || snap.BytesWritten == 0 {
		t.Errorf("bytes written: snapshot %d vs totals %d, want equal and nonzero",
			snap.BytesWritten, result.Totals.BytesWritten)
	}
	if result.Window.FromParam() != testWindow().FromParam() {
		t.Errorf("window from = %q, want %q", result.Window.FromParam(), testWindow().FromParam())
	}
}

func TestOrchestrator_StragglersRetriedOnce(t *testing.T) {
	// Five targets stall on their first attempt and succeed on redispatch.
	stallFirst := func(attempt int, w http.ResponseWriter, r *http.Request) {
		if attempt == 1 {
			blockUntilGone(attempt, w, r)
			return
		}
		serveCSV(w, r)
	}
	server := newReportServer(t, map[string]reportBehavior{
		"app.ios/" + string(types.ReportKindInstalls):            stallFirst,
		"app.ios/" + string(types.ReportKindInAppEvents):         stallFirst,
		"app.ios/" + string(types.ReportKindOrganicInstalls):     stallFirst,
		"app.android/" + string(types.ReportKindInstalls):        stallFirst,
		"app.android/" + string(types.ReportKindOrganicInstalls): stallFirst,
	})
	fixture := newOrchFixture(t, server.URL, func(c *Config) {
		c.InitialWait = 500 * time.Millisecond
	})

	result, err := fixture.orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", result.Outcome)
	}
	if result.RetryRounds != 1 {
		t.Errorf("retry rounds = %d, want 1", result.RetryRounds)
	}
	if result.Totals.Saved != 8 {
		t.Errorf("saved = %d, want 8", result.Totals.Saved)
	}
	if got := len(fixture.savedFiles(t)); got != 8 {
		t.Errorf("saved files = %d, want 8", got)
	}

	snap := fixture.collector.Snapshot()
	if snap.RetryRounds != 1 || snap.RetriedRefs != 5 {
		t.Errorf("snapshot rounds=%d retried=%d, want 1 and 5", snap.RetryRounds, snap.RetriedRefs)
	}
	if snap.Dispatched != 13 {
		t.Errorf("dispatched = %d, want 13 (8 initial + 5 retried)", snap.Dispatched)
	}
}

func TestOrchestrator_ExhaustsRetryBudget(t *testing.T) {
	// Every target stalls on every attempt.
	stallAlways := map[string]reportBehavior{}
	for _, kind := range types.AllReportKinds() {
		stallAlways["app.ios/"+string(kind)] = blockUntilGone
		stallAlways["app.android/"+string(kind)] = blockUntilGone
	}
	server := newReportServer(t, stallAlways)
	fixture := newOrchFixture(t, server.URL, func(c *Config) {
		c.InitialWait = 100 * time.Millisecond
		c.DrainWait = 100 * time.Millisecond
	})

	result, err := fixture.orch.Execute(t.Context())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Execute error = %v, want ErrRetriesExhausted", err)
	}
	if result == nil {
		t.Fatal("exhausted run should still return a populated result")
	}

	if result.Outcome != types.OutcomeExhausted {
		t.Errorf("outcome = %q, want exhausted", result.Outcome)
	}
	if !strings.Contains(result.Message, "8 references unresolved after 3 attempts") {
		t.Errorf("message = %q, want unresolved-after-attempts text", result.Message)
	}
	if result.RetryRounds != 3 {
		t.Errorf("retry rounds = %d, want 3", result.RetryRounds)
	}
	if result.Totals.Unresolved != 8 || result.Totals.Saved != 0 {
		t.Errorf("totals = %+v, want 8 unresolved and 0 saved", result.Totals)
	}
	for i, ref := range result.References {
		if ref.Status != types.ReferenceUnresolved {
			t.Errorf("reference %d status = %q, want unresolved", i, ref.Status)
		}
	}
	if got := len(fixture.savedFiles(t)); got != 0 {
		t.Errorf("saved files = %d, want 0", got)
	}

	snap := fixture.collector.Snapshot()
	if snap.Dispatched != 32 {
		t.Errorf("dispatched = %d, want 32 (8 x 4 rounds)", snap.Dispatched)
	}
	if snap.RetriedRefs != 24 || snap.RetryRounds != 3 {
		t.Errorf("snapshot retried=%d rounds=%d, want 24 and 3", snap.RetriedRefs, snap.RetryRounds)
	}
	if snap.Unresolved != 8 {
		t.Errorf("snapshot unresolved = %d, want 8", snap.Unresolved)
	}
	if got := server.attemptCount("app.ios/" + string(types.ReportKindInstalls)); got != 4 {
		t.Errorf("server attempts = %d, want 4 (initial + 3 retries)", got)
	}
}

func TestOrchestrator_InterruptDuringInitialWait(t *testing.T) {
	stallAlways := map[string]reportBehavior{}
	for _, kind := range types.AllReportKinds() {
		stallAlways["app.ios/"+string(kind)] = blockUntilGone
		stallAlways["app.android/"+string(kind)] = blockUntilGone
	}
	server := newReportServer(t, stallAlways)
	fixture := newOrchFixture(t, server.URL, func(c *Config) {
		c.InitialWait = 5 * time.Second
	})

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(100*time.Millisecond, cancel)

	result, err := fixture.orch.Execute(ctx)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("Execute error = %v, want ErrInterrupted", err)
	}
	if result == nil {
		t.Fatal("interrupted run should still return a populated result")
	}

	if result.Outcome != types.OutcomeInterrupted {
		t.Errorf("outcome = %q, want interrupted", result.Outcome)
	}
	if result.Message != "run aborted by shutdown signal" {
		t.Errorf("message = %q", result.Message)
	}
	if result.RetryRounds != 0 {
		t.Errorf("retry rounds = %d, want 0", result.RetryRounds)
	}
	if result.Totals.Unresolved != 8 {
		t.Errorf("unresolved = %d, want 8", result.Totals.Unresolved)
	}
	if got := len(fixture.savedFiles(t)); got != 0 {
		t.Errorf("saved files = %d, want 0", got)
	}
}

func TestOrchestrator_FirstRoundFailureNotRetried(t *testing.T) {
	failKey := "app.ios/" + string(types.ReportKindInstalls)
	server := newReportServer(t, map[string]reportBehavior{
		failKey: func(_ int, w http.ResponseWriter, _ *http.Request) {
			dropConnection(w)
		},
	})
	fixture := newOrchFixture(t, server.URL, nil)

	result, err := fixture.orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	// A first-round failure is terminal: logged, recorded, never retried.
	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", result.Outcome)
	}
	if result.Message != "7 of 8 reports saved" {
		t.Errorf("message = %q, want 7 of 8 reports saved", result.Message)
	}
	if result.RetryRounds != 0 {
		t.Errorf("retry rounds = %d, want 0", result.RetryRounds)
	}
	if result.Totals.Saved != 7 || result.Totals.Failed != 1 {
		t.Errorf("totals = %+v, want 7 saved and 1 failed", result.Totals)
	}

	failedRef := findReference(t, result.References, "app.ios", types.ReportKindInstalls)
	if failedRef.Status != types.ReferenceFailed {
		t.Errorf("failed reference status = %q, want failed", failedRef.Status)
	}
	if failedRef.Error == "" {
		t.Error("failed reference should record the transport error")
	}

	if got := server.attemptCount(failKey); got != 1 {
		t.Errorf("server attempts for failed path = %d, want 1 (no retry)", got)
	}
	if got := len(fixture.savedFiles(t)); got != 7 {
		t.Errorf("saved files = %d, want 7", got)
	}
}

func TestOrchestrator_RetryRoundFailureRejoinsPending(t *testing.T) {
	// One target stalls, then drops the connection on redispatch, then
	// succeeds. The mid-retry failure must rejoin the pending set rather
	// than terminate the reference.
	flakyKey := "app.android/" + string(types.ReportKindInAppEvents)
	server := newReportServer(t, map[string]reportBehavior{
		flakyKey: func(attempt int, w http.ResponseWriter, r *http.Request) {
			switch attempt {
			case 1:
				blockUntilGone(attempt, w, r)
			case 2:
				dropConnection(w)
			default:
				serveCSV(w, r)
			}
		},
	})
	fixture := newOrchFixture(t, server.URL, func(c *Config) {
		c.InitialWait = 200 * time.Millisecond
	})

	result, err := fixture.orch.Execute(t.Context())
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", result.Outcome)
	}
	if result.RetryRounds != 2 {
		t.Errorf("retry rounds = %d, want 2", result.RetryRounds)
	}
	if result.Totals.Saved != 8 || result.Totals.Failed != 0 {
		t.Errorf("totals = %+v, want 8 saved and 0 failed", result.Totals)
	}

	flakyRef := findReference(t, result.References, "app.android", types.ReportKindInAppEvents)
	if flakyRef.Status != types.ReferenceSaved {
		t.Errorf("flaky reference status = %q, want saved after final attempt", flakyRef.Status)
	}

	// The transient failure shows up in the counters but not in the final
	// dispositions.
	snap := fixture.collector.Snapshot()
	if snap.Failed != 1 {
		t.Errorf("snapshot failed = %d, want 1 transient failure", snap.Failed)
	}
	if got := server.attemptCount(flakyKey); got != 3 {
		t.Errorf("server attempts for flaky path = %d, want 3", got)
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	logger := newTestLogger(bytes.NewBuffer(nil))
	dispatcher := NewDispatcher(DispatcherConfig{Token: "tok"}, logger, nil)
	persister := NewPersister(PersisterConfig{Dir: t.TempDir()}, logger, nil)

	valid := func() *Config {
		return &Config{
			Targets:    BuildTargets("app.ios", "", types.AllReportKinds(), testWindow()),
			BaseURL:    "https://example.test",
			RunMeta:    &types.RunMeta{RunID: "run-test"},
			Dispatcher: dispatcher,
			Persister:  persister,
			Logger:     logger,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "empty run id",
			mutate:  func(c *Config) { c.RunMeta = &types.RunMeta{} },
			wantErr: true,
		},
		{
			name:    "no targets",
			mutate:  func(c *Config) { c.Targets = nil },
			wantErr: true,
		},
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "missing dispatcher",
			mutate:  func(c *Config) { c.Dispatcher = nil },
			wantErr: true,
		},
		{
			name:    "missing persister",
			mutate:  func(c *Config) { c.Persister = nil },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			_, err := NewOrchestrator(config)
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

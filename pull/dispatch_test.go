package pull

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/dredge/log"
	"github.com/pithecene-io/dredge/types"
)

// newTestLogger returns a run logger writing JSON lines to w.
func newTestLogger(w io.Writer) *log.Logger {
	return log.NewLogger(&types.RunMeta{RunID: "run-test", Environment: "local"}, true).WithOutput(w)
}

func testRefs(baseURL string) []Reference {
	targets := BuildTargets("id123456", "com.example.app", types.AllReportKinds(), testWindow())
	return BuildReferences(baseURL, targets)
}

func TestDispatcher_Dispatch_FanOut(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Disposition", `attachment; filename="report.csv"`)
		_, _ = w.Write([]byte("a,b\n"))
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{Token: "test-token"}, newTestLogger(io.Discard), nil)
	refs := testRefs(server.URL)

	handles := d.Dispatch(t.Context(), refs)
	if len(handles) != len(refs) {
		t.Fatalf("Dispatch() returned %d handles for %d references", len(handles), len(refs))
	}

	for i, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("handle %d did not resolve", i)
		}

		out := h.Outcome()
		if !out.Completed() {
			t.Fatalf("handle %d outcome error: %v", i, out.Err)
		}
		if out.Ref.URL != refs[i].URL {
			t.Errorf("handle %d outcome ref = %q, want %q", i, out.Ref.URL, refs[i].URL)
		}
		_, _ = io.Copy(io.Discard, out.Response.Body)
		_ = out.Response.Body.Close()
	}

	if got := requests.Load(); got != int64(len(refs)) {
		t.Errorf("server saw %d requests, want %d", got, len(refs))
	}
}

func TestDispatcher_RequestHeaders(t *testing.T) {
	headerCh := make(chan http.Header, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerCh <- r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{Token: "secret-token"}, newTestLogger(io.Discard), nil)
	refs := testRefs(server.URL)[:1]

	handles := d.Dispatch(t.Context(), refs)
	<-handles[0].Done()

	header := <-headerCh
	if got, want := header.Get("Accept"), "text/csv"; got != want {
		t.Errorf("Accept = %q, want %q", got, want)
	}
	if got, want := header.Get("Authorization"), "Bearer secret-token"; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}

	out := handles[0].Outcome()
	if out.Response != nil {
		_, _ = io.Copy(io.Discard, out.Response.Body)
		_ = out.Response.Body.Close()
	}
}

func TestDispatcher_NonOKStatusStillCompletes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	d := NewDispatcher(DispatcherConfig{Token: "test-token"}, newTestLogger(io.Discard), nil)
	handles := d.Dispatch(t.Context(), testRefs(server.URL)[:1])
	<-handles[0].Done()

	out := handles[0].Outcome()
	if !out.Completed() {
		t.Fatalf("non-2xx exchange should complete, got error %v", out.Err)
	}
	if out.Response.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", out.Response.StatusCode, http.StatusForbidden)
	}
	_ = out.Response.Body.Close()
}

func TestDispatcher_TransportErrorResolvesFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	// Closed before dispatch: connection refused for every request.
	server.Close()

	d := NewDispatcher(DispatcherConfig{Token: "test-token"}, newTestLogger(io.Discard), nil)
	handles := d.Dispatch(t.Context(), testRefs(server.URL)[:1])

	select {
	case <-handles[0].Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handle did not resolve")
	}

	out := handles[0].Outcome()
	if out.Completed() {
		t.Fatal("outcome should carry a transport error")
	}
	if out.Err == nil {
		t.Fatal("outcome error should be set")
	}
}

func TestDispatcher_CancelMidFlight(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	d := NewDispatcher(DispatcherConfig{Token: "test-token"}, newTestLogger(io.Discard), nil)
	handles := d.Dispatch(t.Context(), testRefs(server.URL)[:1])

	h := handles[0]
	if h.Resolved() {
		t.Fatal("handle should still be in flight")
	}

	// Cancelling an in-flight request resolves it with a swallowed error.
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled handle did not resolve")
	}

	if h.Outcome().Completed() {
		t.Error("cancelled handle should not complete with a response")
	}
	if !h.Cancelled() {
		t.Error("Cancelled() should report true")
	}
}

func TestHandle_CancelIdempotent(t *testing.T) {
	var cancels atomic.Int64
	h := newHandle(Reference{URL: "https://example.test/r"}, func() {
		cancels.Add(1)
	})

	h.Cancel()
	h.Cancel()
	h.Cancel()

	if got := cancels.Load(); got != 1 {
		t.Errorf("underlying cancel ran %d times, want exactly 1", got)
	}
	if !h.Cancelled() {
		t.Error("Cancelled() should report true after Cancel")
	}
}

func TestHandle_ResolvedAndOutcome(t *testing.T) {
	h := newHandle(Reference{URL: "https://example.test/r"}, func() {})

	if h.Resolved() {
		t.Fatal("fresh handle should not be resolved")
	}
	if h.Outcome() != nil {
		t.Fatal("fresh handle should have nil outcome")
	}

	h.resolve(&Outcome{Ref: h.Ref(), Err: io.ErrUnexpectedEOF})

	if !h.Resolved() {
		t.Fatal("handle should be resolved")
	}
	if h.Outcome() == nil || h.Outcome().Completed() {
		t.Fatal("outcome should be a failure")
	}
}

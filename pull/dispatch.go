package pull

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pithecene-io/dredge/log"
	"github.com/pithecene-io/dredge/metrics"
)

// Default request timeouts, matching the provider's recommended budget.
const (
	// DefaultTotalTimeout bounds one request end to end, body read included.
	DefaultTotalTimeout = 10 * time.Second
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 6 * time.Second
)

// Outcome is the resolution of one in-flight request. A completed HTTP
// exchange of any status code carries a Response; only transport-level
// errors produce Err. Consumed exactly once.
type Outcome struct {
	// Ref is the reference the request was issued for.
	Ref Reference
	// Response is the completed HTTP response. Nil when Err is set.
	Response *http.Response
	// Err is the transport error. Nil when Response is set.
	Err error
}

// Completed reports whether the request finished with a response.
func (o *Outcome) Completed() bool {
	return o != nil && o.Err == nil
}

// Handle is one live in-flight request for exactly one Reference.
// It resolves exactly once into an Outcome and is cancellable exactly once;
// repeat Cancel calls are no-ops. A Reference may spawn many sequential
// handles across retry rounds but never more than one concurrently.
type Handle struct {
	ref        Reference
	cancel     context.CancelFunc
	done       chan struct{}
	outcome    *Outcome
	cancelOnce sync.Once
	cancelled  bool
	mu         sync.Mutex
}

func newHandle(ref Reference, cancel context.CancelFunc) *Handle {
	return &Handle{
		ref:    ref,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Ref returns the reference this handle was dispatched for.
func (h *Handle) Ref() Reference { return h.ref }

// Done returns a channel closed when the handle resolves.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Resolved reports whether the handle has resolved, without blocking.
func (h *Handle) Resolved() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Outcome returns the resolution, or nil if the handle is still pending.
func (h *Handle) Outcome() *Outcome {
	if !h.Resolved() {
		return nil
	}
	return h.outcome
}

// resolve records the outcome and marks the handle done.
// Called exactly once, from the request goroutine.
func (h *Handle) resolve(out *Outcome) {
	h.outcome = out
	close(h.done)
}

// Cancel aborts the underlying request. Idempotent: only the first call
// cancels. A cancellation mid-flight surfaces as a transport error on the
// request goroutine, where it is recorded and swallowed.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		h.cancel()
	})
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// DispatcherConfig configures the shared HTTP client and credentials.
type DispatcherConfig struct {
	// Token is the bearer token sent on every request.
	Token string
	// TotalTimeout bounds one request end to end. Zero means
	// DefaultTotalTimeout.
	TotalTimeout time.Duration
	// ConnectTimeout bounds connection establishment. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Dispatcher issues concurrent report requests. One shared client and
// header set serve every round of a run.
type Dispatcher struct {
	client    *http.Client
	header    http.Header
	logger    *log.Logger
	collector *metrics.Collector
}

// NewDispatcher creates a Dispatcher with the shared client and headers.
// The collector may be nil.
func NewDispatcher(config DispatcherConfig, logger *log.Logger, collector *metrics.Collector) *Dispatcher {
	total := config.TotalTimeout
	if total <= 0 {
		total = DefaultTotalTimeout
	}
	connect := config.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: connect,
		}).DialContext,
	}

	header := http.Header{}
	header.Set("Accept", "text/csv")
	header.Set("Authorization", "Bearer "+config.Token)

	return &Dispatcher{
		client: &http.Client{
			Timeout:   total,
			Transport: transport,
		},
		header:    header,
		logger:    logger,
		collector: collector,
	}
}

// Dispatch issues one request per reference and returns without waiting.
// Every handle derives its request context from ctx, so cancelling ctx
// aborts the whole round.
func (d *Dispatcher) Dispatch(ctx context.Context, refs []Reference) []*Handle {
	d.logger.Debug("dispatching references", map[string]any{
		"count": len(refs),
	})

	handles := make([]*Handle, 0, len(refs))
	for _, ref := range refs {
		reqCtx, cancel := context.WithCancel(ctx)
		h := newHandle(ref, cancel)
		handles = append(handles, h)
		d.collector.IncDispatched()

		go func() {
			req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, ref.URL, nil)
			if err != nil {
				h.resolve(&Outcome{Ref: ref, Err: err})
				return
			}
			req.Header = d.header.Clone()

			resp, err := d.client.Do(req)
			if err != nil {
				// Includes cancellation of an in-flight request; recorded
				// here and never raised further.
				h.resolve(&Outcome{Ref: ref, Err: err})
				return
			}
			h.resolve(&Outcome{Ref: ref, Response: resp})
		}()
	}
	return handles
}

package pull

import (
	"context"
	"time"
)

// Partition blocks until every handle resolves, the budget elapses, or ctx
// is cancelled, whichever comes first. It returns the handles that resolved
// and those still pending. The two slices are a disjoint cover of the
// input: every handle appears in exactly one of them.
//
// Pending handles are not cancelled here; they keep progressing and may be
// consumed by a later round.
func Partition(ctx context.Context, handles []*Handle, budget time.Duration) (done, pending []*Handle) {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	done = make([]*Handle, 0, len(handles))

	expired := false
	for _, h := range handles {
		if expired {
			// Budget gone; classify the rest without blocking. A handle
			// that resolved while we were waiting on an earlier one still
			// counts as done.
			if h.Resolved() {
				done = append(done, h)
			} else {
				pending = append(pending, h)
			}
			continue
		}

		select {
		case <-h.Done():
			done = append(done, h)
		case <-timer.C:
			expired = true
			if h.Resolved() {
				done = append(done, h)
			} else {
				pending = append(pending, h)
			}
		case <-ctx.Done():
			expired = true
			if h.Resolved() {
				done = append(done, h)
			} else {
				pending = append(pending, h)
			}
		}
	}
	return done, pending
}

package catalog

import (
	"context"
	"log/slog"
)

// ReloadRequest asks the reloader goroutine to rebuild the index.
// Done, when non-nil, receives the outcome and is then closed.
type ReloadRequest struct {
	Reason string
	Done   chan error
}

// Reloader serializes reload requests onto a single goroutine.
type Reloader struct {
	holder *Holder
	reqs   chan ReloadRequest
}

// NewReloader creates a reloader with a small request buffer.
func NewReloader(h *Holder) *Reloader {
	return &Reloader{holder: h, reqs: make(chan ReloadRequest, 4)}
}

// Request enqueues a reload without waiting. Returns false if the queue is full,
// in which case a pending request already covers it.
func (r *Reloader) Request(reason string) bool {
	select {
	case r.reqs <- ReloadRequest{Reason: reason}:
		return true
	default:
		return false
	}
}

// RequestAndWait enqueues a reload and waits for its result.
func (r *Reloader) RequestAndWait(ctx context.Context, reason string) error {
	done := make(chan error, 1)
	select {
	case r.reqs <- ReloadRequest{Reason: reason, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes requests until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-r.reqs:
			err := r.holder.Reload(ctx)
			if err != nil {
				slog.Warn("catalog reload failed", "reason", req.Reason, "error", err)
			}
			if req.Done != nil {
				req.Done <- err
				close(req.Done)
			}
		}
	}
}

// Package gchan contains context-aware channel helpers
// for talking to the engine's kernel goroutines.
package gchan

import (
	"context"
	"log/slog"
)

// SendC sends val on ch, returning false if ctx is cancelled first.
// The name is used to describe the send in the debug log on cancellation.
func SendC[T any](ctx context.Context, log *slog.Logger, ch chan<- T, val T, name string) bool {
	select {
	case <-ctx.Done():
		log.Debug("Context cancelled while sending", "op", name, "cause", context.Cause(ctx))
		return false
	case ch <- val:
		return true
	}
}

// RecvC receives from ch, returning false if ctx is cancelled first.
func RecvC[T any](ctx context.Context, log *slog.Logger, ch <-chan T, name string) (T, bool) {
	select {
	case <-ctx.Done():
		log.Debug("Context cancelled while receiving", "op", name, "cause", context.Cause(ctx))
		var zero T
		return zero, false
	case v := <-ch:
		return v, true
	}
}

// ReqResp sends req on reqCh and then waits for a value on respCh.
// The response channel should be 1-buffered
// so the responder never blocks if the requester gives up.
func ReqResp[Req, Resp any](
	ctx context.Context, log *slog.Logger,
	reqCh chan<- Req, req Req,
	respCh <-chan Resp,
	name string,
) (Resp, bool) {
	if !SendC(ctx, log, reqCh, req, name) {
		var zero Resp
		return zero, false
	}
	return RecvC(ctx, log, respCh, name)
}

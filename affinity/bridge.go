package affinity

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Bridge posts work to the execution context of one Looper.
//
// Post never blocks and never reports an error to the caller. Work posted
// from the bound context runs inline; work posted from anywhere else is
// queued on the Looper. Posts issued in order from one context run in that
// order on the target.
type Bridge struct {
	target atomic.Pointer[Looper]
	logger *slog.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBridgeLogger sets the logger of the Bridge.
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a Bridge bound to target.
// A nil target yields a Bridge on which every Post is a no-op.
func NewBridge(target *Looper, opts ...BridgeOption) *Bridge {
	b := &Bridge{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	if target != nil {
		b.target.Store(target)
	}
	return b
}

// Post runs w on the bound execution context.
//
// If the Bridge has no bound context (never bound, or detached after page
// teardown) w is dropped silently.
func (b *Bridge) Post(ctx context.Context, w Work) {
	if w == nil {
		return
	}
	target := b.target.Load()
	if target == nil {
		bridgePosts.WithLabelValues(pathDropped).Inc()
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if IsCurrent(ctx, target.ID()) {
		bridgePosts.WithLabelValues(pathInline).Inc()
		w(ctx)
		return
	}

	if !target.Enqueue(w) {
		bridgePosts.WithLabelValues(pathDropped).Inc()
		b.logger.Warn("affinity: looper closed, work discarded", "looper", string(target.ID()))
		return
	}
	bridgePosts.WithLabelValues(pathQueued).Inc()
}

// Detach clears the bound context. Subsequent posts are no-ops.
// Work already queued is not cancelled.
func (b *Bridge) Detach() {
	b.target.Store(nil)
}

// Bound reports whether the Bridge still has a bound context.
func (b *Bridge) Bound() bool {
	return b.target.Load() != nil
}

// Target returns the bound Looper, or nil once detached.
func (b *Bridge) Target() *Looper {
	return b.target.Load()
}

// Package affinity marshals work onto execution contexts.
//
// An execution context is a logical thread identity such as the UI thread or
// the script-runtime thread. Each context is served by a Looper: a single
// goroutine draining an ordered queue. A Bridge posts work to one Looper,
// running it inline when the caller already executes on that Looper.
//
// The identity of the calling context travels in a context.Context: work
// executed by a Looper receives a context tagged with the Looper's ID, so
// nested posts issued from inside that work take the inline path.
package affinity

import (
	"context"

	"github.com/google/uuid"
)

// ID identifies an execution context. IDs are compared for equality only.
type ID string

// Conventional execution contexts.
const (
	UI     ID = "ui"
	Script ID = "script"
)

// NewID returns a unique anonymous execution context ID.
func NewID() ID {
	return ID("looper-" + uuid.NewString())
}

// Work is a unit of work executed on an execution context.
// The context passed to Work carries the ID of the context running it.
type Work func(ctx context.Context)

type contextKey struct {
	name string
}

var currentKey = &contextKey{name: "execution_context"}

// WithContext returns a copy of ctx marked as running on id.
func WithContext(ctx context.Context, id ID) context.Context {
	return context.WithValue(ctx, currentKey, id)
}

// Current returns the execution context ctx is marked with.
func Current(ctx context.Context) (ID, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(currentKey).(ID)
	return id, ok
}

// IsCurrent reports whether ctx is marked as running on id.
func IsCurrent(ctx context.Context, id ID) bool {
	cur, ok := Current(ctx)
	return ok && cur == id
}

package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

// Handler serves one capability call.
type Handler func(ctx context.Context, call Call) (Result, error)

// Middleware is a function that wraps a Handler to add cross-cutting behavior.
// Middleware executes in FIFO order (first registered wraps first, onion model).
//
// Example usage:
//
//	tracing := func(next Handler) Handler {
//	    return func(ctx context.Context, call Call) (Result, error) {
//	        slog.Debug("invoking", "module", call.Module)
//	        return next(ctx, call)
//	    }
//	}
type Middleware func(next Handler) Handler

// ErrPanic marks a capability call that panicked.
var ErrPanic = errors.New("capability call panicked")

// PanicError carries the recovered value and stack of a panicking call.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError captures the current stack for a recovered value.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("capability call panicked: %v", e.Value)
}

// Is implements error matching for errors.Is() checks.
func (e *PanicError) Is(target error) bool {
	return target == ErrPanic
}

// chain wraps h with mws, the first middleware outermost.
func chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// PanicRecoveryMiddleware returns a middleware that converts panics into
// *PanicError results instead of crashing the caller.
func PanicRecoveryMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call Call) (res Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					pe := NewPanicError(r)
					logger.ErrorContext(ctx, "reactor: capability call panicked",
						"module", call.Module,
						"method", call.Method,
						"instance", call.InstanceID,
						"panic", fmt.Sprint(r))
					res, err = Result{}, pe
				}
			}()
			return next(ctx, call)
		}
	}
}

// LoggingMiddleware returns a middleware that logs capability invocations.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call Call) (Result, error) {
			start := time.Now()
			res, err := next(ctx, call)
			attrs := []any{
				"module", call.Module,
				"method", call.Method,
				"instance", call.InstanceID,
				"deferred", res.Deferred,
				"duration", time.Since(start),
			}
			if err != nil {
				logger.WarnContext(ctx, "reactor: capability call failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "reactor: capability call completed", attrs...)
			}
			return res, err
		}
	}
}

// MetricsMiddleware returns a middleware that counts invocations per module
// and outcome.
func MetricsMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call Call) (Result, error) {
			res, err := next(ctx, call)
			outcome := resultOK
			switch {
			case err != nil:
				outcome = resultError
			case res.Deferred:
				outcome = resultDeferred
			}
			invocations.WithLabelValues(call.Module, outcome).Inc()
			return res, err
		}
	}
}

package host

import (
	"log/slog"

	"github.com/reglet-dev/reactor-sdk/capability"
	reactorwazero "github.com/reglet-dev/reactor-sdk/wazero"
	"github.com/tetratelabs/wazero"
)

// Option defines a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithLogger sets the logger for the runtime and guest log records.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = logger
	}
}

// WithNativeCaller routes guest capability calls to caller.
func WithNativeCaller(caller reactorwazero.NativeCaller) Option {
	return func(r *Runtime) {
		r.caller = caller
	}
}

// WithCatalog checks the capability manifest exported by page modules
// against catalog before rendering.
func WithCatalog(catalog *capability.Catalog) Option {
	return func(r *Runtime) {
		r.catalog = catalog
	}
}

// WithHostFunction exports an additional host function to page modules.
func WithHostFunction(fn reactorwazero.HostFunction) Option {
	return func(r *Runtime) {
		r.extra = append(r.extra, fn)
	}
}

// WithCompilationCache configures the runtime with a compilation cache.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(r *Runtime) {
		r.cache = cache
	}
}

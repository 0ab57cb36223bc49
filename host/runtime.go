// Package host runs pages as WebAssembly modules.
//
// A Runtime is a plugin: bind it and every page it creates instantiates its
// own module from the script passed to Render. Page modules import the host
// functions of the "reactor" module and may export:
//
//	allocate(size i32) i32           required when the host passes input
//	manifest() i64                   JSON capability manifest
//	render(in i64) i64               CBOR RenderRequest
//	register_component(in i64) i64
//	invoke_callback(in i64) i64      CBOR CallbackRequest
//	fire_event(in i64) i64           CBOR EventRequest
//	set_context(in i64) i64          CBOR ContextRequest
//	unregister(in i64) i64
//
// Missing exports are skipped.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/reactor-sdk/capability"
	"github.com/reglet-dev/reactor-sdk/page"
	"github.com/reglet-dev/reactor-sdk/plugin"
	reactorwazero "github.com/reglet-dev/reactor-sdk/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Runtime hosts WebAssembly pages.
type Runtime struct {
	runtime wazero.Runtime
	logger  *slog.Logger
	caller  reactorwazero.NativeCaller
	catalog *capability.Catalog
	cache   wazero.CompilationCache
	extra   []reactorwazero.HostFunction
}

var _ plugin.Plugin = (*Runtime)(nil)

// NewRuntime creates a runtime with WASI and the host module instantiated.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	cfg := wazero.NewRuntimeConfig()
	if r.cache != nil {
		cfg = cfg.WithCompilationCache(r.cache)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	hostOpts := []reactorwazero.Option{
		reactorwazero.WithLogger(r.logger),
		reactorwazero.WithNativeCaller(r.caller),
	}
	for _, fn := range r.extra {
		hostOpts = append(hostOpts, reactorwazero.WithHostFunction(fn))
	}
	if err := reactorwazero.Register(ctx, rt, hostOpts...); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	r.runtime = rt
	return r, nil
}

// CreatePage returns a page that instantiates its module on Render.
func (r *Runtime) CreatePage(rt plugin.RuntimeHandle, instanceID string) page.Page {
	return &Page{
		runtime:    r,
		handle:     rt,
		instanceID: instanceID,
	}
}

// Close releases the runtime and every page module in it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

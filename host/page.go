package host

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/reglet-dev/reactor-sdk/page"
	"github.com/reglet-dev/reactor-sdk/parser"
	"github.com/reglet-dev/reactor-sdk/plugin"
	reactorwazero "github.com/reglet-dev/reactor-sdk/wazero"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// RenderRequest is the input of the render export.
type RenderRequest struct {
	InstanceID string `cbor:"instance_id"`
	Runtime    uint64 `cbor:"runtime"`
	InitData   string `cbor:"init_data,omitempty"`
}

// CallbackRequest is the input of the invoke_callback export.
type CallbackRequest struct {
	CallbackID string `cbor:"callback_id"`
	Args       string `cbor:"args"`
}

// EventRequest is the input of the fire_event export.
type EventRequest struct {
	Ref        string            `cbor:"ref"`
	Event      string            `cbor:"event"`
	Args       map[string]string `cbor:"args,omitempty"`
	DOMChanges string            `cbor:"dom_changes,omitempty"`
}

// ContextRequest is the input of the set_context export.
type ContextRequest struct {
	Handle int64 `cbor:"handle"`
}

// Page is one WebAssembly page. Its module exists between Render and
// Unregister; calls outside that window are dropped.
type Page struct {
	runtime    *Runtime
	handle     plugin.RuntimeHandle
	instanceID string

	mu     sync.Mutex
	module api.Module
	closed bool
}

var _ page.Page = (*Page)(nil)

// InstanceID returns the page instance ID.
func (p *Page) InstanceID() string { return p.instanceID }

// Loaded reports whether the page module is instantiated.
func (p *Page) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.module != nil
}

// Render instantiates script as the page module and calls its render export.
func (p *Page) Render(ctx context.Context, script, initData string) {
	ctx = reactorwazero.WithInstanceID(ctx, p.instanceID)

	p.mu.Lock()
	closed, loaded := p.closed, p.module != nil
	p.mu.Unlock()
	if closed {
		return
	}
	if loaded {
		p.runtime.logger.WarnContext(ctx, "host: page already rendered", "instance", p.instanceID)
		return
	}

	mod, err := p.load(ctx, []byte(script))
	if err != nil {
		p.runtime.logger.ErrorContext(ctx, "host: failed to load page module",
			"instance", p.instanceID, "error", err)
		return
	}

	p.mu.Lock()
	if p.closed || p.module != nil {
		p.mu.Unlock()
		_ = mod.Close(ctx)
		return
	}
	p.module = mod
	p.mu.Unlock()

	p.callModule(ctx, mod, "render", RenderRequest{
		InstanceID: p.instanceID,
		Runtime:    uint64(p.handle),
		InitData:   initData,
	})
}

// load compiles, instantiates and initializes the page module, then checks
// its manifest.
func (p *Page) load(ctx context.Context, wasm []byte) (api.Module, error) {
	compiled, err := p.runtime.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	mod, err := p.runtime.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	if err := p.checkManifest(ctx, mod); err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return mod, nil
}

func (p *Page) checkManifest(ctx context.Context, mod api.Module) error {
	if p.runtime.catalog == nil || mod.ExportedFunction("manifest") == nil {
		return nil
	}
	packed, err := callRaw(ctx, mod, "manifest", nil)
	if err != nil {
		return err
	}
	data, err := reactorwazero.ReadBytes(mod, packed)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	required, err := parser.NewJSONManifestParser().Parse(data)
	if err != nil {
		return err
	}
	if missing := p.runtime.catalog.Missing(required); len(missing) > 0 {
		return fmt.Errorf("page requires missing capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RegisterComponent calls the register_component export.
func (p *Page) RegisterComponent(ctx context.Context) {
	p.call(ctx, "register_component", nil)
}

// InvokeCallback calls the invoke_callback export.
func (p *Page) InvokeCallback(ctx context.Context, callbackID, argsJSON string) {
	p.call(ctx, "invoke_callback", CallbackRequest{CallbackID: callbackID, Args: argsJSON})
}

// FireEvent calls the fire_event export.
func (p *Page) FireEvent(ctx context.Context, ref, event string, args map[string]string, domChangesJSON string) {
	p.call(ctx, "fire_event", EventRequest{Ref: ref, Event: event, Args: args, DOMChanges: domChangesJSON})
}

// SetContext calls the set_context export.
func (p *Page) SetContext(ctx context.Context, rc page.ContextHandle) {
	p.call(ctx, "set_context", ContextRequest{Handle: int64(rc)})
}

// Unregister calls the unregister export and closes the page module.
func (p *Page) Unregister(ctx context.Context) {
	ctx = reactorwazero.WithInstanceID(ctx, p.instanceID)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	mod := p.module
	p.module = nil
	p.mu.Unlock()
	if mod == nil {
		return
	}

	p.callModule(ctx, mod, "unregister", nil)
	if err := mod.Close(ctx); err != nil {
		p.runtime.logger.WarnContext(ctx, "host: failed to close page module",
			"instance", p.instanceID, "error", err)
	}
}

func (p *Page) call(ctx context.Context, export string, req any) {
	ctx = reactorwazero.WithInstanceID(ctx, p.instanceID)

	p.mu.Lock()
	mod := p.module
	p.mu.Unlock()
	if mod == nil {
		p.runtime.logger.DebugContext(ctx, "host: page not loaded, call dropped",
			"instance", p.instanceID, "export", export)
		return
	}
	p.callModule(ctx, mod, export, req)
}

// callModule calls an optional export with a CBOR encoded request.
// Page calls arrive serialized on the script execution context.
func (p *Page) callModule(ctx context.Context, mod api.Module, export string, req any) {
	if mod.ExportedFunction(export) == nil {
		return
	}
	var input []byte
	if req != nil {
		data, err := reactorwazero.Encode(req)
		if err != nil {
			p.runtime.logger.ErrorContext(ctx, "host: failed to encode page call",
				"instance", p.instanceID, "export", export, "error", err)
			return
		}
		input = data
	}
	if _, err := callRaw(ctx, mod, export, input); err != nil {
		p.runtime.logger.ErrorContext(ctx, "host: page call failed",
			"instance", p.instanceID, "export", export, "error", err)
	}
}

// callRaw invokes a module function with raw bytes.
func callRaw(ctx context.Context, mod api.Module, name string, input []byte) (uint64, error) {
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return 0, fmt.Errorf("function %q not found", name)
	}

	packedInput, err := reactorwazero.WriteBytes(ctx, mod, input)
	if err != nil {
		return 0, err
	}

	var params []uint64
	if len(fn.Definition().ParamTypes()) > 0 {
		params = []uint64{packedInput}
	}
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, fmt.Errorf("call %q failed: %w", name, err)
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

package reactor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/reglet-dev/reactor-sdk/affinity"
	"github.com/reglet-dev/reactor-sdk/capability"
	"github.com/reglet-dev/reactor-sdk/page"
	"github.com/reglet-dev/reactor-sdk/registry"
)

var (
	// ErrModuleNotFound is returned for calls to an unregistered module.
	ErrModuleNotFound = errors.New("capability module not found")

	// ErrMethodNotFound is returned for calls to an unexposed method.
	ErrMethodNotFound = errors.New("capability method not found")

	// ErrPageNotFound is returned for unknown page instance IDs, including
	// pages that were released.
	ErrPageNotFound = errors.New("page not found")
)

// suggestionDistance is the largest edit distance offered as a hint.
const suggestionDistance = 2

// Call is one script-originated capability call.
type Call struct {
	InstanceID string
	Module     string
	Method     string
	// Args is a JSON array of positional arguments.
	Args json.RawMessage
}

// Result is the outcome of a capability call.
type Result struct {
	Value any
	// Deferred is set when the call was handed to the UI context; it has no value.
	Deferred bool
}

// PageAware module instances receive the page they serve.
type PageAware interface {
	SetPage(h *page.Handle)
}

// Destroyer module instances are destroyed when their page is released.
type Destroyer interface {
	Destroy()
}

// Dispatcher routes capability calls to module instances.
//
// Each attached page instance gets its own instance of every module it calls.
// Calls for instances that are not attached, or already released, are refused.
// Methods requiring the UI context run inline when the caller is already on
// the UI looper and are posted to it otherwise.
type Dispatcher struct {
	catalog *capability.Catalog
	schemas registry.SchemaRegistry
	ui      *affinity.Bridge
	uiID    affinity.ID
	logger  *slog.Logger

	middlewares []Middleware
	handler     Handler

	mu        sync.Mutex
	instances map[string]map[string]any
	pages     map[string]*page.Handle
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithUILooper sets the UI execution context. Without one, UI methods run inline.
func WithUILooper(l *affinity.Looper) DispatcherOption {
	return func(d *Dispatcher) {
		if l == nil {
			return
		}
		d.ui = affinity.NewBridge(l)
		d.uiID = l.ID()
	}
}

// WithSchemas validates call arguments against registered schemas.
func WithSchemas(s registry.SchemaRegistry) DispatcherOption {
	return func(d *Dispatcher) { d.schemas = s }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithMiddleware appends middleware that runs inside the built-in middleware.
func WithMiddleware(mws ...Middleware) DispatcherOption {
	return func(d *Dispatcher) { d.middlewares = append(d.middlewares, mws...) }
}

// NewDispatcher creates a dispatcher over catalog.
func NewDispatcher(catalog *capability.Catalog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		catalog:   catalog,
		logger:    slog.Default(),
		instances: make(map[string]map[string]any),
		pages:     make(map[string]*page.Handle),
	}
	for _, opt := range opts {
		opt(d)
	}
	mws := append([]Middleware{
		LoggingMiddleware(d.logger),
		MetricsMiddleware(),
		PanicRecoveryMiddleware(d.logger),
	}, d.middlewares...)
	d.handler = chain(d.invoke, mws...)
	return d
}

// Invoke dispatches call through the middleware chain.
func (d *Dispatcher) Invoke(ctx context.Context, call Call) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return d.handler(ctx, call)
}

func (d *Dispatcher) invoke(ctx context.Context, call Call) (Result, error) {
	reg, ok := d.catalog.Get(call.Module)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s%s", ErrModuleNotFound, call.Module, suggest(call.Module, d.catalog.Names()))
	}
	method, ok := reg.Lookup(call.Method)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s.%s%s", ErrMethodNotFound, call.Module, call.Method, suggest(call.Method, reg.Methods()))
	}

	if d.schemas != nil {
		if err := d.schemas.Validate(registry.Key(call.Module, call.Method), call.Args); err != nil {
			return Result{}, err
		}
	}

	inst, err := d.instance(call.InstanceID, reg)
	if err != nil {
		return Result{}, err
	}

	if method.UIThread && d.ui != nil && !affinity.IsCurrent(ctx, d.uiID) {
		args := call.Args
		d.ui.Post(ctx, func(ctx context.Context) {
			if _, err := method.Invoke(ctx, inst, args); err != nil {
				d.logger.ErrorContext(ctx, "reactor: deferred capability call failed",
					"module", call.Module,
					"method", call.Method,
					"instance", call.InstanceID,
					"error", err)
			}
		})
		return Result{Deferred: true}, nil
	}

	v, err := method.Invoke(ctx, inst, call.Args)
	if err != nil {
		return Result{}, fmt.Errorf("%s.%s: %w", call.Module, call.Method, err)
	}
	return Result{Value: v}, nil
}

// instance returns the module instance of a page, creating it on first use.
func (d *Dispatcher) instance(instanceID string, reg *capability.Registry) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.pages[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, instanceID)
	}

	modules, ok := d.instances[instanceID]
	if !ok {
		modules = make(map[string]any)
		d.instances[instanceID] = modules
	}
	if inst, ok := modules[reg.Name()]; ok {
		return inst, nil
	}

	inst, err := reg.Instantiate()
	if err != nil {
		return nil, err
	}
	if aware, ok := inst.(PageAware); ok {
		aware.SetPage(h)
	}
	modules[reg.Name()] = inst
	return inst, nil
}

// Attach associates a page handle with its instance ID, enabling calls for
// it. Attaching again replaces the handle; module instances already created
// receive the new one if PageAware.
func (d *Dispatcher) Attach(h *page.Handle) {
	if h == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[h.InstanceID()] = h
	for _, inst := range d.instances[h.InstanceID()] {
		if aware, ok := inst.(PageAware); ok {
			aware.SetPage(h)
		}
	}
}

// Release destroys the module instances of a page and forgets its handle.
func (d *Dispatcher) Release(instanceID string) {
	d.mu.Lock()
	modules := d.instances[instanceID]
	delete(d.instances, instanceID)
	delete(d.pages, instanceID)
	d.mu.Unlock()

	for name, inst := range modules {
		destroyer, ok := inst.(Destroyer)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("reactor: module destroy panicked",
						"module", name,
						"instance", instanceID,
						"panic", fmt.Sprint(r))
				}
			}()
			destroyer.Destroy()
		}()
	}
}

// Instances returns the number of page instances with live modules.
func (d *Dispatcher) Instances() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.instances)
}

// suggest returns a did-you-mean hint for name among candidates.
func suggest(name string, candidates []string) string {
	best, bestDist := "", suggestionDistance+1
	for _, c := range candidates {
		if dist := levenshtein.ComputeDistance(name, c); dist < bestDist {
			best, bestDist = c, dist
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

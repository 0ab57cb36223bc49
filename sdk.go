// Package reactor bridges script-driven pages to native capability modules.
//
// An SDK owns the execution contexts, the script runtime selection, the
// capability catalog and the pages loaded through the bound plugin.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/reglet-dev/reactor-sdk/affinity"
	"github.com/reglet-dev/reactor-sdk/capability"
	"github.com/reglet-dev/reactor-sdk/config"
	"github.com/reglet-dev/reactor-sdk/engine"
	"github.com/reglet-dev/reactor-sdk/modules/timer"
	"github.com/reglet-dev/reactor-sdk/page"
	"github.com/reglet-dev/reactor-sdk/parser"
	"github.com/reglet-dev/reactor-sdk/plugin"
	"github.com/reglet-dev/reactor-sdk/registry"
)

var (
	// ErrClosed is returned by operations on a closed SDK.
	ErrClosed = errors.New("sdk closed")

	// ErrNoPlugin is returned when a page is loaded before a plugin is bound.
	ErrNoPlugin = errors.New("no plugin bound")

	// ErrPageExists is returned when loading a page under a live instance ID.
	ErrPageExists = errors.New("page already loaded")

	// ErrMissingCapabilities is returned when the catalog does not satisfy
	// the configured manifest.
	ErrMissingCapabilities = errors.New("missing capabilities")
)

// Option configures an SDK.
type Option func(*sdkOptions)

type sdkOptions struct {
	logger     *slog.Logger
	binding    *plugin.Binding
	selector   *engine.Selector
	modules    []capability.Source
	schemas    registry.SchemaRegistry
	middleware []Middleware
}

// WithLogger sets the logger used by the SDK and its components.
func WithLogger(l *slog.Logger) Option {
	return func(o *sdkOptions) { o.logger = l }
}

// WithBinding sets the plugin binding. Defaults to the process-wide binding.
func WithBinding(b *plugin.Binding) Option {
	return func(o *sdkOptions) { o.binding = b }
}

// WithSelector sets the engine selector. Defaults to a selector owned by the SDK.
func WithSelector(s *engine.Selector) Option {
	return func(o *sdkOptions) { o.selector = s }
}

// WithModules registers capability modules next to the built-in ones.
func WithModules(sources ...capability.Source) Option {
	return func(o *sdkOptions) { o.modules = append(o.modules, sources...) }
}

// WithArgumentSchemas validates capability arguments against s.
func WithArgumentSchemas(s registry.SchemaRegistry) Option {
	return func(o *sdkOptions) { o.schemas = s }
}

// WithCallMiddleware appends middleware to the capability call chain.
func WithCallMiddleware(mws ...Middleware) Option {
	return func(o *sdkOptions) { o.middleware = append(o.middleware, mws...) }
}

// PageRequest describes a page to load.
type PageRequest struct {
	URL     string
	Runtime plugin.RuntimeHandle
	// InstanceID is generated when blank.
	InstanceID string
	// Params are page creation parameters, see engine.ParseParams.
	Params map[string]string
}

// Page is a loaded page.
type Page struct {
	Handle   *page.Handle
	Engine   *engine.Type
	URL      string
	Instance *engine.Instance
}

// SDK is the entry point of the bridge.
type SDK struct {
	cfg    config.Config
	logger *slog.Logger

	ui     *affinity.Looper
	script *affinity.Looper

	selector   *engine.Selector
	store      *engine.FileStore
	manager    *engine.Manager
	catalog    *capability.Catalog
	schemas    registry.SchemaRegistry
	dispatcher *Dispatcher
	binding    *plugin.Binding
	factory    *plugin.Factory

	mu     sync.Mutex
	pages  map[string]*Page
	closed bool
}

// New creates an SDK from cfg.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*SDK, error) {
	o := sdkOptions{
		logger:  slog.Default(),
		binding: plugin.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.schemas == nil {
		o.schemas = registry.NewRegistry()
	}

	s := &SDK{
		cfg:     cfg,
		logger:  o.logger,
		binding: o.binding,
		schemas: o.schemas,
		pages:   make(map[string]*Page),
	}

	s.selector = o.selector
	if s.selector == nil {
		s.selector = engine.NewSelector(
			engine.WithDefaultEngine(cfg.Engine.Default),
			engine.WithSelectorLogger(s.logger),
		)
	}
	s.selector.Apply(snapshotFromConfig(cfg.Engine))

	if cfg.Engine.SnapshotPath != "" {
		s.store = engine.NewFileStore(cfg.Engine.SnapshotPath)
		snap, err := s.store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load engine snapshot: %w", err)
		}
		if snap != nil {
			s.selector.Apply(*snap)
		}
	}

	mopts := []engine.ManagerOption{engine.WithManagerLogger(s.logger)}
	if def := s.selector.DefaultEngine(); def != nil {
		mopts = append(mopts, engine.WithDefaultKind(def.Kind()))
	}
	s.manager = engine.NewManager(mopts...)
	var mask engine.Kind
	for _, name := range cfg.Engine.Supported {
		kind, ok := engine.ParseKind(name)
		if !ok {
			s.logger.Warn("reactor: unknown supported engine in config", "engine", name)
			continue
		}
		mask |= kind
		s.manager.AddRuntime(kind)
	}
	s.manager.SetSupported(mask)

	s.catalog = capability.NewCatalog(capability.WithCatalogLogger(s.logger))
	for _, src := range append([]capability.Source{timer.Source()}, o.modules...) {
		if _, err := s.catalog.Register(src); err != nil {
			return nil, err
		}
	}

	if cfg.Manifest != "" {
		if err := s.checkManifest(cfg.Manifest); err != nil {
			return nil, err
		}
	}

	uiID, scriptID := affinity.ID(cfg.Loopers.UI), affinity.ID(cfg.Loopers.Script)
	if uiID == "" {
		uiID = affinity.UI
	}
	if scriptID == "" {
		scriptID = affinity.Script
	}
	s.ui = affinity.NewLooper(uiID, affinity.WithLooperLogger(s.logger))
	s.script = affinity.NewLooper(scriptID, affinity.WithLooperLogger(s.logger))

	s.dispatcher = NewDispatcher(s.catalog,
		WithUILooper(s.ui),
		WithSchemas(s.schemas),
		WithDispatcherLogger(s.logger),
		WithMiddleware(o.middleware...),
	)
	s.factory = plugin.NewFactory(cfg.AppID, s.script,
		plugin.WithLogger(s.logger),
		plugin.WithBinding(s.binding),
	)
	return s, nil
}

func snapshotFromConfig(c config.EngineConfig) engine.Snapshot {
	main, force := c.MainProcessScriptSide, c.ForceMainProcess
	return engine.Snapshot{
		Default:               c.Default,
		Switches:              c.Switches,
		EnableURLData:         c.EnableURLData,
		DisableURLData:        c.DisableURLData,
		MainProcessScriptSide: &main,
		ForceMainProcess:      &force,
	}
}

func (s *SDK) checkManifest(path string) error {
	p, err := parser.ForPath(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		return fmt.Errorf("read manifest %q: %w", path, err)
	}
	required, err := p.Parse(data)
	if err != nil {
		return fmt.Errorf("parse manifest %q: %w", path, err)
	}
	if missing := s.catalog.Missing(required); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCapabilities, strings.Join(missing, ", "))
	}
	return nil
}

// LoadPage creates a page through the bound plugin and assigns it a runtime.
func (s *SDK) LoadPage(ctx context.Context, req PageRequest) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	id := strings.TrimSpace(req.InstanceID)
	if id == "" {
		id = uuid.NewString()
	}
	if _, ok := s.pages[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPageExists, id)
	}

	variant, url := s.selector.Resolve(req.URL)
	if !s.selector.IsEnabled(variant) {
		variant = s.firstEnabled()
	}

	values := make(map[string]string, len(req.Params)+2)
	for k, v := range req.Params {
		values[k] = v
	}
	if _, ok := values[engine.ParamEngineType]; !ok && variant != nil {
		values[engine.ParamEngineType] = variant.Name()
	}
	if s.selector.ForceAllPageRunInMainProcessScriptSide() && s.selector.EnableMainProcessScriptSide() {
		values[engine.ParamRunInMainProcess] = strconv.FormatBool(true)
	}

	inst, err := s.manager.CreateInstanceFromParams(id, engine.ParseParams(values))
	if err != nil {
		return nil, err
	}

	h, ok := s.factory.CreatePage(req.Runtime, id)
	if !ok {
		s.manager.DestroyInstance(id)
		return nil, ErrNoPlugin
	}
	s.dispatcher.Attach(h)

	p := &Page{Handle: h, Engine: variant, URL: url, Instance: inst}
	s.pages[id] = p
	s.logger.DebugContext(ctx, "reactor: page loaded",
		"instance", id,
		"url", url,
		"engine", variant.String(),
		"runtime", inst.Kind.String())
	return p, nil
}

func (s *SDK) firstEnabled() *engine.Type {
	for _, t := range s.selector.Types() {
		if s.selector.IsEnabled(t) {
			return t
		}
	}
	return s.selector.DefaultEngine()
}

// Page returns the loaded page of instanceID.
func (s *SDK) Page(instanceID string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[instanceID]
	return p, ok
}

// UnloadPage unregisters a page and releases its modules and runtime.
func (s *SDK) UnloadPage(ctx context.Context, instanceID string) error {
	s.mu.Lock()
	p, ok := s.pages[instanceID]
	delete(s.pages, instanceID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, instanceID)
	}
	s.unload(ctx, instanceID, p)
	return nil
}

func (s *SDK) unload(ctx context.Context, instanceID string, p *Page) {
	p.Handle.Unregister(ctx)
	s.dispatcher.Release(instanceID)
	s.manager.DestroyInstance(instanceID)
}

// Invoke dispatches a capability call from a page script.
func (s *SDK) Invoke(ctx context.Context, call Call) (Result, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Result{}, ErrClosed
	}
	return s.dispatcher.Invoke(ctx, call)
}

// ApplyRemoteConfig applies a remote engine configuration and persists the
// resulting selector state when a snapshot path is configured.
func (s *SDK) ApplyRemoteConfig(ctx context.Context, snap engine.Snapshot) error {
	s.selector.Apply(snap)
	if s.store == nil {
		return nil
	}
	if err := s.store.Save(ctx, s.selector.Snapshot()); err != nil {
		return fmt.Errorf("persist engine snapshot: %w", err)
	}
	return nil
}

// Close unloads all pages and stops the execution contexts.
func (s *SDK) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pages := s.pages
	s.pages = make(map[string]*Page)
	s.mu.Unlock()

	for id, p := range pages {
		s.unload(ctx, id, p)
	}
	return errors.Join(s.script.Close(ctx), s.ui.Close(ctx))
}

// Selector returns the engine selector.
func (s *SDK) Selector() *engine.Selector { return s.selector }

// Manager returns the runtime manager.
func (s *SDK) Manager() *engine.Manager { return s.manager }

// Catalog returns the capability catalog.
func (s *SDK) Catalog() *capability.Catalog { return s.catalog }

// Schemas returns the argument schema registry.
func (s *SDK) Schemas() registry.SchemaRegistry { return s.schemas }

// Dispatcher returns the capability dispatcher.
func (s *SDK) Dispatcher() *Dispatcher { return s.dispatcher }

// Binding returns the plugin binding.
func (s *SDK) Binding() *plugin.Binding { return s.binding }

// UILooper returns the UI execution context.
func (s *SDK) UILooper() *affinity.Looper { return s.ui }

// ScriptLooper returns the script execution context.
func (s *SDK) ScriptLooper() *affinity.Looper { return s.script }

// Package capability exposes native capability types to scripts.
// A Registry builds, once, the table of script-invokable methods of one type;
// a Catalog maps module names to registries.
package capability

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Catalog manages the registries of all capability modules.
type Catalog struct {
	modules map[string]*Registry
	logger  *slog.Logger
	mu      sync.RWMutex
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithCatalogLogger sets the logger handed to every registry of the catalog.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) { c.logger = l }
}

// NewCatalog creates a new, empty catalog.
func NewCatalog(opts ...CatalogOption) *Catalog {
	c := &Catalog{
		modules: make(map[string]*Registry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a capability type under its module name.
// The registry is not built until first used.
func (c *Catalog) Register(source Source) (*Registry, error) {
	name := source.Name()
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("capability module name cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.modules[name]; exists {
		return nil, fmt.Errorf("capability module already registered: %s", name)
	}
	r := NewRegistry(source, WithLogger(c.logger))
	c.modules[name] = r
	return r, nil
}

// Get retrieves the registry of a module.
// Returns nil and false if no module is registered under name.
func (c *Catalog) Get(name string) (*Registry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.modules[name]
	return r, ok
}

// Names returns the sorted module names.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.modules))
	for name := range c.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Manifest describes every module and its exposed methods.
// Building it builds every registry.
func (c *Catalog) Manifest() *Manifest {
	m := &Manifest{Version: ManifestVersion}
	for _, name := range c.Names() {
		r, ok := c.Get(name)
		if !ok {
			continue
		}
		m.Modules = append(m.Modules, ModuleManifest{Name: name, Methods: r.Methods()})
	}
	return m
}

// Missing returns the "module.method" entries of required that the catalog
// does not serve, sorted. A module required with no methods only needs to exist.
func (c *Catalog) Missing(required *Manifest) []string {
	if required == nil {
		return nil
	}
	var missing []string
	for _, mod := range required.Modules {
		r, ok := c.Get(mod.Name)
		if !ok {
			missing = append(missing, mod.Name)
			continue
		}
		for _, method := range mod.Methods {
			if _, ok := r.Lookup(method); !ok {
				missing = append(missing, mod.Name+"."+method)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

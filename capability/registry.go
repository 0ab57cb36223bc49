package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// MethodDescriptor is a registered capability method. Immutable.
type MethodDescriptor struct {
	// Name is the exposed name: the alias if one was declared.
	Name string

	// Method is the declared method name.
	Method string

	// UIThread requires the method to run on the UI execution context.
	UIThread bool

	invoke Invoker
}

// Invoke calls the method on receiver with a JSON array of arguments.
func (d *MethodDescriptor) Invoke(ctx context.Context, receiver any, args json.RawMessage) (any, error) {
	return d.invoke(ctx, receiver, args)
}

// Registry serves the method table of one capability type.
//
// The table is built once, lazily on first lookup or explicitly with Build,
// and is read-only afterwards. Presence probes by method name are cached for
// the lifetime of the Registry.
type Registry struct {
	source Source
	logger *slog.Logger

	once    sync.Once
	built   atomic.Bool
	methods atomic.Pointer[map[string]*MethodDescriptor]

	presence sync.Map // method name -> bool
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger used for malformed declarations.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an unbuilt registry for source.
func NewRegistry(source Source, opts ...RegistryOption) *Registry {
	r := &Registry{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the module name of the capability type.
func (r *Registry) Name() string {
	return r.source.Name()
}

// HasBuilt reports whether the method table has been built.
func (r *Registry) HasBuilt() bool {
	return r.built.Load()
}

// Build scans the declared methods and builds the method table.
// Calls after the first are no-ops.
func (r *Registry) Build() {
	r.once.Do(func() {
		table := r.scanTable()
		r.methods.Store(&table)
		r.built.Store(true)
	})
}

func (r *Registry) scanTable() (table map[string]*MethodDescriptor) {
	table = make(map[string]*MethodDescriptor)
	typeName := r.source.Name()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("capability: scanning declared methods failed",
				"module", typeName,
				"panic", fmt.Sprint(rec))
		}
	}()

	r.logger.Debug("capability: building method table", "module", typeName)
	for _, d := range r.source.Methods() {
		if d.Meta == nil {
			continue
		}
		if err := validateDeclared(typeName, d); err != nil {
			r.logger.Warn("capability: skipping method", "module", typeName, "error", err)
			continue
		}
		name := d.Name
		if d.Meta.Alias != "" {
			name = d.Meta.Alias
		}
		table[name] = &MethodDescriptor{
			Name:     name,
			Method:   d.Name,
			UIThread: d.Meta.UIThread,
			invoke:   d.Invoke,
		}
	}
	return table
}

func validateDeclared(typeName string, d Declared) error {
	malformed := func(reason string) error {
		return &MalformedDeclarationError{Type: typeName, Method: d.Name, Reason: reason}
	}
	switch {
	case d.Err != nil:
		return malformed(d.Err.Error())
	case strings.TrimSpace(d.Name) == "":
		return malformed("blank method name")
	case hasSpace(d.Name) || hasSpace(d.Meta.Alias):
		return malformed("exposed name contains whitespace")
	case d.Invoke == nil:
		return malformed("no invoker")
	}
	return nil
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// Lookup returns the method registered under the exposed name,
// building the table first if needed.
func (r *Registry) Lookup(name string) (*MethodDescriptor, bool) {
	d, ok := r.table()[name]
	return d, ok
}

// Methods returns the sorted exposed method names.
func (r *Registry) Methods() []string {
	table := r.table()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) table() map[string]*MethodDescriptor {
	if !r.built.Load() {
		r.Build()
	}
	return *r.methods.Load()
}

// HasMethod reports whether name is a declared method carrying capability
// metadata. The answer is cached per name, negative answers included.
// Aliases are not method names. Exposed names without a method report false;
// methods with unsupported signatures still report true.
func (r *Registry) HasMethod(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if v, ok := r.presence.Load(name); ok {
		return v.(bool)
	}
	v, _ := r.presence.LoadOrStore(name, r.probe(name))
	return v.(bool)
}

func (r *Registry) probe(name string) (has bool) {
	defer func() {
		if rec := recover(); rec != nil {
			has = false
		}
	}()
	for _, d := range r.source.Methods() {
		if d.Name == name && d.Meta != nil && !errors.Is(d.Err, ErrNoSuchMethod) {
			has = true
		}
	}
	return has
}

// Instantiate constructs a fresh instance of the capability type.
func (r *Registry) Instantiate() (instance any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			instance = nil
			err = &InstantiationError{Type: r.source.Name(), Err: fmt.Errorf("constructor panicked: %v", rec)}
		}
	}()
	instance, err = r.source.New()
	if err != nil {
		return nil, &InstantiationError{Type: r.source.Name(), Err: err}
	}
	return instance, nil
}

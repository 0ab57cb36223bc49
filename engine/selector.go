package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Selector decides which runtime variant executes a page.
//
// None of its operations fail. Configuration payloads are stored as given.
type Selector struct {
	types       []*Type
	defaultName string
	logger      *slog.Logger

	defaultType atomic.Pointer[Type]

	enableURLData  atomic.Pointer[string]
	disableURLData atomic.Pointer[string]

	mainProcessScriptSide atomic.Bool
	forceMainProcess      atomic.Bool
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithTypes replaces the built-in variants.
func WithTypes(types ...*Type) SelectorOption {
	return func(s *Selector) { s.types = types }
}

// WithDefaultEngine sets the default variant by name.
// Unknown names keep the first variant as default.
func WithDefaultEngine(name string) SelectorOption {
	return func(s *Selector) { s.defaultName = name }
}

// WithSelectorLogger sets the logger.
func WithSelectorLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// NewSelector creates a selector over the built-in variants with JSC as default.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		types:  BuiltinTypes(),
		logger: slog.Default(),
	}
	s.mainProcessScriptSide.Store(true)

	for _, opt := range opts {
		opt(s)
	}
	if t, ok := s.Lookup(s.defaultName); ok {
		s.defaultType.Store(t)
	} else if len(s.types) > 0 {
		s.defaultType.Store(s.types[0])
	}

	empty := ""
	s.enableURLData.Store(&empty)
	s.disableURLData.Store(&empty)
	return s
}

var (
	defaultSelector     *Selector
	defaultSelectorOnce sync.Once
)

// Default returns the process-wide selector.
func Default() *Selector {
	defaultSelectorOnce.Do(func() {
		defaultSelector = NewSelector()
	})
	return defaultSelector
}

// Types returns the known variants.
func (s *Selector) Types() []*Type {
	out := make([]*Type, len(s.types))
	copy(out, s.types)
	return out
}

// Lookup returns the variant with the given name.
func (s *Selector) Lookup(name string) (*Type, bool) {
	for _, t := range s.types {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// LookupKind returns the variant with exactly the given kind.
func (s *Selector) LookupKind(kind Kind) (*Type, bool) {
	for _, t := range s.types {
		if t.kind == kind {
			return t, true
		}
	}
	return nil, false
}

func (s *Selector) owns(t *Type) bool {
	for _, known := range s.types {
		if known == t {
			return true
		}
	}
	return false
}

// DefaultEngine returns the configured default variant.
func (s *Selector) DefaultEngine() *Type {
	return s.defaultType.Load()
}

// SetDefaultEngine changes the default variant. Variants the selector does
// not know are ignored.
func (s *Selector) SetDefaultEngine(t *Type) {
	if t == nil || !s.owns(t) {
		s.logger.Debug("engine: ignoring unknown default", "engine", t.String())
		return
	}
	s.defaultType.Store(t)
}

// SetEngineSwitch sets a variant's switch. Unknown variants are ignored.
func (s *Selector) SetEngineSwitch(t *Type, on bool) {
	if t == nil || !s.owns(t) {
		return
	}
	t.on.Store(on)
}

// IsEnabled reports whether variant t may run pages.
//
// A non-default variant follows its own switch. The default variant is
// enabled when its switch is on, or when every variant is off: at least one
// variant is always usable.
func (s *Selector) IsEnabled(t *Type) bool {
	if t == nil || !s.owns(t) {
		return false
	}
	if t != s.DefaultEngine() {
		return t.On()
	}
	if t.On() {
		return true
	}
	for _, other := range s.types {
		if other.On() {
			return false
		}
	}
	return true
}

// Resolve returns the variant for url. It always resolves to the default
// variant; the URL payloads are not consulted.
func (s *Selector) Resolve(url string) (*Type, string) {
	return s.DefaultEngine(), url
}

// UpdateEnableURLData stores the URL enable payload as given.
func (s *Selector) UpdateEnableURLData(payload string) {
	s.enableURLData.Store(&payload)
}

// UpdateDisableURLData stores the URL disable payload as given.
func (s *Selector) UpdateDisableURLData(payload string) {
	s.disableURLData.Store(&payload)
}

// EnableURLData returns the last stored enable payload.
func (s *Selector) EnableURLData() string {
	return *s.enableURLData.Load()
}

// DisableURLData returns the last stored disable payload.
func (s *Selector) DisableURLData() string {
	return *s.disableURLData.Load()
}

// EnableMainProcessScriptSide reports whether the script side may run in the
// main process. Defaults to true.
func (s *Selector) EnableMainProcessScriptSide() bool {
	return s.mainProcessScriptSide.Load()
}

// SetEnableMainProcessScriptSide sets EnableMainProcessScriptSide.
func (s *Selector) SetEnableMainProcessScriptSide(v bool) {
	s.mainProcessScriptSide.Store(v)
}

// ForceAllPageRunInMainProcessScriptSide reports whether every page must run
// its script side in the main process. Defaults to false.
func (s *Selector) ForceAllPageRunInMainProcessScriptSide() bool {
	return s.forceMainProcess.Load()
}

// SetForceAllPageRunInMainProcessScriptSide sets ForceAllPageRunInMainProcessScriptSide.
func (s *Selector) SetForceAllPageRunInMainProcessScriptSide(v bool) {
	s.forceMainProcess.Store(v)
}

package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrNoRuntime is returned when no runtime is registered at all.
var ErrNoRuntime = errors.New("no script runtime available")

// Instance records the runtime assignment of one page instance.
type Instance struct {
	PageID             string
	Kind               Kind
	ForceInMainProcess bool
	BackupThread       bool
	PreInitMode        bool
}

// InstanceOptions are the per-page execution flags.
type InstanceOptions struct {
	ForceInMainProcess bool
	BackupThread       bool
	PreInitMode        bool
}

// Param is one page creation parameter.
type Param struct {
	Key   string
	Value string
}

// Page creation parameter keys understood by CreateInstanceFromParams.
const (
	ParamEngineType       = "engine_type"
	ParamUseBackThread    = "use_back_thread"
	ParamPreInitMode      = "pre_init_mode"
	ParamRunInMainProcess = "run_in_main_process"
)

// Manager assigns registered runtimes to page instances.
type Manager struct {
	mu          sync.RWMutex
	supported   Kind
	runtimes    []Kind
	defaultKind Kind
	instances   map[string]*Instance
	logger      *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithDefaultKind sets the preferred default runtime kind. Defaults to JSC.
func WithDefaultKind(k Kind) ManagerOption {
	return func(m *Manager) { m.defaultKind = k }
}

// NewManager creates a manager with no runtimes.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		defaultKind: KindJSC,
		instances:   make(map[string]*Instance),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSupported sets the mask of runtime kinds compiled into the process.
func (m *Manager) SetSupported(mask Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supported = mask
}

// Supported returns the supported runtime mask.
func (m *Manager) Supported() Kind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supported
}

// AddRuntime registers an available runtime. Registering a kind twice is a no-op.
func (m *Manager) AddRuntime(kind Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.runtimes {
		if k == kind {
			return
		}
	}
	m.runtimes = append(m.runtimes, kind)
}

// FindRuntime returns the first registered runtime serving kind.
// kind must intersect the supported mask.
func (m *Manager) FindRuntime(kind Kind) (Kind, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findRuntimeLocked(kind)
}

func (m *Manager) findRuntimeLocked(kind Kind) (Kind, bool) {
	if !m.supported.Has(kind) {
		return 0, false
	}
	for _, k := range m.runtimes {
		if k.Has(kind) {
			return k, true
		}
	}
	return 0, false
}

// DefaultRuntime returns the default runtime. When the preferred default is
// not registered, JSC and QJS swap roles and the swap sticks.
func (m *Manager) DefaultRuntime() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.defaultRuntimeLocked()
}

func (m *Manager) defaultRuntimeLocked() (Kind, bool) {
	if m.registeredLocked(m.defaultKind) {
		return m.defaultKind, true
	}
	if m.defaultKind == KindJSC {
		m.defaultKind = KindQJS
	} else {
		m.defaultKind = KindJSC
	}
	if m.registeredLocked(m.defaultKind) {
		return m.defaultKind, true
	}
	return 0, false
}

func (m *Manager) registeredLocked(kind Kind) bool {
	for _, k := range m.runtimes {
		if k == kind {
			return true
		}
	}
	return false
}

// CreateInstance assigns a runtime to pageID, replacing any previous
// assignment. A kind with no serving runtime falls back to the default runtime.
func (m *Manager) CreateInstance(pageID string, kind Kind, opts InstanceOptions) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	assigned := kind
	if _, ok := m.findRuntimeLocked(kind); !ok {
		def, ok := m.defaultRuntimeLocked()
		if !ok {
			return nil, fmt.Errorf("create instance %q: %w", pageID, ErrNoRuntime)
		}
		m.logger.Debug("engine: falling back to default runtime",
			"page", pageID, "requested", kind.String(), "runtime", def.String())
		assigned = def
	}

	inst := &Instance{
		PageID:             pageID,
		Kind:               assigned,
		ForceInMainProcess: opts.ForceInMainProcess,
		BackupThread:       opts.BackupThread,
		PreInitMode:        opts.PreInitMode,
	}
	m.instances[pageID] = inst
	return inst, nil
}

// CreateInstanceFromParams parses page creation parameters and assigns a
// runtime. Unknown keys and values are ignored; the engine defaults to JSC.
// Running in the main process selects QJS.
func (m *Manager) CreateInstanceFromParams(pageID string, params []Param) (*Instance, error) {
	kind := KindJSC
	var opts InstanceOptions
	for _, p := range params {
		switch p.Key {
		case ParamUseBackThread:
			opts.BackupThread = p.Value == "true"
		case ParamEngineType:
			if k, ok := ParseKind(p.Value); ok {
				kind = k
			}
		case ParamPreInitMode:
			opts.PreInitMode = p.Value == "true"
		case ParamRunInMainProcess:
			opts.ForceInMainProcess = p.Value == "true"
		}
	}
	if opts.ForceInMainProcess {
		kind = KindQJS
	}
	return m.CreateInstance(pageID, kind, opts)
}

// ParseParams converts a key/value map into creation parameters in key order.
func ParseParams(values map[string]string) []Param {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	params := make([]Param, 0, len(keys))
	for _, k := range keys {
		params = append(params, Param{Key: k, Value: values[k]})
	}
	return params
}

// Instance returns the assignment of pageID.
func (m *Manager) Instance(pageID string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[pageID]
	return inst, ok
}

// DestroyInstance forgets the assignment of pageID.
func (m *Manager) DestroyInstance(pageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, pageID)
}

// IsForceInMainProcess reports whether pageID runs in the main process.
// A blank id means the process-level script side and reports true.
func (m *Manager) IsForceInMainProcess(pageID string) bool {
	if strings.TrimSpace(pageID) == "" {
		return true
	}
	inst, ok := m.Instance(pageID)
	return ok && inst.ForceInMainProcess
}

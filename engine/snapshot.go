package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// Snapshot is the persisted remote engine configuration.
type Snapshot struct {
	Default               string          `yaml:"default,omitempty"`
	Switches              map[string]bool `yaml:"switches,omitempty"`
	EnableURLData         string          `yaml:"enable_url_data,omitempty"`
	DisableURLData        string          `yaml:"disable_url_data,omitempty"`
	MainProcessScriptSide *bool           `yaml:"main_process_script_side,omitempty"`
	ForceMainProcess      *bool           `yaml:"force_main_process,omitempty"`
}

// Snapshot captures the current selector configuration.
func (s *Selector) Snapshot() Snapshot {
	main := s.EnableMainProcessScriptSide()
	force := s.ForceAllPageRunInMainProcessScriptSide()
	snap := Snapshot{
		Switches:              make(map[string]bool, len(s.types)),
		EnableURLData:         s.EnableURLData(),
		DisableURLData:        s.DisableURLData(),
		MainProcessScriptSide: &main,
		ForceMainProcess:      &force,
	}
	if def := s.DefaultEngine(); def != nil {
		snap.Default = def.Name()
	}
	for _, t := range s.types {
		snap.Switches[t.Name()] = t.On()
	}
	return snap
}

// Apply updates the selector from a snapshot. Variant names match case
// insensitively; unknown names are logged and skipped. Unset fields leave the
// current value.
func (s *Selector) Apply(snap Snapshot) {
	if snap.Default != "" {
		if t, ok := s.lookupFold(snap.Default); ok {
			s.SetDefaultEngine(t)
		} else {
			s.logger.Warn("engine: unknown default engine in config", "engine", snap.Default)
		}
	}

	names := make([]string, 0, len(snap.Switches))
	for name := range snap.Switches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t, ok := s.lookupFold(name)
		if !ok {
			s.logger.Warn("engine: unknown engine switch in config", "engine", name)
			continue
		}
		s.SetEngineSwitch(t, snap.Switches[name])
	}

	if snap.EnableURLData != "" {
		s.UpdateEnableURLData(snap.EnableURLData)
	}
	if snap.DisableURLData != "" {
		s.UpdateDisableURLData(snap.DisableURLData)
	}
	if snap.MainProcessScriptSide != nil {
		s.SetEnableMainProcessScriptSide(*snap.MainProcessScriptSide)
	}
	if snap.ForceMainProcess != nil {
		s.SetForceAllPageRunInMainProcessScriptSide(*snap.ForceMainProcess)
	}
}

// FileStore persists selector snapshots as YAML files.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot file path.
func (fs *FileStore) Path() string { return fs.path }

// Load reads the stored snapshot. A missing file yields nil and no error.
func (fs *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	dir := filepath.Dir(fs.path)
	base := filepath.Base(fs.path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open directory %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	file, err := root.Open(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open engine snapshot %q: %w", base, err)
	}
	defer func() { _ = file.Close() }()

	var snap Snapshot
	if err := yaml.NewDecoder(file).DecodeContext(ctx, &snap); err != nil {
		return nil, fmt.Errorf("decoding engine snapshot YAML: %w", err)
	}
	return &snap, nil
}

// Save writes the snapshot, replacing any previous one.
func (fs *FileStore) Save(ctx context.Context, snap Snapshot) error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}

	data, err := yaml.MarshalContext(ctx, snap)
	if err != nil {
		return fmt.Errorf("encoding engine snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".engine-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing engine snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing engine snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("replacing engine snapshot %q: %w", fs.path, err)
	}
	return nil
}

func (s *Selector) lookupFold(name string) (*Type, bool) {
	if t, ok := s.Lookup(name); ok {
		return t, true
	}
	for _, t := range s.types {
		if strings.EqualFold(t.name, name) {
			return t, true
		}
	}
	return nil, false
}

// Package parser turns manifest files into capability manifests.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reglet-dev/reactor-sdk/capability"
)

// ManifestParser decodes one manifest encoding.
type ManifestParser interface {
	// Parse returns the validated manifest held in data.
	Parse(data []byte) (*capability.Manifest, error)
}

// ForPath returns the parser matching the file extension of path.
func ForPath(path string) (ManifestParser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONManifestParser(), nil
	case ".yaml", ".yml":
		return NewYamlManifestParser(), nil
	}
	return nil, fmt.Errorf("unsupported manifest format: %s", path)
}

// validate checks the manifest version and module names.
func validate(m *capability.Manifest) error {
	if m.Version == "" {
		return fmt.Errorf("manifest version is required")
	}
	if err := m.CheckVersion(capability.SupportedManifestVersions); err != nil {
		return err
	}
	seen := make(map[string]bool, len(m.Modules))
	for i, mod := range m.Modules {
		if strings.TrimSpace(mod.Name) == "" {
			return fmt.Errorf("module %d: name is required", i)
		}
		if seen[mod.Name] {
			return fmt.Errorf("module %s: declared twice", mod.Name)
		}
		seen[mod.Name] = true
	}
	return nil
}

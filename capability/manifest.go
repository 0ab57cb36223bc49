package capability

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ManifestVersion is the manifest format version produced by Catalog.Manifest.
const ManifestVersion = "1.0.0"

// SupportedManifestVersions is the constraint manifests must satisfy.
const SupportedManifestVersions = "^1.0"

// Manifest lists capability modules and their exposed methods.
// The script side uses it to know which native calls exist.
type Manifest struct {
	Version string           `json:"version" yaml:"version"`
	Modules []ModuleManifest `json:"modules" yaml:"modules"`
}

// ModuleManifest lists the exposed methods of one module.
type ModuleManifest struct {
	Name    string   `json:"name" yaml:"name"`
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// Module returns the entry for name.
func (m *Manifest) Module(name string) (ModuleManifest, bool) {
	for _, mod := range m.Modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return ModuleManifest{}, false
}

// CheckVersion verifies the manifest version satisfies constraint.
func (m *Manifest) CheckVersion(constraint string) error {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return fmt.Errorf("invalid manifest version %q: %w", m.Version, err)
	}
	if !c.Check(v) {
		return fmt.Errorf("manifest version %s does not satisfy %s", v, constraint)
	}
	return nil
}

package parser

import (
	"fmt"

	"github.com/reglet-dev/reactor-sdk/capability"
	"gopkg.in/yaml.v3"
)

// YamlManifestParser reads capability manifests written as YAML.
type YamlManifestParser struct{}

// NewYamlManifestParser returns the YAML manifest reader.
func NewYamlManifestParser() ManifestParser {
	return &YamlManifestParser{}
}

// Parse decodes data with the same checks as the JSON reader.
func (p *YamlManifestParser) Parse(data []byte) (*capability.Manifest, error) {
	var manifest capability.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest YAML: %w", err)
	}
	if err := validate(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

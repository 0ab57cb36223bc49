package parser

import (
	"encoding/json"
	"fmt"

	"github.com/reglet-dev/reactor-sdk/capability"
)

// JSONManifestParser reads capability manifests written as JSON.
type JSONManifestParser struct{}

// NewJSONManifestParser returns the JSON manifest reader.
func NewJSONManifestParser() ManifestParser {
	return &JSONManifestParser{}
}

// Parse decodes data and rejects manifests with an unsupported version or
// missing or duplicate module names.
func (p *JSONManifestParser) Parse(data []byte) (*capability.Manifest, error) {
	var manifest capability.Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest JSON: %w", err)
	}
	if err := validate(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

// Package registry implements a schema registry for capability call arguments.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

const draft2020 = "https://json-schema.org/draft/2020-12/schema"

// ErrInvalidArguments is returned when call arguments fail schema validation.
var ErrInvalidArguments = errors.New("invalid capability arguments")

// Registry implements SchemaRegistry using in-memory storage.
type Registry struct {
	schemas    map[string]string
	compiled   map[string]*validator.Schema
	mu         sync.RWMutex
	strictMode bool
	reflector  *jsonschema.Reflector

	// argsReflector keeps named types as $defs references so parameter
	// schemas can share one root.
	argsReflector *jsonschema.Reflector
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithStrictMode compiles schemas at registration and rejects invalid ones.
// Otherwise compilation is deferred to the first validation.
func WithStrictMode(strict bool) RegistryOption {
	return func(r *Registry) {
		r.strictMode = strict
	}
}

// NewRegistry creates a new schema registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		schemas:       make(map[string]string),
		compiled:      make(map[string]*validator.Schema),
		reflector:     new(jsonschema.Reflector),
		argsReflector: new(jsonschema.Reflector),
		strictMode:    true,
	}

	r.reflector.ExpandedStruct = true

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds a schema for a method.
// model can be a Go struct (to generate schema) or a raw JSON schema string, map or byte slice.
func (r *Registry) Register(kind string, model interface{}) error {
	var schemaStr string

	switch v := model.(type) {
	case string:
		schemaStr = v
	case []byte:
		schemaStr = string(v)
	case map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal schema map: %w", err)
		}
		schemaStr = string(b)
	default:
		if !isStruct(model) {
			return fmt.Errorf("cannot generate schema for %T: not a struct", model)
		}
		b, err := json.MarshalIndent(r.reflector.Reflect(model), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal generated schema: %w", err)
		}
		schemaStr = string(b)
	}

	return r.save(kind, schemaStr)
}

// RegisterArgs registers an array schema whose items follow the reflected
// schema of each parameter model, in order. Extra arguments are rejected.
func (r *Registry) RegisterArgs(kind string, params ...interface{}) error {
	defs := map[string]interface{}{}
	items := make([]interface{}, 0, len(params))
	for i, p := range params {
		b, err := json.Marshal(r.argsReflector.Reflect(p))
		if err != nil {
			return fmt.Errorf("failed to marshal schema of parameter %d: %w", i, err)
		}
		var item map[string]interface{}
		if err := json.Unmarshal(b, &item); err != nil {
			return fmt.Errorf("failed to decode schema of parameter %d: %w", i, err)
		}
		// Subschemas are not resources: definitions move to the root.
		delete(item, "$schema")
		delete(item, "$id")
		if d, ok := item["$defs"].(map[string]interface{}); ok {
			for name, def := range d {
				defs[name] = def
			}
			delete(item, "$defs")
		}
		items = append(items, item)
	}

	schema := map[string]interface{}{
		"$schema":     draft2020,
		"type":        "array",
		"prefixItems": items,
		"maxItems":    len(params),
	}
	if len(defs) > 0 {
		schema["$defs"] = defs
	}

	b, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal argument schema: %w", err)
	}
	return r.save(kind, string(b))
}

func (r *Registry) save(kind, schemaStr string) error {
	if strings.TrimSpace(kind) == "" {
		return fmt.Errorf("schema kind cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schemas[kind]; exists {
		return fmt.Errorf("schema already registered: %s", kind)
	}

	if r.strictMode {
		compiled, err := compile(kind, schemaStr)
		if err != nil {
			return err
		}
		r.compiled[kind] = compiled
	}

	r.schemas[kind] = schemaStr
	return nil
}

// GetSchema retrieves the JSON Schema for a method.
func (r *Registry) GetSchema(kind string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[kind]
	return s, ok
}

// List returns all registered method keys, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.schemas))
	for k := range r.schemas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks a JSON argument array against the schema of kind.
// Empty or null arguments validate as an empty array.
func (r *Registry) Validate(kind string, args json.RawMessage) error {
	schema, err := r.schemaFor(kind)
	if err != nil || schema == nil {
		return err
	}

	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("[]")
	}

	var instance interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, kind, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, kind, err)
	}
	return nil
}

func (r *Registry) schemaFor(kind string) (*validator.Schema, error) {
	r.mu.RLock()
	compiled, ok := r.compiled[kind]
	raw, registered := r.schemas[kind]
	r.mu.RUnlock()

	if ok || !registered {
		return compiled, nil
	}

	compiled, err := compile(kind, raw)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled[kind] = compiled
	return compiled, nil
}

func compile(kind, schemaStr string) (*validator.Schema, error) {
	url := "mem://schemas/" + kind + ".json"
	c := validator.NewCompiler()
	c.Draft = validator.Draft2020
	if err := c.AddResource(url, strings.NewReader(schemaStr)); err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema for %s: %w", kind, err)
	}
	return s, nil
}

func isStruct(model interface{}) bool {
	t := reflect.TypeOf(model)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

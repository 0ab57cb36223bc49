package registry

import "encoding/json"

// SchemaRegistry manages JSON schemas for capability call arguments.
// Schemas are keyed by "module.method".
type SchemaRegistry interface {
	// Register adds a schema for a method.
	// model can be a struct (to generate schema) or a JSON schema string/map.
	Register(kind string, model interface{}) error

	// RegisterArgs registers the schema of a positional argument list,
	// one model per parameter.
	RegisterArgs(kind string, params ...interface{}) error

	// GetSchema returns the JSON schema for a method.
	GetSchema(kind string) (string, bool)

	// List returns all registered method keys, sorted.
	List() []string

	// Validate checks args against the schema of kind.
	// Kinds without a schema always validate.
	Validate(kind string, args json.RawMessage) error
}

// Key builds the registry key of a capability method.
func Key(module, method string) string {
	return module + "." + method
}

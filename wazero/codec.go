package wazero

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// LogRecord is a log entry emitted by a guest.
type LogRecord struct {
	Level   string    `cbor:"level"`
	Message string    `cbor:"message"`
	Attrs   []LogAttr `cbor:"attrs,omitempty"`
}

// LogAttr is one typed log attribute. Value holds the textual form.
type LogAttr struct {
	Key   string `cbor:"key"`
	Type  string `cbor:"type"`
	Value string `cbor:"value"`
}

// NativeCall is a capability call issued by a guest.
type NativeCall struct {
	Module string `cbor:"module"`
	Method string `cbor:"method"`
	// Args is a JSON array of positional arguments.
	Args []byte `cbor:"args,omitempty"`
}

// NativeResult answers a NativeCall.
type NativeResult struct {
	// Value is the JSON encoded return value.
	Value    []byte `cbor:"value,omitempty"`
	Deferred bool   `cbor:"deferred,omitempty"`
	Error    string `cbor:"error,omitempty"`
}

// NativeCaller serves capability calls issued by guests.
type NativeCaller interface {
	CallNative(ctx context.Context, instanceID string, call NativeCall) (NativeResult, error)
}

// Encode marshals v as CBOR.
func Encode(v any) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode %T: %w", v, err)
	}
	return data, nil
}

// Decode unmarshals CBOR data into v.
func Decode(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor decode %T: %w", v, err)
	}
	return nil
}

type instanceKey struct{}

// WithInstanceID tags ctx with the page instance a guest call belongs to.
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceKey{}, id)
}

// InstanceID returns the page instance of ctx, or "" when untagged.
func InstanceID(ctx context.Context) string {
	id, _ := ctx.Value(instanceKey{}).(string)
	return id
}

package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Meta is the capability metadata attached to a declared method.
type Meta struct {
	// Alias is the name scripts use. Empty means the method's own name.
	Alias string

	// UIThread requires the method to run on the UI execution context.
	UIThread bool
}

// Invoker calls one capability method on receiver.
// args is a JSON array of positional arguments; null or empty means none.
type Invoker func(ctx context.Context, receiver any, args json.RawMessage) (any, error)

// Declared is one method of a capability type, as reported by its Source.
type Declared struct {
	// Name is the method's own name.
	Name string

	// Meta is nil when the method is not exposed to scripts.
	Meta *Meta

	// Invoke calls the method. Required when Meta is set.
	Invoke Invoker

	// Err records a declaration problem found while describing the method.
	Err error
}

// Source describes a capability type: its name, its declared methods and how
// to construct an instance.
type Source interface {
	// Name returns the module name scripts address the capability by.
	Name() string

	// Methods returns the declared methods in declaration order.
	Methods() []Declared

	// New constructs a fresh instance of the capability type.
	New() (any, error)
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// reflectSource describes the method set of *T.
type reflectSource[T any] struct {
	name    string
	exposed map[string]Meta
	ctor    func() (*T, error)
}

// Declare describes capability type T. exposed maps Go method names of *T to
// their metadata; methods absent from the map are declared but not exposed.
//
// Exposed methods may take a leading context.Context followed by JSON-decodable
// parameters and return nothing, a value, an error, or a value and an error.
func Declare[T any](name string, exposed map[string]Meta) Source {
	return DeclareWith[T](name, nil, exposed)
}

// DeclareWith is Declare with a custom constructor.
// A nil ctor constructs a zero T.
func DeclareWith[T any](name string, ctor func() (*T, error), exposed map[string]Meta) Source {
	return &reflectSource[T]{name: name, exposed: exposed, ctor: ctor}
}

func (s *reflectSource[T]) Name() string {
	return s.name
}

// Methods lists the method set of *T in the order reflection reports it
// (lexicographic), followed by exposed names that match no method.
func (s *reflectSource[T]) Methods() []Declared {
	t := reflect.TypeFor[*T]()

	out := make([]Declared, 0, t.NumMethod())
	matched := make(map[string]bool, len(s.exposed))
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		d := Declared{Name: m.Name}
		if meta, ok := s.exposed[m.Name]; ok {
			matched[m.Name] = true
			d.Meta = &meta
			inv, err := reflectInvoker(m)
			if err != nil {
				d.Err = err
			} else {
				d.Invoke = inv
			}
		}
		out = append(out, d)
	}

	var unmatched []string
	for name := range s.exposed {
		if !matched[name] {
			unmatched = append(unmatched, name)
		}
	}
	sort.Strings(unmatched)
	for _, name := range unmatched {
		meta := s.exposed[name]
		out = append(out, Declared{
			Name: name,
			Meta: &meta,
			Err:  fmt.Errorf("%w: %q on %s", ErrNoSuchMethod, name, t),
		})
	}
	return out
}

func (s *reflectSource[T]) New() (any, error) {
	if s.ctor == nil {
		return new(T), nil
	}
	v, err := s.ctor()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("constructor returned nil")
	}
	return v, nil
}

// reflectInvoker builds an Invoker for a method value obtained from a
// pointer type's method set.
func reflectInvoker(m reflect.Method) (Invoker, error) {
	ft := m.Type
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic method %s is not supported", m.Name)
	}

	first := 1 // In(0) is the receiver
	withContext := ft.NumIn() > first && ft.In(first) == contextType
	if withContext {
		first++
	}
	params := make([]reflect.Type, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		params = append(params, ft.In(i))
	}

	numOut := ft.NumOut()
	returnsErr := numOut > 0 && ft.Out(numOut-1) == errorType
	switch {
	case numOut > 2:
		return nil, fmt.Errorf("method %s returns %d values", m.Name, numOut)
	case numOut == 2 && !returnsErr:
		return nil, fmt.Errorf("method %s: second result must be error", m.Name)
	}
	receiverType := ft.In(0)

	return func(ctx context.Context, receiver any, args json.RawMessage) (any, error) {
		rv := reflect.ValueOf(receiver)
		if !rv.IsValid() || rv.Type() != receiverType {
			return nil, fmt.Errorf("%s: receiver is %T, want %s", m.Name, receiver, receiverType)
		}

		raw, err := splitArgs(args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		if len(raw) > len(params) {
			return nil, fmt.Errorf("%s: got %d arguments, want at most %d", m.Name, len(raw), len(params))
		}

		in := make([]reflect.Value, 0, 2+len(params))
		in = append(in, rv)
		if withContext {
			if ctx == nil {
				ctx = context.Background()
			}
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, pt := range params {
			pv := reflect.New(pt)
			if i < len(raw) {
				if err := json.Unmarshal(raw[i], pv.Interface()); err != nil {
					return nil, fmt.Errorf("%s: argument %d: %w", m.Name, i, err)
				}
			}
			in = append(in, pv.Elem())
		}

		out := m.Func.Call(in)

		if returnsErr {
			if ev := out[len(out)-1]; !ev.IsNil() {
				return nil, ev.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out[0].Interface(), nil
	}, nil
}

// splitArgs decodes a JSON array of arguments into its elements.
func splitArgs(args json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON array: %w", err)
	}
	return raw, nil
}

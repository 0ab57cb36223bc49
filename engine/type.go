// Package engine selects the script runtime variant that executes a page.
package engine

import (
	"strings"
	"sync/atomic"
)

// Kind is a capability bitmask of a script runtime variant.
type Kind uint32

// Built-in runtime kinds. QJS includes the QJSBin bit: a QJS runtime also
// serves QJSBin pages.
const (
	KindJSC    Kind = 1
	KindQJSBin Kind = 2
	KindQJS    Kind = 4 | KindQJSBin
)

// Has reports whether k and other share a bit.
func (k Kind) Has(other Kind) bool {
	return k&other != 0
}

func (k Kind) String() string {
	switch k {
	case KindJSC:
		return "JSC"
	case KindQJSBin:
		return "QJSBin"
	case KindQJS:
		return "QJS"
	}
	var parts []string
	for _, known := range []Kind{KindJSC, KindQJS, KindQJSBin} {
		if k&known == known {
			parts = append(parts, known.String())
			k &^= known
		}
	}
	if k != 0 || len(parts) == 0 {
		return "unknown"
	}
	return strings.Join(parts, "|")
}

// ParseKind maps a runtime variant name to its Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "JSC":
		return KindJSC, true
	case "QJSBin":
		return KindQJSBin, true
	case "QJS":
		return KindQJS, true
	}
	return 0, false
}

// Type is one script runtime variant. Its switch is the only mutable field;
// reads are eventually consistent with SetEngineSwitch.
type Type struct {
	name string
	kind Kind
	on   atomic.Bool
}

// NewType creates a variant with an initial switch value.
func NewType(name string, kind Kind, on bool) *Type {
	t := &Type{name: name, kind: kind}
	t.on.Store(on)
	return t
}

// BuiltinTypes returns fresh JSC, QJSBin and QJS variants with their default
// switches (only JSC on).
func BuiltinTypes() []*Type {
	return []*Type{
		NewType("JSC", KindJSC, true),
		NewType("QJSBin", KindQJSBin, false),
		NewType("QJS", KindQJS, false),
	}
}

// Name returns the variant name.
func (t *Type) Name() string { return t.name }

// Kind returns the variant bitmask.
func (t *Type) Kind() Kind { return t.kind }

// On returns the variant's own switch value.
func (t *Type) On() bool { return t.on.Load() }

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.name
}

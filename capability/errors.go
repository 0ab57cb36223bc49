package capability

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error patterns.
// These allow both errors.Is() checks and errors.As() for detailed information.
var (
	// ErrInstantiation is returned when a capability type cannot be constructed.
	ErrInstantiation = errors.New("capability instantiation failed")

	// ErrMalformedDeclaration marks a method declaration excluded from a registry.
	ErrMalformedDeclaration = errors.New("malformed capability declaration")

	// ErrNoSuchMethod marks an exposed name that matches no method of the type.
	// Sources report it in Declared.Err; such entries are not declared methods.
	ErrNoSuchMethod = errors.New("no such method")
)

// InstantiationError indicates the constructor of a capability type failed.
type InstantiationError struct {
	Err  error
	Type string
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("cannot instantiate capability %s: %v", e.Type, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, capability.ErrInstantiation)
func (e *InstantiationError) Is(target error) bool {
	return target == ErrInstantiation
}

// MalformedDeclarationError describes a declared method that was not registered.
// It is logged, never returned from a build.
type MalformedDeclarationError struct {
	Type   string
	Method string
	Reason string
}

func (e *MalformedDeclarationError) Error() string {
	return fmt.Sprintf("malformed declaration %s.%s: %s", e.Type, e.Method, e.Reason)
}

// Is implements error matching for errors.Is() checks.
func (e *MalformedDeclarationError) Is(target error) bool {
	return target == ErrMalformedDeclaration
}

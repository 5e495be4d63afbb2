// Package storeerr defines the error kinds raised by the storage engine's
// core packages (typesys, objectstore, rawstore, index, backend).
//
// Every kind wraps enough context to locate the offending key, class or
// path, and every kind satisfies errors.Is against its sentinel and
// errors.As against its concrete type.
package storeerr

import (
	"errors"
	"fmt"
)

// Sentinels. Use errors.Is(err, storeerr.ErrNotFound) etc. to classify.
var (
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownProperty      = errors.New("unknown property")
	ErrReservedProperty     = errors.New("reserved property")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrRelationTypeMismatch = errors.New("relation type mismatch")
	ErrBackendFailure       = errors.New("backend failure")
	ErrUnsupported          = errors.New("unsupported")
	ErrNotRegistered        = errors.New("not registered")
)

// InvalidValue reports a type-validation failure at a given property path.
type InvalidValue struct {
	Path   string
	Reason string
}

func NewInvalidValue(path, reason string) *InvalidValue {
	return &InvalidValue{Path: path, Reason: reason}
}

func (e *InvalidValue) Error() string {
	return fmt.Sprintf("invalid value at %s: %s", e.Path, e.Reason)
}

func (e *InvalidValue) Is(target error) bool { return target == ErrInvalidValue }

// UnknownProperty reports an attempt to set/get an undeclared attribute name.
type UnknownProperty struct {
	Class    string
	Property string
}

func (e *UnknownProperty) Error() string {
	return fmt.Sprintf("%s: unknown property %q", e.Class, e.Property)
}

func (e *UnknownProperty) Is(target error) bool { return target == ErrUnknownProperty }

// ReservedProperty reports an attempt to set a property name from the
// reserved set {type, oid, updates}.
type ReservedProperty struct {
	Class    string
	Property string
}

func (e *ReservedProperty) Error() string {
	return fmt.Sprintf("%s: %q is a reserved property name", e.Class, e.Property)
}

func (e *ReservedProperty) Is(target error) bool { return target == ErrReservedProperty }

// NotFound reports a missed OID lookup or index one() miss.
type NotFound struct {
	Class string
	OID   string
	Key   string
}

func (e *NotFound) Error() string {
	switch {
	case e.OID != "":
		return fmt.Sprintf("%s/%s: not found", e.Class, e.OID)
	case e.Key != "":
		return fmt.Sprintf("%s: key %q: not found", e.Class, e.Key)
	default:
		return fmt.Sprintf("%s: not found", e.Class)
	}
}

func (e *NotFound) Is(target error) bool { return target == ErrNotFound }

// AlreadyExists reports an Add on a duplicate OID/key.
type AlreadyExists struct {
	Class string
	OID   string
}

func (e *AlreadyExists) Error() string {
	return fmt.Sprintf("%s/%s: already exists", e.Class, e.OID)
}

func (e *AlreadyExists) Is(target error) bool { return target == ErrAlreadyExists }

// RelationTypeMismatch reports an attempt to relate to an object whose
// class is not the declared target class (or a subclass of it).
type RelationTypeMismatch struct {
	Attribute string
	Want      string
	Got       string
}

func (e *RelationTypeMismatch) Error() string {
	return fmt.Sprintf("relation %q: expected class %s, got %s", e.Attribute, e.Want, e.Got)
}

func (e *RelationTypeMismatch) Is(target error) bool { return target == ErrRelationTypeMismatch }

// BackendFailure wraps any lower-layer error with the offending key.
type BackendFailure struct {
	Key string
	Err error
}

func NewBackendFailure(key string, err error) *BackendFailure {
	return &BackendFailure{Key: key, Err: err}
}

func (e *BackendFailure) Error() string {
	return fmt.Sprintf("backend failure at %q: %v", e.Key, e.Err)
}

func (e *BackendFailure) Unwrap() error { return e.Err }

func (e *BackendFailure) Is(target error) bool { return target == ErrBackendFailure }

// Unsupported reports a missing backend capability.
type Unsupported struct {
	Capability string
	Reason     string
}

func (e *Unsupported) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported: %s: %s", e.Capability, e.Reason)
	}
	return fmt.Sprintf("unsupported: %s", e.Capability)
}

func (e *Unsupported) Is(target error) bool { return target == ErrUnsupported }

// NotRegistered reports a class method invoked without a bound store.
type NotRegistered struct {
	Class string
}

func (e *NotRegistered) Error() string {
	return fmt.Sprintf("%s: not registered with a store", e.Class)
}

func (e *NotRegistered) Is(target error) bool { return target == ErrNotRegistered }

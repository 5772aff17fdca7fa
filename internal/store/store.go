// Package store provides the durable key-value namespace that holds the
// calibration threshold and the pump counter across power cycles.
//
// A namespace is opened for a bounded scope and closed again; values written
// inside a scope become durable when Close returns without error.
package store

import (
	"errors"
	"fmt"
)

// Persisted keys.
const (
	KeyThreshold = "capValue"  // int32, 0 = unset
	KeyPumpCount = "totalPump" // uint32, pumps since last calibration
)

// DefaultNamespace is the bucket the controller uses.
const DefaultNamespace = "irrigator"

// ErrUnavailable is returned when the durable medium cannot be opened.
var ErrUnavailable = errors.New("store: unavailable")

// Scope is an open read-write view of one namespace.
// Writes are committed at Close.
type Scope interface {
	Has(key string) bool
	GetInt(key string, def int32) int32
	PutInt(key string, value int32)
	GetUint(key string, def uint32) uint32
	PutUint(key string, value uint32)
	Close() error
}

// Namespace opens scopes over a named set of keys.
type Namespace interface {
	// Open begins a read-write scope. Only one scope may be open at a time.
	Open() (Scope, error)
	// Durable reports whether writes survive a restart.
	Durable() bool
	// Close releases the underlying medium.
	Close() error
}

// Open opens the bbolt-backed namespace at path. If the file cannot be opened
// it returns a Discard namespace together with an error wrapping
// ErrUnavailable, so the caller can log a degraded-mode warning and carry on
// with in-memory defaults.
func Open(path, namespace string) (Namespace, error) {
	b, err := OpenBolt(path, namespace)
	if err != nil {
		return Discard{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return b, nil
}

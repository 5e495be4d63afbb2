// Package oid generates the opaque, stable, class-unique identifiers
// assigned to stored objects the first time they are saved.
//
// Grounded on the teacher's store/id.go (an Id pairing a type id and an
// object id, rendered as hex), generalized here to a single opaque
// string per spec §3 and made time-sortable by using UUIDv7 instead of
// a monotonic counter, so that OIDs minted close together in time also
// sort close together lexicographically.
package oid

import (
	"github.com/google/uuid"
)

// New mints a fresh OID. OIDs are opaque to callers: no field of an OID
// may be parsed back out, and no ordering beyond rough time-locality is
// guaranteed.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system clock is unreadable; fall back to
		// a random v4 rather than propagating an error through every Save.
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s has the shape of an OID minted by New. It does
// not check that the OID refers to an existing object.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

package oid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/oid"
)

func TestNewIsValidAndUnique(t *testing.T) {
	a := oid.New()
	b := oid.New()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
	require.True(t, oid.Valid(a))
	require.True(t, oid.Valid(b))
}

func TestValidRejectsGarbage(t *testing.T) {
	require.False(t, oid.Valid("not-a-uuid"))
	require.False(t, oid.Valid(""))
}

func TestNewProducesDistinctValidIDs(t *testing.T) {
	seen := make(map[string]bool, 20)
	for i := 0; i < 20; i++ {
		id := oid.New()
		require.True(t, oid.Valid(id))
		require.False(t, seen[id], "duplicate OID minted: %s", id)
		seen[id] = true
	}
}

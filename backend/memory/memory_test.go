package memory_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/backend/memory"
)

func TestAddRejectsDuplicateKey(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.Add("k", []byte("v1")))
	err := be.Add("k", []byte("v2"))
	require.Error(t, err)
}

func TestUpdateCreatesIfAbsent(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.Update("k", []byte("v1")))
	v, ok, err := be.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestRemoveIsIdempotent(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.Remove("absent"))
	require.NoError(t, be.Add("k", []byte("v")))
	require.NoError(t, be.Remove("k"))
	require.NoError(t, be.Remove("k"))
}

func TestKeysEnumeratesByPrefixInOrder(t *testing.T) {
	be := memory.New()
	for _, k := range []string{"b/2", "a/1", "b/1", "a/2"} {
		require.NoError(t, be.Add(k, []byte("v")))
	}

	var got []string
	keys, err := be.Keys("b/")
	require.NoError(t, err)
	for k := range keys {
		got = append(got, k)
	}
	require.Equal(t, []string{"b/1", "b/2"}, got)
}

func TestClearRemovesEverything(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.Add("k", []byte("v")))
	require.NoError(t, be.Clear())
	ok, err := be.Has("k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCapabilitiesAdvertisesOptionalExtensions(t *testing.T) {
	be := memory.New()
	caps := be.Capabilities()
	require.True(t, caps.Has(backend.ObjectsOpt))
	require.False(t, caps.Has(backend.Filesystem))
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	be := memory.New()
	require.NoError(t, be.Add("k", []byte("v")))
	v1, _, _ := be.Get("k")
	v1[0] = 'X'
	v2, _, _ := be.Get("k")
	require.Equal(t, byte('v'), v2[0])
}

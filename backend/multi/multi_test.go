package multi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/backend/memory"
	"github.com/guyvdb/objectengine/backend/multi"
)

func TestAddFansOutToAllMembers(t *testing.T) {
	a, b := memory.New(), memory.New()
	m := multi.New(a, b)

	require.NoError(t, m.Add("k", []byte("v")))
	va, _, _ := a.Get("k")
	vb, _, _ := b.Get("k")
	require.Equal(t, []byte("v"), va)
	require.Equal(t, []byte("v"), vb)
}

func TestGetServedByFirstMemberThatHasKey(t *testing.T) {
	a, b := memory.New(), memory.New()
	require.NoError(t, b.Add("k", []byte("from-b")))
	m := multi.New(a, b)

	v, ok, err := m.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("from-b"), v)
}

func TestCapabilitiesUnionsMembers(t *testing.T) {
	a, b := memory.New(), memory.New()
	m := multi.New(a, b)
	require.True(t, m.Capabilities().Has(backend.ObjectsOpt))
}

func TestRemoveAppliesToAllMembers(t *testing.T) {
	a, b := memory.New(), memory.New()
	require.NoError(t, a.Add("k", []byte("v")))
	require.NoError(t, b.Add("k", []byte("v")))
	m := multi.New(a, b)

	require.NoError(t, m.Remove("k"))
	okA, _ := a.Has("k")
	okB, _ := b.Has("k")
	require.False(t, okA)
	require.False(t, okB)
}

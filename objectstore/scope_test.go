package objectstore_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/backend"
	"github.com/guyvdb/objectengine/backend/memory"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/objectstore"
)

// failAfterN wraps a Backend and fails every Add/Update once n writes have
// gone through, to simulate a mid-scope save failure.
type failAfterN struct {
	backend.Backend
	remaining int
}

var errSimulatedWriteFailure = errors.New("simulated write failure")

func (f *failAfterN) Add(key string, value []byte) error {
	if f.remaining <= 0 {
		return errSimulatedWriteFailure
	}
	f.remaining--
	return f.Backend.Add(key, value)
}

func (f *failAfterN) Update(key string, value []byte) error {
	if f.remaining <= 0 {
		return errSimulatedWriteFailure
	}
	f.remaining--
	return f.Backend.Update(key, value)
}

func TestScopeSavesDirtyInstanceOnExitWithoutExplicitSave(t *testing.T) {
	st := newAccountStore(t)

	var a *Account
	err := st.Scope(func() error {
		a = st.New()
		require.NoError(t, a.SetEmail("a@x"))
		return nil
	})
	require.NoError(t, err)
	oid := a.OID()
	require.NotEmpty(t, oid)

	loaded, err := st.Get(oid)
	require.NoError(t, err)
	require.Equal(t, "a@x", loaded.Email())
}

func TestScopeLeavesUntouchedObjectUnsaved(t *testing.T) {
	st := newAccountStore(t)
	a := st.New()
	require.NoError(t, a.SetEmail("clean@x"))
	require.NoError(t, st.Save(a))

	err := st.Scope(func() error {
		loaded, gerr := st.Get(a.OID())
		require.NoError(t, gerr)
		require.False(t, loaded.IsDirty())
		return nil
	})
	require.NoError(t, err)
}

func TestScopeSavesEachDirtyInstanceExactlyOnce(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	var comments []*Comment
	err := st.Scope(func() error {
		for i := 0; i < 3; i++ {
			c := st.New()
			require.NoError(t, c.SetBody("body"))
			comments = append(comments, c)
		}
		return nil
	})
	require.NoError(t, err)

	for _, c := range comments {
		loaded, gerr := st.Get(c.OID())
		require.NoError(t, gerr)
		require.Equal(t, "body", loaded.Body())
	}
}

func TestScopeFnErrorSkipsFlush(t *testing.T) {
	st := newAccountStore(t)
	boom := errors.New("boom")

	var oid string
	err := st.Scope(func() error {
		a := st.New()
		require.NoError(t, a.SetEmail("a@x"))
		oid = a.OID()
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, gerr := st.Get(oid)
	require.Error(t, gerr, "fn's error must abort the flush, leaving the instance unsaved")
}

func TestScopeMidFlushFailureKeepsEarlierSavesAndNamesOID(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(accountDescriptor())
	be := &failAfterN{Backend: memory.New(), remaining: 1}
	st := objectstore.Open[Account](be, desc)

	var a, b *Account
	err := st.Scope(func() error {
		a = st.New()
		require.NoError(t, a.SetEmail("first@x"))

		b = st.New()
		require.NoError(t, b.SetEmail("second@x"))
		return nil
	})
	require.Error(t, err)
	firstOID, secondOID := a.OID(), b.OID()
	require.Contains(t, err.Error(), secondOID)

	_, gerr := st.Get(firstOID)
	require.NoError(t, gerr, "the object saved before the failure must stay saved")

	_, gerr = st.Get(secondOID)
	require.Error(t, gerr, "the object that failed to save must not be persisted")
}

func TestNestedScopeFlushesOnlyAtOutermostExit(t *testing.T) {
	st := newAccountStore(t)

	var a *Account
	err := st.Scope(func() error {
		return st.Scope(func() error {
			a = st.New()
			require.NoError(t, a.SetEmail("nested@x"))
			return nil
		})
	})
	require.NoError(t, err)

	loaded, gerr := st.Get(a.OID())
	require.NoError(t, gerr)
	require.Equal(t, "nested@x", loaded.Email())
}

package objectstore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/backend/memory"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/objectstore"
	"github.com/guyvdb/objectengine/storeerr"
	"github.com/guyvdb/objectengine/typesys"
)

type Account struct {
	objectstore.Base
}

func (a *Account) Email() string {
	v, _ := a.GetProperty("email")
	s, _ := v.(string)
	return s
}

func (a *Account) SetEmail(v string) error { return a.SetProperty("email", v) }

func accountDescriptor() *classreg.Descriptor {
	return &classreg.Descriptor{
		Name: "Account",
		Properties: map[string]*typesys.Descriptor{
			"email": typesys.TEmail(),
		},
	}
}

type Comment struct {
	objectstore.Base
}

func (c *Comment) Body() string {
	v, _ := c.GetProperty("body")
	s, _ := v.(string)
	return s
}

func (c *Comment) SetBody(v string) error { return c.SetProperty("body", v) }

func (c *Comment) Replies() ([]objectstore.Storable, error) { return c.Resolve("replies") }

func (c *Comment) AddReply(reply *Comment) error { return c.AddRelation("replies", reply) }

func (c *Comment) SetSeeAlso(other *Comment) error { return c.AddRelation("seeAlso", other) }

func commentDescriptor() *classreg.Descriptor {
	return &classreg.Descriptor{
		Name: "Comment",
		Properties: map[string]*typesys.Descriptor{
			"body": typesys.TString(),
		},
		Relations: map[string]classreg.Relation{
			"replies": {Target: "Comment", Plural: true},
			"seeAlso": {Target: "Comment", Plural: false},
		},
	}
}

func newAccountStore(t *testing.T) *objectstore.Store[Account, *Account] {
	t.Helper()
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(accountDescriptor())
	return objectstore.Open[Account](memory.New(), desc)
}

func TestSaveAssignsOIDAndRoundTripsProperty(t *testing.T) {
	st := newAccountStore(t)

	a := st.New()
	require.NoError(t, a.SetEmail("A@x"))
	require.NoError(t, st.Save(a))
	require.NotEmpty(t, a.OID())

	loaded, err := st.Get(a.OID())
	require.NoError(t, err)
	require.Equal(t, "A@x", loaded.Email())
}

func TestSaveStampsUpdatesMonotonically(t *testing.T) {
	st := newAccountStore(t)

	a := st.New()
	require.NoError(t, a.SetEmail("A@x"))
	require.NoError(t, st.Save(a))

	require.GreaterOrEqual(t, a.UpdatedAt("email"), a.UpdatedAt("oid"))
}

func TestGetReturnsSameInstanceWhileReferenced(t *testing.T) {
	st := newAccountStore(t)
	a := st.New()
	require.NoError(t, a.SetEmail("a@x"))
	require.NoError(t, st.Save(a))

	first, err := st.Get(a.OID())
	require.NoError(t, err)
	second, err := st.Get(a.OID())
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestGetUnknownOIDFailsWithNotFound(t *testing.T) {
	st := newAccountStore(t)
	_, err := st.Get("nonexistent")
	var nf *storeerr.NotFound
	require.ErrorAs(t, err, &nf)
}

func TestEnsureCreatesUnsavedInstanceForMissingOID(t *testing.T) {
	st := newAccountStore(t)
	a, err := st.Ensure("precomputed-oid")
	require.NoError(t, err)
	require.Equal(t, "precomputed-oid", a.OID())
	require.False(t, a.IsDirty())

	ok, err := st.Has("precomputed-oid")
	require.NoError(t, err)
	require.False(t, ok, "Ensure must not save")
}

func TestEnsureOnExistingReturnsSameIdentity(t *testing.T) {
	st := newAccountStore(t)
	a := st.New()
	require.NoError(t, a.SetEmail("a@x"))
	require.NoError(t, st.Save(a))

	ensured, err := st.Ensure(a.OID())
	require.NoError(t, err)
	require.Same(t, a, ensured)
}

func TestRemoveDeletesRecordAndInvalidatesCache(t *testing.T) {
	st := newAccountStore(t)
	a := st.New()
	require.NoError(t, a.SetEmail("a@x"))
	require.NoError(t, st.Save(a))
	oid := a.OID()

	require.NoError(t, st.Remove(a))
	ok, err := st.Has(oid)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPluralRelationDeduplicatesOnRepeatedAdd(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	a := st.New()
	require.NoError(t, a.SetBody("root"))
	require.NoError(t, st.Save(a))

	b := st.New()
	require.NoError(t, b.SetBody("reply"))
	require.NoError(t, st.Save(b))

	require.NoError(t, a.AddReply(b))
	require.NoError(t, a.AddReply(b))
	require.NoError(t, st.Save(a))

	reloaded, err := st.Get(a.OID())
	require.NoError(t, err)
	replies, err := reloaded.Replies()
	require.NoError(t, err)
	require.Len(t, replies, 1)
	require.Equal(t, b.OID(), replies[0].OID())
}

func TestAddRelationRejectsUnsavedTarget(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	a := st.New()
	b := st.New() // never saved, has no OID
	err := a.AddReply(b)
	require.Error(t, err)
}

func TestImportSkipsReservedAndRelationNames(t *testing.T) {
	st := newAccountStore(t)
	a, err := st.Import(map[string]any{
		"email": "a@x",
		"oid":   "should-be-ignored",
	})
	require.NoError(t, err)
	require.Equal(t, "a@x", a.Email())
	require.Empty(t, a.OID())
}

func TestExportDepth0OnlyIdentity(t *testing.T) {
	st := newAccountStore(t)
	a := st.New()
	require.NoError(t, a.SetEmail("a@x"))
	require.NoError(t, st.Save(a))

	out, err := objectstore.Export(a, 0)
	require.NoError(t, err)
	require.Equal(t, a.OID(), out["oid"])
	require.Equal(t, "Account", out["type"])
	require.NotContains(t, out, "properties")
}

func TestExportDepth1IncludesPropertiesAndStubs(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	a := st.New()
	require.NoError(t, a.SetBody("root"))
	require.NoError(t, st.Save(a))
	b := st.New()
	require.NoError(t, b.SetBody("reply"))
	require.NoError(t, st.Save(b))
	require.NoError(t, a.AddReply(b))
	require.NoError(t, st.Save(a))

	out, err := objectstore.Export(a, 1)
	require.NoError(t, err)
	props := out["properties"].(map[string]any)
	require.Equal(t, "root", props["body"])

	rels := out["relations"].(map[string]any)
	stubs := rels["replies"].([]any)
	require.Len(t, stubs, 1)
	stub := stubs[0].(map[string]any)
	require.Equal(t, b.OID(), stub["oid"])
}

func TestExportDepth2BreaksCycles(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	a := st.New()
	require.NoError(t, a.SetBody("a"))
	require.NoError(t, st.Save(a))
	b := st.New()
	require.NoError(t, b.SetBody("b"))
	require.NoError(t, st.Save(b))

	require.NoError(t, a.AddReply(b))
	require.NoError(t, st.Save(a))
	require.NoError(t, b.AddReply(a))
	require.NoError(t, st.Save(b))

	out, err := objectstore.Export(a, 2)
	require.NoError(t, err)
	rels := out["relations"].(map[string]any)
	bExport := rels["replies"].([]any)[0].(map[string]any)
	require.Equal(t, b.OID(), bExport["oid"])

	bRels := bExport["relations"].(map[string]any)
	aStub := bRels["replies"].([]any)[0].(map[string]any)
	require.Equal(t, a.OID(), aStub["oid"])
	require.NotContains(t, aStub, "properties", "revisit degrades to a depth-0 stub")
}

func TestExportDepth2DegradesSecondVisitOfSameTargetToStub(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(commentDescriptor())
	st := objectstore.Open[Comment](memory.New(), desc)

	shared := st.New()
	require.NoError(t, shared.SetBody("shared"))
	require.NoError(t, st.Save(shared))

	owner := st.New()
	require.NoError(t, owner.SetBody("owner"))
	require.NoError(t, owner.AddReply(shared))
	require.NoError(t, owner.SetSeeAlso(shared))
	require.NoError(t, st.Save(owner))

	out, err := objectstore.Export(owner, 2)
	require.NoError(t, err)
	rels := out["relations"].(map[string]any)

	replyExport := rels["replies"].([]any)[0].(map[string]any)
	require.Contains(t, replyExport, "properties", "first visit expands fully")

	seeAlsoExport := rels["seeAlso"].(map[string]any)
	require.NotContains(t, seeAlsoExport, "properties", "second visit of the same OID degrades to a stub")
	require.Equal(t, shared.OID(), seeAlsoExport["oid"])
}

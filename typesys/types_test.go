package typesys_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/typesys"
)

func TestBoolValidate(t *testing.T) {
	d := typesys.TBool()
	v, err := d.Validate("flag", true)
	require.NoError(t, err)
	require.Equal(t, true, v)

	_, err = d.Validate("flag", "true")
	require.Error(t, err)
}

func TestPositiveRejectsZeroAndNegative(t *testing.T) {
	d := typesys.TPositive()
	_, err := d.Validate("n", int64(0))
	require.Error(t, err)
	_, err = d.Validate("n", int64(-1))
	require.Error(t, err)
	v, err := d.Validate("n", int64(5))
	require.NoError(t, err)
	require.Equal(t, int64(5), v)
}

func TestLineForbidsNewlines(t *testing.T) {
	d := typesys.TLine()
	_, err := d.Validate("title", "hello\nworld")
	require.Error(t, err)
	v, err := d.Validate("title", "hello world")
	require.NoError(t, err)
	require.Equal(t, "hello world", v)
}

func TestEmailSyntacticOnly(t *testing.T) {
	d := typesys.TEmail()
	v, err := d.Validate("email", "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", v)

	_, err = d.Validate("email", "not-an-email")
	require.Error(t, err)
}

func TestEnumCaseSensitive(t *testing.T) {
	d := typesys.TEnum("Open", "Closed")
	_, err := d.Validate("status", "open")
	require.Error(t, err)
	v, err := d.Validate("status", "Open")
	require.NoError(t, err)
	require.Equal(t, "Open", v)
}

func TestRangeInclusiveBounds(t *testing.T) {
	d := typesys.TRange(0, 10, typesys.TFloat())
	v, err := d.Validate("n", 10.0)
	require.NoError(t, err)
	require.Equal(t, 10.0, v)
	_, err = d.Validate("n", 10.0001)
	require.Error(t, err)
}

func TestReferenceValidatesShapeOnly(t *testing.T) {
	d := typesys.TReference("Account")
	v, err := d.Validate("owner", typesys.Ref{Class: "Account", OID: "abc"})
	require.NoError(t, err)
	require.Equal(t, typesys.Ref{Class: "Account", OID: "abc"}, v)

	_, err = d.Validate("owner", typesys.Ref{Class: "Comment", OID: "abc"})
	require.Error(t, err)
}

func TestAnyAcceptsJSONPrimitiveTree(t *testing.T) {
	d := typesys.TAny()
	v, err := d.Validate("blob", map[string]any{"a": []any{1.0, "x", nil}})
	require.NoError(t, err)
	require.NotNil(t, v)

	_, err = d.Validate("blob", make(chan int))
	require.Error(t, err)
}

func TestDateTimeRoundTrip(t *testing.T) {
	d := typesys.TDateTime()
	now := time.Date(2026, 8, 6, 12, 30, 0, 0, time.UTC)
	s, err := d.Serialize(now)
	require.NoError(t, err)
	v, err := d.Deserialize(s)
	require.NoError(t, err)
	require.True(t, now.Equal(v.(time.Time)))
}

func TestListSerializeDeserializeRoundTrip(t *testing.T) {
	d := typesys.TList(typesys.TInteger())
	validated, err := d.Validate("nums", []any{int64(1), int64(2), int64(3)})
	require.NoError(t, err)

	s, err := d.Serialize(validated)
	require.NoError(t, err)

	back, err := d.Deserialize(s)
	require.NoError(t, err)
	require.Equal(t, validated, back)
}

func TestOneOfMatchesFirstSuccessfulAlternative(t *testing.T) {
	d := typesys.TOneOf(typesys.TInteger(), typesys.TString())
	v, err := d.Validate("x", "hello")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	_, err = d.Validate("x", true)
	require.Error(t, err)
}

package objectstore_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/backend/memory"
	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/devlog"
	"github.com/guyvdb/objectengine/objectstore"
)

func TestWithLoggerReceivesSaveDebugOutput(t *testing.T) {
	classreg.Reset()
	t.Cleanup(classreg.Reset)
	desc := classreg.Register(accountDescriptor())

	var buf bytes.Buffer
	st := objectstore.Open[Account](memory.New(), desc, objectstore.WithLogger(devlog.Tinted(&buf)))

	a := st.New()
	require.NoError(t, a.SetEmail("a@x"))
	require.NoError(t, st.Save(a))

	require.True(t, strings.Contains(buf.String(), "objectstore.Save"))
}

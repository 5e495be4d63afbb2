package classreg_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guyvdb/objectengine/classreg"
	"github.com/guyvdb/objectengine/typesys"
)

func TestRegisterAndGet(t *testing.T) {
	classreg.Reset()
	defer classreg.Reset()

	d := classreg.Register(&classreg.Descriptor{
		Name:       "Widget",
		Properties: map[string]*typesys.Descriptor{"name": typesys.TString()},
	})
	require.Equal(t, "Widget", d.Collection, "Collection defaults to Name")

	got, ok := classreg.Get("Widget")
	require.True(t, ok)
	require.Same(t, d, got)
}

func TestRegisterPanicsOnDuplicateName(t *testing.T) {
	classreg.Reset()
	defer classreg.Reset()

	classreg.Register(&classreg.Descriptor{Name: "Widget"})
	require.Panics(t, func() {
		classreg.Register(&classreg.Descriptor{Name: "Widget"})
	})
}

func TestRegisterPanicsOnReservedPropertyName(t *testing.T) {
	classreg.Reset()
	defer classreg.Reset()

	require.Panics(t, func() {
		classreg.Register(&classreg.Descriptor{
			Name:       "Widget",
			Properties: map[string]*typesys.Descriptor{"oid": typesys.TString()},
		})
	})
}

func TestMustGetFailsForUnregisteredClass(t *testing.T) {
	classreg.Reset()
	defer classreg.Reset()

	_, err := classreg.MustGet("Nope")
	require.Error(t, err)
}

func TestClassesSortedByName(t *testing.T) {
	classreg.Reset()
	defer classreg.Reset()

	classreg.Register(&classreg.Descriptor{Name: "Zeta"})
	classreg.Register(&classreg.Descriptor{Name: "Alpha"})
	classreg.Register(&classreg.Descriptor{Name: "Mu"})

	names := make([]string, 0, 3)
	for _, d := range classreg.Classes() {
		names = append(names, d.Name)
	}
	require.Equal(t, []string{"Alpha", "Mu", "Zeta"}, names)
}

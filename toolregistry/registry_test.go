package toolregistry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/tools"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register(Descriptor{
		Spec:     tools.Spec{Name: tools.CustomToolIdent("search")},
		Executor: ExecutorFunc(func(args []byte) (any, error) { return "ok", nil }),
	})

	d, ok := r.Lookup(tools.CustomToolIdent("search"))
	require.True(t, ok)
	result, err := d.Executor.Execute(nil)
	require.NoError(t, err)
	require.Equal(t, "ok", result)

	_, ok = r.Lookup(tools.CustomToolIdent("missing"))
	require.False(t, ok)
}

func TestSpecsReturnsEveryRegisteredTool(t *testing.T) {
	r := New()
	r.Register(Descriptor{Spec: tools.Spec{Name: tools.CustomToolIdent("a")}})
	r.Register(Descriptor{Spec: tools.Spec{Name: tools.CustomToolIdent("b")}})
	require.Len(t, r.Specs(), 2)
}

func TestMustLookupPanicsOnMissing(t *testing.T) {
	r := New()
	require.Panics(t, func() { r.MustLookup(tools.CustomToolIdent("missing")) })
}

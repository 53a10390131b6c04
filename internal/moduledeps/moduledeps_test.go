package moduledeps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idx(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestOrderPlacesDependenciesBeforeDependents(t *testing.T) {
	g := Build([]ModuleInfo{
		{Name: "base"},
		{Name: "shapes", Parent: "base"},
		{Name: "app", Imports: []string{"shapes"}},
	})

	order, err := Order(g)
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Less(t, idx(order, "base"), idx(order, "shapes"))
	assert.Less(t, idx(order, "shapes"), idx(order, "app"))
}

func TestOrderIgnoresReferencesToUnknownModules(t *testing.T) {
	g := Build([]ModuleInfo{
		{Name: "app", Imports: []string{"nonexistent"}},
	})
	order, err := Order(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"app"}, order)
}

func TestDetectCyclesFindsCircularExtends(t *testing.T) {
	g := Build([]ModuleInfo{
		{Name: "a", Parent: "b"},
		{Name: "b", Parent: "a"},
	})
	cycles := DetectCycles(g)
	assert.NotEmpty(t, cycles)
}

func TestOrderErrorsOnCycle(t *testing.T) {
	g := Build([]ModuleInfo{
		{Name: "a", Imports: []string{"b"}},
		{Name: "b", Imports: []string{"a"}},
	})
	_, err := Order(g)
	require.Error(t, err)
}

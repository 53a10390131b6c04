package tracemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlctx"
)

func TestBuildAndParseRoundTrip(t *testing.T) {
	links := []mtlctx.TraceLink{
		{Source: mtlast.Position{Line: 3, Column: 1}, OutputPath: "out/Foo.java", OutputLine: 1},
		{Source: mtlast.Position{Line: 5, Column: 4}, OutputPath: "out/Foo.java", OutputLine: 2},
		{Source: mtlast.Position{Line: 9, Column: 1}, OutputPath: "out/Bar.java", OutputLine: 1},
	}

	doc, err := Build("module.mtl", "out/Foo.java", links)
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Version)
	assert.Equal(t, []string{"module.mtl"}, doc.Sources)
	assert.NotEmpty(t, doc.Mappings)

	data, err := Marshal(doc)
	require.NoError(t, err)

	cons, err := Parse(data)
	require.NoError(t, err)

	pos, ok := Lookup(cons, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 3, pos.Line)

	pos, ok = Lookup(cons, 2, 1)
	require.True(t, ok)
	assert.Equal(t, 5, pos.Line)
}

func TestBuildFiltersToOutputFile(t *testing.T) {
	links := []mtlctx.TraceLink{
		{Source: mtlast.Position{Line: 1, Column: 1}, OutputPath: "a.txt", OutputLine: 1},
		{Source: mtlast.Position{Line: 2, Column: 1}, OutputPath: "b.txt", OutputLine: 1},
	}
	doc, err := Build("module.mtl", "b.txt", links)
	require.NoError(t, err)

	cons, err := Parse(mustMarshal(t, doc))
	require.NoError(t, err)
	pos, ok := Lookup(cons, 1, 1)
	require.True(t, ok)
	assert.Equal(t, 2, pos.Line)
}

func mustMarshal(t *testing.T, doc *Document) []byte {
	t.Helper()
	data, err := Marshal(doc)
	require.NoError(t, err)
	return data
}

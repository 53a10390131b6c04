// Package golden drives whole modules from testdata/*.txtar fixtures
// through the real lex->parse->interpret pipeline and diffs the generated
// file content against the expected output recorded in the same archive.
package golden

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"

	"github.com/mtlforge/mtlgen/internal/exprlang"
	"github.com/mtlforge/mtlgen/internal/mtlctx"
	"github.com/mtlforge/mtlgen/internal/mtlinterp"
	"github.com/mtlforge/mtlgen/internal/mtlparse"
	"github.com/mtlforge/mtlgen/internal/mtlval"
	"github.com/mtlforge/mtlgen/internal/outstrategy"
	"github.com/mtlforge/mtlgen/internal/protectedarea"
)

type emptyModels struct{}

func (emptyModels) Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error) {
	return mtlval.Null, nil
}
func (emptyModels) Display(ref mtlval.ModelRef) string { return ref.Display }

func TestGoldenFixtures(t *testing.T) {
	archives, err := filepath.Glob("testdata/*.txtar")
	require.NoError(t, err)
	require.NotEmpty(t, archives)

	for _, path := range archives {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			arc, err := txtar.ParseFile(path)
			require.NoError(t, err)

			files := map[string]string{}
			for _, f := range arc.Files {
				files[f.Name] = string(f.Data)
			}

			src, ok := files["module.mtl"]
			require.True(t, ok, "fixture must contain a module.mtl file")

			mod, err := mtlparse.Parse(src)
			require.NoError(t, err)

			strategy := outstrategy.NewInMemory()
			ctx := mtlctx.New(protectedarea.New(), strategy, emptyModels{}, "  ")
			interp := mtlinterp.New(mod, exprlang.New(), ctx)

			_, err = interp.Generate("", nil)
			require.NoError(t, err)

			written := strategy.Files()
			for name, expected := range files {
				if name == "module.mtl" {
					continue
				}
				got, ok := written[name]
				require.True(t, ok, "expected %s to have been written", name)
				assert.Equal(t, strings.TrimSpace(expected), strings.TrimSpace(got), "content mismatch for %s", name)
			}
		})
	}
}

// TestConcreteScenarioOneNoLeadingIndent runs spec §8 concrete scenario 1
// through the real lex->parse->interpret pipeline with exact (untrimmed)
// equality: a template whose entire body is a single line of text must
// render starting at column zero, not indented by the parser's own block
// nesting.
func TestConcreteScenarioOneNoLeadingIndent(t *testing.T) {
	mod, err := mtlparse.Parse(`[module M('u')][template t()]Hello[/template]`)
	require.NoError(t, err)

	strategy := outstrategy.NewInMemory()
	ctx := mtlctx.New(protectedarea.New(), strategy, emptyModels{}, "  ")
	interp := mtlinterp.New(mod, exprlang.New(), ctx)

	stats, err := interp.Generate("t", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TemplatesExecuted)
	assert.Equal(t, "Hello", ctx.BaseContent())
}

// TestConcreteScenarioSixFileBodyNoLeadingIndent runs spec §8 concrete
// scenario 6: a [file(...)] body's own single line of text must also
// start at column zero in the finalized file content.
func TestConcreteScenarioSixFileBodyNoLeadingIndent(t *testing.T) {
	mod, err := mtlparse.Parse(`[module M('u')][template t()][file ('o.txt')]X[/file][/template]`)
	require.NoError(t, err)

	strategy := outstrategy.NewInMemory()
	ctx := mtlctx.New(protectedarea.New(), strategy, emptyModels{}, "  ")
	interp := mtlinterp.New(mod, exprlang.New(), ctx)

	_, err = interp.Generate("t", nil)
	require.NoError(t, err)
	assert.Equal(t, "", ctx.BaseContent())
	assert.Equal(t, "X", strategy.Files()["o.txt"])
}

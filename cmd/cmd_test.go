package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qobs-build/qcc/internal/builder"
	"github.com/qobs-build/qcc/internal/native"
)

func TestEnumValue(t *testing.T) {
	e := NewEnumValue("b", map[string]string{"a": "first", "b": "", "c": "third"})
	assert.Equal(t, "b", e.Value())
	assert.Equal(t, "[a, b, c]", e.HelpString())

	require.NoError(t, e.Set("c"))
	assert.Equal(t, "c", e.String())
	assert.Error(t, e.Set("d"))
	assert.Equal(t, "c", e.Value())

	items, _ := e.CompletionFunc()(nil, nil, "")
	assert.Equal(t, []string{"a\tfirst", "b", "c\tthird"}, items)

	assert.Panics(t, func() { NewEnumValue("x", map[string]string{"a": ""}) })
}

func TestMacroName(t *testing.T) {
	assert.Equal(t, "MY_LIB2", macroName("my-lib2"))
	assert.Equal(t, "HELLO_WORLD", macroName("Hello world"))
}

func TestInitProducesBuildablePackage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "demo-app")
	require.NoError(t, initIn(dir, "demo-app"))
	require.NoError(t, initIn(dir, "demo-app"), "running init twice must keep existing files")

	b, err := builder.NewBuilderInDirectory(dir, "release")
	require.NoError(t, err)
	assert.Equal(t, "demo-app", b.Config().Package.Name)

	spec, err := b.CompileSpec("release")
	require.NoError(t, err)
	assert.Len(t, spec.SourceFiles, 2)
	assert.Equal(t, []string{filepath.Join(dir, "include")}, spec.IncludeRoots)
	assert.Equal(t, `"0.1.0"`, spec.Macros["DEMO_APP_VERSION"])
	assert.Equal(t, "2", spec.OptLevel)

	result, err := b.Build(context.Background(), "release", builder.Overrides{Tool: "cc", DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Invocations)
}

func TestArgsCommand(t *testing.T) {
	args := []string{"-c", "-DMSG=hello world", "-I/tmp/x y"}
	spilled, err := native.OptionsFile{Enabled: true}.Spill(args, t.TempDir())
	require.NoError(t, err)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"args", spilled[0]})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "-c\n-DMSG=hello world\n-I/tmp/x y\n", out.String())
}

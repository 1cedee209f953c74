package builder

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[package]
name = "demo"
build = 'ReadFile("VERSION") != ""'

[target]
sources = ["src/**/*.c"]
headers = ["include/**/*.h"]
defines = { OS = "{{ target_os }}" }

[target.'target_os == "plan9"']
cflags = ["-plan9"]

[target.'profile == "release"']
defines = { NDEBUG = "" }

[profile.fast]
opt-level = "fast"

[profile.release]
debug = true

[compiler]
jobs = 4
options-file = true
env-flags = ["MYFLAGS"]
shutdown-timeout = "5s"

[compiler.'profile == "release"']
fail-fast = true
`

func parseSample(t *testing.T, profile string) (*Config, ConfigEnv) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("1.0\n"), 0o644))
	env := NewConfigEnv(dir, profile)
	cfg, err := ParseConfig(strings.NewReader(sampleConfig), env)
	require.NoError(t, err)
	return cfg, env
}

func TestParseConfig(t *testing.T) {
	cfg, env := parseSample(t, "debug")

	assert.Equal(t, "demo", cfg.Package.Name)
	assert.Equal(t, []string{"src/**/*.c"}, cfg.Target.Sources)
	assert.Equal(t, map[string]string{"OS": runtime.GOOS}, cfg.Target.Defines)
	assert.Empty(t, cfg.Target.Cflags)
	assert.NoError(t, cfg.RunBuildScript(env))

	assert.Equal(t, 4, cfg.Compiler.Jobs)
	assert.True(t, cfg.Compiler.OptionsFile)
	assert.False(t, cfg.Compiler.FailFast)
	assert.True(t, cfg.Compiler.IsParallel())
	assert.Equal(t, []string{"MYFLAGS"}, cfg.Compiler.EnvFlags)
	timeout, err := cfg.Compiler.Timeout()
	require.NoError(t, err)
	assert.Equal(t, "5s", timeout.String())
}

func TestParseConfigConditionalSections(t *testing.T) {
	cfg, _ := parseSample(t, "release")

	assert.Equal(t, map[string]string{"OS": runtime.GOOS, "NDEBUG": ""}, cfg.Target.Defines)
	assert.True(t, cfg.Compiler.FailFast)
}

func TestParseConfigProfiles(t *testing.T) {
	cfg, _ := parseSample(t, "debug")

	assert.Equal(t, []string{"debug", "fast", "release"}, cfg.Profiles())
	assert.Equal(t, "fast", cfg.Profile["fast"].Level())
	assert.Equal(t, "3", cfg.Profile["release"].Level(), "overriding one key keeps the default opt-level")
	assert.True(t, cfg.Profile["release"].Debug)
	assert.Equal(t, "", cfg.Profile["debug"].Level())

	assert.False(t, defaultProfiles["release"].Debug, "parsing must not modify the defaults")
}

func TestParseConfigErrors(t *testing.T) {
	env := NewConfigEnv(t.TempDir(), "debug")
	tests := map[string]string{
		"missing name":  "[target]\nsources = []\n",
		"bad toml":      "[package\n",
		"bad expr":      "[package]\nname = \"{{ 1 + }}\"\n",
		"target scalar": "[package]\nname = \"x\"\ntarget = 1\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig(strings.NewReader(src), env)
			assert.Error(t, err)
		})
	}
}

func TestCompilerSectionDefaults(t *testing.T) {
	var c CompilerSection
	assert.True(t, c.IsParallel())
	d, err := c.Timeout()
	require.NoError(t, err)
	assert.Zero(t, d)

	off := false
	c.Parallel = &off
	c.ShutdownTimeout = "soon"
	assert.False(t, c.IsParallel())
	_, err = c.Timeout()
	assert.Error(t, err)
}

func TestRunBuildScriptFalse(t *testing.T) {
	cfg := Config{Package: PackageSection{Name: "demo", Build: `target_os == "nowhere"`}}
	err := cfg.RunBuildScript(NewConfigEnv(t.TempDir(), "debug"))
	assert.ErrorContains(t, err, "returned false")
}

func TestConfigEnvPatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.c")
	orig := "int main(void) {\n    return 1;\n}\n"
	want := "int main(void) {\n    return 0;\n}\n"
	require.NoError(t, os.WriteFile(path, []byte(orig), 0o644))

	dmp := diffmatchpatch.New()
	patch := dmp.PatchToText(dmp.PatchMake(orig, want))

	env := NewConfigEnv(dir, "debug")
	assert.True(t, env.Patch("src.c", patch))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))

	content, err := env.ReadFile("src.c")
	require.NoError(t, err)
	assert.Equal(t, want, content)

	assert.Panics(t, func() { env.ReadFile("../outside") })
}

func TestMergeValues(t *testing.T) {
	dst := TargetSection{Sources: []string{"a.c"}, Defines: map[string]string{"A": "1"}}
	require.NoError(t, mergeValues(&dst, TargetSection{Sources: []string{"b.c"}, Defines: map[string]string{"B": ""}}))
	assert.Equal(t, []string{"a.c", "b.c"}, dst.Sources)
	assert.Equal(t, map[string]string{"A": "1", "B": ""}, dst.Defines)

	assert.Error(t, mergeValues(dst, dst), "dst must be a pointer")
	assert.Error(t, mergeValues(&dst, CompilerSection{}), "types must match")
}

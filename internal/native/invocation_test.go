package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateWithDoesNotAlias(t *testing.T) {
	base := Template{Args: make([]string, 1, 8), Env: []string{"A=1"}}
	base.Args[0] = "-base"

	a := base.WithArgs("-a")
	b := base.WithArgs("-b")
	assert.Equal(t, []string{"-base", "-a"}, a.Args)
	assert.Equal(t, []string{"-base", "-b"}, b.Args)
	assert.Equal(t, []string{"-base"}, base.Args)

	e := base.WithEnv("B=2")
	assert.Equal(t, []string{"A=1", "B=2"}, e.Env)
	assert.Equal(t, []string{"A=1"}, base.Env)

	m := base.WithMutators(EnvFlags("X"))
	assert.Len(t, m.Mutators, 1)
	assert.Empty(t, base.Mutators)
}

func TestForFileOwnsItsArgs(t *testing.T) {
	tmpl := Template{WorkDir: "/default", Env: []string{"A=1"}}.WithMutators(EnvFlags("X"))
	generic := make([]string, 2, 16)
	generic[0], generic[1] = "-c", "-O2"

	one := tmpl.ForFile(generic, FileOverride{WorkDir: "/obj", Source: "/s/a.c", SourceArgs: []string{"/s/a.c"}, OutputArgs: []string{"-o", "/obj/a.o"}})
	two := tmpl.ForFile(generic, FileOverride{Source: "/s/b.c", SourceArgs: []string{"/s/b.c"}, OutputArgs: []string{"-o", "/obj/b.o"}})

	assert.Equal(t, []string{"-c", "-O2", "/s/a.c", "-o", "/obj/a.o"}, one.Args)
	assert.Equal(t, []string{"-c", "-O2", "/s/b.c", "-o", "/obj/b.o"}, two.Args)
	assert.Equal(t, "/obj", one.WorkDir)
	assert.Equal(t, "/default", two.WorkDir)

	one.Args[0] = "changed"
	one.Env[0] = "changed"
	assert.Equal(t, "-c", two.Args[0])
	assert.Equal(t, "-c", generic[0])
	assert.Equal(t, "A=1", tmpl.Env[0])
}

func TestCompileSpecClone(t *testing.T) {
	spec := CompileSpec{SourceFiles: []string{"a.c"}, Macros: map[string]string{"A": "1"}}
	c := spec.Clone()
	c.SourceFiles[0] = "b.c"
	c.Macros["A"] = "2"
	assert.Equal(t, "a.c", spec.SourceFiles[0])
	assert.Equal(t, "1", spec.Macros["A"])
}

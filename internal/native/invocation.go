package native

import "slices"

// ArgsMutator rewrites the generic argument list. It runs once per Execute call.
type ArgsMutator func(args []string) ([]string, error)

// Template describes how the tool is run. It is a value: the With* methods return
// modified copies and never touch the receiver's slices.
type Template struct {
	WorkDir  string
	Args     []string // prepended to the transformed spec args
	Env      []string // KEY=VALUE, added on top of the process environment
	Mutators []ArgsMutator
}

// WithArgs returns a copy of t with extra base arguments
func (t Template) WithArgs(args ...string) Template {
	t.Args = append(slices.Clone(t.Args), args...)
	return t
}

// WithEnv returns a copy of t with extra environment entries
func (t Template) WithEnv(env ...string) Template {
	t.Env = append(slices.Clone(t.Env), env...)
	return t
}

// WithMutators returns a copy of t with mutators appended after the existing ones
func (t Template) WithMutators(m ...ArgsMutator) Template {
	t.Mutators = append(slices.Clone(t.Mutators), m...)
	return t
}

// Invocation is one run of the tool for one source file
type Invocation struct {
	WorkDir string
	Args    []string
	Env     []string
	Source  string
	Output  string
}

// FileOverride holds everything that differs between per-file invocations
type FileOverride struct {
	WorkDir    string
	Source     string
	Output     string
	SourceArgs []string
	OutputArgs []string
}

// ForFile builds a per-file invocation from the generic args. The result owns its Args and Env slices.
func (t Template) ForFile(generic []string, o FileOverride) Invocation {
	args := make([]string, 0, len(generic)+len(o.SourceArgs)+len(o.OutputArgs))
	args = append(args, generic...)
	args = append(args, o.SourceArgs...)
	args = append(args, o.OutputArgs...)

	workDir := o.WorkDir
	if workDir == "" {
		workDir = t.WorkDir
	}

	return Invocation{
		WorkDir: workDir,
		Args:    args,
		Env:     slices.Clone(t.Env),
		Source:  o.Source,
		Output:  o.Output,
	}
}

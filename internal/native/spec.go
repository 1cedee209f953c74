package native

import (
	"slices"
	"sort"
)

// CompileSpec describes one batch of source files compiled with the same options
type CompileSpec struct {
	SourceFiles   []string // order matters in synchronous mode
	ObjectFileDir string
	TempDir       string

	IncludeRoots []string
	Macros       map[string]string // "" value means a bare -DNAME
	Args         []string
	OptLevel     string // what follows -O for gcc ("2", "s", "fast"), "" for no optimization flag
	Debuggable   bool
}

// Clone returns a deep copy of the spec, so transformers can derive a new one safely
func (s CompileSpec) Clone() CompileSpec {
	c := s
	c.SourceFiles = slices.Clone(s.SourceFiles)
	c.IncludeRoots = slices.Clone(s.IncludeRoots)
	c.Args = slices.Clone(s.Args)
	if s.Macros != nil {
		c.Macros = make(map[string]string, len(s.Macros))
		for k, v := range s.Macros {
			c.Macros[k] = v
		}
	}
	return c
}

// sortedMacros returns macro names in a stable order
func (s CompileSpec) sortedMacros() []string {
	names := make([]string, 0, len(s.Macros))
	for name := range s.Macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpecTransformer derives the spec that is actually compiled
type SpecTransformer func(CompileSpec) (CompileSpec, error)

// ArgsTransformer turns a spec into the tool-agnostic part of the argument list
type ArgsTransformer func(CompileSpec) ([]string, error)

// IdentitySpec is the default spec transformer
func IdentitySpec(spec CompileSpec) (CompileSpec, error) {
	return spec, nil
}

// WorkResult is what Execute reports back.
//
// DidWork only says whether there was anything to compile. Whether the compilation
// succeeded is tracked separately in Failures, so a batch where every invocation
// failed still did work.
type WorkResult struct {
	ID          string
	DidWork     bool
	Invocations int
	Failures    []*InvocationError
}

// Failed reports whether at least one invocation failed
func (r WorkResult) Failed() bool {
	return len(r.Failures) > 0
}

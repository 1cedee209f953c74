package native

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// buildArgs produces the generic argument list shared by every invocation of one call:
// template args, then the transformed spec, then each mutator in registration order
func buildArgs(t Template, transform ArgsTransformer, spec CompileSpec) ([]string, error) {
	args := slices.Clone(t.Args)

	specArgs, err := transform(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgsTransform, err)
	}
	args = append(args, specArgs...)

	for i, mutate := range t.Mutators {
		args, err = mutate(args)
		if err != nil {
			return nil, fmt.Errorf("%w: mutator %d: %w", ErrArgsTransform, i, err)
		}
	}

	// per-file invocations copy from this, but make sure nobody aliases a mutator's backing array
	return slices.Clip(args), nil
}

// EnvFlags returns a mutator appending the flags held in the environment variable name.
//
// The value is split into words like a POSIX shell would split $(CFLAGS) in a make recipe:
// quotes group, $VAR and ${VAR} come from the process environment, and braces and globs
// stay literal. Command substitution is rejected.
func EnvFlags(name string) ArgsMutator {
	return func(args []string) ([]string, error) {
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return args, nil
		}
		fields, err := splitFlags(value)
		if err != nil {
			return nil, fmt.Errorf("parsing $%s: %w", name, err)
		}
		return append(args, fields...), nil
	}
}

func splitFlags(value string) ([]string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangPOSIX))
	var words []*syntax.Word
	err := parser.Words(strings.NewReader(value), func(w *syntax.Word) bool {
		words = append(words, w)
		return true
	})
	if err != nil {
		return nil, err
	}

	cfg := &expand.Config{Env: expand.ListEnviron(os.Environ()...)}
	fields := make([]string, 0, len(words))
	for _, w := range words {
		var subst syntax.Node
		syntax.Walk(w, func(node syntax.Node) bool {
			switch node.(type) {
			case *syntax.CmdSubst, *syntax.ProcSubst:
				subst = node
			}
			return subst == nil
		})
		if subst != nil {
			return nil, fmt.Errorf("command substitution is not allowed at %s", subst.Pos())
		}

		field, err := expand.Literal(cfg, w)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}
	return fields, nil
}

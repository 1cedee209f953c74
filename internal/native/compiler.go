package native

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Options configures a Compiler. They are plain values; nothing is read from globals.
type Options struct {
	Template    Template
	Style       Style
	Suffix      string // object file suffix, defaults to Style.ObjectFileSuffix
	OptionsFile bool
	// OptionsFileThreshold is the argument count above which the options file is used
	OptionsFileThreshold int
	Parallel             bool
	Jobs                 int
	FailFast             bool
	MaxPathLength        int           // 0 disables the check, see DefaultMaxPathLength
	ShutdownTimeout      time.Duration // 0 waits for as long as it takes
	Observer             Observer
}

// Compiler compiles every source file of a CompileSpec with one configured tool
type Compiler struct {
	runner        ToolRunner
	specTransform SpecTransformer
	argsTransform ArgsTransformer
	opts          Options
}

// NewCompiler creates a Compiler. A nil argsTransform uses the style's; a nil
// specTransform leaves specs untouched.
func NewCompiler(runner ToolRunner, argsTransform ArgsTransformer, specTransform SpecTransformer, opts Options) *Compiler {
	if argsTransform == nil {
		argsTransform = opts.Style.Args
	}
	if argsTransform == nil {
		argsTransform = GCC.Args
	}
	if specTransform == nil {
		specTransform = IdentitySpec
	}
	if opts.Suffix == "" {
		opts.Suffix = opts.Style.ObjectFileSuffix
	}
	if opts.Suffix == "" {
		opts.Suffix = GCC.ObjectFileSuffix
	}
	if opts.Style.SourceArgs == nil {
		opts.Style.SourceArgs = GCC.SourceArgs
	}
	if opts.Style.OutputArgs == nil {
		opts.Style.OutputArgs = GCC.OutputArgs
	}
	return &Compiler{
		runner:        runner,
		specTransform: specTransform,
		argsTransform: argsTransform,
		opts:          opts,
	}
}

// Execute runs one invocation per source file of spec.
//
// Structural problems (transform, argument or output path failures) are returned as
// soon as they happen; anything already submitted still runs to completion. Tool
// failures never stop the call unless FailFast is set: they are collected in
// WorkResult.Failures and reported as an error wrapping ErrCompileFailed.
// WorkResult.DidWork is independent of both and only reflects whether spec had sources.
//
// Every object file must belong to exactly one source. A source listed twice, or two
// sources resolving to the same object path, is an ErrOutputCollision: the call stops
// at the second entry, so fewer invocations than sources are submitted and the ones
// before it still run.
func (c *Compiler) Execute(ctx context.Context, spec CompileSpec) (WorkResult, error) {
	result := WorkResult{ID: uuid.NewString()}

	spec, err := c.specTransform(spec.Clone())
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrSpecTransform, err)
	}
	result.DidWork = len(spec.SourceFiles) > 0

	generic, err := buildArgs(c.opts.Template, c.argsTransform, spec)
	if err != nil {
		return result, err
	}
	generic, err = OptionsFile{
		Enabled:   c.opts.OptionsFile,
		Threshold: c.opts.OptionsFileThreshold,
		Format:    c.opts.Style.OptionsFile,
	}.Spill(generic, spec.TempDir)
	if err != nil {
		return result, err
	}

	dispatcher := NewDispatcher(DispatchOptions{
		Parallel: c.opts.Parallel,
		Jobs:     c.opts.Jobs,
		FailFast: c.opts.FailFast,
		Observer: c.opts.Observer,
	}, c.runner)

	submitErr := c.submitAll(ctx, dispatcher, spec, generic, &result)

	stopCtx := context.Background()
	if c.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, c.opts.ShutdownTimeout)
		defer cancel()
	}
	stopErr := dispatcher.Stop(stopCtx)

	result.Failures = dispatcher.Failures()
	if submitErr != nil || stopErr != nil {
		return result, errors.Join(submitErr, stopErr)
	}
	if result.Failed() {
		errs := []error{fmt.Errorf("%w: %d of %d invocations failed", ErrCompileFailed, len(result.Failures), result.Invocations)}
		for _, f := range result.Failures {
			errs = append(errs, f)
		}
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (c *Compiler) submitAll(ctx context.Context, d Dispatcher, spec CompileSpec, generic []string, result *WorkResult) error {
	namer := OutputNamer{Suffix: c.opts.Suffix, MaxPathLength: c.opts.MaxPathLength}
	seen := make(map[string]string, len(spec.SourceFiles))
	objectDir, err := filepath.Abs(spec.ObjectFileDir)
	if err != nil {
		return err
	}

	for _, source := range spec.SourceFiles {
		if err := ctx.Err(); err != nil {
			return err
		}

		abs, err := filepath.Abs(source)
		if err != nil {
			return err
		}
		output, err := namer.Resolve(abs, objectDir)
		if err != nil {
			return fmt.Errorf("%s: %w", source, err)
		}
		if other, ok := seen[output]; ok {
			return fmt.Errorf("%w: %s and %s -> %s", ErrOutputCollision, other, abs, output)
		}
		seen[output] = abs

		inv := c.opts.Template.ForFile(generic, FileOverride{
			WorkDir:    objectDir,
			Source:     abs,
			Output:     output,
			SourceArgs: c.opts.Style.SourceArgs(abs),
			OutputArgs: c.opts.Style.OutputArgs(output),
		})
		result.Invocations++

		if err := d.Submit(ctx, inv); err != nil {
			var ie *InvocationError
			if errors.As(err, &ie) {
				// synchronous tool failure, already recorded by the dispatcher
				if c.opts.FailFast {
					return nil
				}
				continue
			}
			return err
		}
	}
	return nil
}

package builder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/qobs-build/qcc/internal/msg"
	"github.com/qobs-build/qcc/internal/native"
)

var (
	errNoCompiler = errors.New("no C/C++ compiler found, set $CC/$CXX or compiler.tool")
	errNoSources  = errors.New("target.sources matched no files")
)

// Overrides are command line values that take precedence over the [compiler] section
type Overrides struct {
	Tool        string
	Style       string
	Jobs        int
	Sync        bool
	FailFast    bool
	OptionsFile bool
	CompDB      string // write compile_commands.json here, "" to skip
	DryRun      bool   // record invocations without running the compiler
	Progress    bool   // show a progress bar instead of a line per file
}

type Builder struct {
	cfg     *Config
	basedir string
	env     ConfigEnv
	runner  native.ToolRunner // replaces the exec runner when set
}

func NewBuilderInDirectory(path, profile string) (*Builder, error) {
	var err error
	path, err = filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	env := NewConfigEnv(path, profile)
	cfg, err := ParseConfigFromFile(filepath.Join(path, ConfigFileName), env)
	if err != nil {
		return nil, err
	}
	return &Builder{cfg: cfg, basedir: path, env: env}, nil
}

func (b *Builder) Config() *Config { return b.cfg }

// collectFiles expands glob patterns relative to the package directory. With dirsOnly,
// matched files are replaced by the directory that contains them.
func (b *Builder) collectFiles(patterns []string, dirsOnly bool) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(path string) {
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}
	fsys := os.DirFS(b.basedir)

	var globparams []doublestar.GlobOption
	if !dirsOnly {
		globparams = append(globparams, doublestar.WithFilesOnly())
	}

	for _, pat := range patterns {
		if filepath.IsAbs(pat) {
			add(filepath.Clean(pat))
			continue
		}
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pat), globparams...)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pat, err)
		}
		for _, match := range matches {
			absPath := filepath.Join(b.basedir, filepath.FromSlash(match))
			if dirsOnly {
				if stat, err := os.Stat(absPath); err == nil && !stat.IsDir() {
					absPath = filepath.Dir(absPath) // this is a file, we need directories
				}
			}
			add(filepath.Clean(absPath))
		}
	}

	slices.Sort(files)
	return files, nil
}

// profile looks up a profile by name
func (b *Builder) profile(name string) (ProfileSection, error) {
	prof, ok := b.cfg.Profile[name]
	if !ok {
		return ProfileSection{}, fmt.Errorf("unknown profile %q, known profiles: %s", name, strings.Join(b.cfg.Profiles(), ", "))
	}
	return prof, nil
}

// CompileSpec builds the spec for the package's sources under the given profile
func (b *Builder) CompileSpec(profile string) (native.CompileSpec, error) {
	prof, err := b.profile(profile)
	if err != nil {
		return native.CompileSpec{}, err
	}

	sources, err := b.collectFiles(b.cfg.Target.Sources, false)
	if err != nil {
		return native.CompileSpec{}, fmt.Errorf("failed to collect sources: %w", err)
	}
	headers, err := b.collectFiles(b.cfg.Target.Headers, true)
	if err != nil {
		return native.CompileSpec{}, fmt.Errorf("failed to collect headers: %w", err)
	}
	for _, dir := range b.cfg.Target.Include {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(b.basedir, dir)
		}
		if !slices.Contains(headers, dir) {
			headers = append(headers, dir)
		}
	}

	buildDir := filepath.Join(b.basedir, "build", profile)
	return native.CompileSpec{
		SourceFiles:   sources,
		ObjectFileDir: filepath.Join(buildDir, "obj"),
		TempDir:       filepath.Join(buildDir, "tmp"),
		IncludeRoots:  headers,
		Macros:        b.cfg.Target.Defines,
		Args:          slices.Clone(b.cfg.Target.Cflags),
		OptLevel:      prof.Level(),
		Debuggable:    prof.Debug,
	}, nil
}

func (b *Builder) resolveTool(o Overrides, cxx bool) (string, native.Style, error) {
	tool := o.Tool
	if tool == "" {
		tool = b.cfg.Compiler.Tool
	}
	if tool == "" {
		tool = findCompiler(cxx)
	}
	if tool == "" {
		if !o.DryRun {
			return "", native.Style{}, errNoCompiler
		}
		tool = "cc"
	}

	name := o.Style
	if name == "" {
		name = b.cfg.Compiler.Style
	}
	if name == "" {
		return tool, styleForTool(tool), nil
	}
	style, ok := native.Styles[name]
	if !ok {
		return "", native.Style{}, fmt.Errorf("unknown compiler style %q", name)
	}
	return tool, style, nil
}

// Options merges the [compiler] section with the overrides
func (b *Builder) Options(o Overrides, style native.Style, cxx bool) (native.Options, error) {
	c := b.cfg.Compiler

	envFlags := c.EnvFlags
	if envFlags == nil {
		envFlags = []string{"CFLAGS"}
		if cxx {
			envFlags = []string{"CXXFLAGS"}
		}
	}
	var mutators []native.ArgsMutator
	for _, name := range envFlags {
		mutators = append(mutators, native.EnvFlags(name))
	}

	timeout, err := c.Timeout()
	if err != nil {
		return native.Options{}, err
	}

	opts := native.Options{
		Template:             native.Template{Env: c.Env}.WithMutators(mutators...),
		Style:                style,
		Suffix:               c.ObjectSuffix,
		OptionsFile:          c.OptionsFile || o.OptionsFile,
		OptionsFileThreshold: c.OptionsFileThreshold,
		Parallel:             c.IsParallel() && !o.Sync,
		Jobs:                 c.Jobs,
		FailFast:             c.FailFast || o.FailFast,
		MaxPathLength:        native.DefaultMaxPathLength(),
		ShutdownTimeout:      timeout,
	}
	if o.Jobs > 0 {
		opts.Jobs = o.Jobs
	}
	if c.MaxPathLength != nil {
		opts.MaxPathLength = *c.MaxPathLength
	}
	return opts, nil
}

type progressObserver struct{ pb *msg.ProgressBar }

func (p progressObserver) InvocationFinished(_ native.Invocation, err error) { p.pb.Step(err != nil) }

// Build compiles every source of the package with the given profile
func (b *Builder) Build(ctx context.Context, profile string, o Overrides) (native.WorkResult, error) {
	if err := b.cfg.RunBuildScript(b.env); err != nil {
		return native.WorkResult{}, err
	}

	sources, err := b.collectFiles(b.cfg.Target.Sources, false)
	if err != nil {
		return native.WorkResult{}, fmt.Errorf("failed to collect sources: %w", err)
	}
	if len(sources) == 0 {
		return native.WorkResult{}, errNoSources
	}
	cxx := slices.ContainsFunc(sources, native.IsCxx)

	tool, style, err := b.resolveTool(o, cxx)
	if err != nil {
		return native.WorkResult{}, err
	}
	spec, err := b.CompileSpec(profile)
	if err != nil {
		return native.WorkResult{}, err
	}

	opts, err := b.Options(o, style, cxx)
	if err != nil {
		return native.WorkResult{}, err
	}

	var runner native.ToolRunner = native.ExecRunner{
		Tool:   tool,
		Stderr: &msg.IndentWriter{Indent: "  ", W: os.Stderr},
		Quiet:  o.Progress,
	}
	if b.runner != nil {
		runner = b.runner
	}

	var rec *native.Recorder
	if o.CompDB != "" || o.DryRun {
		rec = &native.Recorder{Tool: tool, Next: runner}
		if o.DryRun {
			rec.Next = nil
		}
		runner = rec
	}

	var pb *msg.ProgressBar
	if o.Progress {
		pb = msg.NewProgressBar(len(spec.SourceFiles), 0, os.Stdout)
		opts.Observer = progressObserver{pb}
	}

	msg.Info("compiling %s (%s) with %s, %d files", b.cfg.Package.Name, profile, filepath.Base(tool), len(spec.SourceFiles))
	result, err := native.NewCompiler(runner, nil, nil, opts).Execute(ctx, spec)
	if pb != nil {
		pb.Finish()
	}

	if rec != nil && o.CompDB != "" {
		if werr := rec.WriteCompDB(o.CompDB); werr != nil {
			err = errors.Join(err, fmt.Errorf("failed to write compilation database: %w", werr))
		}
	}
	return result, err
}

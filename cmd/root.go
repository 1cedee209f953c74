// qcc [path], qcc build [path]
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/qobs-build/qcc/internal/builder"
	"github.com/qobs-build/qcc/internal/msg"
	"github.com/qobs-build/qcc/internal/native"
)

var (
	flagProfile   string
	flagOverrides builder.Overrides
	flagStyle     EnumValue = NewEnumValue("auto", map[string]string{
		"auto": "Pick from the compiler name (default)",
		"gcc":  "gcc, clang and compatible drivers",
		"msvc": "cl.exe and clang-cl",
	})
)

func doBuild(cmd *cobra.Command, args []string) error {
	target := "."
	if len(args) > 0 {
		target = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	b, err := builder.NewBuilderInDirectory(target, flagProfile)
	if err != nil {
		return err
	}

	overrides := flagOverrides
	if style := flagStyle.Value(); style != "auto" {
		overrides.Style = style
	}

	result, err := b.Build(ctx, flagProfile, overrides)
	for _, f := range result.Failures {
		msg.Error("%v", f)
	}
	if errors.Is(err, native.ErrCompileFailed) {
		return fmt.Errorf("%d of %d files failed to compile", len(result.Failures), result.Invocations)
	}
	if err != nil {
		return err
	}
	if result.DidWork {
		msg.Info("compiled %d files", result.Invocations)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "qcc [target path]",
	Short:         "Quite OK C Compiler driver",
	Long:          `Compiles every source of a Qcc.toml package into object files, in parallel by default.`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          doBuild,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildCmd = &cobra.Command{
	Use:           "build [target path]",
	Short:         "Compile the package",
	Long:          `Compile the package. If no target path is given, uses "."`,
	Args:          cobra.MaximumNArgs(1),
	RunE:          doBuild,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	addBuildFlags(rootCmd)

	// qcc build subcommand
	rootCmd.AddCommand(buildCmd)
	addBuildFlags(buildCmd)
}

func addBuildFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&flagProfile, "profile", "p", "debug", "Build with the given profile")
	f.IntVarP(&flagOverrides.Jobs, "jobs", "j", 0, "Number of parallel compiles (default: logical CPUs)")
	f.BoolVar(&flagOverrides.Sync, "sync", false, "Compile one file at a time, in order")
	f.BoolVar(&flagOverrides.FailFast, "fail-fast", false, "Stop after the first failed compile")
	f.BoolVar(&flagOverrides.OptionsFile, "options-file", false, "Pass shared arguments through an @options file")
	f.StringVar(&flagOverrides.Tool, "cc", "", "Compiler to run (default: compiler.tool, $CC/$CXX or the first one found in PATH)")
	f.StringVar(&flagOverrides.CompDB, "compdb", "", "Write a compile_commands.json to this path")
	f.BoolVar(&flagOverrides.DryRun, "dry-run", false, "Record the compiler invocations without running them")
	f.BoolVar(&flagOverrides.Progress, "progress", false, "Show a progress bar instead of one line per file")
	f.Var(&flagStyle, "style", "Compiler argument style, one of "+flagStyle.HelpString())
	cmd.RegisterFlagCompletionFunc("style", flagStyle.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		msg.Error("%v", err)
		os.Exit(1)
	}
}

// qcc init [name], qcc new [path]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/qobs-build/qcc/internal/builder"
)

func writefile(content string, elem ...string) error {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // never overwrite
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("create file %s: %w", path, err)
	}
	fmt.Fprintf(color.Output, "%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	return nil
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "qcc"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// macroName turns a package name into something usable as a C identifier
func macroName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// initIn initializes a package in an existing specified directory
func initIn(dir, name string) error {
	guard := macroName(name)

	files := []struct {
		content string
		elem    []string
	}{
		{`[package]
name = "` + name + `"
description = "This is where I make a project."

[target]
sources = ["src/**/*.c", "src/**/*.cc", "src/**/*.cpp"]
headers = ["include/**/*.h", "include/**/*.hpp"]
defines = { ` + guard + `_VERSION = '"0.1.0"' }

[target.'target_os == "windows"']
defines = { _CRT_SECURE_NO_WARNINGS = "" }

[profile.release]
opt-level = 2

[compiler]
parallel = true
options-file = true
options-file-threshold = 64
`, []string{dir, builder.ConfigFileName}},
		{`#ifndef ` + guard + `_H
#define ` + guard + `_H

#ifdef __cplusplus
extern "C" {
#endif

void hello_world(void);

#ifdef __cplusplus
} // extern "C"
#endif

#endif
`, []string{dir, "include", name + ".h"}},
		{`#include <stdio.h>
#include "` + name + `.h"

void hello_world(void) {
    printf("Hello from %s!\n", ` + guard + `_VERSION);
}
`, []string{dir, "src", name + ".c"}},
		{`// You may change this to a .cpp (.cc) file if you'd like
#include "` + name + `.h"

int main(void) {
    hello_world();
    return 0;
}
`, []string{dir, "src", "main.c"}},
		{"build/\ncompile_commands.json\n", []string{dir, ".gitignore"}},
	}

	for _, f := range files {
		if err := os.MkdirAll(filepath.Join(f.elem[:len(f.elem)-1]...), 0o755); err != nil {
			return err
		}
		if err := writefile(f.content, f.elem...); err != nil {
			return err
		}
	}

	programName := getProgramName()
	fmt.Fprintf(color.Output, "You can now do %s to compile, or %s for a release build.\n",
		color.HiCyanString(programName+" "+dir),
		color.HiCyanString(programName+" -p release "+dir),
	)
	return nil
}

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new package in the current directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return initIn(".", args[0])
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new package in a new directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return initIn(args[0], filepath.Base(args[0]))
	},
}

func init() {
	// qcc init subcommand
	rootCmd.AddCommand(initCmd)

	// qcc new subcommand
	rootCmd.AddCommand(newCmd)
}

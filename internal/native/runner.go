package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// ToolRunner runs the tool for one invocation and waits for it to exit.
//
//go:generate mockgen -source=runner.go -destination=mocks/mock_runner.go -package=mocks
type ToolRunner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner spawns Tool as a child process.
//
// The tool's stdout and stderr are buffered per invocation and written out in one piece once
// it exits, so Stdout and Stderr may be shared by concurrent Run calls and diagnostics from
// different files never interleave.
type ExecRunner struct {
	Tool   string
	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
	Quiet  bool      // don't print the CC line
}

// outputMu serializes writes of tool output from concurrent invocations
var outputMu sync.Mutex

func writeOutput(w io.Writer, p []byte) {
	if len(p) == 0 {
		return
	}
	outputMu.Lock()
	defer outputMu.Unlock()
	w.Write(p)
}

func (r ExecRunner) Run(ctx context.Context, inv Invocation) error {
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Tool, inv.Args...)
	cmd.Dir = inv.WorkDir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	if !r.Quiet {
		writeOutput(stdout, fmt.Appendf(nil, "CC %s\n", filepath.Base(inv.Source)))
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrToolStart, r.Tool, err)
	}
	err := cmd.Wait()
	writeOutput(stdout, outBuf.Bytes())
	writeOutput(stderr, errBuf.Bytes())
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Err: err}
		}
		return fmt.Errorf("%w: %w", ErrToolFailed, err)
	}
	return nil
}

// ExitError reports a tool that ran but exited unsuccessfully
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() []error { return []error{ErrToolFailed, e.Err} }

// exitCode extracts the exit status from a runner error, -1 if there is none
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

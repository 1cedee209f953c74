package native

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"slices"
	"sync"
)

// CompileCommand is one entry of a clang JSON compilation database
type CompileCommand struct {
	Directory string   `json:"directory"`
	Arguments []string `json:"arguments"`
	File      string   `json:"file"`
	Output    string   `json:"output,omitempty"`
}

// Recorder is a ToolRunner that remembers every invocation it sees.
// With a nil Next it only records, which makes it a dry run.
type Recorder struct {
	Tool string
	Next ToolRunner

	mu       sync.Mutex
	commands []CompileCommand
}

func (r *Recorder) Run(ctx context.Context, inv Invocation) error {
	r.mu.Lock()
	r.commands = append(r.commands, CompileCommand{
		Directory: inv.WorkDir,
		Arguments: append([]string{r.Tool}, inv.Args...),
		File:      inv.Source,
		Output:    inv.Output,
	})
	r.mu.Unlock()

	if r.Next == nil {
		return nil
	}
	return r.Next.Run(ctx, inv)
}

// Commands returns the recorded commands ordered by source file
func (r *Recorder) Commands() []CompileCommand {
	r.mu.Lock()
	out := slices.Clone(r.commands)
	r.mu.Unlock()

	slices.SortStableFunc(out, func(a, b CompileCommand) int {
		switch {
		case a.File < b.File:
			return -1
		case a.File > b.File:
			return 1
		}
		return 0
	})
	return out
}

// WriteCompDB writes the recorded commands as compile_commands.json to path
func (r *Recorder) WriteCompDB(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bufw := bufio.NewWriter(f)
	enc := json.NewEncoder(bufw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.Commands()); err != nil {
		return err
	}
	return bufw.Flush()
}

package msg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

var (
	// Output receives every message. Messages from concurrent compiles never interleave.
	Output io.Writer = color.Output
	mu     sync.Mutex
	exit   = os.Exit
)

func emit(label, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(Output, "%s: %s\n", label, fmt.Sprintf(format, a...))
}

func Error(format string, a ...any) {
	emit(color.HiRedString("error"), format, a...)
}

func Warn(format string, a ...any) {
	emit(color.YellowString("warn"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(color.RedString("fatal"), format, a...)
	exit(1)
}

func Info(format string, a ...any) {
	emit(color.HiGreenString("info"), format, a...)
}

// IndentWriter prefixes every line written through it, used for tool output.
// It is safe for concurrent use; each Write lands in one piece.
type IndentWriter struct {
	Indent string
	W      io.Writer

	mu        sync.Mutex
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bw := bufio.NewWriter(w.W)
	for _, c := range p {
		if !w.didIndent {
			bw.WriteString(w.Indent)
			w.didIndent = true
		}
		bw.WriteByte(c)
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(p), nil
}

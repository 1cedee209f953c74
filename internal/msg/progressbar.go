package msg

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar counts finished compiles. Step is safe for concurrent use.
type ProgressBar struct {
	Total  int
	Indent int
	Start  time.Time
	W      io.Writer

	mu         sync.Mutex
	current    int
	failed     int
	lastPrint  time.Time
	throbIndex int
}

var throbbers = []rune{'|', '/', '-', '\\'}

func NewProgressBar(total int, indent int, w io.Writer) *ProgressBar {
	return &ProgressBar{
		Total:  total,
		Indent: indent,
		Start:  time.Now(),
		W:      w,
	}
}

// Step records one finished unit of work
func (pb *ProgressBar) Step(failed bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	if failed {
		pb.failed++
	}

	if time.Since(pb.lastPrint) > 40*time.Millisecond || pb.current == pb.Total {
		pb.print(false)
		pb.lastPrint = time.Now()
	}
}

// Counts returns how many steps finished and how many of them failed
func (pb *ProgressBar) Counts() (done, failed int) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.current, pb.failed
}

func (pb *ProgressBar) print(finish bool) {
	width := 40
	percent := float64(pb.current) / float64(max(pb.Total, 1))
	if finish {
		percent = 1
	}

	filled := min(int(percent*float64(width)), width)
	bar := strings.Repeat("█", filled) + strings.Repeat("-", width-filled)

	throb := throbbers[pb.throbIndex%len(throbbers)]
	pb.throbIndex++
	if finish {
		throb = ' '
	}

	fmt.Fprintf(pb.W, "\r%s%d/%d [%s] %c",
		strings.Repeat(" ", pb.Indent),
		pb.current,
		pb.Total,
		bar,
		throb,
	)
	if pb.failed > 0 {
		fmt.Fprintf(pb.W, " %d failed", pb.failed)
	}
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.print(true)
	fmt.Fprintf(pb.W, " %s\n", time.Since(pb.Start).Round(time.Millisecond))
}

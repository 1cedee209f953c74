package native

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// FakeRunner records invocations instead of spawning processes. Exported so the
// external test package can use it too.
type FakeRunner struct {
	Fail  map[string]error // keyed by source base name
	Delay time.Duration
	Gate  chan struct{} // when set, every Run waits for it to be closed

	mu      sync.Mutex
	calls   []Invocation
	running atomic.Int32
	peak    atomic.Int32
	done    atomic.Int32
}

func (f *FakeRunner) Run(ctx context.Context, inv Invocation) error {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer f.done.Add(1)
	return f.Fail[filepath.Base(inv.Source)]
}

func (f *FakeRunner) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Invocation, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeRunner) Sources() []string {
	var out []string
	for _, inv := range f.Calls() {
		out = append(out, filepath.Base(inv.Source))
	}
	return out
}

// Peak is the highest number of concurrent Run calls observed
func (f *FakeRunner) Peak() int { return int(f.peak.Load()) }

// Done is the number of Run calls that got past the gate and delay
func (f *FakeRunner) Done() int { return int(f.done.Load()) }

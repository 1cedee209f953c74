package native

import (
	"context"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
)

// Dispatcher runs invocations and waits for them to drain
type Dispatcher interface {
	// Submit hands inv over for execution. Synchronous dispatchers return the
	// invocation's own error; pool dispatchers only report submission problems.
	Submit(ctx context.Context, inv Invocation) error
	// Stop rejects further submissions and blocks until everything submitted has finished.
	Stop(ctx context.Context) error
	// Failures returns the failed invocations seen so far.
	Failures() []*InvocationError
}

// DispatchOptions selects and tunes the dispatcher for one Execute call
type DispatchOptions struct {
	Parallel bool
	Jobs     int // worker bound for the pool, <= 0 means DefaultJobs()
	FailFast bool
	Observer Observer
}

// Observer is told about every finished invocation. It may be called concurrently.
type Observer interface {
	InvocationFinished(inv Invocation, err error)
}

// DefaultJobs is the number of logical CPUs
func DefaultJobs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// NewDispatcher returns a pool or synchronous dispatcher running invocations with runner
func NewDispatcher(opts DispatchOptions, runner ToolRunner) Dispatcher {
	if opts.Parallel {
		return newPoolDispatcher(opts, runner)
	}
	return &syncDispatcher{runner: runner, observer: opts.Observer}
}

type dispatchState int

const (
	stateAccepting dispatchState = iota
	stateStopping
	stateStopped
)

// failureLog collects invocation failures from any goroutine
type failureLog struct {
	mu       sync.Mutex
	failures []*InvocationError
}

func (l *failureLog) record(inv Invocation, err error) *InvocationError {
	ie := &InvocationError{Invocation: inv, ExitCode: exitCode(err), Err: err}
	l.mu.Lock()
	l.failures = append(l.failures, ie)
	l.mu.Unlock()
	return ie
}

func (l *failureLog) snapshot() []*InvocationError {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*InvocationError, len(l.failures))
	copy(out, l.failures)
	return out
}

func runOne(ctx context.Context, runner ToolRunner, inv Invocation, observer Observer) error {
	err := ctx.Err()
	if err == nil {
		err = runner.Run(ctx, inv)
	}
	if observer != nil {
		observer.InvocationFinished(inv, err)
	}
	return err
}

// syncDispatcher runs everything on the calling goroutine, in submission order
type syncDispatcher struct {
	runner   ToolRunner
	observer Observer
	log      failureLog

	mu    sync.Mutex
	state dispatchState
}

func (d *syncDispatcher) Submit(ctx context.Context, inv Invocation) error {
	d.mu.Lock()
	stopped := d.state != stateAccepting
	d.mu.Unlock()
	if stopped {
		return ErrDispatcherStopped
	}

	if err := runOne(ctx, d.runner, inv, d.observer); err != nil {
		return d.log.record(inv, err)
	}
	return nil
}

func (d *syncDispatcher) Stop(context.Context) error {
	d.mu.Lock()
	d.state = stateStopped
	d.mu.Unlock()
	return nil
}

func (d *syncDispatcher) Failures() []*InvocationError { return d.log.snapshot() }

// poolDispatcher runs invocations on at most Jobs goroutines
type poolDispatcher struct {
	runner   ToolRunner
	observer Observer
	log      failureLog
	group    *errgroup.Group
	ctx      context.Context // cancelled on the first failure in fail-fast mode
	failFast bool

	mu         sync.Mutex
	state      dispatchState
	submitting sync.WaitGroup
	drained    chan struct{}
	stopOnce   sync.Once
}

func newPoolDispatcher(opts DispatchOptions, runner ToolRunner) *poolDispatcher {
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = DefaultJobs()
	}

	d := &poolDispatcher{
		runner:   runner,
		observer: opts.Observer,
		failFast: opts.FailFast,
		drained:  make(chan struct{}),
	}
	if opts.FailFast {
		d.group, d.ctx = errgroup.WithContext(context.Background())
	} else {
		d.group, d.ctx = new(errgroup.Group), context.Background()
	}
	d.group.SetLimit(jobs)
	return d
}

func (d *poolDispatcher) Submit(ctx context.Context, inv Invocation) error {
	d.mu.Lock()
	if d.state != stateAccepting {
		d.mu.Unlock()
		return ErrDispatcherStopped
	}
	d.submitting.Add(1)
	d.mu.Unlock()
	defer d.submitting.Done()

	// blocks while all workers are busy
	d.group.Go(func() error {
		runCtx, cancel := mergeCancel(ctx, d.ctx)
		defer cancel()
		// AfterFunc propagates asynchronously, so an earlier failure may not be visible on runCtx yet
		if err := d.ctx.Err(); err != nil {
			runCtx = d.ctx
		}

		if err := runOne(runCtx, d.runner, inv, d.observer); err != nil {
			d.log.record(inv, err)
			if d.failFast {
				return err
			}
		}
		return nil
	})
	return nil
}

func (d *poolDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.state == stateAccepting {
		d.state = stateStopping
	}
	d.mu.Unlock()

	d.stopOnce.Do(func() {
		go func() {
			// no new Go calls can start once every in-flight Submit has returned
			d.submitting.Wait()
			_ = d.group.Wait()
			d.mu.Lock()
			d.state = stateStopped
			d.mu.Unlock()
			close(d.drained)
		}()
	})

	select {
	case <-d.drained:
		return nil
	case <-ctx.Done():
		select {
		case <-d.drained:
			return nil
		default:
			return ErrShutdownTimeout
		}
	}
}

func (d *poolDispatcher) Failures() []*InvocationError { return d.log.snapshot() }

// mergeCancel returns a context derived from a that is also cancelled when b is
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

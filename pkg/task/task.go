// Package task runs one download in the background so that a caller, typically a UI, never blocks
// on it.
package task

import (
	"context"
	"sync"

	"github.com/edenmgr/unidl/pkg/download"
	"github.com/edenmgr/unidl/pkg/logging"
)

type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Handlers receive the task's events on the worker goroutine. OnDone is always the last call.
type Handlers struct {
	OnProgress download.ProgressFunc
	OnDone     func(download.Outcome)
}

// Task is a single-use download. Create it with New, start it once with Start and request
// cancellation with Stop.
type Task struct {
	fetcher  download.Fetcher
	url      string
	dest     string
	handlers Handlers

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped bool
	outcome download.Outcome
	done    chan struct{}
}

func New(fetcher download.Fetcher, url, dest string, handlers Handlers) *Task {
	return &Task{
		fetcher:  fetcher,
		url:      url,
		dest:     dest,
		handlers: handlers,
		done:     make(chan struct{}),
	}
}

// Start launches the download on its own goroutine and returns immediately. It returns false and
// does nothing unless the task is Idle.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return false
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.state = Running
	go t.run(ctx)
	return true
}

// Stop requests cooperative cancellation. It never blocks and never kills anything itself: the
// running transport observes the cancellation and cleans up. Stopping a task that has not started
// or has already finished has no effect.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Running || t.stopped {
		return
	}
	t.stopped = true
	t.cancel()
	logger := logging.GetLogger()
	logger.Debug().Str("url", t.url).Msg("Stop requested")
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Done is closed once the task has reached a terminal state and OnDone has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its outcome. It must not be called on a task that
// was never started.
func (t *Task) Wait() download.Outcome {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	err := t.fetcher.DownloadFile(ctx, t.url, t.dest, t.relay)
	outcome := download.OutcomeFromError(t.dest, err)

	t.mu.Lock()
	switch {
	case outcome.Success:
		t.state = Completed
	case outcome.Cancelled:
		t.state = Cancelled
	default:
		t.state = Failed
	}
	t.outcome = outcome
	t.cancel()
	t.mu.Unlock()

	logger := logging.GetLogger()
	if outcome.Success {
		logger.Debug().Str("dest", t.dest).Msg("Task completed")
	} else {
		logger.Debug().Str("url", t.url).Bool("cancelled", outcome.Cancelled).Str("message", outcome.Message).Msg("Task finished")
	}
	if t.handlers.OnDone != nil {
		t.handlers.OnDone(outcome)
	}
}

// relay forwards progress only while the task is running and has not been asked to stop.
func (t *Task) relay(p download.Progress) {
	if t.handlers.OnProgress == nil {
		return
	}
	t.mu.Lock()
	suppressed := t.stopped || t.state != Running
	t.mu.Unlock()
	if suppressed {
		return
	}
	t.handlers.OnProgress(p)
}

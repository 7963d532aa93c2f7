package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 10 * time.Minute

	// Close reasons carried by the terminal marker.
	MsgComplete = "Processing complete."
	MsgFailed   = "Processing failed."
)

// ErrShuttingDown is returned by Submit once Shutdown has begun.
var ErrShuttingDown = errors.New("dispatcher shutting down")

type Options struct {
	// Timeout is the ceiling on a single executor run.
	Timeout time.Duration
	Logger  *zap.Logger
}

type task struct {
	cancel  context.CancelCauseFunc
	done    chan struct{}
	started time.Time
}

// Dispatcher starts one executor run per submitted issue and turns its
// outcome into the session's terminal state.
type Dispatcher struct {
	registry *session.Registry
	exec     Executor
	timeout  time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	shutdown bool
}

func New(registry *session.Registry, exec Executor, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{Timeout: DefaultTimeout}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Dispatcher{
		registry: registry,
		exec:     exec,
		timeout:  opts.Timeout,
		logger:   opts.Logger.With(zap.String("component", "dispatcher")),
		tasks:    make(map[string]*task),
	}
}

// Submit creates a session for issue, starts the executor in the background
// and returns the session id without waiting for any executor progress.
//
// An issue the executor rejects up front still gets a session: it is marked
// Failed with the rejection as its only event, and the id is returned so
// the caller can stream that outcome.
func (d *Dispatcher) Submit(issue Issue) (string, error) {
	d.mu.Lock()
	closed := d.shutdown
	d.mu.Unlock()
	if closed {
		return "", ErrShuttingDown
	}

	s, err := d.registry.Create()
	if err != nil {
		return "", err
	}
	logger := d.logger.With(zap.String("session", session.Redact(s.ID())))

	if v, ok := d.exec.(Validator); ok {
		if err := v.Validate(issue); err != nil {
			logger.Warn("issue rejected", zap.Error(err))
			s.Finish(session.Failed,
				session.Entry{Origin: session.Error, Content: err.Error()},
				session.Entry{Origin: session.Done, Content: MsgFailed})
			return s.ID(), nil
		}
	}

	base, cancel := context.WithCancelCause(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{}), started: time.Now()}

	d.mu.Lock()
	if d.shutdown {
		d.mu.Unlock()
		cancel(ErrShuttingDown)
		d.registry.Evict(s.ID())
		return "", ErrShuttingDown
	}
	d.tasks[s.ID()] = t
	d.mu.Unlock()

	s.Start()
	logger.Info("executor started", zap.String("title", issue.Title))
	go d.run(base, s, issue, t, logger)
	return s.ID(), nil
}

func (d *Dispatcher) run(base context.Context, s *session.Session, issue Issue, t *task, logger *zap.Logger) {
	ctx, cancel := context.WithTimeoutCause(base, d.timeout,
		fmt.Errorf("%w after %s", ErrExecutorTimeout, d.timeout))
	defer func() {
		cancel()
		t.cancel(nil)
		d.mu.Lock()
		delete(d.tasks, s.ID())
		d.mu.Unlock()
		close(t.done)
	}()

	// Done is reserved for Finish; anything else an executor invents is
	// shown as plain system output rather than lost.
	emit := func(origin session.Origin, content string) {
		switch origin {
		case session.System, session.Agent, session.Error:
		default:
			logger.Debug("executor origin remapped to system", zap.Stringer("origin", origin))
			origin = session.System
		}
		s.Append(origin, content)
	}

	result := make(chan error, 1)
	go func() { result <- d.invoke(ctx, issue, emit, logger) }()

	var err error
	select {
	case err = <-result:
		if err != nil && ctx.Err() != nil {
			err = context.Cause(ctx)
		}
	case <-ctx.Done():
		// An executor that ignores ctx is abandoned; its emits are dropped
		// once the session is terminal.
		err = context.Cause(ctx)
	}

	elapsed := time.Since(t.started)
	if err == nil {
		s.Finish(session.Completed, session.Entry{Origin: session.Done, Content: MsgComplete})
		logger.Info("executor completed", zap.Duration("elapsed", elapsed))
		return
	}
	s.Finish(session.Failed,
		session.Entry{Origin: session.Error, Content: err.Error()},
		session.Entry{Origin: session.Done, Content: MsgFailed})
	logger.Warn("executor failed", zap.Duration("elapsed", elapsed), zap.Error(err))
}

// invoke runs the executor, converting a panic into an ordinary failure.
func (d *Dispatcher) invoke(ctx context.Context, issue Issue, emit EmitFunc, logger *zap.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("executor panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("executor panicked: %v", r)
		}
	}()
	return d.exec.Execute(ctx, issue, emit)
}

// Cancel stops the executor of a running session. The session is marked
// Failed with a cancellation error.
func (d *Dispatcher) Cancel(id string) error {
	d.mu.Lock()
	t, ok := d.tasks[id]
	d.mu.Unlock()
	if !ok {
		if _, err := d.registry.Get(id); err != nil {
			return err
		}
		return ErrNotRunning
	}
	t.cancel(ErrCancelled)
	<-t.done
	return nil
}

// Running returns the number of executors in flight.
func (d *Dispatcher) Running() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// Shutdown refuses new submissions, cancels every running executor and
// waits for them to wind down or for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.shutdown = true
	pending := make([]*task, 0, len(d.tasks))
	for _, t := range d.tasks {
		pending = append(pending, t)
	}
	d.mu.Unlock()

	if len(pending) > 0 {
		d.logger.Info("cancelling running executors", zap.Int("count", len(pending)))
	}
	cause := fmt.Errorf("%w: server shutting down", ErrCancelled)
	for _, t := range pending {
		t.cancel(cause)
	}
	for _, t := range pending {
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

package dispatch

import (
	"context"

	"github.com/AathavaleHarsh/issue-resolver/internal/session"
)

// EmitFunc records one line of executor output. It is safe for concurrent
// use and never blocks on a subscriber. Calls made after the session ended
// are dropped.
type EmitFunc func(origin session.Origin, content string)

// Executor performs the work for one issue, reporting progress through emit.
// The returned error is the outcome: nil for success, anything else is
// relayed to the subscriber verbatim. Implementations must return promptly
// once ctx is done.
type Executor interface {
	Execute(ctx context.Context, issue Issue, emit EmitFunc) error
}

// Validator is implemented by executors that can reject an issue before any
// work starts.
type Validator interface {
	Validate(issue Issue) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, issue Issue, emit EmitFunc) error

func (f ExecutorFunc) Execute(ctx context.Context, issue Issue, emit EmitFunc) error {
	return f(ctx, issue, emit)
}

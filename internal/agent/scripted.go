package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
)

// Script patterns.
const (
	PatternSteady = "steady" // plays every step, then succeeds
	PatternError  = "error"  // fails part-way through
	PatternStall  = "stall"  // stops emitting and waits to be cancelled
)

var defaultSteps = []string{
	"Read: README.md",
	"Grep: searching for the reported symptom",
	"Read: internal/handler.go",
	"Bash: go test ./...",
	"Edit: internal/handler.go",
	"Bash: go test ./...",
	"Write: proposed fix summary",
}

type ScriptedOptions struct {
	Pattern string
	// Step is the pause before each scripted line.
	Step  time.Duration
	Steps []string
	// FailAfter is how many steps the error pattern plays before failing.
	FailAfter int
	FailWith  string
}

// Scripted is a demo executor that replays canned agent activity. It makes
// no network calls and is what the server runs when no model backend is
// configured.
type Scripted struct {
	opts ScriptedOptions
}

func NewScripted(optFns ...func(o *ScriptedOptions)) *Scripted {
	opts := ScriptedOptions{
		Pattern:   PatternSteady,
		Step:      500 * time.Millisecond,
		Steps:     defaultSteps,
		FailAfter: 3,
		FailWith:  "scripted failure: tests still failing after edit",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Scripted{opts: opts}
}

func (s *Scripted) Execute(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
	emit(session.System, fmt.Sprintf("Scripted agent picked up %q", issue.Title))

	steps := s.opts.Steps
	switch s.opts.Pattern {
	case PatternError:
		if s.opts.FailAfter < len(steps) {
			steps = steps[:s.opts.FailAfter]
		}
	case PatternStall:
		if len(steps) > 1 {
			steps = steps[:1]
		}
	}

	for _, line := range steps {
		if err := sleep(ctx, s.opts.Step); err != nil {
			return err
		}
		emit(session.Agent, line)
	}

	switch s.opts.Pattern {
	case PatternError:
		return errors.New(s.opts.FailWith)
	case PatternStall:
		emit(session.Agent, "Waiting on a tool that never returns...")
		<-ctx.Done()
		return ctx.Err()
	}
	emit(session.Agent, fmt.Sprintf("Finished %d steps for %q", len(steps), issue.Title))
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

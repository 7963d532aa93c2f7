package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"github.com/AathavaleHarsh/issue-resolver/internal/session"
	"go.uber.org/zap"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Completion is one model reply. Truncated is set when the model stopped
// because it ran out of output tokens rather than because it was done.
type Completion struct {
	Text      string
	Truncated bool
}

// Completer sends a conversation to a chat model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, system string, messages []Message) (Completion, error)
}

var (
	ErrEmptyResponse = errors.New("LLM provided an empty response")
	ErrMaxIterations = errors.New("max iterations reached")
)

const continuePrompt = "Continue exactly where you left off."

type LLMOptions struct {
	// Backend names the model provider in log lines and errors.
	Backend       string
	MaxIterations int
	SystemPrompt  string
	Logger        *zap.Logger
}

// LLM is the model-backed executor. It sends the issue to the model and
// keeps the conversation going while replies come back cut off, up to
// MaxIterations round trips.
type LLM struct {
	completer Completer
	opts      LLMOptions
	logger    *zap.Logger
}

// NewLLM returns an LLM executor. A nil completer is allowed; every issue
// submitted to it is then rejected by Validate.
func NewLLM(completer Completer, optFns ...func(o *LLMOptions)) *LLM {
	opts := LLMOptions{
		Backend:       "LLM",
		MaxIterations: 7,
		SystemPrompt:  "You are a helpful AI assistant.",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 1
	}
	return &LLM{
		completer: completer,
		opts:      opts,
		logger:    opts.Logger.With(zap.String("component", "agent"), zap.String("backend", opts.Backend)),
	}
}

func (l *LLM) Validate(issue dispatch.Issue) error {
	if l.completer == nil {
		return fmt.Errorf("%s client not initialized", l.opts.Backend)
	}
	return issue.Validate()
}

func (l *LLM) Execute(ctx context.Context, issue dispatch.Issue, emit dispatch.EmitFunc) error {
	say := func(format string, args ...any) {
		emit(session.Agent, fmt.Sprintf(format, args...))
	}

	say("--- Agent Initializing for: %s ---", orNA(issue.Title))
	prompt := buildPrompt(issue)
	messages := []Message{{Role: RoleUser, Content: prompt}}
	say("Prepared initial prompt for LLM.")
	say("Initial Message (Preview): %s...", preview(prompt, 150))

	var answer strings.Builder
	for i := 1; i <= l.opts.MaxIterations; i++ {
		say("--- Agent Iteration %d/%d ---", i, l.opts.MaxIterations)
		say("Sending request to LLM...")

		completion, err := l.completer.Complete(ctx, l.opts.SystemPrompt, messages)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error("completion failed", zap.Int("iteration", i), zap.Error(err))
			return fmt.Errorf("%s API call failed (iteration %d): %w", l.opts.Backend, i, err)
		}
		say("Received response from LLM.")
		answer.WriteString(completion.Text)

		if completion.Truncated {
			say("LLM response was cut off; asking it to continue.")
			messages = append(messages,
				Message{Role: RoleAssistant, Content: completion.Text},
				Message{Role: RoleUser, Content: continuePrompt})
			continue
		}

		final := answer.String()
		if strings.TrimSpace(final) == "" {
			say("LLM response had no content. Ending interaction.")
			return ErrEmptyResponse
		}
		say("LLM Final Response: %s...", preview(final, 200))
		emit(session.System, final)
		l.logger.Info("issue processed", zap.Int("iterations", i), zap.Int("response_bytes", len(final)))
		return nil
	}

	say("Max iterations (%d) reached. Ending interaction.", l.opts.MaxIterations)
	return ErrMaxIterations
}

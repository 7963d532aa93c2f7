package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type AnthropicOptions struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption
}

// Anthropic completes conversations through the Messages API.
type Anthropic struct {
	client *anthropic.Client
	opts   AnthropicOptions
}

func NewAnthropic(optFns ...func(o *AnthropicOptions)) *Anthropic {
	opts := AnthropicOptions{
		Model:       string(anthropic.ModelClaude3_5Sonnet20241022),
		Temperature: 0.5,
		MaxTokens:   2000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	clientOpts = append(clientOpts, opts.RequestOptions...)

	client := anthropic.NewClient(clientOpts...)
	return &Anthropic{client: &client, opts: opts}
}

func (a *Anthropic) Complete(ctx context.Context, system string, messages []Message) (Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.opts.Model),
		Messages:    a.buildMessages(messages),
		MaxTokens:   a.opts.MaxTokens,
		Temperature: anthropic.Float(a.opts.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	return Completion{
		Text:      text.String(),
		Truncated: resp.StopReason == anthropic.StopReasonMaxTokens,
	}, nil
}

func (a *Anthropic) buildMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(block))
		default:
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIOptions struct {
	// BaseURL points the client at any OpenAI-compatible endpoint, such as
	// OpenRouter.
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
	// RequestOptions are appended to the client options.
	RequestOptions []option.RequestOption
}

// OpenAI completes conversations through the Chat Completions API.
type OpenAI struct {
	client *openai.Client
	opts   OpenAIOptions
}

func NewOpenAI(optFns ...func(o *OpenAIOptions)) *OpenAI {
	opts := OpenAIOptions{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.5,
		MaxTokens:   2000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	clientOpts = append(clientOpts, opts.RequestOptions...)

	client := openai.NewClient(clientOpts...)
	return &OpenAI{client: &client, opts: opts}
}

func (o *OpenAI) Complete(ctx context.Context, system string, messages []Message) (Completion, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            o.buildMessages(system, messages),
		Model:               o.opts.Model,
		Temperature:         openai.Float(o.opts.Temperature),
		MaxCompletionTokens: openai.Int(o.opts.MaxTokens),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Completion{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices returned")
	}
	choice := resp.Choices[0]
	return Completion{
		Text:      choice.Message.Content,
		Truncated: choice.FinishReason == "length",
	}, nil
}

func (o *OpenAI) buildMessages(system string, messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

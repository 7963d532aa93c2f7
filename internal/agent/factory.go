package agent

import (
	"fmt"

	"github.com/AathavaleHarsh/issue-resolver/internal/config"
	"github.com/AathavaleHarsh/issue-resolver/internal/dispatch"
	"go.uber.org/zap"
)

// FromConfig builds the executor selected by cfg.Kind. A model backend
// without an API key still yields an executor; it rejects every issue with
// a "client not initialized" error so the failure reaches the subscriber.
func FromConfig(cfg config.ExecutorConfig, logger *zap.Logger) (dispatch.Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Kind {
	case "scripted":
		return NewScripted(func(o *ScriptedOptions) {
			o.Pattern = cfg.Scripted.Pattern
			o.Step = cfg.Scripted.Step
		}), nil

	case "openai":
		var c Completer
		if cfg.OpenAI.APIKey == "" {
			logger.Error("openai api key not set; issues will be rejected")
		} else {
			c = NewOpenAI(func(o *OpenAIOptions) {
				o.BaseURL = cfg.OpenAI.BaseURL
				o.APIKey = cfg.OpenAI.APIKey
				o.Model = cfg.OpenAI.Model
				o.Temperature = cfg.OpenAI.Temperature
				o.MaxTokens = cfg.OpenAI.MaxTokens
			})
		}
		return newLLMFromConfig(c, "OpenAI", cfg, logger), nil

	case "anthropic":
		var c Completer
		if cfg.Anthropic.APIKey == "" {
			logger.Error("anthropic api key not set; issues will be rejected")
		} else {
			c = NewAnthropic(func(o *AnthropicOptions) {
				o.APIKey = cfg.Anthropic.APIKey
				o.Model = cfg.Anthropic.Model
				o.Temperature = cfg.Anthropic.Temperature
				o.MaxTokens = cfg.Anthropic.MaxTokens
			})
		}
		return newLLMFromConfig(c, "Anthropic", cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown executor kind %q", cfg.Kind)
}

func newLLMFromConfig(c Completer, backend string, cfg config.ExecutorConfig, logger *zap.Logger) *LLM {
	return NewLLM(c, func(o *LLMOptions) {
		o.Backend = backend
		o.MaxIterations = cfg.MaxIterations
		o.SystemPrompt = cfg.SystemPrompt
		o.Logger = logger
	})
}

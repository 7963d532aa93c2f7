package agent

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaioption "github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{
				"index": 0,
				"finish_reason": "length",
				"message": {"role": "assistant", "content": "partial answer"}
			}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAI(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL + "/api/v1"
		o.APIKey = "sk-test"
		o.Model = "test-model"
		o.RequestOptions = []openaioption.RequestOption{openaioption.WithMaxRetries(0)}
	})

	got, err := c.Complete(t.Context(), "be brief", []Message{
		{Role: RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "partial answer", got.Text)
	assert.True(t, got.Truncated)

	assert.Equal(t, "test-model", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
}

func TestOpenAI_CompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAI(func(o *OpenAIOptions) {
		o.BaseURL = srv.URL
		o.APIKey = "sk-bad"
		o.RequestOptions = []openaioption.RequestOption{openaioption.WithMaxRetries(0)}
	})
	_, err := c.Complete(t.Context(), "", []Message{{Role: RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai api error")
}

func TestAnthropic_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [
				{"type": "text", "text": "Check the "},
				{"type": "text", "text": "nil guard."}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c := NewAnthropic(func(o *AnthropicOptions) {
		o.APIKey = "sk-ant-test"
		o.Model = "claude-test"
		o.RequestOptions = []anthropicoption.RequestOption{
			anthropicoption.WithBaseURL(srv.URL),
			anthropicoption.WithMaxRetries(0),
		}
	})

	got, err := c.Complete(t.Context(), "be brief", []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
		{Role: RoleUser, Content: continuePrompt},
	})
	require.NoError(t, err)
	assert.Equal(t, "Check the nil guard.", got.Text)
	assert.False(t, got.Truncated)

	assert.Equal(t, "claude-test", body["model"])
	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3)
	assert.NotNil(t, body["system"])
}

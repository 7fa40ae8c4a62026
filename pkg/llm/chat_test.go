package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms/fake"

	"github.com/xhad/veritas/pkg/llm"
)

func TestNewWithConfig(t *testing.T) {
	backend, err := llm.NewWithConfig(llm.ChatConfig{
		Provider: "ollama",
		Model:    "testmodel",
		BaseURL:  "http://localhost:1234",
	})
	require.NoError(t, err)
	assert.NotNil(t, backend)

	backend, err = llm.NewWithConfig(llm.ChatConfig{Provider: "openai", APIKey: "hf_test"})
	require.NoError(t, err)
	assert.IsType(t, &llm.OpenAIBackend{}, backend)

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "openai"})
	assert.ErrorContains(t, err, "API key")

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "bard"})
	assert.ErrorContains(t, err, "unknown generation provider")

	_, err = llm.NewWithConfig(llm.ChatConfig{Provider: "ollama", MaxTokens: -1})
	assert.Error(t, err)
}

func TestChatEngineGenerate(t *testing.T) {
	engine := llm.NewChatEngine(fake.NewFakeLLM([]string{"FINDINGS: socks are colorful"}), 100, nil)

	text, err := engine.Generate(context.Background(), "system", "What are socks?", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "FINDINGS: socks are colorful", text)
}

func TestChatEngineErrors(t *testing.T) {
	_, err := llm.NewChatEngine(fake.NewFakeLLM(nil), 0, nil).
		Generate(context.Background(), "system", "prompt", 0.7)
	assert.ErrorContains(t, err, "chat error")

	_, err = llm.NewChatEngine(fake.NewFakeLLM([]string{"   "}), 0, nil).
		Generate(context.Background(), "system", "prompt", 0.7)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestOpenAIBackendGenerate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"FINDINGS: ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer server.Close()

	backend, err := llm.NewOpenAIBackend(llm.OpenAIConfig{
		BaseURL: server.URL + "/v1",
		APIKey:  "hf_test",
		Model:   "deepseek-ai/DeepSeek-V3-0324",
	})
	require.NoError(t, err)

	text, err := backend.Generate(context.Background(), "be rigorous", "what is go?", 0.7)
	require.NoError(t, err)
	assert.Equal(t, "FINDINGS: ok", text)

	assert.Equal(t, "deepseek-ai/DeepSeek-V3-0324", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "be rigorous", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIBackendFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty/chat/completions":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"1","choices":[]}`))
		default:
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	empty, err := llm.NewOpenAIBackend(llm.OpenAIConfig{BaseURL: server.URL + "/empty", APIKey: "k"})
	require.NoError(t, err)
	_, err = empty.Generate(context.Background(), "s", "p", 0.7)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)

	broken, err := llm.NewOpenAIBackend(llm.OpenAIConfig{BaseURL: server.URL + "/broken", APIKey: "k"})
	require.NoError(t, err)
	_, err = broken.Generate(context.Background(), "s", "p", 0.7)
	assert.ErrorContains(t, err, "chat completion failed")
}

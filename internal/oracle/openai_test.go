package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
)

func TestOpenAIGateway_Complete(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "json_object", body["response_format"].(map[string]any)["type"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"ops":[]}`}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 20, "completion_tokens": 3, "total_tokens": 23},
		})
	}))
	defer ts.Close()

	gw := NewOpenAIGateway("sk-test", ts.URL, "gpt-4o-mini", 512, 0)
	text, err := gw.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, `{"ops":[]}`, text)
}

func TestOpenAIGateway_ServerErrorIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	gw := NewOpenAIGateway("sk-test", ts.URL, "gpt-4o-mini", 512, 0)
	_, err := gw.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, http.StatusServiceUnavailable, openAIStatus(err))
}

func TestOpenAIGateway_AuthErrorIsPermanent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	gw := NewOpenAIGateway("sk-bad", ts.URL, "gpt-4o-mini", 512, 0)
	_, err := gw.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestOpenAIGateway_NoChoicesIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":      "chatcmpl-2",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{},
			"usage":   map[string]any{"prompt_tokens": 20, "completion_tokens": 0, "total_tokens": 20},
		})
	}))
	defer ts.Close()

	gw := NewOpenAIGateway("sk-test", ts.URL, "gpt-4o-mini", 512, 0)
	text, err := gw.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Empty(t, text)
	assert.True(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "no choices")
}

package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"opsdesk/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func completionServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if seen != nil {
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenRouterToolCall(t *testing.T) {
	body := `{
	  "id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "test",
	  "choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
	    "role": "assistant", "content": null,
	    "tool_calls": [{"id": "call_1", "type": "function", "function": {
	      "name": "perform_action",
	      "arguments": "{\"action\":\"CREATE_TASK\",\"payload\":{\"title\":\"Call Bob\"},\"message\":\"Done\"}"
	    }}]
	  }}],
	  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`
	var seen map[string]any
	srv := completionServer(t, http.StatusOK, body, &seen)

	eng, err := NewOpenRouter("key", srv.URL, "test", 0.2, zaptest.NewLogger(t))
	require.NoError(t, err)

	resp, err := eng.Generate(context.Background(), &Request{
		SystemInstruction: "sys",
		History:           []Turn{{Role: "user", Content: "earlier"}},
		Tools:             tools.Default(),
		Input:             Input{Text: "call bob"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Call)
	assert.Equal(t, tools.PerformAction, resp.Call.Name)
	assert.Equal(t, "CREATE_TASK", resp.Call.Args["action"])
	assert.Equal(t, int64(12), resp.PromptTokens)

	msgs, ok := seen["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 3, "system + history + input")
	assert.NotEmpty(t, seen["tools"])
}

func TestOpenRouterFailureIsUnavailable(t *testing.T) {
	srv := completionServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, nil)

	eng, err := NewOpenRouter("key", srv.URL, "test", 0.2, nil)
	require.NoError(t, err)

	_, err = eng.Generate(context.Background(), &Request{Input: Input{Text: "hi"}})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenRouterRejectsAudio(t *testing.T) {
	eng, err := NewOpenRouter("key", "http://127.0.0.1:1", "test", 0, nil)
	require.NoError(t, err)
	_, err = eng.Generate(context.Background(), &Request{Input: Input{MimeType: "audio/wav", Data: []byte{1}}})
	assert.ErrorIs(t, err, ErrAudioUnsupported)
}

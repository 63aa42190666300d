package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, failures int32, content string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= failures {
			http.Error(w, `{"error":{"message":"upstream unavailable"}}`, http.StatusBadGateway)
			return
		}

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{"index": 0, "finish_reason": "stop", "message": map[string]interface{}{"role": "assistant", "content": content}},
			},
			"usage": map[string]interface{}{"prompt_tokens": 11, "completion_tokens": 7, "total_tokens": 18},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLLMAdapter_GenerateJSON(t *testing.T) {
	srv, calls := chatServer(t, 0, `{"topics":[]}`)

	a := NewLLMAdapter(srv.URL, "", "test-model")
	resp, err := a.GenerateJSON(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, `{"topics":[]}`, resp.Content)
	assert.Equal(t, 11, resp.PromptTokens)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestLLMAdapter_RetriesThenSucceeds(t *testing.T) {
	srv, calls := chatServer(t, 2, `{}`)

	a := NewLLMAdapter(srv.URL, "key", "test-model")
	a.SetRetryPolicy(3, time.Millisecond)

	_, err := a.GenerateJSON(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestLLMAdapter_GivesUp(t *testing.T) {
	srv, calls := chatServer(t, 10, `{}`)

	a := NewLLMAdapter(srv.URL, "key", "test-model")
	a.SetRetryPolicy(2, time.Millisecond)

	_, err := a.GenerateJSON(context.Background(), "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestLLMAdapter_SetModel(t *testing.T) {
	a := NewLLMAdapter("http://localhost:4000/v1", "", "first")
	a.SetModel("")
	assert.Equal(t, "first", a.GetModel())
	a.SetModel("second")
	assert.Equal(t, "second", a.GetModel())
}

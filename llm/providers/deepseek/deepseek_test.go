package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycosa9527/MindGraph-sub001/llm/providers/openaicompat"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

func TestNew_RegistersUnderDeepseekPhysicalName(t *testing.T) {
	p := New(Config{APIKey: "key"}, nil)
	assert.Equal(t, "deepseek", p.Name())
}

func TestStreamChat_EnableThinkingSwapsToReasoningModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openaicompat.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
	}))
	t.Cleanup(srv.Close)

	p := New(Config{APIKey: "key", BaseURL: srv.URL}, nil)
	ch, err := p.StreamChat(context.Background(), types.BuildMessages("", "hi"), 0, 0, true)
	require.NoError(t, err)
	for range ch {
	}
	assert.Equal(t, "deepseek-reasoner", gotModel)
}

func TestStreamChat_DefaultModelWhenThinkingDisabled(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openaicompat.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
	}))
	t.Cleanup(srv.Close)

	p := New(Config{APIKey: "key", BaseURL: srv.URL}, nil)
	ch, err := p.StreamChat(context.Background(), types.BuildMessages("", "hi"), 0, 0, false)
	require.NoError(t, err)
	for range ch {
	}
	assert.Equal(t, "deepseek-chat", gotModel)
}

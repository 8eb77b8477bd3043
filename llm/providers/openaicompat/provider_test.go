package openaicompat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lycosa9527/MindGraph-sub001/llm"
	"github.com/lycosa9527/MindGraph-sub001/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{ProviderName: "test", APIKey: "key", BaseURL: srv.URL, DefaultModel: "test-model"}, nil)
}

func TestChat_ParsesSuccessfulResponse(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"1","choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	})

	res, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0.7, 100)
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, 5, res.Usage.TotalTokens)
}

func TestChat_SendsAuthorizationHeader(t *testing.T) {
	var gotAuth string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer key", gotAuth)
}

func TestChat_EmptyChoicesIsResponseInvalid(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	assert.Equal(t, types.ErrResponseInvalid, types.GetErrorCode(err))
}

func TestChat_MapsUnauthorized(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	assert.Equal(t, types.ErrAuthentication, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestChat_MapsRateLimitedAsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down"}}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestChat_MapsQuotaExceededFromBadRequestBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"insufficient quota"}}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	assert.Equal(t, types.ErrQuotaExceeded, types.GetErrorCode(err))
}

func TestChat_MapsServiceUnavailableAsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"down for maintenance"}}`)
	})
	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestStreamChat_ParsesTokensThinkingAndUsage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"reasoning_content\":\"thinking...\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hel\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"usage\":{\"prompt_tokens\":1,\"completion_tokens\":2,\"total_tokens\":3}}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	ch, err := p.StreamChat(context.Background(), types.BuildMessages("", "hi"), 0, 0, true)
	require.NoError(t, err)

	var tokens []string
	var thinking []string
	var usage types.TokenUsage
	for chunk := range ch {
		switch chunk.Kind {
		case llm.ChunkToken:
			tokens = append(tokens, chunk.Content)
		case llm.ChunkThinking:
			thinking = append(thinking, chunk.Content)
		case llm.ChunkUsage:
			usage = chunk.Usage
		}
	}
	assert.Equal(t, []string{"hel", "lo"}, tokens)
	assert.Equal(t, []string{"thinking..."}, thinking)
	assert.Equal(t, 3, usage.TotalTokens)
}

func TestStreamChat_MapsHTTPErrorBeforeStreaming(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"forbidden"}}`)
	})
	_, err := p.StreamChat(context.Background(), types.BuildMessages("", "hi"), 0, 0, false)
	assert.Equal(t, types.ErrForbidden, types.GetErrorCode(err))
}

func TestHealthCheck_HealthyOnOK(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	res := p.HealthCheck(context.Background())
	assert.Equal(t, "healthy", res.Status)
}

func TestHealthCheck_UnhealthyOnNon200(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	res := p.HealthCheck(context.Background())
	assert.Equal(t, "unhealthy", res.Status)
	assert.Equal(t, "http_500", res.ErrorType)
}

func TestBuildHeaders_CustomOverrideTakesPrecedence(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Custom-Auth")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	t.Cleanup(srv.Close)

	p := New(Config{
		ProviderName: "ark",
		APIKey:       "secret",
		BaseURL:      srv.URL,
		BuildHeaders: func(req *http.Request, apiKey string) {
			req.Header.Set("X-Custom-Auth", "token-"+apiKey)
		},
	}, nil)

	_, err := p.Chat(context.Background(), types.BuildMessages("", "hi"), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "token-secret", gotHeader)
}

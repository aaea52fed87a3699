package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatResponse(content string, prompt, completion int) string {
	return fmt.Sprintf(`{
		"choices": [{"message": {"content": %q}}],
		"usage": {"prompt_tokens": %d, "completion_tokens": %d}
	}`, content, prompt, completion)
}

func TestChatWithContextSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse("hello there", 12, 7)))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("gpt-4o-mini", "sk-test", srv.URL)
	require.NoError(t, err)

	reply, usage, err := c.ChatWithContext(context.Background(), []Message{
		{Role: "user", Content: "hi"},
	}, GenerateOptions{Temperature: 0.2})
	require.NoError(t, err)
	assert.Equal(t, "hello there", reply)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 7, usage.OutputTokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestChatWithContextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "bad request"}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("gpt-4o-mini", "sk-test", srv.URL)
	require.NoError(t, err)

	_, _, err = c.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "hi"}}, GenerateOptions{})
	require.Error(t, err)
}

func TestChatWithContextRateLimitWaitsAndHonorsCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClient("gpt-4o-mini", "sk-test", srv.URL)
	require.NoError(t, err)

	// 限流等待是 10s 起步，用短 ctx 验证等待可被取消
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err = c.ChatWithContext(ctx, []Message{{Role: "user", Content: "hi"}}, GenerateOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "expected deadline error, got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	c, err := NewOpenAIClient("", "sk-test", "http://localhost:1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())
	assert.Equal(t, "openai", c.Provider())
}

func TestRateLimitedClientPassthrough(t *testing.T) {
	inner, err := NewOpenAIClient("gpt-4o", "sk-test", "http://localhost:1")
	require.NoError(t, err)

	// rpm<=0 不包装
	same := NewRateLimitedClient(inner, 0)
	assert.Same(t, Client(inner), same)

	wrapped := NewRateLimitedClient(inner, 600)
	assert.Equal(t, "gpt-4o", wrapped.Model())
	assert.Equal(t, "openai", wrapped.Provider())
}

func TestProviderLimiterSharedAcrossClients(t *testing.T) {
	inner, err := NewOpenAIClient("gpt-4o-mini", "sk-test", "http://localhost:1")
	require.NoError(t, err)

	// rpm<=0 返回 nil 限速器，Wrap 原样透传
	assert.Same(t, Client(inner), NewProviderLimiter(0).Wrap(inner))

	lim := NewProviderLimiter(600)
	a, ok := lim.Wrap(inner).(*RateLimitedClient)
	require.True(t, ok)
	b, ok := lim.Wrap(inner).(*RateLimitedClient)
	require.True(t, ok)

	// 同一 Provider 下的客户端共用一个令牌桶，预算不随客户端数量放大
	assert.Same(t, a.limiter, b.limiter)
}

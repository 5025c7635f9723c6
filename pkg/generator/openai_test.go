package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shouni/go-http-kit/httpkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewOpenAIClient("test-key", srv.URL+"/", "gpt-test", "image-test", 0.7, httpkit.New(time.Minute, httpkit.WithMaxRetries(0)))
	require.NoError(t, err)
	return c
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "http://localhost", "m", "i", 0, nil)
	assert.Error(t, err)
}

func TestOpenAIClient_GenerateText(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "only json", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_object", req.ResponseFormat.Type)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"scenes\":[]}"}}]}`))
	})

	out, err := c.GenerateText(context.Background(), TextRequest{System: "only json", User: "script", JSON: true})
	require.NoError(t, err)
	assert.Equal(t, `{"scenes":[]}`, out)
}

func TestOpenAIClient_GenerateText_StatusError(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := c.GenerateText(context.Background(), TextRequest{User: "x"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, se.Body, "rate limited")
}

func TestOpenAIClient_ServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	_, err := c.GenerateText(context.Background(), TextRequest{User: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.EqualValues(t, 1, calls.Load(), "失敗しても自動で再送しないのだ")
}

func TestOpenAIClient_GenerateText_NoChoices(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.GenerateText(context.Background(), TextRequest{User: "x"})
	assert.Error(t, err)
}

func TestOpenAIClient_GenerateImage(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)

		var req imageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 1, req.N)
		assert.Equal(t, "1792x1024", req.Size)
		assert.Equal(t, "a hero", req.Prompt)

		_, _ = w.Write([]byte(`{"data":[{"url":"https://transient.example/img.png"}]}`))
	})

	res, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "a hero", Size: "1792x1024"})
	require.NoError(t, err)
	assert.Equal(t, "https://transient.example/img.png", res.URL)
	assert.Empty(t, res.Data)
}

func TestOpenAIClient_GenerateImage_NoURL(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	_, err := c.GenerateImage(context.Background(), ImageRequest{Prompt: "x"})
	assert.Error(t, err)
}

func TestOpenAIClient_ContextDeadline(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GenerateImage(ctx, ImageRequest{Prompt: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "タイムアウトは DeadlineExceeded として判別できるのだ")
}

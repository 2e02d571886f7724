package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiGenerateWithKey(t *testing.T) {
	var got geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.RawQuery)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ENOUGH_INFO"}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "test-model", time.Second)
	text, err := c.GenerateWithKey(context.Background(), "secret", "hello", FollowUpConfig)
	require.NoError(t, err)
	assert.Equal(t, "ENOUGH_INFO", text)

	require.Len(t, got.Contents, 1)
	assert.Equal(t, "hello", got.Contents[0].Parts[0].Text)
	assert.Equal(t, 512, got.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 40, got.GenerationConfig.TopK)
}

func TestGeminiStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "", time.Second)
	_, err := c.GenerateWithKey(context.Background(), "k", "p", SummaryConfig)
	require.Error(t, err)
	assert.True(t, Rotatable(err))
}

func TestGeminiEmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "", time.Second)
	_, err := c.GenerateWithKey(context.Background(), "k", "p", SummaryConfig)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiTransportErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, err := w.(http.Hijacker).Hijack()
		if assert.NoError(t, err) {
			_ = conn.Close()
		}
	}))
	defer srv.Close()

	c := NewGeminiClient(srv.URL, "m", time.Second)
	_, err := c.GenerateWithKey(context.Background(), "AIzaSECRETKEY123", "p", FollowUpConfig)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "AIzaSECRETKEY123")
	assert.NotContains(t, err.Error(), srv.URL)
	assert.False(t, Rotatable(err))
}

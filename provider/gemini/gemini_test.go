package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/industrymatch"
	"github.com/ineyio/industrymatch/provider/gemini"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *gemini.Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := gemini.New("test-key", gemini.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return p
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := gemini.New("")
	assert.Error(t, err)
}

func TestGenerateContent_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{
					"content":      map[string]any{"parts": []map[string]any{{"text": `{"classifications": []}`}}},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]any{
				"promptTokenCount":     120,
				"candidatesTokenCount": 30,
				"totalTokenCount":      150,
			},
		})
	})

	resp, err := p.GenerateContent(context.Background(), industrymatch.GenerateRequest{
		Model:             "gemini-2.0-flash-lite",
		SystemInstruction: "classify news",
		Prompt:            "News 1: ...",
	})
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.0-flash-lite:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Contains(t, gotBody, "systemInstruction")
	assert.Contains(t, gotBody, "contents")

	assert.Equal(t, `{"classifications": []}`, resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, int64(150), resp.Usage.TotalTokens)
}

func TestGenerateContent_OmitsEmptySystemInstruction(t *testing.T) {
	var gotBody map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "ok"}}}, "finishReason": "STOP"},
			},
		})
	})

	_, err := p.GenerateContent(context.Background(), industrymatch.GenerateRequest{
		Model: "gemini-2.0-flash-lite", Prompt: "hi",
	})
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "systemInstruction")
}

func TestGenerateContent_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, industrymatch.ErrRateLimited},
		{"unauthorized", http.StatusUnauthorized, industrymatch.ErrAuthFailed},
		{"forbidden", http.StatusForbidden, industrymatch.ErrAuthFailed},
		{"bad request", http.StatusBadRequest, industrymatch.ErrInvalidRequest},
		{"server error", http.StatusInternalServerError, industrymatch.ErrProviderUnavailable},
		{"bad gateway", http.StatusBadGateway, industrymatch.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tc.status)
			})
			_, err := p.GenerateContent(context.Background(), industrymatch.GenerateRequest{
				Model: "m", Prompt: "x",
			})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestGenerateContent_EmptyCandidates(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	})
	_, err := p.GenerateContent(context.Background(), industrymatch.GenerateRequest{Model: "m", Prompt: "x"})
	assert.ErrorIs(t, err, industrymatch.ErrProviderUnavailable)
}

func TestGenerateContent_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := gemini.New("test-key", gemini.WithBaseURL(url))
	require.NoError(t, err)

	_, err = p.GenerateContent(context.Background(), industrymatch.GenerateRequest{Model: "m", Prompt: "x"})
	assert.ErrorIs(t, err, industrymatch.ErrProviderUnavailable)
}

func TestGenerateContent_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := p.GenerateContent(ctx, industrymatch.GenerateRequest{Model: "m", Prompt: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

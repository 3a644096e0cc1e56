package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteRequestsJSONObject(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"action\":\"WAIT\"}"}}]}`))
	}))
	defer srv.Close()

	m, err := New(Options{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	out, err := m.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"WAIT"}`, out)

	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	msgs, _ := got["messages"].([]any)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "openai/"+DefaultModel, m.Name())
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

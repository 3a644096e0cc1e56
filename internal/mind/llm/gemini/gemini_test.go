package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteReadsFirstCandidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/"+DefaultModel+":generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"action\":\"WAIT\"}"}]}}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	m, err := New(ctx, Options{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := m.Complete(ctx, "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"action":"WAIT"}`, out)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

package llamacpp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, answer string) (*httptest.Server, *ChatCompletionRequest) {
	t.Helper()
	var got ChatCompletionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, completionsPath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error": "model not loaded"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "dental-yolo",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": answer}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestDetect(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK,
		`{"findings":[{"label":"caries","confidence":0.8,"box":{"x":0.1,"y":0.1,"w":0.2,"h":0.2}}],"description":"one lesion"}`)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)

	result, err := c.Detect(context.Background(), "dental-yolo", "find lesions", "aGVsbG8=")
	require.NoError(t, err)
	require.Equal(t, "dental-yolo", result.Model)
	require.Len(t, result.Findings, 1)
	require.Equal(t, "caries", result.Findings[0].Label)

	require.Equal(t, "dental-yolo", got.Model)
	require.Len(t, got.Messages, 1)
	parts, ok := got.Messages[0].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, parts, 2)
}

func TestSimpleQuery(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, "A panoramic dental radiograph.")

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	text, err := c.SimpleQuery(context.Background(), "m", "what is this?", "")
	require.NoError(t, err)
	require.Equal(t, "A panoramic dental radiograph.", text)
}

func TestDetectServerError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusServiceUnavailable, "")

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	_, err = c.Detect(context.Background(), "m", "p", "aGVsbG8=")
	require.ErrorContains(t, err, "503")
}

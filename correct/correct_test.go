package correct

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = ts.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func streamServer(t *testing.T, fragments []string, got *openai.ChatCompletionRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		// A role-only delta comes first in real streams and carries no text.
		fmt.Fprint(w, `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant"}}]}`+"\n\n")
		for _, f := range fragments {
			chunk, _ := json.Marshal(map[string]any{
				"id":      "c1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "m",
				"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": f}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAICorrect(t *testing.T) {
	var req openai.ChatCompletionRequest
	ts := streamServer(t, []string{"Hello", ", ", "world."}, &req)
	defer ts.Close()

	c := NewOpenAI(newTestClient(ts), "test-model", NewInstruction("fix it"))
	stream, err := c.Correct(context.Background(), "hello world")
	require.NoError(t, err)
	defer stream.Close()

	var fragments []string
	for {
		f, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		fragments = append(fragments, f)
	}

	assert.Equal(t, []string{"Hello", ", ", "world."}, fragments)
	assert.True(t, req.Stream)
	assert.Equal(t, "test-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, "fix it", req.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[1].Role)
	assert.Equal(t, "hello world", req.Messages[1].Content)

	// Exhausted streams stay exhausted.
	_, err = stream.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestOpenAICorrect_RequestError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer ts.Close()

	_, err := NewOpenAI(newTestClient(ts), "", nil).Correct(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestLoadInstruction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("  be terse \n"), 0o644))

	i, err := LoadInstruction(path)
	require.NoError(t, err)
	assert.Equal(t, "be terse", i.String())

	_, err = LoadInstruction(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))
	_, err = LoadInstruction(path)
	require.Error(t, err)
}

func TestInstructionWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))

	i, err := LoadInstruction(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- i.Watch(ctx) }()

	// Rewrite until the watcher, which may still be starting, sees a change.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("second"), 0o644)
		return i.String() == "second"
	}, 5*time.Second, 50*time.Millisecond)

	// Empty content is rejected and the last good text stays.
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, "second", i.String())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatchWithoutFile(t *testing.T) {
	require.NoError(t, NewInstruction("static").Watch(context.Background()))
}

package chunkcli

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/chunkscribe/scribe"
	chunkserv "github.com/bosley/chunkscribe/server"
)

type stubProcessor struct {
	fail  string
	block bool
}

func (p *stubProcessor) Process(ctx context.Context, data []byte, pub scribe.Publisher) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}
	text := string(data)
	pub.Publish(scribe.Event{
		Type:      scribe.EventProcessing,
		RequestID: "req",
		Chunks:    []scribe.ChunkState{{ID: 0, Status: scribe.StatusFinished, Transcription: &text, Correction: &text}},
	})
	pub.Publish(scribe.Event{Type: scribe.EventProcessFinished, RequestID: "req", Message: "done", Error: p.fail})
	return nil
}

func startServer(t *testing.T, p chunkserv.Processor) Config {
	t.Helper()
	s := chunkserv.New(chunkserv.Config{Token: "tok"}, p, prometheus.NewRegistry())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return Config{URL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws", Token: "tok"}
}

func TestSubmit(t *testing.T) {
	cfg := startServer(t, &stubProcessor{})

	var types []string
	var final []scribe.ChunkState
	err := Submit(context.Background(), cfg, []byte("audio"), func(m chunkserv.Message) {
		types = append(types, m.Type)
		if m.Type == string(scribe.EventProcessing) {
			chunks, err := m.Chunks()
			require.NoError(t, err)
			final = chunks
		}
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"process-started", "processing", "process-finished"}, types)
	require.Len(t, final, 1)
	assert.Equal(t, "audio", *final[0].Correction)
}

func TestSubmit_RequestFailed(t *testing.T) {
	cfg := startServer(t, &stubProcessor{fail: "segment 0: correction failed: boom"})

	err := Submit(context.Background(), cfg, []byte("audio"), nil)
	require.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "correction failed: boom")
}

func TestSubmit_Unauthorized(t *testing.T) {
	cfg := startServer(t, &stubProcessor{})
	cfg.Token = "wrong"

	err := Submit(context.Background(), cfg, []byte("audio"), nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubmit_NoAudio(t *testing.T) {
	err := Submit(context.Background(), Config{URL: "ws://127.0.0.1:1/ws"}, nil, nil)
	assert.Error(t, err)
}

func TestSubmit_Cancelled(t *testing.T) {
	cfg := startServer(t, &stubProcessor{block: true})

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- Submit(ctx, cfg, []byte("audio"), func(m chunkserv.Message) {
			if m.Type == string(scribe.EventProcessStarted) {
				close(started)
			}
		})
	}()

	<-started
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Submit did not return after cancellation")
	}
}

func TestCreateTLSConfig(t *testing.T) {
	tlsConfig, err := createTLSConfig(Config{})
	require.NoError(t, err)
	assert.Nil(t, tlsConfig)

	tlsConfig, err = createTLSConfig(Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, tlsConfig.InsecureSkipVerify)

	_, err = createTLSConfig(Config{CertFile: t.TempDir() + "/missing.pem"})
	assert.Error(t, err)
}

func TestAmplitude(t *testing.T) {
	assert.Equal(t, 0.0, amplitude(nil))
	assert.Equal(t, 100.0, amplitude([]int16{100, -100, 50, -150}))
}

package chunkcli

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bosley/chunkscribe/scribe"
	chunkserv "github.com/bosley/chunkscribe/server"
)

var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRequestFailed = errors.New("request failed")
	ErrRejected      = errors.New("request rejected")
)

const handshakeTimeout = 10 * time.Second

// Configuration for talking to a chunkscribe server
type Config struct {
	// Websocket endpoint, e.g. wss://host:8444/ws
	URL   string
	Token string

	// TLS options for wss:// URLs. Without either the system roots are used.
	InsecureSkipVerify bool
	CertFile           string
}

// Submit sends one recording and blocks until the server reports the
// request finished. onEvent, if set, sees every message of the request in
// arrival order. A finished request that carries an error is returned as
// ErrRequestFailed.
func Submit(ctx context.Context, cfg Config, audio []byte, onEvent func(chunkserv.Message)) error {
	if len(audio) == 0 {
		return fmt.Errorf("no audio to submit")
	}

	tlsConfig, err := createTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create TLS config: %w", err)
	}
	dialer := websocket.Dialer{
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: handshakeTimeout,
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	ref := uuid.NewString()
	slog.Debug("Submitting recording", "url", cfg.URL, "ref", ref, "bytes", len(audio))

	req := chunkserv.Request{Type: chunkserv.TypeRequestTranscription, Ref: ref, Audio: audio}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	for {
		var msg chunkserv.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read server message: %w", err)
		}
		if msg.Ref != ref {
			continue
		}
		if onEvent != nil {
			onEvent(msg)
		}

		switch msg.Type {
		case chunkserv.TypeError:
			status, _ := msg.Status()
			return fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(status.Message+" "+status.Error))
		case string(scribe.EventProcessFinished):
			status, err := msg.Status()
			if err != nil {
				return fmt.Errorf("failed to decode finished message: %w", err)
			}
			if status.Error != "" {
				return fmt.Errorf("%w: %s", ErrRequestFailed, status.Error)
			}
			slog.Info("Transcription finished", "requestID", msg.RequestID, "ref", ref)
			return nil
		}
	}
}

func createTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.InsecureSkipVerify {
		slog.Warn("Running in insecure mode. This should not be used in production!")
		return &tls.Config{InsecureSkipVerify: true}, nil
	}
	if cfg.CertFile == "" {
		return nil, nil
	}

	// Load the server's certificate
	certPEM, err := os.ReadFile(cfg.CertFile)
	if err != nil {
		return nil, err
	}

	certPool := x509.NewCertPool()
	if !certPool.AppendCertsFromPEM(certPEM) {
		return nil, fmt.Errorf("failed to append server certificate")
	}

	return &tls.Config{
		RootCAs: certPool,
	}, nil
}

// Package transcribe turns one audio file into raw text through an external
// speech recognition engine.
package transcribe

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Transcriber converts the audio at audioPath into text. Implementations make
// exactly one engine call and never retry.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

const (
	BackendOpenAI  = "openai"
	BackendWhisper = "whisper"
)

// Configuration for the transcription backend
type Config struct {
	// Backend name, "openai" or "whisper"
	Backend string

	// OpenAI-compatible API (OpenAI, LocalAI, ...)
	Client   *openai.Client
	Model    string
	Language string

	// whisper.cpp executable and model
	WhisperPath  string
	WhisperModel string
}

// New returns the backend named by cfg.Backend.
func New(cfg Config) (Transcriber, error) {
	switch cfg.Backend {
	case BackendOpenAI, "":
		if cfg.Client == nil {
			return nil, fmt.Errorf("openai transcription backend requires a client")
		}
		return NewOpenAI(cfg.Client, cfg.Model, cfg.Language), nil
	case BackendWhisper:
		if cfg.WhisperPath == "" || cfg.WhisperModel == "" {
			return nil, fmt.Errorf("whisper backend requires executable and model paths")
		}
		return &Whisper{Path: cfg.WhisperPath, Model: cfg.WhisperModel}, nil
	default:
		return nil, fmt.Errorf("unknown transcription backend %q", cfg.Backend)
	}
}

package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAI transcribes through the audio transcription endpoint of an
// OpenAI-compatible API.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAI(client *openai.Client, model, language string) *OpenAI {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: client, model: model, language: language}
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Language: o.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	slog.Debug("Transcription received",
		"file", filepath.Base(audioPath),
		"model", o.model,
		"length", len(text))
	return text, nil
}

// Package correct refines raw transcripts through a streaming text completion
// engine.
package correct

import "context"

// DefaultInstruction is the system prompt sent with every transcript.
const DefaultInstruction = "You are a transcript editor. Correct the grammar, punctuation and clarity " +
	"of the text you are given while preserving its meaning. Reply with the corrected text only."

// Stream yields corrected text fragments in order. Recv returns io.EOF once
// the engine has finished; a stream cannot be restarted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Corrector opens a correction stream for one transcript.
type Corrector interface {
	Correct(ctx context.Context, text string) (Stream, error)
}

package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Whisper runs a whisper.cpp executable on the segment file.
type Whisper struct {
	Path  string
	Model string
}

func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	cmd := exec.CommandContext(ctx, w.Path,
		"--model", w.Model,
		"--no-timestamps",
		audioPath)

	slog.Debug("Executing whisper command",
		"command", cmd.String(),
		"args", cmd.Args)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			slog.Debug("Whisper command failed",
				"stderr", string(exitErr.Stderr),
				"exitCode", exitErr.ExitCode())
		}
		return "", fmt.Errorf("whisper execution failed: %w", err)
	}

	slog.Debug("Whisper command output received", "outputLength", len(output))
	return extractText(string(output)), nil
}

// extractText joins whisper's output lines, dropping blanks and
// [BLANK_AUDIO] markers.
func extractText(output string) string {
	var builder strings.Builder
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "[BLANK_AUDIO]") {
			continue
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(text)
	}

	return builder.String()
}

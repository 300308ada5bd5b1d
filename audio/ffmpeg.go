package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg probes with ffprobe and cuts with ffmpeg, re-encoding every
// segment to the mono 16 kHz WAV that Whisper expects.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

var _ Media = (*FFmpeg)(nil)

func (f *FFmpeg) ffmpeg() string {
	if f.FFmpegPath == "" {
		return "ffmpeg"
	}
	return f.FFmpegPath
}

func (f *FFmpeg) ffprobe() string {
	if f.FFprobePath == "" {
		return "ffprobe"
	}
	return f.FFprobePath
}

func (f *FFmpeg) Ext() string {
	return ".wav"
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			slog.Debug("ffprobe failed",
				"stderr", string(exitErr.Stderr),
				"exitCode", exitErr.ExitCode())
		}
		return 0, fmt.Errorf("ffprobe execution failed: %w", err)
	}
	return parseProbeDuration(string(output))
}

func (f *FFmpeg) Cut(ctx context.Context, src string, start, end float64, dst string) error {
	cmd := exec.CommandContext(ctx, f.ffmpeg(),
		"-i", src,
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-ar", strconv.Itoa(WhisperSampleRate),
		"-ac", strconv.Itoa(Channels),
		"-y", // Overwrite output file
		dst)

	slog.Debug("Executing ffmpeg command", "args", cmd.Args)

	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func parseProbeDuration(output string) (float64, error) {
	value := strings.TrimSpace(output)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("no duration in ffprobe output")
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", value, err)
	}
	return seconds, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// Auto sends RIFF/WAVE inputs to the native WAV backend and everything
// else through ffmpeg.
type Auto struct {
	FFmpeg *FFmpeg
}

var _ Media = (*Auto)(nil)

func (a *Auto) Ext() string {
	return ".wav"
}

func (a *Auto) Duration(ctx context.Context, path string) (float64, error) {
	m, err := a.pick(path)
	if err != nil {
		return 0, err
	}
	return m.Duration(ctx, path)
}

func (a *Auto) Cut(ctx context.Context, src string, start, end float64, dst string) error {
	m, err := a.pick(src)
	if err != nil {
		return err
	}
	return m.Cut(ctx, src, start, end, dst)
}

func (a *Auto) pick(path string) (Media, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read audio header: %w", err)
	}
	if IsWAV(header[:n]) {
		return WAV{}, nil
	}
	if a.FFmpeg == nil {
		return &FFmpeg{}, nil
	}
	return a.FFmpeg, nil
}

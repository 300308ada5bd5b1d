package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/youpy/go-wav"
)

const (
	WhisperSampleRate = 16000 // Rate required by Whisper
	Channels          = 1     // Mono audio
	BitsPerSample     = 16    // Using int16 for samples
)

// WAV probes and cuts PCM WAV files without external tools.
type WAV struct{}

var _ Media = WAV{}

func (WAV) Ext() string {
	return ".wav"
}

func (WAV) Duration(ctx context.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	d, err := wav.NewReader(file).Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read WAV duration: %w", err)
	}
	return d.Seconds(), nil
}

// Cut copies the block-aligned PCM frames covering [start, end) into a new
// WAV file with the source format.
func (WAV) Cut(ctx context.Context, src string, start, end float64, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("invalid range [%.3f, %.3f)", start, end)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}
	defer in.Close()

	reader := wav.NewReader(in)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read WAV format: %w", err)
	}
	if format.BlockAlign == 0 || format.SampleRate == 0 {
		return fmt.Errorf("unsupported WAV format: %+v", format)
	}

	// Rounded so float bounds like 3.3000000000000003 land on their frame
	firstFrame := int64(math.Round(start * float64(format.SampleRate)))
	lastFrame := int64(math.Round(end * float64(format.SampleRate)))
	blockAlign := int64(format.BlockAlign)

	if _, err := io.CopyN(io.Discard, reader, firstFrame*blockAlign); err != nil {
		return fmt.Errorf("failed to seek to %.3fs: %w", start, err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}
	defer out.Close()

	frames := lastFrame - firstFrame
	writer := wav.NewWriter(out, uint32(frames), format.NumChannels, format.SampleRate, format.BitsPerSample)
	if _, err := io.CopyN(writer, reader, frames*blockAlign); err != nil {
		return fmt.Errorf("failed to copy frames: %w", err)
	}

	return out.Close()
}

// EncodeWAV encodes mono 16-bit samples as a WAV file.
func EncodeWAV(samples []int16, sampleRate uint32) ([]byte, error) {
	var buf bytes.Buffer
	writer := wav.NewWriter(&buf, uint32(len(samples)), Channels, sampleRate, BitsPerSample)

	data := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write samples: %w", err)
	}
	return buf.Bytes(), nil
}

// IsWAV reports whether header starts with a RIFF/WAVE signature.
func IsWAV(header []byte) bool {
	return len(header) >= 12 &&
		string(header[0:4]) == "RIFF" &&
		string(header[8:12]) == "WAVE"
}

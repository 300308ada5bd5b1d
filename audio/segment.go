package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

var (
	ErrDurationUnavailable  = errors.New("audio duration unavailable")
	ErrSegmentExtraction    = errors.New("segment extraction failed")
	ErrInvalidSegmentLength = errors.New("segment length must be positive")
)

// Segment is one fixed-length time range of the source recording,
// materialized as its own audio file.
type Segment struct {
	Index int
	Start float64
	End   float64
	Path  string
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Release removes the segment's audio file. Missing files are not an error.
func (s Segment) Release() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove segment file: %w", err)
	}
	return nil
}

// Prober reports the total duration of an audio file in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Cutter writes the [start, end) range of src to dst as a standalone file.
type Cutter interface {
	Cut(ctx context.Context, src string, start, end float64, dst string) error
	Ext() string
}

// Media is a probe and cut utility for one family of audio formats.
type Media interface {
	Prober
	Cutter
}

// Segmenter splits a recording into equally sized segments.
type Segmenter struct {
	media Media
}

func NewSegmenter(media Media) *Segmenter {
	return &Segmenter{media: media}
}

// boundsEpsilon absorbs float error in total/length so an exact multiple
// such as 3.3/1.1 still yields every segment.
const boundsEpsilon = 1e-9

// Bounds returns the [start, end) pairs for a recording of total seconds cut
// into segments of length seconds. A trailing range shorter than length is
// not included, and every pair spans exactly length.
func Bounds(total, length float64) [][2]float64 {
	if length <= 0 || total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) || math.IsNaN(length) {
		return nil
	}
	n := int(math.Floor(total/length + boundsEpsilon))
	bounds := make([][2]float64, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * length
		bounds = append(bounds, [2]float64{start, start + length})
	}
	return bounds
}

// Split probes inputPath and extracts each full-length segment into workDir.
// On extraction failure, files already written are left for the caller to
// remove with the rest of workDir.
func (s *Segmenter) Split(ctx context.Context, inputPath string, segmentSeconds float64, workDir string) ([]Segment, error) {
	if segmentSeconds <= 0 || math.IsNaN(segmentSeconds) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSegmentLength, segmentSeconds)
	}

	total, err := s.media.Duration(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDurationUnavailable, err)
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil, fmt.Errorf("%w: probe returned %v", ErrDurationUnavailable, total)
	}

	bounds := Bounds(total, segmentSeconds)
	slog.Debug("Computed segment bounds",
		"input", filepath.Base(inputPath),
		"duration", total,
		"segmentSeconds", segmentSeconds,
		"segments", len(bounds))

	segments := make([]Segment, 0, len(bounds))
	for i, b := range bounds {
		path := filepath.Join(workDir, segmentName(b[0], b[1], s.media.Ext()))
		if err := s.media.Cut(ctx, inputPath, b[0], b[1], path); err != nil {
			return nil, fmt.Errorf("%w: segment %d [%.3f, %.3f): %w", ErrSegmentExtraction, i, b[0], b[1], err)
		}
		segments = append(segments, Segment{
			Index: i,
			Start: b[0],
			End:   b[1],
			Path:  path,
		})
	}

	return segments, nil
}

func segmentName(start, end float64, ext string) string {
	return fmt.Sprintf("segment_%.3f_%.3f%s", start, end, ext)
}

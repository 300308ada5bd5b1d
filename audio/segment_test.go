package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	mu       sync.Mutex
	duration float64
	probeErr error
	failAt   int
	cuts     [][2]float64
}

func (m *fakeMedia) Ext() string { return ".raw" }

func (m *fakeMedia) Duration(ctx context.Context, path string) (float64, error) {
	return m.duration, m.probeErr
}

func (m *fakeMedia) Cut(ctx context.Context, src string, start, end float64, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAt >= 0 && len(m.cuts) == m.failAt {
		return errors.New("boom")
	}
	m.cuts = append(m.cuts, [2]float64{start, end})
	return os.WriteFile(dst, []byte("x"), 0o644)
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name   string
		total  float64
		length float64
		want   int
	}{
		{"remainder dropped", 150, 60, 2},
		{"exact multiple", 180, 60, 3},
		{"shorter than one segment", 59.9, 60, 0},
		{"exactly one segment", 60, 60, 1},
		{"fractional remainder", 120.5, 30, 4},
		{"zero length", 100, 0, 0},
		{"fractional length exact multiple", 3.3, 1.1, 3},
		{"tenths exact multiple", 0.3, 0.1, 3},
		{"last segment full length", 0.9, 0.3, 3},
		{"fractional length with remainder", 3.5, 1.1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bounds := Bounds(tt.total, tt.length)
			require.Len(t, bounds, tt.want)
			for i, b := range bounds {
				assert.Equal(t, float64(i)*tt.length, b[0])
				assert.Equal(t, b[0]+tt.length, b[1])
				assert.InDelta(t, tt.length, b[1]-b[0], 1e-12)
			}
		})
	}
}

func TestSplit_ExampleScenario(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{duration: 150, failAt: -1}

	segments, err := NewSegmenter(media).Split(context.Background(), "input", 60, dir)
	require.NoError(t, err)
	require.Len(t, segments, 2)

	assert.Equal(t, [][2]float64{{0, 60}, {60, 120}}, media.cuts)
	for i, seg := range segments {
		assert.Equal(t, i, seg.Index)
		assert.Equal(t, 60.0, seg.Duration())
		assert.FileExists(t, seg.Path)
	}
	assert.Equal(t, filepath.Join(dir, "segment_0.000_60.000.raw"), segments[0].Path)
	assert.Equal(t, filepath.Join(dir, "segment_60.000_120.000.raw"), segments[1].Path)
}

func TestSplit_DurationUnavailable(t *testing.T) {
	for name, media := range map[string]*fakeMedia{
		"probe error": {probeErr: errors.New("no stream"), failAt: -1},
		"zero":        {duration: 0, failAt: -1},
		"negative":    {duration: -3, failAt: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewSegmenter(media).Split(context.Background(), "input", 60, t.TempDir())
			require.ErrorIs(t, err, ErrDurationUnavailable)
			assert.Empty(t, media.cuts)
		})
	}
}

func TestSplit_ExtractionFailureAborts(t *testing.T) {
	dir := t.TempDir()
	media := &fakeMedia{duration: 300, failAt: 2}

	segments, err := NewSegmenter(media).Split(context.Background(), "input", 60, dir)
	require.ErrorIs(t, err, ErrSegmentExtraction)
	assert.Nil(t, segments)

	// Files written before the failure stay for the owner of dir to clean.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSplit_InvalidLength(t *testing.T) {
	_, err := NewSegmenter(&fakeMedia{duration: 10, failAt: -1}).Split(context.Background(), "input", 0, t.TempDir())
	require.ErrorIs(t, err, ErrInvalidSegmentLength)
}

func TestSegmentRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.wav")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	seg := Segment{Path: path}
	require.NoError(t, seg.Release())
	assert.NoFileExists(t, path)
	require.NoError(t, seg.Release())
}

package scribe

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/bosley/chunkscribe/audio"
)

// runSegment drives one segment through transcription and correction,
// publishing after every state change. On error nothing more is published
// for the segment.
func (s *Scribe) runSegment(ctx context.Context, req *request, seg audio.Segment) error {
	logger := req.logger.With("segment", seg.Index)
	state := ChunkState{ID: seg.Index, Status: StatusTranscribing}
	req.progress.set(state)

	logger.Debug("Transcribing segment", "start", seg.Start, "end", seg.End)
	started := time.Now()
	text, err := s.transcriber.Transcribe(ctx, seg.Path)
	s.metrics.observeStage("transcription", started)

	// The segment audio is not needed past this point.
	if releaseErr := seg.Release(); releaseErr != nil {
		logger.Warn("Failed to release segment audio", "error", releaseErr, "path", seg.Path)
	}
	if err != nil {
		return &SegmentError{Index: seg.Index, Stage: ErrTranscriptionFailed, Err: err}
	}

	state.Transcription = &text
	req.progress.set(state)

	state.Status = StatusCorrecting
	req.progress.set(state)

	started = time.Now()
	defer s.metrics.observeStage("correction", started)

	stream, err := s.corrector.Correct(ctx, text)
	if err != nil {
		return &SegmentError{Index: seg.Index, Stage: ErrCorrectionFailed, Err: err}
	}
	defer stream.Close()

	var corrected strings.Builder
	fragments := 0
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &SegmentError{Index: seg.Index, Stage: ErrCorrectionFailed, Err: err}
		}
		fragments++
		corrected.WriteString(fragment)
		partial := corrected.String()
		state.Correction = &partial
		req.progress.set(state)
	}

	final := corrected.String()
	state.Status = StatusFinished
	state.Correction = &final
	req.progress.set(state)

	logger.Info("Segment finished",
		"fragments", fragments,
		"transcriptionLength", len(text),
		"correctionLength", len(final))
	return nil
}

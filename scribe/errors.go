package scribe

import (
	"errors"
	"fmt"
)

var (
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrCorrectionFailed    = errors.New("correction failed")
	ErrCleanupFailed       = errors.New("cleanup failed")
	ErrPipelinePanicked    = errors.New("pipeline panicked")
)

// SegmentError is a pipeline failure for one segment. It matches the stage
// sentinel and the underlying cause with errors.Is.
type SegmentError struct {
	Index int
	Stage error
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %v: %v", e.Index, e.Stage, e.Err)
}

func (e *SegmentError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}

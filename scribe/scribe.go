package scribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bosley/chunkscribe/audio"
	"github.com/bosley/chunkscribe/correct"
	"github.com/bosley/chunkscribe/transcribe"
)

const (
	defaultSegmentSeconds = 60

	finishedMessage = "Processing finished"
	failedMessage   = "Processing failed"
)

// Configuration for the Scribe coordinator
type Config struct {
	// Directory under which each request gets its private working area
	WorkRoot string

	// Length of every segment in seconds
	SegmentSeconds float64

	// Upper bound on concurrently running segment pipelines per request,
	// 0 means one pipeline per segment at once
	MaxConcurrentSegments int

	// Collaborators
	Media       audio.Media
	Transcriber transcribe.Transcriber
	Corrector   correct.Corrector

	Logger  *slog.Logger
	Metrics *Metrics
}

// Scribe coordinates processing requests. Requests are independent and may
// run concurrently.
type Scribe struct {
	config      Config
	segmenter   *audio.Segmenter
	transcriber transcribe.Transcriber
	corrector   correct.Corrector
	logger      *slog.Logger
	metrics     *Metrics
}

// request is the state of one Process call.
type request struct {
	id        uuid.UUID
	workDir   string
	inputPath string
	progress  *progress
	logger    *slog.Logger
}

// New creates a new Scribe instance
func New(cfg Config) (*Scribe, error) {
	if cfg.Media == nil || cfg.Transcriber == nil || cfg.Corrector == nil {
		return nil, fmt.Errorf("media, transcriber and corrector are required")
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = defaultSegmentSeconds
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "chunkscribe")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scribe{
		config:      cfg,
		segmenter:   audio.NewSegmenter(cfg.Media),
		transcriber: cfg.Transcriber,
		corrector:   cfg.Corrector,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}, nil
}

// Process runs one request end to end: it segments audioData, runs every
// segment pipeline, removes the working area and finally publishes a single
// process-finished event. The returned error is the one carried by that event.
func (s *Scribe) Process(ctx context.Context, audioData []byte, pub Publisher) (err error) {
	id := uuid.New()
	req := &request{
		id:        id,
		workDir:   filepath.Join(s.config.WorkRoot, id.String()),
		inputPath: filepath.Join(s.config.WorkRoot, id.String()+".input"),
		logger:    s.logger.With("requestID", id.String()),
	}

	s.metrics.requestStarted()
	req.logger.Info("Processing request", "bytes", len(audioData))

	defer func() {
		s.cleanup(req)
		s.metrics.requestFinished(err)

		event := Event{
			Type:      EventProcessFinished,
			RequestID: id.String(),
			Message:   finishedMessage,
		}
		if err != nil {
			event.Message = failedMessage
			event.Error = err.Error()
			req.logger.Error("Processing failed", "error", err)
		} else {
			req.logger.Info("Processing finished")
		}
		pub.Publish(event)
	}()

	if err := s.prepare(req, audioData); err != nil {
		return err
	}

	segments, err := s.segmenter.Split(ctx, req.inputPath, s.config.SegmentSeconds, req.workDir)
	if err != nil {
		return err
	}
	req.logger.Info("Audio segmented", "segments", len(segments))

	req.progress = newProgress(id.String(), len(segments), pub)
	err = s.runPipelines(ctx, req, segments)
	req.progress.close()
	return err
}

func (s *Scribe) prepare(req *request, audioData []byte) error {
	if err := os.MkdirAll(req.workDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	if err := os.WriteFile(req.inputPath, audioData, 0644); err != nil {
		return fmt.Errorf("failed to write input file: %w", err)
	}
	return nil
}

// runPipelines starts one pipeline per segment. After the first failure no
// new pipeline starts; running ones keep the request context and are waited
// for.
func (s *Scribe) runPipelines(ctx context.Context, req *request, segments []audio.Segment) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.config.MaxConcurrentSegments > 0 {
		g.SetLimit(s.config.MaxConcurrentSegments)
	}

	var completed atomic.Int32
	for _, seg := range segments {
		seg := seg
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				req.logger.Debug("Skipping segment after failure", "segment", seg.Index)
				return nil
			}
			err := s.runSegmentRecovered(ctx, req, seg)
			s.metrics.segmentFinished(err)
			if err == nil {
				completed.Add(1)
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// Caller cancellation stops new pipelines without any of them failing.
	if int(completed.Load()) < len(segments) {
		return fmt.Errorf("request interrupted: %w", ctx.Err())
	}
	return nil
}

// runSegmentRecovered turns a panicking pipeline into a segment failure so
// the request still joins, cleans up and reports.
func (s *Scribe) runSegmentRecovered(ctx context.Context, req *request, seg audio.Segment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			req.logger.Error("Segment pipeline panicked",
				"segment", seg.Index,
				"panic", r,
				"stack", string(debug.Stack()))
			err = &SegmentError{Index: seg.Index, Stage: ErrPipelinePanicked, Err: fmt.Errorf("%v", r)}
		}
	}()
	return s.runSegment(ctx, req, seg)
}

// cleanup removes the input file and the working directory. Failures are
// logged and never replace the request outcome.
func (s *Scribe) cleanup(req *request) {
	if err := os.Remove(req.inputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		req.logger.Warn("Failed to remove input file",
			"error", fmt.Errorf("%w: %w", ErrCleanupFailed, err),
			"path", req.inputPath)
	}
	if err := os.RemoveAll(req.workDir); err != nil {
		req.logger.Warn("Failed to remove working directory",
			"error", fmt.Errorf("%w: %w", ErrCleanupFailed, err),
			"path", req.workDir)
	}
	req.logger.Debug("Working area removed", "path", req.workDir)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/bosley/chunkscribe/audio"
	chunkcli "github.com/bosley/chunkscribe/client"
	"github.com/bosley/chunkscribe/correct"
	"github.com/bosley/chunkscribe/scribe"
	chunkserv "github.com/bosley/chunkscribe/server"
	"github.com/bosley/chunkscribe/transcribe"
)

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		slog.Warn("Ignoring invalid number in environment", "key", key, "value", v)
	}
	return fallback
}

func main() {
	// A missing .env is fine, the environment may already be set.
	_ = godotenv.Load()

	verbose := flag.Bool("v", false, "Enable debug logging")
	addr := flag.String("addr", envOr("CHUNKSCRIBE_ADDR", ":8444"), "Server listen address")
	serverURL := flag.String("server", envOr("CHUNKSCRIBE_SERVER", ""), "Websocket URL of a server to submit to (client mode)")
	submitFile := flag.String("submit", "", "Submit an audio file and print the corrected transcript")
	record := flag.Duration("record", 0, "Record this long from the microphone and submit it")
	saveFile := flag.String("save", "", "Also write the recording to this WAV file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", 0, "Audio input device ID to record from")
	insecureMode := flag.Bool("insecure", false, "Skip server certificate verification (client mode)")
	certFile := flag.String("cert", envOr("CHUNKSCRIBE_CERT", ""), "Path to server certificate file")
	keyFile := flag.String("key", envOr("CHUNKSCRIBE_KEY", ""), "Path to server key file")

	backend := flag.String("backend", envOr("CHUNKSCRIBE_BACKEND", transcribe.BackendOpenAI), "Transcription backend (openai or whisper)")
	baseURL := flag.String("openai-url", envOr("OPENAI_BASE_URL", ""), "OpenAI-compatible API base URL")
	sttModel := flag.String("stt-model", envOr("CHUNKSCRIBE_STT_MODEL", openai.Whisper1), "Transcription model")
	chatModel := flag.String("chat-model", envOr("CHUNKSCRIBE_CHAT_MODEL", openai.GPT4oMini), "Correction model")
	language := flag.String("language", envOr("CHUNKSCRIBE_LANGUAGE", ""), "Spoken language hint (ISO-639-1)")
	whisperPath := flag.String("whisper", envOr("CHUNKSCRIBE_WHISPER", ""), "Path to whisper executable (whisper backend)")
	whisperModel := flag.String("model", envOr("CHUNKSCRIBE_WHISPER_MODEL", ""), "Path to whisper model file (whisper backend)")
	instructionFile := flag.String("instruction", envOr("CHUNKSCRIBE_INSTRUCTION", ""), "File holding the correction instruction, reloaded on change")
	ffmpegPath := flag.String("ffmpeg", envOr("CHUNKSCRIBE_FFMPEG", "ffmpeg"), "Path to ffmpeg")
	ffprobePath := flag.String("ffprobe", envOr("CHUNKSCRIBE_FFPROBE", "ffprobe"), "Path to ffprobe")
	workRoot := flag.String("work", envOr("CHUNKSCRIBE_WORK_DIR", ""), "Directory for per-request working files")
	segmentSeconds := flag.Float64("segment", envFloat("CHUNKSCRIBE_SEGMENT_SECONDS", 60), "Segment length in seconds")
	maxSegments := flag.Int("parallel", envInt("CHUNKSCRIBE_MAX_SEGMENTS", 0), "Concurrent segment pipelines per request (0 = all)")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose || strings.EqualFold(os.Getenv("CHUNKSCRIBE_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *listDevices {
		devices, err := chunkcli.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.ID, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	token := os.Getenv("CHUNKSCRIBE_TOKEN")
	if token == "" {
		slog.Error("CHUNKSCRIBE_TOKEN environment variable is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *submitFile != "" || *record > 0 {
		if *serverURL == "" {
			slog.Error("Server URL must be provided to submit audio")
			flag.Usage()
			os.Exit(1)
		}
		cfg := chunkcli.Config{
			URL:                *serverURL,
			Token:              token,
			InsecureSkipVerify: *insecureMode,
			CertFile:           *certFile,
		}
		if err := runClient(ctx, cfg, *submitFile, *record, *deviceID, *saveFile); err != nil {
			slog.Error("Client failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *certFile == "" || *keyFile == "" {
		slog.Warn("No certificate and key provided, serving plain HTTP")
	}

	oaConfig := openai.DefaultConfig(os.Getenv("OPENAI_API_KEY"))
	if *baseURL != "" {
		oaConfig.BaseURL = *baseURL
	}
	oaClient := openai.NewClientWithConfig(oaConfig)

	transcriber, err := transcribe.New(transcribe.Config{
		Backend:      *backend,
		Client:       oaClient,
		Model:        *sttModel,
		Language:     *language,
		WhisperPath:  *whisperPath,
		WhisperModel: *whisperModel,
	})
	if err != nil {
		slog.Error("Failed to initialize transcriber", "error", err)
		os.Exit(1)
	}

	instruction := correct.NewInstruction(correct.DefaultInstruction)
	if *instructionFile != "" {
		instruction, err = correct.LoadInstruction(*instructionFile)
		if err != nil {
			slog.Error("Failed to load correction instruction", "error", err)
			os.Exit(1)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	scribeService, err := scribe.New(scribe.Config{
		WorkRoot:              *workRoot,
		SegmentSeconds:        *segmentSeconds,
		MaxConcurrentSegments: *maxSegments,
		Media: &audio.Auto{FFmpeg: &audio.FFmpeg{
			FFmpegPath:  *ffmpegPath,
			FFprobePath: *ffprobePath,
		}},
		Transcriber: transcriber,
		Corrector:   correct.NewOpenAI(oaClient, *chatModel, instruction),
		Logger:      logger,
		Metrics:     scribe.NewMetrics(registry),
	})
	if err != nil {
		slog.Error("Failed to initialize Scribe", "error", err)
		os.Exit(1)
	}

	server := chunkserv.New(chunkserv.Config{
		Addr:     *addr,
		CertFile: *certFile,
		KeyFile:  *keyFile,
		Token:    token,
	}, scribeService, registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		return instruction.Watch(gctx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}

// runClient submits a file or a fresh recording and prints the finished
// transcript, one segment per line.
func runClient(ctx context.Context, cfg chunkcli.Config, file string, record time.Duration, deviceID int, save string) error {
	var data []byte
	var err error
	if file != "" {
		data, err = os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read audio file: %w", err)
		}
	} else {
		data, err = chunkcli.Record(ctx, deviceID, record)
		if err != nil {
			return fmt.Errorf("failed to record audio: %w", err)
		}
		if save != "" {
			if err := os.WriteFile(save, data, 0644); err != nil {
				return fmt.Errorf("failed to save recording: %w", err)
			}
		}
	}

	var last []scribe.ChunkState
	err = chunkcli.Submit(ctx, cfg, data, func(msg chunkserv.Message) {
		if msg.Type != string(scribe.EventProcessing) {
			slog.Info("Server event", "type", msg.Type, "requestID", msg.RequestID)
			return
		}
		chunks, err := msg.Chunks()
		if err != nil {
			slog.Warn("Failed to decode progress", "error", err)
			return
		}
		last = chunks
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			progress, _ := json.Marshal(chunks)
			slog.Debug("Progress", "chunks", string(progress))
		}
	})
	if err != nil {
		return err
	}

	for _, chunk := range last {
		if chunk.Correction != nil {
			fmt.Println(*chunk.Correction)
		}
	}
	return nil
}

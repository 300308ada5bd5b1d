package chunkcli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/bosley/chunkscribe/audio"
)

const (
	framesPerBuffer = 1024

	// Mean absolute amplitude under which a recording is reported as silent
	silenceAmplitude = 50.0
)

// Device is an audio input. ID is the index accepted by Record.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
}

func ListDevices() ([]Device, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	// Filter to only input devices
	inputs := make([]Device, 0)
	for i, device := range devices {
		if device.MaxInputChannels > 0 {
			inputs = append(inputs, Device{
				ID:                i,
				Name:              device.Name,
				MaxInputChannels:  device.MaxInputChannels,
				DefaultSampleRate: device.DefaultSampleRate,
			})
		}
	}
	return inputs, nil
}

// Record captures mono 16 kHz audio from deviceID (0 selects the default
// input) for duration, or until ctx is done, and returns it as a WAV file.
func Record(ctx context.Context, deviceID int, duration time.Duration) ([]byte, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("recording duration must be positive")
	}

	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	device, err := inputDevice(deviceID)
	if err != nil {
		return nil, err
	}
	slog.Info("Recording from audio device",
		"deviceID", deviceID,
		"deviceName", device.Name,
		"duration", duration)

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: audio.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      audio.WhisperSampleRate,
		FramesPerBuffer: framesPerBuffer,
	}

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	want := int(duration.Seconds() * audio.WhisperSampleRate)
	samples := make([]int16, 0, want)
	for len(samples) < want && ctx.Err() == nil {
		if err := stream.Read(); err != nil {
			stream.Stop()
			return nil, fmt.Errorf("failed to read audio stream: %w", err)
		}
		samples = append(samples, buffer...)
	}
	if err := stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	if len(samples) > want {
		samples = samples[:want]
	}

	level := amplitude(samples)
	slog.Debug("Recording complete", "samples", len(samples), "averageAmplitude", level)
	if level < silenceAmplitude {
		slog.Warn("Recording looks silent, check the input device", "averageAmplitude", level)
	}

	return audio.EncodeWAV(samples, audio.WhisperSampleRate)
}

// inputDevice resolves a device index, 0 meaning the default input.
func inputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID <= 0 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get audio devices: %w", err)
	}
	if deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID %d", deviceID)
	}

	device := devices[deviceID]
	if device.MaxInputChannels == 0 {
		return nil, fmt.Errorf("device %d (%s) is not an input device", deviceID, device.Name)
	}
	return device, nil
}

// amplitude is the mean absolute sample value.
func amplitude(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, sample := range samples {
		total += math.Abs(float64(sample))
	}
	return total / float64(len(samples))
}

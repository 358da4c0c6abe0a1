// Package device implements hardware-backed sources and sinks on top of
// miniaudio (malgo). Delivery happens on callback threads owned by the
// audio subsystem; the core never assumes ownership of those threads
// beyond the stop/join contract of Stream.Close.
package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/ring"
)

const (
	sampleRate  = 48000
	numChannels = 2
)

// One context for every device in the process, initialized on first use and
// released at process exit. Mirrors sharing a single host handle across all
// streams.
var audioContext = sync.OnceValues(func() (*malgo.AllocatedContext, error) {
	return malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
})

type stream struct {
	logger *slog.Logger
	device *malgo.Device
}

// Close stops the device stream. Uninit blocks until the backend has
// stopped invoking callbacks.
func (s *stream) Close() error {
	if err := s.device.Stop(); err != nil {
		s.logger.Error("failed to stop device stream", "err", err)
	}
	s.device.Uninit()
	s.logger.Info("device stream closed")
	return nil
}

// NewSource opens the default capture device and forwards every delivered
// chunk to cb. Named-device selection (cfg.Device) is reserved; the default
// device is always used.
func NewSource(name string, cfg config.Endpoint, cb backend.SourceCallback) (backend.Stream, error) {
	ctx, err := audioContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	logger := slog.Default().With(
		"device", name,
		"stream uuid", uuid.New(),
	)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = numChannels
	deviceConfig.SampleRate = sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if frameCount == 0 {
				cb.Idle()
				return
			}
			cb.Data(backend.Samples(input))
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	logger.Info("capture device started", "sampleRate", sampleRate, "channels", numChannels)
	return &stream{logger: logger, device: device}, nil
}

// NewSink opens the default playback device. The playback callback pulls
// from rx at the device's cadence and zero-fills any shortfall; it never
// blocks waiting for the producer.
func NewSink(name string, cfg config.Endpoint, rx *ring.Consumer) (backend.Stream, error) {
	ctx, err := audioContext()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	logger := slog.Default().With(
		"device", name,
		"stream uuid", uuid.New(),
	)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = numChannels
	deviceConfig.SampleRate = sampleRate

	// Callback-local scratch; the backend invokes Data serially.
	var scratch []int16

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			samples := len(output) / 2
			if cap(scratch) < samples {
				scratch = make([]int16, samples)
			}
			scratch = scratch[:samples]

			n := rx.Pop(scratch)
			for i := n; i < samples; i++ {
				scratch[i] = 0
			}
			backend.PutSamples(output, scratch)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to open playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	logger.Info("playback device started", "sampleRate", sampleRate, "channels", numChannels)
	return &stream{logger: logger, device: device}, nil
}

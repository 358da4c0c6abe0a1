// Package file implements WAV-file backed sources and sinks. A file source
// plays a .wav file as if it were a live capture, pacing delivery in
// real time; a file sink records whatever its ring carries into a .wav
// file. Besides routing audio to disk, this backend is how the test suite
// exercises endpoints without hardware.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/ring"
)

const chunkDuration = 20 * time.Millisecond

const (
	sinkSampleRate  = 48000
	sinkNumChannels = 2
)

type stream struct {
	logger  *slog.Logger
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func (s *stream) Close() error {
	if s.running.CompareAndSwap(true, false) {
		close(s.stop)
	}
	<-s.done
	return nil
}

// NewSource decodes the WAV file at cfg.Path up front and delivers it to cb
// in real-time paced chunks. With cfg.Loop the file repeats forever;
// otherwise the source reports idle once and stops delivering.
func NewSource(name string, cfg config.Endpoint, cb backend.SourceCallback) (backend.Stream, error) {
	logger := slog.Default().With(
		"file source", name,
		"path", cfg.Path,
	)

	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file %s: %w", cfg.Path, err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		if err := decoder.Err(); err != nil {
			return nil, fmt.Errorf("invalid wav file %s: %w", cfg.Path, err)
		}
		return nil, fmt.Errorf("invalid wav file %s", cfg.Path)
	}

	buf, err := decoder.FullPCMBuffer()
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav file %s: %w", cfg.Path, err)
	}

	samplesPerChunk := int(float64(decoder.NumChans) * float64(decoder.SampleRate) *
		float64(chunkDuration) / float64(time.Second))
	if samplesPerChunk <= 0 {
		return nil, fmt.Errorf("wav file %s yields non-positive chunk size", cfg.Path)
	}

	samples := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = int16(s)
	}

	logger.Info("loaded audio file",
		"sampleRate", decoder.SampleRate,
		"channels", decoder.NumChans,
		"samples", len(samples),
	)

	s := &stream{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.running.Store(true)

	go s.playLoop(cb, samples, samplesPerChunk, cfg.Loop)

	return s, nil
}

func (s *stream) playLoop(cb backend.SourceCallback, samples []int16, samplesPerChunk int, loop bool) {
	defer close(s.done)

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	offset := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}

		end := min(offset+samplesPerChunk, len(samples))
		cb.Data(samples[offset:end])
		offset = end

		if offset >= len(samples) {
			if !loop {
				cb.Idle()
				s.logger.Debug("finished playing")
				return
			}
			offset = 0
		}
	}
}

// NewSink records the sink's output into a WAV file at cfg.Path, draining
// the ring once per chunk interval. Samples are committed to disk when the
// stream is closed.
func NewSink(name string, cfg config.Endpoint, rx *ring.Consumer) (backend.Stream, error) {
	logger := slog.Default().With(
		"file sink", name,
		"path", cfg.Path,
	)

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio file %s: %w", cfg.Path, err)
	}

	encoder := wav.NewEncoder(f, sinkSampleRate, 16, sinkNumChannels, 1)

	s := &stream{
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.running.Store(true)

	go s.recordLoop(rx, encoder, f)

	logger.Info("file sink started", "sampleRate", sinkSampleRate, "channels", sinkNumChannels)
	return s, nil
}

func (s *stream) recordLoop(rx *ring.Consumer, encoder *wav.Encoder, f *os.File) {
	defer close(s.done)

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	samplesPerChunk := sinkSampleRate * sinkNumChannels * int(chunkDuration) / int(time.Second)
	samples := make([]int16, samplesPerChunk)

	bufFormat := &goaudio.Format{
		SampleRate:  sinkSampleRate,
		NumChannels: sinkNumChannels,
	}

	flush := func() {
		for {
			n := rx.Pop(samples)
			if n == 0 {
				return
			}

			buf := &goaudio.IntBuffer{
				Format:         bufFormat,
				Data:           make([]int, n),
				SourceBitDepth: 16,
			}
			for i := 0; i < n; i++ {
				buf.Data[i] = int(samples[i])
			}

			if err := encoder.Write(buf); err != nil {
				s.logger.Error("error while writing samples to file", "err", err)
				return
			}
		}
	}

	for {
		select {
		case <-s.stop:
			flush()
			if err := encoder.Close(); err != nil {
				s.logger.Error("error while finalizing wav file", "err", err)
			}
			f.Close()
			return
		case <-ticker.C:
			flush()
		}
	}
}

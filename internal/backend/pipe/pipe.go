// Package pipe implements named-pipe (FIFO) backed sources and sinks.
// Each endpoint owns one dedicated goroutine doing blocking I/O on the
// fifo; stop is signaled through a flag and by closing the file, which
// unblocks any read or write pending in the runtime poller.
package pipe

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/ring"
)

// Samples moved per blocking transfer, matching the chunk size a pipe peer
// sees on the wire.
const chunkSamples = 64

type stream struct {
	logger  *slog.Logger
	f       *os.File
	running atomic.Bool
	done    chan struct{}
	err     error
}

// Close stops the worker goroutine and joins it. Closing the fifo handle
// interrupts a pending read or write, so Close does not wait on a silent
// peer.
func (s *stream) Close() error {
	s.running.Store(false)
	s.f.Close()
	<-s.done

	if s.err != nil && !errors.Is(s.err, os.ErrClosed) {
		return s.err
	}
	return nil
}

func open(name string, cfg config.Endpoint) (*os.File, *slog.Logger, error) {
	logger := slog.Default().With(
		"pipe", name,
		"path", cfg.Path,
	)

	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create pipe directory: %w", err)
		}
	}

	if cfg.Create {
		if err := unix.Mkfifo(cfg.Path, 0666); err != nil && !errors.Is(err, unix.EEXIST) {
			return nil, nil, fmt.Errorf("failed to create fifo %s: %w", cfg.Path, err)
		}
	}

	// Read-write so the fifo always has a peer on both ends: the open
	// itself never blocks waiting for the other side, reads wait for data
	// instead of returning EOF when no writer is attached, and writes do
	// not fail with ENXIO before a reader shows up.
	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open fifo %s: %w", cfg.Path, err)
	}

	return f, logger, nil
}

// NewSource opens (optionally creating) the fifo and starts the reader
// goroutine, which delivers fixed-size sample chunks to cb until stopped.
func NewSource(name string, cfg config.Endpoint, cb backend.SourceCallback) (backend.Stream, error) {
	f, logger, err := open(name, cfg)
	if err != nil {
		return nil, err
	}

	s := &stream{logger: logger, f: f, done: make(chan struct{})}
	s.running.Store(true)

	go s.readLoop(cb)

	logger.Info("pipe source started")
	return s, nil
}

func (s *stream) readLoop(cb backend.SourceCallback) {
	defer close(s.done)

	buf := make([]byte, 2*chunkSamples)

	for s.running.Load() {
		if _, err := io.ReadFull(s.f, buf); err != nil {
			if s.running.Load() {
				s.logger.Error("pipe read failed", "err", err)
			}
			s.err = err
			return
		}

		cb.Data(backend.Samples(buf))
	}
}

// NewSink opens (optionally creating) the fifo and starts the writer
// goroutine, which drains rx and writes whatever samples are available.
func NewSink(name string, cfg config.Endpoint, rx *ring.Consumer) (backend.Stream, error) {
	f, logger, err := open(name, cfg)
	if err != nil {
		return nil, err
	}

	s := &stream{logger: logger, f: f, done: make(chan struct{})}
	s.running.Store(true)

	go s.writeLoop(rx)

	logger.Info("pipe sink started")
	return s, nil
}

func (s *stream) writeLoop(rx *ring.Consumer) {
	defer close(s.done)

	samples := make([]int16, chunkSamples)
	buf := make([]byte, 2*chunkSamples)

	for s.running.Load() {
		n := rx.Pop(samples)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}

		backend.PutSamples(buf[:2*n], samples[:n])
		if _, err := s.f.Write(buf[:2*n]); err != nil {
			if s.running.Load() {
				s.logger.Error("pipe write failed", "err", err)
			}
			s.err = err
			return
		}
	}
}

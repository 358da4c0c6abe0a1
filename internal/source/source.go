// Package source implements named input endpoints and the liveness
// monitoring wrapped around their delivery callbacks.
package source

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/backend/device"
	"github.com/soundpatch/soundpatch/internal/backend/file"
	"github.com/soundpatch/soundpatch/internal/backend/pipe"
	"github.com/soundpatch/soundpatch/internal/config"
)

// Source is one named input endpoint. Its active flag tracks capture
// liveness, independent of whether any sink currently routes from it.
type Source struct {
	name string
	kind string

	active atomic.Bool

	stream backend.Stream
}

// New wraps cb in a monitoring decorator and starts the configured backend
// with it. A backend failure aborts the whole source; nothing is
// registered.
func New(cfg config.Endpoint, cb backend.SourceCallback) (*Source, error) {
	s := &Source{
		name: cfg.Name,
		kind: cfg.Type,
	}

	monitored := &monitoringCallback{inner: cb, active: &s.active}

	var err error
	switch cfg.Type {
	case config.KindPipe:
		s.stream, err = pipe.NewSource(cfg.Name, cfg, monitored)
	case config.KindDevice:
		s.stream, err = device.NewSource(cfg.Name, cfg, monitored)
	case config.KindFile:
		s.stream, err = file.NewSource(cfg.Name, cfg, monitored)
	default:
		err = fmt.Errorf("unknown source type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start source %s: %w", cfg.Name, err)
	}

	slog.Debug("created source", "name", s.name, "kind", s.kind)
	return s, nil
}

func (s *Source) Name() string { return s.name }
func (s *Source) Kind() string { return s.kind }

// IsActive reports whether the backend has delivered a chunk more recently
// than it reported idle.
func (s *Source) IsActive() bool {
	return s.active.Load()
}

// URI describes the source endpoint for status reporting.
func (s *Source) URI() string {
	return s.kind + "://"
}

// Close stops the backend stream and joins its delivery context. The
// active flag is cleared no matter how teardown goes.
func (s *Source) Close() error {
	defer s.active.Store(false)
	return s.stream.Close()
}

// monitoringCallback decorates a delivery callback, maintaining the
// source's active flag before forwarding.
type monitoringCallback struct {
	inner  backend.SourceCallback
	active *atomic.Bool
}

func (m *monitoringCallback) Data(chunk []int16) {
	m.active.Store(true)
	m.inner.Data(chunk)
}

func (m *monitoringCallback) Idle() {
	m.active.Store(false)
	m.inner.Idle()
}

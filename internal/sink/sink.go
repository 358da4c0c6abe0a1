// Package sink implements named output endpoints: the per-sink gain
// pipeline (Sender), the ring buffer feeding the output backend, and the
// switcher that decides which source currently feeds the sink.
package sink

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/backend/device"
	"github.com/soundpatch/soundpatch/internal/backend/file"
	"github.com/soundpatch/soundpatch/internal/backend/pipe"
	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/ring"
	"github.com/soundpatch/soundpatch/internal/switcher"
)

// MaxVolume is full scale; Sender gain is volume/MaxVolume.
const MaxVolume = 255

const (
	// Two seconds of samples at the nominal 48 kHz rate.
	ringCapacity = 48000 * 2

	// Silence committed before first use, absorbing consumer startup
	// latency.
	prefillSamples = 128
)

// Sender is the producer half of a sink's ring buffer together with the
// sink's shared mute/volume state. It is the payload routed by the sink's
// switcher: whichever source holds it feeds the sink.
type Sender struct {
	tx *ring.Producer

	muted  *atomic.Bool
	volume *atomic.Uint32
}

// Send applies mute and gain per sample and pushes the result into the
// ring. A full ring drops samples rather than blocking the delivery
// thread. All pushes of one call become visible to the consumer in a
// single batched publish.
func (s *Sender) Send(chunk []int16) {
	muted := s.muted.Load()
	volume := int32(s.volume.Load())

	for _, sample := range chunk {
		var out int16
		if !muted {
			out = int16(int32(sample) * volume / MaxVolume)
		}
		s.tx.Push(out)
	}

	s.tx.Publish()
}

// Sink is one named output endpoint.
type Sink struct {
	name string
	kind string

	muted  atomic.Bool
	volume atomic.Uint32

	switcher *switcher.Switcher[*Sender]
	sources  map[string]*switcher.Control[*Sender]

	stream backend.Stream
}

// New allocates the sink's ring buffer, starts the configured backend with
// the consumer half, and houses the producer half in a fresh switcher.
// A backend failure aborts the whole sink; nothing is registered.
func New(cfg config.Endpoint) (*Sink, error) {
	s := &Sink{
		name:    cfg.Name,
		kind:    cfg.Type,
		sources: make(map[string]*switcher.Control[*Sender]),
	}
	s.volume.Store(MaxVolume)

	tx, rx := ring.New(ringCapacity)
	for i := 0; i < prefillSamples; i++ {
		tx.Push(0)
	}
	tx.Publish()

	var err error
	switch cfg.Type {
	case config.KindPipe:
		s.stream, err = pipe.NewSink(cfg.Name, cfg, rx)
	case config.KindDevice:
		s.stream, err = device.NewSink(cfg.Name, cfg, rx)
	case config.KindFile:
		s.stream, err = file.NewSink(cfg.Name, cfg, rx)
	default:
		err = fmt.Errorf("unknown sink type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to start sink %s: %w", cfg.Name, err)
	}

	sender := &Sender{
		tx:     tx,
		muted:  &s.muted,
		volume: &s.volume,
	}
	s.switcher = switcher.New(sender)

	slog.Debug("created sink", "name", s.name, "kind", s.kind)
	return s, nil
}

func (s *Sink) Name() string { return s.name }
func (s *Sink) Kind() string { return s.kind }

func (s *Sink) Muted() bool { return s.muted.Load() }

// SetMuted takes effect on the next sample the Sender processes.
func (s *Sink) SetMuted(muted bool) { s.muted.Store(muted) }

func (s *Sink) Volume() uint8 { return uint8(s.volume.Load()) }

// SetVolume takes effect on the next sample the Sender processes.
func (s *Sink) SetVolume(volume uint8) { s.volume.Store(uint32(volume)) }

// AddSource registers one switcher slot for the named source, keeping the
// write-side control keyed by name. The returned port is wired into that
// source's broadcaster. Called once per known source at startup.
func (s *Sink) AddSource(name string) *switcher.Port[*Sender] {
	port, control := s.switcher.Port()
	s.sources[name] = control
	return port
}

// ActiveSource returns the name of the source currently feeding this sink.
// At most one control is active by the switcher invariant; none is active
// before the first switch.
func (s *Sink) ActiveSource() (string, bool) {
	for name, control := range s.sources {
		if control.IsActive() {
			return name, true
		}
	}
	return "", false
}

// SwitchSource makes the named source the one feeding this sink. Reports
// false if the source is unknown to this sink.
func (s *Sink) SwitchSource(name string) bool {
	control, ok := s.sources[name]
	if !ok {
		return false
	}
	control.Switch()
	return true
}

// Close stops the backend stream and joins its consumer.
func (s *Sink) Close() error {
	return s.stream.Close()
}

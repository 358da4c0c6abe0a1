// Package broadcast fans one source's delivered chunks out to every sink
// that knows the source.
package broadcast

import (
	"github.com/soundpatch/soundpatch/internal/backend"
	"github.com/soundpatch/soundpatch/internal/sink"
	"github.com/soundpatch/soundpatch/internal/switcher"
)

// Broadcaster delivers a source's chunks to the ports registered for it,
// one per configured sink. It implements backend.SourceCallback and runs
// directly on the backend's delivery goroutine or callback thread, so the
// only blocking it does is the short per-slot lock inside Access.
type Broadcaster struct {
	ports []*switcher.Port[*sink.Sender]
}

// New builds a Broadcaster over the given ports.
func New(ports []*switcher.Port[*sink.Sender]) *Broadcaster {
	return &Broadcaster{ports: ports}
}

// Data forwards chunk to every port currently holding its sink's sender.
// Ports whose sink routes from another source observe no payload and are
// skipped.
func (b *Broadcaster) Data(chunk []int16) {
	for _, port := range b.ports {
		port.Access(func(sender *sink.Sender) {
			sender.Send(chunk)
		})
	}
}

// Idle implements backend.SourceCallback.
func (b *Broadcaster) Idle() {}

var _ backend.SourceCallback = (*Broadcaster)(nil)

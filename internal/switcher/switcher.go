// Package switcher implements an exclusive-ownership router: a single
// payload value moved between N registered slots under control-plane
// command, while producers cheaply test which slot currently holds it.
package switcher

import (
	"sync"
)

// slot is one possible home for the payload. The mutex guards value/present
// and nothing else; it is held only for the duration of an Access callback
// or the two short windows inside a Switch.
type slot[T any] struct {
	mu      sync.Mutex
	value   T
	present bool
}

// Switcher routes one payload value between its registered slots.
// At any externally observable instant the payload resides in exactly one
// slot. Until the first Switch it lives in an internal home slot that no
// Port or Control refers to, so nothing is active at boot.
type Switcher[T any] struct {
	mu     sync.Mutex // serializes switches and guards active
	active *slot[T]
}

// New creates a Switcher holding value in its home slot.
func New[T any](value T) *Switcher[T] {
	home := &slot[T]{value: value, present: true}
	return &Switcher[T]{active: home}
}

// Port registers a new, initially empty slot and returns the read-side
// Port and write-side Control for it.
func (s *Switcher[T]) Port() (*Port[T], *Control[T]) {
	sl := &slot[T]{}
	port := &Port[T]{slot: sl}
	control := &Control[T]{switcher: s, slot: sl}
	return port, control
}

// Port is the read-side handle to one slot, shared with the data path.
type Port[T any] struct {
	slot *slot[T]
}

// Access locks the slot and, if the payload is currently resident, runs fn
// with it and reports true. If the slot is empty (this port is not active,
// or a switch is in flight) fn is not called and Access reports false; the
// caller must discard the data it was about to deliver.
//
// fn runs with the slot lock held and must not call back into the Switcher.
func (p *Port[T]) Access(fn func(T)) bool {
	p.slot.mu.Lock()
	defer p.slot.mu.Unlock()
	if !p.slot.present {
		return false
	}
	fn(p.slot.value)
	return true
}

// Control is the write-side handle to one slot, held by the control plane.
type Control[T any] struct {
	switcher *Switcher[T]
	slot     *slot[T]
}

// Switch moves the payload into this Control's slot. Concurrent switches
// are serialized by the switcher-wide mutex; concurrent Access calls on
// either affected slot observe the payload as absent for the brief window
// it is held on this goroutine's stack. Switch never fails.
func (c *Control[T]) Switch() {
	c.switcher.mu.Lock()
	defer c.switcher.mu.Unlock()

	old := c.switcher.active

	old.mu.Lock()
	value := old.value
	var zero T
	old.value = zero
	old.present = false
	old.mu.Unlock()

	c.slot.mu.Lock()
	c.slot.value = value
	c.slot.present = true
	c.slot.mu.Unlock()

	c.switcher.active = c.slot
}

// IsActive reports whether this Control's slot currently holds the payload.
// It compares slot identity under the switcher-wide mutex and never takes
// the slot's own lock.
func (c *Control[T]) IsActive() bool {
	c.switcher.mu.Lock()
	defer c.switcher.mu.Unlock()
	return c.switcher.active == c.slot
}

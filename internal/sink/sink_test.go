package sink

import (
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/ring"
)

func newTestSender(capacity int) (*Sender, *ring.Consumer, *atomic.Bool, *atomic.Uint32) {
	tx, rx := ring.New(capacity)
	muted := &atomic.Bool{}
	volume := &atomic.Uint32{}
	volume.Store(MaxVolume)
	return &Sender{tx: tx, muted: muted, volume: volume}, rx, muted, volume
}

func popAll(t *testing.T, rx *ring.Consumer, want int) []int16 {
	t.Helper()
	buf := make([]int16, want)
	if n := rx.Pop(buf); n != want {
		t.Fatalf("Pop() = %d, want %d", n, want)
	}
	return buf
}

func TestSenderFullVolumeReproducesInput(t *testing.T) {
	t.Parallel()

	sender, rx, _, _ := newTestSender(16)
	input := []int16{32767, -32768, 0, 1, -1, 12345}
	sender.Send(input)

	got := popAll(t, rx, len(input))
	for i := range input {
		if got[i] != input[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], input[i])
		}
	}
}

func TestSenderMutedEmitsSilence(t *testing.T) {
	t.Parallel()

	sender, rx, muted, _ := newTestSender(16)
	muted.Store(true)

	input := []int16{32767, -32768, 100}
	sender.Send(input)

	got := popAll(t, rx, len(input))
	for i, s := range got {
		if s != 0 {
			t.Errorf("muted sample %d = %d, want 0", i, s)
		}
	}
}

func TestSenderZeroVolumeEmitsSilence(t *testing.T) {
	t.Parallel()

	sender, rx, _, volume := newTestSender(16)
	volume.Store(0)

	input := []int16{32767, -32768, 100}
	sender.Send(input)

	got := popAll(t, rx, len(input))
	for i, s := range got {
		if s != 0 {
			t.Errorf("zero-volume sample %d = %d, want 0", i, s)
		}
	}
}

// Gain is sample*volume/255 in 32-bit, truncated toward zero.
func TestSenderHalfVolume(t *testing.T) {
	t.Parallel()

	sender, rx, _, volume := newTestSender(16)
	volume.Store(128)

	sender.Send([]int16{32767, -32768, 0})

	got := popAll(t, rx, 3)
	want := []int16{16447, -16448, 0} // 32767*128/255, -32768*128/255
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSenderDropsOnFullRing(t *testing.T) {
	t.Parallel()

	sender, rx, _, _ := newTestSender(4)
	sender.Send([]int16{1, 2, 3, 4, 5, 6})

	got := popAll(t, rx, 4)
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if n := rx.Pop(make([]int16, 1)); n != 0 {
		t.Errorf("extra samples survived a full ring, Pop() = %d, want 0", n)
	}
}

func TestSenderBatchesPublish(t *testing.T) {
	t.Parallel()

	sender, rx, _, _ := newTestSender(16)
	sender.Send([]int16{1, 2})
	sender.Send([]int16{3})

	if got := rx.Len(); got != 3 {
		t.Errorf("Len() = %d after two sends, want 3", got)
	}
}

func TestSinkLifecycle(t *testing.T) {
	t.Parallel()

	cfg := config.Endpoint{
		Name: "recorder",
		Type: config.KindFile,
		Path: filepath.Join(t.TempDir(), "out.wav"),
	}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if s.Name() != "recorder" || s.Kind() != config.KindFile {
		t.Errorf("Name/Kind = %s/%s, want recorder/file", s.Name(), s.Kind())
	}
	if s.Muted() {
		t.Error("new sink is muted, want unmuted")
	}
	if s.Volume() != MaxVolume {
		t.Errorf("Volume() = %d, want %d", s.Volume(), MaxVolume)
	}

	s.SetMuted(true)
	if !s.Muted() {
		t.Error("Muted() = false after SetMuted(true)")
	}
	s.SetVolume(100)
	if s.Volume() != 100 {
		t.Errorf("Volume() = %d after SetVolume(100), want 100", s.Volume())
	}

	portA := s.AddSource("radio")
	s.AddSource("mic")
	if portA == nil {
		t.Fatal("AddSource returned nil port")
	}

	// No source feeds the sink until the control plane switches one in.
	if name, ok := s.ActiveSource(); ok {
		t.Errorf("ActiveSource() = %s before any switch, want none", name)
	}
	if ok := portA.Access(func(*Sender) {}); ok {
		t.Error("port active before any switch, want inactive")
	}

	if ok := s.SwitchSource("unknown"); ok {
		t.Error("SwitchSource(unknown) = true, want false")
	}
	if ok := s.SwitchSource("radio"); !ok {
		t.Fatal("SwitchSource(radio) = false, want true")
	}
	if name, ok := s.ActiveSource(); !ok || name != "radio" {
		t.Errorf("ActiveSource() = %q/%v, want radio/true", name, ok)
	}

	// The sender now resides in radio's port and honors the sink's state.
	delivered := false
	portA.Access(func(sender *Sender) {
		delivered = true
		sender.Send([]int16{42})
	})
	if !delivered {
		t.Error("port not active after SwitchSource")
	}

	if ok := s.SwitchSource("mic"); !ok {
		t.Fatal("SwitchSource(mic) = false, want true")
	}
	if name, _ := s.ActiveSource(); name != "mic" {
		t.Errorf("ActiveSource() = %q after switching to mic", name)
	}
	if ok := portA.Access(func(*Sender) {}); ok {
		t.Error("radio port still active after switching to mic")
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSinkBackendFailureRegistersNothing(t *testing.T) {
	t.Parallel()

	cfg := config.Endpoint{
		Name: "broken",
		Type: config.KindFile,
		Path: filepath.Join(t.TempDir(), "no", "such", "dir", "out.wav"),
	}
	if _, err := New(cfg); err == nil {
		t.Error("New() error = nil for unwritable path, want non-nil")
	}

	if _, err := New(config.Endpoint{Name: "odd", Type: "teapot"}); err == nil {
		t.Error("New() error = nil for unknown type, want non-nil")
	}
}

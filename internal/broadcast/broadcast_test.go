package broadcast

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"

	"github.com/soundpatch/soundpatch/internal/config"
	"github.com/soundpatch/soundpatch/internal/sink"
	"github.com/soundpatch/soundpatch/internal/switcher"
)

func newFileSink(t *testing.T, name string) (*sink.Sink, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".wav")
	s, err := sink.New(config.Endpoint{Name: name, Type: config.KindFile, Path: path})
	if err != nil {
		t.Fatalf("sink.New(%s) error = %v", name, err)
	}
	return s, path
}

func readWAV(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return buf.Data
}

// A chunk delivered through the broadcaster reaches only the sink whose
// switcher routes from this source; other sinks' ports observe no payload
// and stay silent.
func TestBroadcastReachesOnlyRoutedSinks(t *testing.T) {
	t.Parallel()

	sinkA, pathA := newFileSink(t, "a")
	sinkB, pathB := newFileSink(t, "b")

	ports := []*switcher.Port[*sink.Sender]{
		sinkA.AddSource("src"),
		sinkB.AddSource("src"),
	}
	b := New(ports)

	// Only sink A routes from this source.
	if !sinkA.SwitchSource("src") {
		t.Fatal("SwitchSource(src) on sink A failed")
	}

	chunk := []int16{1000, -1000, 2000, -2000}
	b.Data(chunk)
	b.Idle()

	if err := sinkA.Close(); err != nil {
		t.Errorf("sinkA.Close() error = %v", err)
	}
	if err := sinkB.Close(); err != nil {
		t.Errorf("sinkB.Close() error = %v", err)
	}

	// Sink A recorded the 128-sample silence pre-fill then the chunk.
	gotA := readWAV(t, pathA)
	if len(gotA) != 128+len(chunk) {
		t.Fatalf("sink A recorded %d samples, want %d", len(gotA), 128+len(chunk))
	}
	for i := 0; i < 128; i++ {
		if gotA[i] != 0 {
			t.Errorf("sink A pre-fill sample %d = %d, want 0", i, gotA[i])
		}
	}
	for i, want := range chunk {
		if gotA[128+i] != int(want) {
			t.Errorf("sink A sample %d = %d, want %d", 128+i, gotA[128+i], want)
		}
	}

	// Sink B got nothing beyond the pre-fill.
	gotB := readWAV(t, pathB)
	if len(gotB) != 128 {
		t.Errorf("sink B recorded %d samples, want only the 128 pre-fill", len(gotB))
	}
	for i, s := range gotB {
		if s != 0 {
			t.Errorf("sink B sample %d = %d, want 0", i, s)
		}
	}
}

// After the control plane moves a sink to another source, chunks from the
// old source stop reaching it.
func TestBroadcastFollowsSwitch(t *testing.T) {
	t.Parallel()

	s, path := newFileSink(t, "out")

	radio := New([]*switcher.Port[*sink.Sender]{s.AddSource("radio")})
	mic := New([]*switcher.Port[*sink.Sender]{s.AddSource("mic")})

	s.SwitchSource("radio")
	radio.Data([]int16{11, 11})
	mic.Data([]int16{22, 22})

	s.SwitchSource("mic")
	radio.Data([]int16{33, 33})
	mic.Data([]int16{44, 44})

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	got := readWAV(t, path)
	want := []int{11, 11, 44, 44}
	if len(got) != 128+len(want) {
		t.Fatalf("recorded %d samples, want %d", len(got), 128+len(want))
	}
	for i, w := range want {
		if got[128+i] != w {
			t.Errorf("sample %d = %d, want %d", 128+i, got[128+i], w)
		}
	}
}

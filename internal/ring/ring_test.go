package ring

import (
	"sync"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	t.Parallel()

	tx, rx := New(8)
	for _, s := range []int16{1, -2, 3} {
		if !tx.Push(s) {
			t.Fatalf("Push(%d) = false, want true", s)
		}
	}
	tx.Publish()

	buf := make([]int16, 3)
	if n := rx.Pop(buf); n != 3 {
		t.Fatalf("Pop() = %d, want 3", n)
	}
	want := []int16{1, -2, 3}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %d, want %d", i, buf[i], want[i])
		}
	}
}

func TestStagedPushesInvisibleUntilPublish(t *testing.T) {
	t.Parallel()

	tx, rx := New(8)
	tx.Push(7)
	tx.Push(8)

	if got := rx.Len(); got != 0 {
		t.Errorf("Len() = %d before Publish, want 0", got)
	}
	buf := make([]int16, 2)
	if n := rx.Pop(buf); n != 0 {
		t.Errorf("Pop() = %d before Publish, want 0", n)
	}

	tx.Publish()
	if got := rx.Len(); got != 2 {
		t.Errorf("Len() = %d after Publish, want 2", got)
	}
}

// Overflow policy: pushing onto a full ring drops the new sample, it never
// evicts older ones. Six pushes into a ring of four leave the first four.
func TestOverflowDropsNewest(t *testing.T) {
	t.Parallel()

	tx, rx := New(4)
	pushed := 0
	for s := int16(1); s <= 6; s++ {
		if tx.Push(s) {
			pushed++
		}
	}
	tx.Publish()

	if pushed != 4 {
		t.Errorf("accepted %d pushes into capacity-4 ring, want 4", pushed)
	}

	buf := make([]int16, 6)
	n := rx.Pop(buf)
	if n != 4 {
		t.Fatalf("Pop() = %d, want 4", n)
	}
	want := []int16{1, 2, 3, 4}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %d, want %d (drop-newest policy)", i, buf[i], want[i])
		}
	}
}

func TestPopShortfallNeverBlocks(t *testing.T) {
	t.Parallel()

	tx, rx := New(8)
	tx.Push(5)
	tx.Publish()

	buf := make([]int16, 4)
	n := rx.Pop(buf)
	if n != 1 {
		t.Fatalf("Pop() = %d, want 1", n)
	}
	if buf[0] != 5 {
		t.Errorf("buf[0] = %d, want 5", buf[0])
	}

	// An empty ring pops zero samples immediately.
	if n := rx.Pop(buf); n != 0 {
		t.Errorf("Pop() on empty ring = %d, want 0", n)
	}
}

func TestWrapAround(t *testing.T) {
	t.Parallel()

	tx, rx := New(4)
	buf := make([]int16, 4)

	for round := int16(0); round < 10; round++ {
		for i := int16(0); i < 3; i++ {
			if !tx.Push(round*3 + i) {
				t.Fatalf("round %d: Push(%d) = false, want true", round, round*3+i)
			}
		}
		tx.Publish()

		if n := rx.Pop(buf[:3]); n != 3 {
			t.Fatalf("round %d: Pop() = %d, want 3", round, n)
		}
		for i := int16(0); i < 3; i++ {
			if buf[i] != round*3+i {
				t.Errorf("round %d: buf[%d] = %d, want %d", round, i, buf[i], round*3+i)
			}
		}
	}
}

func TestFree(t *testing.T) {
	t.Parallel()

	tx, _ := New(4)
	if got := tx.Free(); got != 4 {
		t.Errorf("Free() = %d on empty ring, want 4", got)
	}
	tx.Push(1)
	if got := tx.Free(); got != 3 {
		t.Errorf("Free() = %d after one staged push, want 3", got)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	t.Parallel()

	const total = 100_000
	tx, rx := New(128)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		next := int16(0)
		sent := 0
		for sent < total {
			if tx.Push(next) {
				next++
				sent++
			}
			if sent%64 == 0 || sent == total {
				tx.Publish()
			}
		}
		tx.Publish()
	}()

	buf := make([]int16, 64)
	expect := int16(0)
	received := 0
	for received < total {
		n := rx.Pop(buf)
		for i := 0; i < n; i++ {
			if buf[i] != expect {
				t.Fatalf("sample %d = %d, want %d", received+i, buf[i], expect)
			}
			expect++
		}
		received += n
	}
	wg.Wait()
}

// Package ring provides a fixed-capacity single-producer single-consumer
// queue of PCM samples. The producer stages pushes locally and makes them
// visible to the consumer in one batched publish, so a chunk of samples
// costs a single cross-goroutine synchronization instead of one per sample.
package ring

import (
	"sync/atomic"
)

type buffer struct {
	data []int16

	// Free-running indices; position in data is index % capacity.
	// head is advanced only by the consumer, tail only by the producer's
	// Publish. Staged producer writes sit between tail and the producer's
	// local index and are invisible to the consumer.
	head atomic.Uint64
	tail atomic.Uint64
}

// New allocates a ring holding up to capacity samples and returns its two
// halves. Each half is owned exclusively by one goroutine; neither Push nor
// Pop ever blocks.
func New(capacity int) (*Producer, *Consumer) {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	b := &buffer{data: make([]int16, capacity)}
	return &Producer{b: b}, &Consumer{b: b}
}

// Producer is the write half of a ring. Not safe for concurrent use.
type Producer struct {
	b     *buffer
	local uint64 // staged write index, >= b.tail
}

// Push stages one sample. When the ring is full the sample is dropped and
// Push reports false; earlier samples are never evicted.
func (p *Producer) Push(s int16) bool {
	if p.local-p.b.head.Load() >= uint64(len(p.b.data)) {
		return false
	}
	p.b.data[p.local%uint64(len(p.b.data))] = s
	p.local++
	return true
}

// Publish makes every sample staged since the previous Publish visible to
// the consumer in one atomic step.
func (p *Producer) Publish() {
	p.b.tail.Store(p.local)
}

// Free returns the number of samples that can be staged before the ring
// is full.
func (p *Producer) Free() int {
	return len(p.b.data) - int(p.local-p.b.head.Load())
}

// Consumer is the read half of a ring. Not safe for concurrent use.
type Consumer struct {
	b *buffer
}

// Pop copies up to len(dst) published samples into dst and returns how many
// were copied. It never blocks; a shortfall is the caller's to handle,
// typically by substituting silence.
func (c *Consumer) Pop(dst []int16) int {
	head := c.b.head.Load()
	avail := c.b.tail.Load() - head

	n := uint64(len(dst))
	if avail < n {
		n = avail
	}

	capacity := uint64(len(c.b.data))
	for i := uint64(0); i < n; i++ {
		dst[i] = c.b.data[(head+i)%capacity]
	}

	c.b.head.Store(head + n)
	return int(n)
}

// Len returns the number of published samples waiting to be popped.
func (c *Consumer) Len() int {
	return int(c.b.tail.Load() - c.b.head.Load())
}

// Package backend defines the capability contracts between the routing core
// and the physical I/O backends, plus the PCM byte conversions used at
// those boundaries.
//
// A source backend owns a delivery context (a reader goroutine or a
// hardware callback thread) and pushes chunks into a SourceCallback. A sink
// backend pulls samples from a ring consumer at its own cadence,
// substituting silence for any shortfall, and never blocks waiting for
// data.
package backend

import (
	"encoding/binary"
)

// SourceCallback receives chunks delivered by a source backend. Data and
// Idle are invoked on the backend's delivery goroutine or callback thread
// and must return quickly.
type SourceCallback interface {
	// Data delivers one chunk of PCM samples. The slice is only valid for
	// the duration of the call.
	Data(chunk []int16)

	// Idle signals that the backend is running but currently has nothing
	// to deliver.
	Idle()
}

// Stream is an opaque handle to a running backend. Close stops delivery,
// releases resources and joins any goroutine the backend owns; after Close
// returns, no callback or ring access will occur.
type Stream interface {
	Close() error
}

// Samples reinterprets little-endian PCM16 bytes as samples. A trailing odd
// byte is ignored.
func Samples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return samples
}

// PutSamples encodes samples as little-endian PCM16 into dst, which must
// hold at least 2*len(samples) bytes.
func PutSamples(dst []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(s))
	}
}

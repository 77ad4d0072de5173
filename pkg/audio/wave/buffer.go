// ABOUTME: Fixed-capacity store of recent mono samples for visualization
// ABOUTME: Written by the real-time audio callback, read by the polling consumer
package wave

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
)

// DefaultCapacity is the number of mono samples kept when none is configured
const DefaultCapacity = 1024

// Buffer holds the most recent downmixed samples, oldest first.
// The zero value is not usable; create one with New.
type Buffer struct {
	mu       sync.Mutex
	samples  []float32 // len is the fill level, cap is the fixed capacity
	scratch  []float32
	capacity int

	// keep is the sample count the last reader asked for. Compaction on
	// overflow never drops below it.
	keep int
}

// New creates a buffer holding at most capacity samples
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		samples:  make([]float32, 0, capacity),
		scratch:  make([]float32, 0, capacity),
		capacity: capacity,
		keep:     capacity / 2,
	}
}

// Capacity returns the fixed sample capacity
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the number of samples currently held
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// ProcessSamples mixes interleaved frames down to mono and appends them.
// It runs on the audio device thread and does not allocate once the scratch
// slice has grown to the largest block size seen.
func (b *Buffer) ProcessSamples(frames []float32, channels int) {
	if channels <= 0 || len(frames) < channels {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(frames) / channels
	if cap(b.scratch) < n {
		b.scratch = make([]float32, n)
	}
	mono := b.scratch[:n]
	audio.Downmix(frames, channels, mono)

	// Only the newest capacity samples of an oversized block matter
	if n > b.capacity {
		mono = mono[n-b.capacity:]
		n = b.capacity
	}

	if len(b.samples)+n > b.capacity {
		// Compact down to the reader's window so the copy runs rarely
		retain := b.capacity - n
		if b.keep < retain {
			retain = b.keep
		}
		if retain > len(b.samples) {
			retain = len(b.samples)
		}
		copy(b.samples[:retain], b.samples[len(b.samples)-retain:])
		b.samples = b.samples[:retain]
	}

	b.samples = append(b.samples, mono...)
}

// ReadLatest copies the count most recent samples into out at positions
// i*stride, newest last. When fewer than count samples are held the leading
// positions are zeroed. It returns false when the buffer is empty.
//
// Asking for more than half the capacity, or passing an out too short for
// count samples at stride, is a programming error and panics.
func (b *Buffer) ReadLatest(out []float32, count, stride int) bool {
	if count > b.capacity/2 {
		panic(fmt.Sprintf("wave: requested %d samples from a buffer of capacity %d (limit %d)",
			count, b.capacity, b.capacity/2))
	}
	if count <= 0 {
		return false
	}
	if stride < 1 {
		stride = 1
	}
	if need := (count-1)*stride + 1; len(out) < need {
		panic(fmt.Sprintf("wave: requested %d samples at stride %d into an output of length %d (need %d)",
			count, stride, len(out), need))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.keep = count

	have := len(b.samples)
	if have == 0 {
		return false
	}

	avail := count
	if have < avail {
		avail = have
	}
	pad := count - avail
	for i := 0; i < pad; i++ {
		out[i*stride] = 0
	}
	src := b.samples[have-avail:]
	for i, s := range src {
		out[(pad+i)*stride] = s
	}
	return true
}

// Reset discards all held samples
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.samples = b.samples[:0]
	b.mu.Unlock()
}

// ABOUTME: Byte ring with blocking and non-blocking access
// ABOUTME: Wraps smallnest/ringbuffer with wakeups for one writer and one reader
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/smallnest/ringbuffer"
)

// byteRing is a fixed-size FIFO shared by exactly one writer and one reader.
// Writes may be restricted to multiples of align bytes so readers never see
// a partial sample.
type byteRing struct {
	rb    *ringbuffer.RingBuffer
	align int

	readable chan struct{}
	writable chan struct{}

	mu     sync.Mutex
	closed error // set once the writer is done; io.EOF for a clean end
	done   chan struct{}
}

func newByteRing(size, align int) *byteRing {
	if align < 1 {
		align = 1
	}
	size = size / align * align
	if size < align {
		size = align
	}
	return &byteRing{
		rb:       ringbuffer.New(size),
		align:    align,
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Len returns the number of buffered bytes
func (r *byteRing) Len() int {
	return r.rb.Length()
}

// Cap returns the ring capacity in bytes
func (r *byteRing) Cap() int {
	return r.rb.Capacity()
}

// Percent returns the fill level from 0 to 100
func (r *byteRing) Percent() int {
	return r.rb.Length() * 100 / r.rb.Capacity()
}

// Write blocks until all of p is stored, ctx ends or the ring is closed
func (r *byteRing) Write(ctx context.Context, p []byte) error {
	for len(p) > 0 {
		if err := r.err(); err != nil {
			return err
		}

		free := r.rb.Free() / r.align * r.align
		if free > 0 {
			chunk := p
			if len(chunk) > free {
				chunk = chunk[:free]
			}
			n, err := r.rb.Write(chunk)
			p = p[n:]
			if n > 0 {
				signal(r.readable)
			}
			if err != nil && n == 0 && !errors.Is(err, ringbuffer.ErrIsFull) {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
		case <-r.writable:
		}
	}
	return nil
}

// TryRead copies whatever is buffered, up to len(p) rounded down to the
// alignment, without blocking. Safe to call from the audio callback.
func (r *byteRing) TryRead(p []byte) int {
	p = p[:len(p)/r.align*r.align]
	if len(p) == 0 {
		return 0
	}
	n, _ := r.rb.Read(p)
	if n > 0 {
		signal(r.writable)
	}
	return n
}

// Read blocks until at least one byte is available. Once the writer has
// closed and the ring drained it returns the close error.
func (r *byteRing) Read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := r.TryRead(p); n > 0 {
			return n, nil
		}
		if err := r.err(); err != nil {
			// Pick up anything written just before the close
			if n := r.TryRead(p); n > 0 {
				return n, nil
			}
			return 0, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-r.done:
		case <-r.readable:
		}
	}
}

// WaitLen blocks until at least n bytes are buffered or the writer closed.
// Only the reading goroutine may call it.
func (r *byteRing) WaitLen(ctx context.Context, n int) error {
	if n > r.Cap() {
		n = r.Cap()
	}
	for r.Len() < n {
		if r.err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.done:
		case <-r.readable:
		}
	}
	return nil
}

// WaitDrained blocks until the reader has consumed everything.
// Only the writing goroutine may call it.
func (r *byteRing) WaitDrained(ctx context.Context) error {
	for r.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.writable:
		}
	}
	return nil
}

// CloseWithError stops the writer side. Readers drain then see err.
func (r *byteRing) CloseWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed != nil {
		return
	}
	r.closed = err
	close(r.done)
}

func (r *byteRing) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// reader binds the ring to a context as an io.Reader for decoders
func (r *byteRing) reader(ctx context.Context) io.Reader {
	return ringReader{ring: r, ctx: ctx}
}

type ringReader struct {
	ring *byteRing
	ctx  context.Context
}

func (rr ringReader) Read(p []byte) (int, error) {
	return rr.ring.Read(rr.ctx, p)
}

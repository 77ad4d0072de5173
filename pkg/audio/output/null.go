// ABOUTME: Null audio output that discards samples on a real-time clock
// ABOUTME: Used for headless runs and tests where no sound device exists
package output

import (
	"fmt"
	"sync"
	"time"
)

// DefaultNullPeriod is how often the null device pulls a block
const DefaultNullPeriod = 10 * time.Millisecond

// Null pulls samples at the device rate and drops them
type Null struct {
	period time.Duration
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewNull creates a null output pulling every period
func NewNull(period time.Duration) *Null {
	if period <= 0 {
		period = DefaultNullPeriod
	}
	return &Null{period: period}
}

// Open starts the pull loop
func (n *Null) Open(sampleRate, channels int, render RenderFunc) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if render == nil {
		return fmt.Errorf("render function is required")
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid output format: %dHz %dch", sampleRate, channels)
	}
	if n.stop != nil {
		return fmt.Errorf("null output already open")
	}

	frames := int(int64(sampleRate) * int64(n.period) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	block := make([]float32, frames*channels)
	stop := make(chan struct{})
	n.stop = stop

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(n.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				render(block)
			}
		}
	}()
	return nil
}

// Close stops the pull loop and waits for it to exit
func (n *Null) Close() error {
	n.mu.Lock()
	stop := n.stop
	n.stop = nil
	n.mu.Unlock()

	if stop != nil {
		close(stop)
		n.wg.Wait()
	}
	return nil
}

// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for pull-based playback backends and backend selection
package output

import (
	"fmt"
	"strings"
)

// RenderFunc fills out with interleaved float32 samples. It runs on the
// device thread, so it must not block or allocate.
type RenderFunc func(out []float32)

// Output represents an audio output device that pulls samples
type Output interface {
	// Open initializes the device and starts calling render
	Open(sampleRate, channels int, render RenderFunc) error

	// Close stops the device and releases output resources
	Close() error
}

// Backend names accepted by New
const (
	BackendMalgo = "malgo"
	BackendOto   = "oto"
	BackendNull  = "null"
)

// New creates the output backend with the given name
func New(name string) (Output, error) {
	switch strings.ToLower(name) {
	case "", BackendMalgo:
		return NewMalgo(), nil
	case BackendOto:
		return NewOto(), nil
	case BackendNull:
		return NewNull(0), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %s (supported: malgo, oto, null)", name)
	}
}

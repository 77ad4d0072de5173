// ABOUTME: Stream system owning the output device and the channel mixer
// ABOUTME: Opens HTTP transports and mixes started channels in the device callback
package stream

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/output"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSampleRate           = 48000
	DefaultChannels             = 2
	DefaultMaxVoices            = 4
	DefaultStreamBufferMillis   = 10000
	DefaultDecodeBufferMillis   = 400
	DefaultConnectTimeout       = 15 * time.Second
	DefaultUserAgent            = "resonate-radio"
	estimatedBitrateBytesPerSec = 128 * 128 // 128 kbit/s
	minStreamBufferBytes        = 16 * 1024
)

// Opener opens stream transports
type Opener interface {
	Open(rawURL string) (Transport, error)
}

// Config holds stream system configuration
type Config struct {
	Output         output.Output
	SampleRate     int
	Channels       int
	MaxVoices      int
	Client         *http.Client
	UserAgent      string
	ConnectTimeout time.Duration
	Logger         *zerolog.Logger
}

// System mixes channels into one output and opens transports
type System struct {
	config Config
	logger zerolog.Logger

	mu                 sync.Mutex
	channels           atomic.Pointer[[]*channel]
	streamBufferBytes  int
	decodeBufferMillis int
	started            bool
}

// NewSystem creates a stream system. Zero config fields take defaults.
func NewSystem(config Config) *System {
	if config.SampleRate <= 0 {
		config.SampleRate = DefaultSampleRate
	}
	if config.Channels <= 0 {
		config.Channels = DefaultChannels
	}
	if config.MaxVoices <= 0 {
		config.MaxVoices = DefaultMaxVoices
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Client == nil {
		config.Client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: config.ConnectTimeout}).DialContext,
				ResponseHeaderTimeout: config.ConnectTimeout,
				TLSHandshakeTimeout:   config.ConnectTimeout,
			},
		}
	}

	logger := log.Logger.With().Str("component", "stream").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	s := &System{
		config: config,
		logger: logger,
	}
	s.SetBufferSizes(DefaultStreamBufferMillis, DefaultDecodeBufferMillis)
	empty := []*channel{}
	s.channels.Store(&empty)
	return s
}

// Start opens the output device
func (s *System) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.config.Output == nil {
		return fmt.Errorf("no audio output configured")
	}
	if err := s.config.Output.Open(s.config.SampleRate, s.config.Channels, s.render); err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	s.started = true
	return nil
}

// Close stops the output device
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	return s.config.Output.Close()
}

// Format returns the mix format
func (s *System) Format() audio.Format {
	return audio.Format{
		Codec:      "pcm",
		SampleRate: s.config.SampleRate,
		Channels:   s.config.Channels,
		BitDepth:   32,
	}
}

// SetBufferSizes sets the network buffer (sized for an estimated 128 kbit/s
// stream) and the decoded-audio buffer for transports opened afterwards
func (s *System) SetBufferSizes(streamMillis, decodeMillis int) {
	streamBytes := streamMillis * estimatedBitrateBytesPerSec / 1000
	if streamBytes < minStreamBufferBytes {
		streamBytes = minStreamBufferBytes
	}
	if decodeMillis <= 0 {
		decodeMillis = DefaultDecodeBufferMillis
	}

	s.mu.Lock()
	s.streamBufferBytes = streamBytes
	s.decodeBufferMillis = decodeMillis
	s.mu.Unlock()

	s.logger.Debug().
		Int("stream_bytes", streamBytes).
		Int("decode_ms", decodeMillis).
		Msg("Buffer sizes set")
}

// BufferSizes returns the network buffer in bytes and the decode buffer in ms
func (s *System) BufferSizes() (streamBytes, decodeMillis int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamBufferBytes, s.decodeBufferMillis
}

// Open validates rawURL and starts connecting in the background
func (s *System) Open(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &OpenError{URL: rawURL, Err: err}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &OpenError{URL: rawURL, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)}
	}
	if u.Host == "" {
		return nil, &OpenError{URL: rawURL, Err: fmt.Errorf("missing host")}
	}

	streamBytes, decodeMillis := s.BufferSizes()
	t := newHTTPTransport(s, rawURL, streamBytes, decodeMillis)
	t.start()
	return t, nil
}

func (s *System) register(c *channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.channels.Load()
	if slices.Contains(cur, c) {
		return
	}
	next := append(slices.Clone(cur), c)
	sortByPriority(next)
	s.channels.Store(&next)
}

func (s *System) unregister(c *channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.channels.Load()
	next := slices.DeleteFunc(slices.Clone(cur), func(have *channel) bool { return have == c })
	s.channels.Store(&next)
}

func (s *System) resort() {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(*s.channels.Load())
	sortByPriority(next)
	s.channels.Store(&next)
}

func sortByPriority(chans []*channel) {
	slices.SortStableFunc(chans, func(a, b *channel) int {
		return int(a.priority.Load() - b.priority.Load())
	})
}

// render is the output callback: it mixes the highest-priority unpaused
// channels into out
func (s *System) render(out []float32) {
	clear(out)

	voices := 0
	for _, c := range *s.channels.Load() {
		if voices >= s.config.MaxVoices {
			break
		}
		if c.paused.Load() {
			continue
		}
		voices++
		c.mix(out)
	}

	for i, v := range out {
		out[i] = audio.Clamp(v)
	}
}

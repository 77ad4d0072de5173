// ABOUTME: Stream session controller
// ABOUTME: Tick-driven state machine owning the current transport and its playback channel
package streaming

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/wave"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/stream"
)

const (
	// DefaultUnpauseThreshold is the buffer percentage a starved stream must exceed to resume
	DefaultUnpauseThreshold = 80
	// DefaultMaxRetries is how many times a failed stream is reopened
	DefaultMaxRetries = 2

	defaultCloseAttempts = 20
	defaultCloseInterval = 10 * time.Millisecond
)

// ErrNoStream is returned when no transport is active
var ErrNoStream = errors.New("no active stream")

// PlayState summarizes whether a stream is active
type PlayState int

const (
	// Stopped means no transport and no URL
	Stopped PlayState = iota
	// Active means a transport exists
	Active
	// PausedWithURL means no transport but a URL is remembered
	PausedWithURL
)

func (s PlayState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Active:
		return "playing"
	case PausedWithURL:
		return "paused"
	default:
		return fmt.Sprintf("PlayState(%d)", int(s))
	}
}

// MarshalText encodes the state by name
func (s PlayState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BufferSizer is implemented by openers whose buffer sizes can be tuned
type BufferSizer interface {
	SetBufferSizes(streamMillis, decodeMillis int)
}

// Config holds controller configuration
type Config struct {
	Opener stream.Opener
	// Wave receives playing samples for visualization; nil disables wave data
	Wave *wave.Buffer
	// Decoder converts raw tags; a default decoder is used when nil
	Decoder *metadata.Decoder
	Logger  *zerolog.Logger
	// Recorder observes controller events; optional
	Recorder Recorder

	// UnpauseThreshold defaults to DefaultUnpauseThreshold
	UnpauseThreshold int
	// MaxRetries defaults to DefaultMaxRetries; negative disables retries
	MaxRetries    int
	CloseAttempts int
	CloseInterval time.Duration
}

// Controller owns at most one active transport. It is not safe for
// concurrent use; all calls must come from the goroutine driving Update.
type Controller struct {
	opener   stream.Opener
	wave     *wave.Buffer
	decoder  *metadata.Decoder
	logger   zerolog.Logger
	recorder Recorder

	unpauseThreshold int
	maxRetries       int
	closeAttempts    int
	closeInterval    time.Duration

	transport  stream.Transport
	channel    stream.Channel
	dead       []stream.Transport
	url        string
	retryCount int
	gain       float32
	muted      bool
	status     stream.Status
	metadata   metadata.Map

	signal metadataSignal
}

// New creates a controller
func New(config Config) *Controller {
	logger := log.Logger.With().Str("component", "streaming").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}

	c := &Controller{
		opener:           config.Opener,
		wave:             config.Wave,
		decoder:          config.Decoder,
		logger:           logger,
		recorder:         config.Recorder,
		unpauseThreshold: config.UnpauseThreshold,
		maxRetries:       config.MaxRetries,
		closeAttempts:    config.CloseAttempts,
		closeInterval:    config.CloseInterval,
		gain:             1,
		metadata:         metadata.Map{},
	}

	if c.decoder == nil {
		c.decoder = metadata.NewDecoder(metadata.DecoderConfig{Logger: &logger})
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.unpauseThreshold <= 0 {
		c.unpauseThreshold = DefaultUnpauseThreshold
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	} else if config.MaxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.closeAttempts <= 0 {
		c.closeAttempts = defaultCloseAttempts
	}
	if c.closeInterval <= 0 {
		c.closeInterval = defaultCloseInterval
	}

	return c
}

// Update advances the session by one tick
func (c *Controller) Update() {
	c.reapDead()

	if c.transport == nil {
		return
	}

	status := c.transport.PollState()
	c.status = status
	c.recorder.Buffered(status.PercentBuffered)

	switch status.State {
	case stream.StateReady:
		if c.channel == nil {
			c.startChannel()
		}
		c.retryCount = 0

	case stream.StateError:
		c.logger.Info().
			Err(status.Err).
			Str("url", c.url).
			Msg("Stream in error state")
		if c.retryCount < c.maxRetries {
			url := c.url
			c.Stop()
			c.retryCount++
			c.recorder.Retry(c.retryCount)
			c.logger.Info().
				Str("url", url).
				Int("attempt", c.retryCount+1).
				Msg("Restarting internet stream")
			c.open(url)
			c.url = url
		} else {
			c.logger.Info().
				Str("url", c.url).
				Int("retries", c.retryCount).
				Msg("Stream failed after retries, giving up")
			c.Stop()
			c.url = ""
		}
		return
	}

	if c.channel == nil {
		return
	}

	if tags, dirty := c.channel.Tags(); dirty > 0 {
		c.metadata = c.decoder.Decode(tags, c.channel)
		c.publish()
	}

	paused, err := c.channel.Paused()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Channel unavailable")
		return
	}

	if status.Starving {
		if !paused {
			c.logger.Info().
				Int("buffered", status.PercentBuffered).
				Msg("Stream starvation detected, pausing until buffer nearly full")
			c.setPaused(true)
			c.recorder.StarvationPaused()
		}
	} else if paused && status.PercentBuffered > c.unpauseThreshold {
		c.logger.Info().
			Int("buffered", status.PercentBuffered).
			Msg("Stream buffer refilled, resuming")
		c.setPaused(false)
	}
}

// Start stops any current stream and opens url. An empty url just stops.
func (c *Controller) Start(url string) {
	c.Stop()

	if url != "" {
		c.logger.Info().Str("url", url).Msg("Starting internet stream")
		c.open(url)
	} else {
		c.logger.Info().Msg("Set internet stream to null")
	}
	c.url = url
	c.retryCount = 0
}

// Stop tears down the current stream. The URL is kept so playback can resume.
func (c *Controller) Stop() {
	c.metadata = metadata.Map{}
	c.publish()

	if c.channel != nil {
		c.setPaused(true)
		if err := c.channel.SetPriority(stream.PriorityLowest); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to lower channel priority")
		}
		if c.wave != nil {
			if err := c.channel.RemoveTap(c.wave); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to remove wave tap")
			}
			c.wave.Reset()
		}
		c.channel = nil
	}

	if c.transport != nil {
		c.logger.Info().Str("url", c.transport.URL()).Msg("Stopping internet stream")
		if !c.transport.Close() {
			c.logger.Info().Str("id", c.transport.ID()).Msg("Pushing stream to dead list")
			c.dead = append(c.dead, c.transport)
		}
		c.transport = nil
	}

	c.status = stream.Status{}
	c.recorder.DeadTransports(len(c.dead))
}

// Pause stops (flag > 0) or restarts (flag == 0) the stream. A negative flag
// toggles based on whether a transport is active.
func (c *Controller) Pause(flag int) {
	if flag < 0 {
		if c.transport != nil {
			flag = 1
		} else {
			flag = 0
		}
	}

	if flag != 0 {
		if c.transport != nil {
			c.logger.Info().Msg("Pausing internet stream")
			c.Stop()
		}
		return
	}

	c.logger.Info().Msg("Unpausing internet stream")
	c.Start(c.url)
}

// IsPlaying reports the session state
func (c *Controller) IsPlaying() PlayState {
	if c.transport != nil {
		return Active
	}
	if c.url != "" {
		return PausedWithURL
	}
	return Stopped
}

// URL returns the remembered stream address
func (c *Controller) URL() string {
	return c.url
}

// SetGain stores the raw gain and applies its square, clamped to [0, 1], as the channel volume
func (c *Controller) SetGain(level float32) {
	c.gain = level
	if c.channel == nil {
		return
	}
	if err := c.channel.SetVolume(volumeForGain(level)); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to set channel volume")
	}
}

// Gain returns the last gain passed to SetGain
func (c *Controller) Gain() float32 {
	return c.gain
}

// SetMuted mutes the current and any future channel
func (c *Controller) SetMuted(muted bool) {
	c.muted = muted
	if c.channel == nil {
		return
	}
	if err := c.channel.SetMute(muted); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to set channel mute")
	}
}

// Muted reports the mute setting
func (c *Controller) Muted() bool {
	return c.muted
}

// SetBufferSizes forwards sizes to the opener for streams opened afterwards
func (c *Controller) SetBufferSizes(streamMillis, decodeMillis int) {
	if sizer, ok := c.opener.(BufferSizer); ok {
		sizer.SetBufferSizes(streamMillis, decodeMillis)
	}
}

// Status returns the state observed on the last Update
func (c *Controller) Status() (stream.Status, error) {
	if c.transport == nil {
		return stream.Status{}, ErrNoStream
	}
	return c.status, nil
}

// Metadata returns the current metadata map. Callers must not modify it.
func (c *Controller) Metadata() metadata.Map {
	return c.metadata
}

// OnMetadata subscribes fn to metadata replacements
func (c *Controller) OnMetadata(fn MetadataFunc) *Connection {
	return c.signal.connect(fn)
}

// GetWaveData fills out with the newest count mono samples spaced stride
// apart. It returns false when nothing is playing or the channel is muted.
// count above half the wave buffer capacity is a programming error and panics.
func (c *Controller) GetWaveData(out []float32, count, stride int) bool {
	if c.wave == nil {
		return false
	}
	if count > c.wave.Capacity()/2 {
		panic(fmt.Sprintf("streaming: wave request of %d samples exceeds half of buffer capacity %d", count, c.wave.Capacity()))
	}
	if c.transport == nil || c.channel == nil {
		return false
	}
	if muted, err := c.channel.Muted(); err != nil || muted {
		return false
	}
	return c.wave.ReadLatest(out, count, stride)
}

// SupportsAdjustableBufferSizes reports whether SetBufferSizes has an effect
func (c *Controller) SupportsAdjustableBufferSizes() bool {
	_, ok := c.opener.(BufferSizer)
	return ok
}

// SupportsMetadata reports whether metadata callbacks are raised
func (c *Controller) SupportsMetadata() bool {
	return true
}

// SupportsWaveData reports whether GetWaveData can return samples
func (c *Controller) SupportsWaveData() bool {
	return c.wave != nil
}

// DeadTransports returns how many transports are waiting to close
func (c *Controller) DeadTransports() int {
	return len(c.dead)
}

// Close stops playback and waits briefly for parked transports to close
func (c *Controller) Close() {
	c.Stop()

	if len(c.dead) == 0 {
		return
	}

	c.logger.Info().Int("count", len(c.dead)).Msg("Waiting for streams to stop")
	started := time.Now()
	for attempt := 0; attempt < c.closeAttempts; attempt++ {
		c.reapDead()
		if len(c.dead) == 0 {
			c.logger.Info().
				Int64("ms", time.Since(started).Milliseconds()).
				Msg("All streams stopped")
			return
		}
		time.Sleep(c.closeInterval)
	}

	c.logger.Warn().Int("count", len(c.dead)).Msg("Failed to kill some audio streams")
}

func (c *Controller) open(url string) {
	t, err := c.opener.Open(url)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", url).Msg("Couldn't open internet stream")
		c.recorder.OpenFailed(url)
		c.transport = nil
		return
	}
	c.transport = t
	c.recorder.StreamOpened(url)
}

func (c *Controller) startChannel() {
	ch, err := c.transport.StartPlayback()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to start playback")
		return
	}

	c.channel = ch
	c.SetGain(c.gain)
	c.SetMuted(c.muted)
	if c.wave != nil {
		if err := ch.AddTap(c.wave); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to add wave tap")
		}
	}
	c.setPaused(false)
	c.logger.Info().Str("url", c.url).Msg("Internet stream playing")
}

func (c *Controller) setPaused(paused bool) {
	if err := c.channel.SetPaused(paused); err != nil {
		c.logger.Debug().Err(err).Bool("paused", paused).Msg("Failed to set channel pause")
	}
}

func (c *Controller) reapDead() {
	if len(c.dead) == 0 {
		return
	}
	alive := c.dead[:0]
	for _, t := range c.dead {
		if t.Close() {
			c.logger.Debug().Str("id", t.ID()).Msg("Closed dead stream")
			continue
		}
		alive = append(alive, t)
	}
	clear(c.dead[len(alive):])
	c.dead = alive
	c.recorder.DeadTransports(len(c.dead))
}

func (c *Controller) publish() {
	c.recorder.MetadataPublished()
	c.signal.emit(c.metadata)
}

func volumeForGain(gain float32) float32 {
	v := gain * gain
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// ABOUTME: Player application loop
// ABOUTME: Ticks the stream controller and serializes commands from the TUI and remote API
package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

// ErrStopped is returned when sending to a player that is not running
var ErrStopped = errors.New("player stopped")

// Engine is the audio system started before and closed after the loop
type Engine interface {
	Start() error
	Close() error
}

// PeakObserver receives the output peak level every tick
type PeakObserver interface {
	ObservePeak(level float32)
}

// Config holds player configuration
type Config struct {
	Controller   *streaming.Controller
	Engine       Engine
	TickInterval time.Duration
	// WaveSamples is how many samples are inspected for the peak level; zero disables it
	WaveSamples int
	URL         string
	Gain        float32
	Peak        PeakObserver
	Logger      *zerolog.Logger
}

// Snapshot is the state published after every tick
type Snapshot struct {
	State    streaming.PlayState `json:"state"`
	URL      string              `json:"url"`
	Gain     float32             `json:"gain"`
	Muted    bool                `json:"muted"`
	Buffered int                 `json:"buffered"`
	Starving bool                `json:"starving"`
	Metadata metadata.Map        `json:"metadata"`
	Peak     float32             `json:"peak"`
}

// Player drives a stream controller from a single goroutine
type Player struct {
	config   Config
	ctrl     *streaming.Controller
	logger   zerolog.Logger
	commands chan Command
	done     chan struct{}
	running  atomic.Bool
	snapshot atomic.Pointer[Snapshot]
	wave     []float32

	mu          sync.Mutex
	subscribers map[chan Snapshot]struct{}
}

// New creates a player
func New(config Config) *Player {
	logger := log.Logger.With().Str("component", "app").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	if config.TickInterval <= 0 {
		config.TickInterval = 50 * time.Millisecond
	}

	p := &Player{
		config:      config,
		ctrl:        config.Controller,
		logger:      logger,
		commands:    make(chan Command, 16),
		done:        make(chan struct{}),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	if config.WaveSamples > 0 {
		p.wave = make([]float32, config.WaveSamples)
	}
	p.snapshot.Store(&Snapshot{Gain: config.Gain, URL: config.URL, Metadata: metadata.Map{}})
	return p
}

// Run starts the engine and ticks until ctx is canceled or a Quit command arrives
func (p *Player) Run(ctx context.Context) error {
	if p.config.Engine != nil {
		if err := p.config.Engine.Start(); err != nil {
			close(p.done)
			return fmt.Errorf("failed to start audio engine: %w", err)
		}
	}
	p.running.Store(true)

	defer func() {
		p.running.Store(false)
		p.ctrl.Close()
		if p.config.Engine != nil {
			if err := p.config.Engine.Close(); err != nil {
				p.logger.Warn().Err(err).Msg("Failed to close audio engine")
			}
		}
		p.publish()
		close(p.done)
		p.logger.Info().Msg("Player stopped")
	}()

	p.ctrl.SetGain(p.config.Gain)
	if p.config.URL != "" {
		p.ctrl.Start(p.config.URL)
	}

	ticker := time.NewTicker(p.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case cmd := <-p.commands:
			if quit := p.apply(cmd); quit {
				return nil
			}
			p.publish()

		case <-ticker.C:
			p.ctrl.Update()
			p.publish()
		}
	}
}

// Send queues a command for the loop
func (p *Player) Send(ctx context.Context, cmd Command) error {
	select {
	case <-p.done:
		return ErrStopped
	default:
	}

	select {
	case p.commands <- cmd:
		return nil
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Snapshot returns the most recently published state
func (p *Player) Snapshot() Snapshot {
	return *p.snapshot.Load()
}

// Subscribe returns a channel receiving the latest snapshot after each tick.
// Slow readers only see the newest snapshot. Call the returned function to unsubscribe.
func (p *Player) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	p.mu.Lock()
	p.subscribers[ch] = struct{}{}
	p.mu.Unlock()

	return ch, func() {
		p.mu.Lock()
		delete(p.subscribers, ch)
		p.mu.Unlock()
	}
}

// OnMetadata subscribes to metadata replacements from the controller
func (p *Player) OnMetadata(fn streaming.MetadataFunc) *streaming.Connection {
	return p.ctrl.OnMetadata(fn)
}

func (p *Player) apply(cmd Command) bool {
	p.logger.Debug().Stringer("command", cmd.Kind).Msg("Applying command")

	switch cmd.Kind {
	case CommandStart:
		p.ctrl.Start(cmd.URL)
	case CommandStop:
		p.ctrl.Stop()
	case CommandPause:
		p.ctrl.Pause(cmd.Pause)
	case CommandSetGain:
		p.ctrl.SetGain(cmd.Gain)
	case CommandSetMuted:
		p.ctrl.SetMuted(cmd.Muted)
	case CommandQuit:
		return true
	default:
		p.logger.Warn().Int("kind", int(cmd.Kind)).Msg("Unknown command")
	}
	return false
}

func (p *Player) publish() {
	snap := Snapshot{
		State:    p.ctrl.IsPlaying(),
		URL:      p.ctrl.URL(),
		Gain:     p.ctrl.Gain(),
		Muted:    p.ctrl.Muted(),
		Metadata: p.ctrl.Metadata(),
		Peak:     p.peak(),
	}
	if status, err := p.ctrl.Status(); err == nil {
		snap.Buffered = status.PercentBuffered
		snap.Starving = status.Starving
	}
	if p.config.Peak != nil {
		p.config.Peak.ObservePeak(snap.Peak)
	}

	p.snapshot.Store(&snap)

	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (p *Player) peak() float32 {
	if p.wave == nil || !p.running.Load() {
		return 0
	}
	if !p.ctrl.GetWaveData(p.wave, len(p.wave), 1) {
		return 0
	}
	var peak float64
	for _, s := range p.wave {
		peak = math.Max(peak, math.Abs(float64(s)))
	}
	return float32(peak)
}

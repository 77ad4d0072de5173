// ABOUTME: Playback channel for one transport
// ABOUTME: Holds pause, volume, mute, priority, frequency and taps read by the mixer
package stream

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

// Channel priorities; lower values win when voices run out
const (
	PriorityHighest = 0
	PriorityDefault = 128
	PriorityLowest  = 256
)

// Tap observes the samples a channel plays, before volume is applied.
// ProcessSamples runs on the audio device thread.
type Tap interface {
	ProcessSamples(frames []float32, channels int)
}

// Channel controls playback of a started transport
type Channel interface {
	SetPaused(paused bool) error
	Paused() (bool, error)
	SetVolume(volume float32) error
	Volume() (float32, error)
	SetMute(muted bool) error
	Muted() (bool, error)
	SetPriority(priority int) error
	SetFrequency(hz float64) error
	Frequency() (float64, error)
	AddTap(tap Tap) error
	RemoveTap(tap Tap) error

	// Tags returns every tag seen so far and how many changed since the last call
	Tags() ([]metadata.Tag, int)
}

type channel struct {
	sys      *System
	pcm      *byteRing
	tags     *tagStore
	channels int

	released atomic.Bool
	paused   atomic.Bool
	muted    atomic.Bool
	volume   atomic.Uint32 // float32 bits
	priority atomic.Int32
	freq     atomic.Uint64 // float64 bits, 0 means native rate

	tapMu sync.Mutex
	taps  atomic.Pointer[[]Tap]

	underruns atomic.Uint64

	// Only touched on the device thread
	raw     []byte
	samples []float32
}

func newChannel(sys *System, pcm *byteRing, tags *tagStore, channels int) *channel {
	c := &channel{
		sys:      sys,
		pcm:      pcm,
		tags:     tags,
		channels: channels,
	}
	c.paused.Store(true)
	c.volume.Store(math.Float32bits(1))
	c.priority.Store(PriorityDefault)
	return c
}

func (c *channel) check() error {
	if c.released.Load() {
		return ErrClosed
	}
	return nil
}

func (c *channel) SetPaused(paused bool) error {
	if err := c.check(); err != nil {
		return err
	}
	c.paused.Store(paused)
	return nil
}

func (c *channel) Paused() (bool, error) {
	return c.paused.Load(), c.check()
}

func (c *channel) SetVolume(volume float32) error {
	if err := c.check(); err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	c.volume.Store(math.Float32bits(volume))
	return nil
}

func (c *channel) Volume() (float32, error) {
	return math.Float32frombits(c.volume.Load()), c.check()
}

func (c *channel) SetMute(muted bool) error {
	if err := c.check(); err != nil {
		return err
	}
	c.muted.Store(muted)
	return nil
}

func (c *channel) Muted() (bool, error) {
	return c.muted.Load(), c.check()
}

func (c *channel) SetPriority(priority int) error {
	if err := c.check(); err != nil {
		return err
	}
	if priority < PriorityHighest || priority > PriorityLowest {
		return fmt.Errorf("priority %d out of range [%d, %d]", priority, PriorityHighest, PriorityLowest)
	}
	c.priority.Store(int32(priority))
	c.sys.resort()
	return nil
}

func (c *channel) SetFrequency(hz float64) error {
	if err := c.check(); err != nil {
		return err
	}
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("invalid frequency: %v", hz)
	}
	c.freq.Store(math.Float64bits(hz))
	return nil
}

func (c *channel) Frequency() (float64, error) {
	return math.Float64frombits(c.freq.Load()), c.check()
}

func (c *channel) AddTap(tap Tap) error {
	if err := c.check(); err != nil {
		return err
	}
	c.tapMu.Lock()
	defer c.tapMu.Unlock()

	var next []Tap
	if cur := c.taps.Load(); cur != nil {
		for _, t := range *cur {
			if t == tap {
				return nil
			}
		}
		next = append(next, *cur...)
	}
	next = append(next, tap)
	c.taps.Store(&next)
	return nil
}

func (c *channel) RemoveTap(tap Tap) error {
	if err := c.check(); err != nil {
		return err
	}
	c.tapMu.Lock()
	defer c.tapMu.Unlock()

	cur := c.taps.Load()
	if cur == nil {
		return nil
	}
	next := make([]Tap, 0, len(*cur))
	for _, t := range *cur {
		if t != tap {
			next = append(next, t)
		}
	}
	c.taps.Store(&next)
	return nil
}

func (c *channel) Tags() ([]metadata.Tag, int) {
	return c.tags.take()
}

// Underruns counts render calls that found too few buffered samples
func (c *channel) Underruns() uint64 {
	return c.underruns.Load()
}

// mix adds this channel's next block into out. Runs on the device thread.
func (c *channel) mix(out []float32) {
	need := len(out)
	if cap(c.raw) < need*4 {
		c.raw = make([]byte, need*4)
		c.samples = make([]float32, need)
	}

	n := c.pcm.TryRead(c.raw[:need*4]) / 4
	if n < need {
		c.underruns.Add(1)
	}
	if n == 0 {
		return
	}

	samples := c.samples[:n]
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(c.raw[i*4:]))
	}

	if taps := c.taps.Load(); taps != nil {
		for _, t := range *taps {
			t.ProcessSamples(samples, c.channels)
		}
	}

	if c.muted.Load() {
		return
	}
	gain := math.Float32frombits(c.volume.Load())
	for i, s := range samples {
		out[i] += s * gain
	}
}

// release detaches the channel from the mixer; later calls return ErrClosed
func (c *channel) release() {
	if c.released.Swap(true) {
		return
	}
	c.sys.unregister(c)
}

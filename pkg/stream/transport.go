// ABOUTME: HTTP stream transport with fetch and decode goroutines
// ABOUTME: Buffers network bytes, decodes to the mix format and reports coarse state
package stream

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/resample"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	fetchChunkSize  = 16 * 1024
	decodeChunkSize = 8192
)

// Transport is one network stream from connect to close
type Transport interface {
	// ID uniquely identifies this transport instance
	ID() string

	// URL returns the address the transport was opened with
	URL() string

	// PollState reports the current state without blocking
	PollState() Status

	// StartPlayback returns the playback channel, creating it on first call.
	// It fails with ErrNotReady until the transport is Ready.
	StartPlayback() (Channel, error)

	// Close releases the transport. It returns false while the transport is
	// still connecting or shutting down; call it again later.
	Close() bool
}

type httpTransport struct {
	id     string
	url    string
	sys    *System
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	net  *byteRing
	pcm  *byteRing
	tags *tagStore
	ch   *channel

	readyLevel int
	lowWater   int
	ready      atomic.Bool
	eof        atomic.Bool

	mu      sync.Mutex
	started bool
	err     error
	done    chan struct{}

	starveLog rate.Sometimes
}

func newHTTPTransport(sys *System, rawURL string, streamBytes, decodeMillis int) *httpTransport {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	pcmBytes := decodeMillis * sys.config.SampleRate / 1000 * sys.config.Channels * 4
	tags := &tagStore{}
	pcm := newByteRing(pcmBytes, 4*sys.config.Channels)

	return &httpTransport{
		id:         id,
		url:        rawURL,
		sys:        sys,
		logger:     sys.logger.With().Str("transport", id).Str("url", rawURL).Logger(),
		ctx:        ctx,
		cancel:     cancel,
		net:        newByteRing(streamBytes, 1),
		pcm:        pcm,
		tags:       tags,
		ch:         newChannel(sys, pcm, tags, sys.config.Channels),
		readyLevel: pcm.Cap() / 2,
		lowWater:   pcm.Cap() / 8,
		done:       make(chan struct{}),
		starveLog:  rate.Sometimes{Interval: 5 * time.Second},
	}
}

func (t *httpTransport) ID() string {
	return t.id
}

func (t *httpTransport) URL() string {
	return t.url
}

func (t *httpTransport) start() {
	g, ctx := errgroup.WithContext(t.ctx)
	contentType := make(chan string, 1)

	g.Go(func() error {
		return t.fetch(ctx, contentType)
	})
	g.Go(func() error {
		return t.decode(ctx, contentType)
	})

	go func() {
		t.finish(g.Wait())
	}()

	t.logger.Info().Msg("Opening stream")
}

func (t *httpTransport) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.ctx.Err() != nil:
		t.err = ErrClosed
	case err == nil:
		t.err = ErrEndOfStream
	default:
		t.err = err
	}
	if !errors.Is(t.err, ErrClosed) {
		t.logger.Warn().Err(t.err).Msg("Stream failed")
	}
	t.net.CloseWithError(t.err)
	t.pcm.CloseWithError(t.err)
	close(t.done)
	t.cancel()
}

func (t *httpTransport) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *httpTransport) fetch(ctx context.Context, contentType chan<- string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Icy-MetaData", "1")
	req.Header.Set("User-Agent", t.sys.config.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := t.sys.config.Client.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	t.tags.set(headerTags(resp.Header)...)

	var body io.Reader = resp.Body
	if metaint, err := strconv.Atoi(resp.Header.Get("icy-metaint")); err == nil && metaint > 0 {
		body = newICYReader(body, metaint, func(fields []icyField) {
			t.tags.set(icyTags(fields)...)
		})
	}

	ct := resp.Header.Get("Content-Type")
	t.logger.Debug().Str("content_type", ct).Msg("Stream connected")
	contentType <- ct

	buf := make([]byte, fetchChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if werr := t.net.Write(ctx, buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			t.net.CloseWithError(io.EOF)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
	}
}

func (t *httpTransport) decode(ctx context.Context, contentType <-chan string) error {
	var ct string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ct = <-contentType:
	}

	// Let the network buffer fill a little before decoding starts
	if err := t.net.WaitLen(ctx, t.net.Cap()/4); err != nil {
		return err
	}

	br := bufio.NewReaderSize(t.net.reader(ctx), 64*1024)
	id3Tags, err := readID3(br)
	if err != nil {
		t.logger.Debug().Err(err).Msg("Ignoring malformed ID3v2 tag")
	}
	t.tags.set(id3Tags...)

	dec, err := decode.ForContentType(ct, br, decode.Options{OnRateChange: t.rateChanged})
	if err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	defer dec.Close()
	t.tags.set(dec.Tags()...)

	format := dec.Format()
	outRate := t.sys.config.SampleRate
	outChannels := t.sys.config.Channels
	t.logger.Info().
		Str("codec", format.Codec).
		Int("rate", format.SampleRate).
		Int("channels", format.Channels).
		Msg("Decoding stream")

	rs := resample.New(format.SampleRate, outRate, outChannels)
	in := make([]float32, decodeChunkSize)
	var mixed, resampled []float32
	var raw []byte

	for {
		n, err := dec.Read(in)
		if n > 0 {
			f := dec.Format()
			mixed = audio.Remix(in[:n], f.Channels, outChannels, mixed)

			inRate := f.SampleRate
			if hz := math.Float64frombits(t.ch.freq.Load()); hz > 0 {
				inRate = int(hz)
			}
			if inRate != rs.InputRate() {
				rs.SetInputRate(inRate)
			}

			samples := mixed
			if !rs.Passthrough() {
				need := rs.OutputSamplesNeeded(len(mixed))
				if cap(resampled) < need {
					resampled = make([]float32, need)
				}
				k := rs.Resample(mixed, resampled[:need])
				samples = resampled[:k]
			}

			if cap(raw) < len(samples)*4 {
				raw = make([]byte, len(samples)*4)
			}
			raw = raw[:len(samples)*4]
			for i, s := range samples {
				binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
			}
			if err := t.writePCM(ctx, raw); err != nil {
				return err
			}
		}

		if errors.Is(err, io.EOF) {
			// Short streams still become playable; let the tail play out
			t.eof.Store(true)
			t.ready.Store(true)
			if err := t.pcm.WaitDrained(ctx); err != nil {
				return err
			}
			return ErrEndOfStream
		}
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
	}
}

// writePCM queues decoded bytes in pieces so readiness is noticed before the
// buffer fills and the write blocks on a channel that has not started
func (t *httpTransport) writePCM(ctx context.Context, raw []byte) error {
	step := t.pcm.Cap() / 4 / t.pcm.align * t.pcm.align
	if step < t.pcm.align {
		step = t.pcm.align
	}
	for len(raw) > 0 {
		chunk := raw
		if len(chunk) > step {
			chunk = chunk[:step]
		}
		if err := t.pcm.Write(ctx, chunk); err != nil {
			return err
		}
		raw = raw[len(chunk):]

		if !t.ready.Load() && t.pcm.Len() >= t.readyLevel {
			t.ready.Store(true)
			t.logger.Info().Msg("Stream ready")
		}
	}
	return nil
}

// rateChanged raises the transport pseudo-tag for a mid-stream rate change
func (t *httpTransport) rateChanged(hz int) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(float32(hz)))
	t.tags.set(metadata.Tag{
		Name:      metadata.SampleRateChange,
		Container: metadata.ContainerTransport,
		DataType:  metadata.DataFloat,
		Data:      data,
	})
}

func (t *httpTransport) PollState() Status {
	status := Status{PercentBuffered: t.net.Percent()}

	t.mu.Lock()
	err := t.err
	t.mu.Unlock()

	switch {
	case err != nil:
		status.State = StateError
		status.Err = err
	case !t.ready.Load():
		status.State = StateConnecting
	case t.eof.Load():
		// Nothing more will arrive; what is queued counts as a full buffer
		status.State = StateReady
		status.PercentBuffered = 100
	case t.pcm.Len() < t.lowWater:
		status.State = StateBuffering
		status.Starving = true
		t.starveLog.Do(func() {
			t.logger.Debug().
				Int("percent", status.PercentBuffered).
				Uint64("underruns", t.ch.Underruns()).
				Msg("Stream starving")
		})
	default:
		status.State = StateReady
	}
	return status
}

func (t *httpTransport) StartPlayback() (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, t.err)
	}
	if !t.ready.Load() {
		return nil, ErrNotReady
	}
	if !t.started {
		t.sys.register(t.ch)
		t.started = true
	}
	return t.ch, nil
}

func (t *httpTransport) Close() bool {
	connecting := !t.ready.Load() && !t.finished()
	t.cancel()
	t.ch.release()

	if connecting {
		return false
	}
	return t.finished()
}

// ABOUTME: Tests for HTTP transports against mocked servers
// ABOUTME: Covers open validation, playback, ICY metadata, failures and deferred close
package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-radio/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/jarcoal/httpmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testURL = "http://radio.test/live"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTap struct {
	mu      sync.Mutex
	samples int
	last    float32
}

func (r *recordingTap) ProcessSamples(frames []float32, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples += len(frames)
	if len(frames) > 0 {
		r.last = frames[len(frames)-1]
	}
}

func (r *recordingTap) snapshot() (int, float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.samples, r.last
}

func newTestSystem(t *testing.T) (*System, *httpmock.MockTransport) {
	t.Helper()
	mock := httpmock.NewMockTransport()
	logger := zerolog.Nop()
	sys := NewSystem(Config{
		Output:     output.NewNull(2 * time.Millisecond),
		SampleRate: 8000,
		Channels:   1,
		Client:     &http.Client{Transport: mock},
		Logger:     &logger,
	})
	sys.SetBufferSizes(1000, 200)
	require.NoError(t, sys.Start())
	t.Cleanup(func() { _ = sys.Close() })
	return sys, mock
}

// pcmBody returns count big-endian 16-bit samples of the same value
func pcmBody(count int, value int16) []byte {
	buf := make([]byte, count*2)
	for i := 0; i < count; i++ {
		binary.BigEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func pcmResponder(body []byte, headers map[string]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, body)
		resp.Header.Set("Content-Type", "audio/L16; rate=8000; channels=1")
		for k, v := range headers {
			resp.Header.Set(k, v)
		}
		return resp, nil
	}
}

func closeEventually(t *testing.T, tr Transport) {
	t.Helper()
	assert.Eventually(t, tr.Close, 2*time.Second, 10*time.Millisecond)
}

func TestOpenRejectsUnusableURLs(t *testing.T) {
	sys, _ := newTestSystem(t)

	for _, raw := range []string{"ftp://radio.test/live", "http://", "://bad", "file:///tmp/a.mp3"} {
		t.Run(raw, func(t *testing.T) {
			tr, err := sys.Open(raw)
			assert.Nil(t, tr)
			var openErr *OpenError
			require.ErrorAs(t, err, &openErr)
			assert.Equal(t, raw, openErr.URL)
		})
	}

	_, err := sys.Open("rtsp://radio.test/live")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestTransportPlaysPCMStream(t *testing.T) {
	sys, mock := newTestSystem(t)
	mock.RegisterResponder(http.MethodGet, testURL, pcmResponder(pcmBody(8000, 0x2000), nil))

	tr, err := sys.Open(testURL)
	require.NoError(t, err)
	assert.NotEmpty(t, tr.ID())
	assert.Equal(t, testURL, tr.URL())

	require.Eventually(t, func() bool {
		return tr.PollState().State == StateReady
	}, 2*time.Second, 5*time.Millisecond)

	ch, err := tr.StartPlayback()
	require.NoError(t, err)
	again, err := tr.StartPlayback()
	require.NoError(t, err)
	assert.Same(t, ch, again)

	paused, err := ch.Paused()
	require.NoError(t, err)
	assert.True(t, paused, "channels start paused")

	tap := &recordingTap{}
	require.NoError(t, ch.AddTap(tap))
	require.NoError(t, ch.SetPaused(false))

	require.Eventually(t, func() bool {
		n, _ := tap.snapshot()
		return n >= 400
	}, 2*time.Second, 5*time.Millisecond)
	_, last := tap.snapshot()
	assert.InDelta(t, 0.25, last, 1e-6)

	// One second of audio drains, then the end of stream is reported
	require.Eventually(t, func() bool {
		return tr.PollState().State == StateError
	}, 5*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, tr.PollState().Err, ErrEndOfStream)

	closeEventually(t, tr)
	assert.ErrorIs(t, ch.SetPaused(true), ErrClosed)
}

func icyBody(metaint int, title string) []byte {
	var buf bytes.Buffer
	buf.Write(pcmBody(metaint/2, 0))

	meta := []byte("StreamTitle='" + title + "';StreamUrl='';")
	blocks := (len(meta) + 15) / 16
	buf.WriteByte(byte(blocks))
	buf.Write(meta)
	buf.Write(make([]byte, blocks*16-len(meta)))

	buf.Write(pcmBody(metaint/2, 0))
	buf.WriteByte(0)
	buf.Write(pcmBody(metaint/2, 0))
	return buf.Bytes()
}

// stallingBody serves head, blocks until resumed, then serves tail and EOF
type stallingBody struct {
	head, tail []byte
	resumed    chan struct{}
	once       sync.Once
}

func newStallingBody(head, tail []byte) *stallingBody {
	return &stallingBody{head: head, tail: tail, resumed: make(chan struct{})}
}

func (b *stallingBody) resume() {
	b.once.Do(func() { close(b.resumed) })
}

func (b *stallingBody) Read(p []byte) (int, error) {
	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	<-b.resumed
	if len(b.tail) > 0 {
		n := copy(p, b.tail)
		b.tail = b.tail[n:]
		return n, nil
	}
	return 0, io.EOF
}

func (b *stallingBody) Close() error {
	b.resume()
	return nil
}

func TestTransportEndOfStreamWhileStarvedPaused(t *testing.T) {
	sys, mock := newTestSystem(t)
	// One decoder chunk plays, the server stalls, then a short tail and a clean close
	body := newStallingBody(pcmBody(decodeChunkSize, 0x1000), pcmBody(100, 0x1000))
	mock.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		resp := &http.Response{
			Status:     "200 OK",
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       body,
			Request:    req,
		}
		resp.Header.Set("Content-Type", "audio/L16; rate=8000; channels=1")
		return resp, nil
	})

	tr, err := sys.Open(testURL)
	require.NoError(t, err)
	t.Cleanup(func() { closeEventually(t, tr) })
	t.Cleanup(body.resume)

	var ch Channel
	require.Eventually(t, func() bool {
		ch, err = tr.StartPlayback()
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	tap := &recordingTap{}
	require.NoError(t, ch.AddTap(tap))
	require.NoError(t, ch.SetPaused(false))

	require.Eventually(t, func() bool {
		n, _ := tap.snapshot()
		return n >= decodeChunkSize-100 && tr.PollState().Starving
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, ch.SetPaused(true))
	body.resume()

	require.Eventually(t, func() bool {
		status := tr.PollState()
		return status.State == StateReady && status.PercentBuffered == 100
	}, 2*time.Second, 5*time.Millisecond, "a finished stream reports a full buffer")
	assert.False(t, tr.PollState().Starving)

	require.NoError(t, ch.SetPaused(false))
	require.Eventually(t, func() bool {
		return tr.PollState().State == StateError
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, tr.PollState().Err, ErrEndOfStream)
}

func TestTransportCloseDoesNotBlock(t *testing.T) {
	sys, mock := newTestSystem(t)
	body := newStallingBody(pcmBody(decodeChunkSize, 0x1000), nil)
	mock.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		resp := &http.Response{
			Status:     "200 OK",
			StatusCode: http.StatusOK,
			Header:     http.Header{},
			Body:       body,
			Request:    req,
		}
		resp.Header.Set("Content-Type", "audio/L16; rate=8000; channels=1")
		return resp, nil
	})

	tr, err := sys.Open(testURL)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return tr.PollState().State == StateReady
	}, 2*time.Second, 5*time.Millisecond)

	// The fetch goroutine is parked in the body read; close only polls
	started := time.Now()
	tr.Close()
	assert.Less(t, time.Since(started), 20*time.Millisecond)

	body.resume()
	closeEventually(t, tr)
}

func TestTransportICYMetadata(t *testing.T) {
	sys, mock := newTestSystem(t)
	mock.RegisterResponder(http.MethodGet, testURL, pcmResponder(icyBody(64, "Band - Song"), map[string]string{
		"icy-metaint": "64",
		"icy-name":    "Test FM",
	}))

	tr, err := sys.Open(testURL)
	require.NoError(t, err)
	t.Cleanup(func() { closeEventually(t, tr) })

	var ch Channel
	require.Eventually(t, func() bool {
		ch, err = tr.StartPlayback()
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	tags, dirty := ch.Tags()
	assert.Equal(t, 5, dirty)
	assert.Contains(t, tags, metadata.Tag{Name: "icy-name", Container: metadata.ContainerIcecast, DataType: metadata.DataStringUTF8, Data: []byte("Test FM")})
	assert.Contains(t, tags, metadata.Tag{Name: "StreamTitle", Container: metadata.ContainerShoutcast, DataType: metadata.DataStringUTF8, Data: []byte("Band - Song")})
	assert.Contains(t, tags, metadata.Tag{Name: "ARTIST", Container: metadata.ContainerShoutcast, DataType: metadata.DataStringUTF8, Data: []byte("Band")})
	assert.Contains(t, tags, metadata.Tag{Name: "TITLE", Container: metadata.ContainerShoutcast, DataType: metadata.DataStringUTF8, Data: []byte("Song")})

	_, dirty = ch.Tags()
	assert.Zero(t, dirty)
}

func TestTransportHTTPError(t *testing.T) {
	sys, mock := newTestSystem(t)
	mock.RegisterResponder(http.MethodGet, testURL, httpmock.NewStringResponder(http.StatusNotFound, "gone"))

	tr, err := sys.Open(testURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tr.PollState().State == StateError
	}, 2*time.Second, 5*time.Millisecond)

	var statusErr *StatusError
	require.ErrorAs(t, tr.PollState().Err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)

	_, err = tr.StartPlayback()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.True(t, tr.Close())
}

func TestTransportUnsupportedCodec(t *testing.T) {
	sys, mock := newTestSystem(t)
	mock.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, "<html></html>")
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	tr, err := sys.Open(testURL)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tr.PollState().State == StateError
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, tr.PollState().Err, decode.ErrUnsupportedCodec)
	closeEventually(t, tr)
}

func TestTransportCloseRefusedWhileConnecting(t *testing.T) {
	sys, mock := newTestSystem(t)
	mock.RegisterResponder(http.MethodGet, testURL, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	tr, err := sys.Open(testURL)
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, tr.PollState().State)

	assert.False(t, tr.Close(), "close must be refused while connecting")
	closeEventually(t, tr)

	status := tr.PollState()
	assert.Equal(t, StateError, status.State)
	assert.True(t, errors.Is(status.Err, ErrClosed))
}

func TestSetBufferSizes(t *testing.T) {
	logger := zerolog.Nop()
	sys := NewSystem(Config{Output: output.NewNull(0), Logger: &logger})

	streamBytes, decodeMillis := sys.BufferSizes()
	assert.Equal(t, 10*128*128, streamBytes)
	assert.Equal(t, DefaultDecodeBufferMillis, decodeMillis)

	sys.SetBufferSizes(2000, 250)
	streamBytes, decodeMillis = sys.BufferSizes()
	assert.Equal(t, 2*128*128, streamBytes)
	assert.Equal(t, 250, decodeMillis)

	sys.SetBufferSizes(10, 0)
	streamBytes, decodeMillis = sys.BufferSizes()
	assert.Equal(t, minStreamBufferBytes, streamBytes)
	assert.Equal(t, DefaultDecodeBufferMillis, decodeMillis)
}

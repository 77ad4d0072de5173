// ABOUTME: Raw PCM stream decoder
// ABOUTME: Decodes big-endian 16-bit and 24-bit PCM (audio/L16, audio/L24) to float32
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

// PCMStream decodes raw network-order PCM
type PCMStream struct {
	r      io.Reader
	format audio.Format
	width  int
	buf    []byte
}

// NewPCMStream creates a PCM decoder reading from r
func NewPCMStream(r io.Reader, format audio.Format) (*PCMStream, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, fmt.Errorf("invalid pcm format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}

	return &PCMStream{
		r:      r,
		format: format,
		width:  format.BitDepth / 8,
	}, nil
}

// pcmFormat builds a Format from audio/L16 or audio/L24 parameters.
// A missing channels parameter means mono.
func pcmFormat(mediaType string, params map[string]string) (audio.Format, error) {
	format := audio.Format{Codec: "pcm", BitDepth: 16, Channels: 1}
	if strings.EqualFold(mediaType, "audio/L24") {
		format.BitDepth = 24
	}

	rate, err := strconv.Atoi(params["rate"])
	if err != nil {
		return format, fmt.Errorf("%w: %s without a valid rate", ErrUnsupportedCodec, mediaType)
	}
	format.SampleRate = rate

	if v, ok := params["channels"]; ok {
		channels, err := strconv.Atoi(v)
		if err != nil {
			return format, fmt.Errorf("%w: %s with channels=%q", ErrUnsupportedCodec, mediaType, v)
		}
		format.Channels = channels
	}
	return format, nil
}

// Format returns the decoded output format
func (s *PCMStream) Format() audio.Format {
	return s.format
}

// Read decodes whole frames into dst
func (s *PCMStream) Read(dst []float32) (int, error) {
	want := len(dst) / s.format.Channels * s.format.Channels
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf) < want*s.width {
		s.buf = make([]byte, want*s.width)
	}
	buf := s.buf[:want*s.width]

	n, err := readFullSamples(s.r, buf, s.width)
	if s.width == 3 {
		for i := 0; i < n; i++ {
			b := buf[i*3:]
			dst[i] = audio.SampleFrom24Bit([3]byte{b[2], b[1], b[0]})
		}
	} else {
		for i := 0; i < n; i++ {
			dst[i] = audio.SampleFromInt16(int16(binary.BigEndian.Uint16(buf[i*2:])))
		}
	}
	return n, err
}

// Tags returns nil; raw PCM has no embedded metadata
func (s *PCMStream) Tags() []metadata.Tag {
	return nil
}

// Close releases resources
func (s *PCMStream) Close() error {
	return nil
}

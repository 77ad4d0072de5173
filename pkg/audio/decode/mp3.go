// ABOUTME: MP3 stream decoder
// ABOUTME: Decodes MP3 audio to float32 samples through go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Stream decodes MP3 audio. go-mp3 always produces 16-bit stereo.
type MP3Stream struct {
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
}

// NewMP3Stream creates an MP3 decoder reading from r
func NewMP3Stream(r io.Reader) (*MP3Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	return &MP3Stream{
		decoder: decoder,
		format: audio.Format{
			Codec:      "mp3",
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   16,
		},
	}, nil
}

// Format returns the decoded output format
func (s *MP3Stream) Format() audio.Format {
	return s.format
}

// Read decodes interleaved stereo samples into dst
func (s *MP3Stream) Read(dst []float32) (int, error) {
	want := len(dst) &^ 1
	if want == 0 {
		return 0, nil
	}
	if cap(s.buf) < want*2 {
		s.buf = make([]byte, want*2)
	}
	buf := s.buf[:want*2]

	n, err := readFullSamples(s.decoder, buf, 2)
	for i := 0; i < n; i++ {
		dst[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(buf[i*2:])))
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("mp3 decode error: %w", err)
	}
	return n, err
}

// Tags returns nil; MP3 streams carry ID3 outside the audio frames
func (s *MP3Stream) Tags() []metadata.Tag {
	return nil
}

// Close releases decoder resources
func (s *MP3Stream) Close() error {
	return nil
}

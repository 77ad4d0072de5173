// ABOUTME: Ogg Opus stream decoder
// ABOUTME: Decodes Ogg-encapsulated Opus to float32 samples at 48kHz
package decode

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusSampleRate = 48000
	// Enough to hold the identification and comment headers of typical streams
	opusHeaderPeek = 8192
)

var (
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
)

// OpusStream decodes an Ogg Opus stream
type OpusStream struct {
	stream *opus.Stream
	format audio.Format
	tags   []metadata.Tag
}

// NewOpusStream reads the Opus headers and creates a decoder over r
func NewOpusStream(r io.Reader) (*OpusStream, error) {
	br := bufio.NewReaderSize(r, opusHeaderPeek)
	head, err := br.Peek(opusHeaderPeek)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read opus headers: %w", err)
	}

	channels, err := opusChannels(head)
	if err != nil {
		return nil, err
	}

	stream, err := opus.NewStream(br)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusStream{
		stream: stream,
		format: audio.Format{
			Codec:      "opus",
			SampleRate: opusSampleRate,
			Channels:   channels,
			BitDepth:   16,
		},
		tags: opusTags(head),
	}, nil
}

// opusChannels reads the output channel count from the OpusHead packet
func opusChannels(head []byte) (int, error) {
	idx := bytes.Index(head, opusHeadMagic)
	if idx < 0 || len(head) < idx+10 {
		return 0, errors.New("missing OpusHead header")
	}
	channels := int(head[idx+9])
	if channels == 0 {
		return 0, errors.New("invalid OpusHead channel count")
	}
	return channels, nil
}

// opusTags extracts comments from the OpusTags packet when it fits in head
func opusTags(head []byte) []metadata.Tag {
	idx := bytes.Index(head, opusTagsMagic)
	if idx < 0 {
		return nil
	}
	tags, _ := ParseVorbisComments(head[idx+len(opusTagsMagic):])
	return tags
}

// Format returns the decoded output format
func (s *OpusStream) Format() audio.Format {
	return s.format
}

// Read decodes interleaved samples into dst
func (s *OpusStream) Read(dst []float32) (int, error) {
	ch := s.format.Channels
	want := len(dst) / ch * ch
	if want == 0 {
		return 0, nil
	}

	frames, err := s.stream.ReadFloat32(dst[:want])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}
	return frames * ch, nil
}

// Tags returns the comments from the OpusTags header
func (s *OpusStream) Tags() []metadata.Tag {
	return s.tags
}

// Close releases decoder resources
func (s *OpusStream) Close() error {
	return s.stream.Close()
}

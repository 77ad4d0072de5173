// ABOUTME: Decoder stream interface definition
// ABOUTME: Common interface for all stream decoders plus content-type selection
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
)

// ErrUnsupportedCodec is returned for content types no decoder handles
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Stream decodes an encoded byte stream to float32 PCM
type Stream interface {
	// Format describes the decoded output. It may change mid-stream for FLAC.
	Format() audio.Format

	// Read fills dst with interleaved samples and returns how many were written
	Read(dst []float32) (int, error)

	// Tags returns metadata embedded in the stream itself
	Tags() []metadata.Tag

	// Close releases decoder resources
	Close() error
}

// Options tunes decoder construction
type Options struct {
	// OnRateChange is called when a stream switches sample rate mid-flight
	OnRateChange func(hz int)
}

// ForContentType creates the decoder matching an HTTP Content-Type value
func ForContentType(contentType string, r io.Reader, opts Options) (Stream, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, contentType)
	}

	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg":
		return NewMP3Stream(r)
	case "audio/flac", "audio/x-flac":
		return NewFLACStream(r, opts)
	case "audio/ogg", "application/ogg", "audio/opus":
		return NewOpusStream(r)
	case "audio/l16", "audio/l24":
		format, err := pcmFormat(mediaType, params)
		if err != nil {
			return nil, err
		}
		return NewPCMStream(r, format)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mediaType)
	}
}

// ParseVorbisComments decodes a Vorbis comment block (vendor string followed
// by length-prefixed KEY=value entries) into tags
func ParseVorbisComments(b []byte) ([]metadata.Tag, error) {
	next := func() ([]byte, error) {
		if len(b) < 4 {
			return nil, io.ErrUnexpectedEOF
		}
		n := binary.LittleEndian.Uint32(b)
		b = b[4:]
		if uint32(len(b)) < n {
			return nil, io.ErrUnexpectedEOF
		}
		field := b[:n]
		b = b[n:]
		return field, nil
	}

	if _, err := next(); err != nil {
		return nil, fmt.Errorf("vorbis comment vendor: %w", err)
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("vorbis comment count: %w", io.ErrUnexpectedEOF)
	}
	count := binary.LittleEndian.Uint32(b)
	b = b[4:]

	var tags []metadata.Tag
	for i := uint32(0); i < count; i++ {
		field, err := next()
		if err != nil {
			return tags, fmt.Errorf("vorbis comment %d: %w", i, err)
		}
		if tag, ok := commentTag(string(field)); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// commentTag converts one KEY=value comment
func commentTag(comment string) (metadata.Tag, bool) {
	key, value, ok := strings.Cut(comment, "=")
	if !ok || key == "" {
		return metadata.Tag{}, false
	}
	return metadata.Tag{
		Name:      key,
		Container: metadata.ContainerVorbisComment,
		DataType:  metadata.DataStringUTF8,
		Data:      []byte(value),
	}, true
}

// readFullSamples reads whole samples of width bytes into buf.
// A short final read is reported as io.EOF after the samples it did hold.
func readFullSamples(r io.Reader, buf []byte, width int) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n / width, err
}

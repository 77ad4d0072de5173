// ABOUTME: FLAC stream decoder
// ABOUTME: Decodes FLAC frames to float32 samples and exposes Vorbis comments as tags
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-radio/pkg/audio"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/meta"
)

// FLACStream decodes a FLAC stream frame by frame
type FLACStream struct {
	stream       *flac.Stream
	format       audio.Format
	tags         []metadata.Tag
	pending      []float32
	onRateChange func(hz int)
}

// NewFLACStream parses the FLAC header and metadata blocks from r
func NewFLACStream(r io.Reader, opts Options) (*FLACStream, error) {
	stream, err := flac.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create flac decoder: %w", err)
	}

	s := &FLACStream{
		stream: stream,
		format: audio.Format{
			Codec:      "flac",
			SampleRate: int(stream.Info.SampleRate),
			Channels:   int(stream.Info.NChannels),
			BitDepth:   int(stream.Info.BitsPerSample),
		},
		onRateChange: opts.OnRateChange,
	}

	for _, block := range stream.Blocks {
		comment, ok := block.Body.(*meta.VorbisComment)
		if !ok {
			continue
		}
		for _, kv := range comment.Tags {
			s.tags = append(s.tags, metadata.Tag{
				Name:      kv[0],
				Container: metadata.ContainerVorbisComment,
				DataType:  metadata.DataStringUTF8,
				Data:      []byte(kv[1]),
			})
		}
	}

	return s, nil
}

// Format returns the current output format
func (s *FLACStream) Format() audio.Format {
	return s.format
}

// Read decodes interleaved samples into dst
func (s *FLACStream) Read(dst []float32) (int, error) {
	for len(s.pending) == 0 {
		if err := s.nextFrame(); err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, fmt.Errorf("flac decode error: %w", err)
		}
	}

	n := copy(dst, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *FLACStream) nextFrame() error {
	f, err := s.stream.ParseNext()
	if err != nil {
		return err
	}

	rate := int(f.SampleRate)
	if rate != 0 && rate != s.format.SampleRate {
		s.format.SampleRate = rate
		if s.onRateChange != nil {
			s.onRateChange(rate)
		}
	}

	bits := int(f.BitsPerSample)
	if bits == 0 {
		bits = s.format.BitDepth
	}
	channels := len(f.Subframes)
	if channels == 0 {
		return nil
	}
	s.format.Channels = channels

	frames := len(f.Subframes[0].Samples)
	need := frames * channels
	if cap(s.pending) < need {
		s.pending = make([]float32, need)
	}
	s.pending = s.pending[:need]
	for ch, sub := range f.Subframes {
		for i, sample := range sub.Samples {
			s.pending[i*channels+ch] = audio.SampleFromInt32(sample, bits)
		}
	}
	return nil
}

// Tags returns the Vorbis comments found in the stream header
func (s *FLACStream) Tags() []metadata.Tag {
	return s.tags
}

// Close releases decoder resources
func (s *FLACStream) Close() error {
	return s.stream.Close()
}

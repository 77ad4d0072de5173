// ABOUTME: Table-driven tag decoder
// ABOUTME: Maps container-specific names to canonical keys and converts values to Go types
package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	errBadLength                   = errors.New("invalid data length")
	errNoDecoder                   = errors.New("no decoder for data type")
	errBadText                     = errors.New("invalid text encoding")
	utf8BOM                        = []byte{0xEF, 0xBB, 0xBF}
	utf16Default                   = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	utf16BigEnd                    = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	latin1       encoding.Encoding = charmap.ISO8859_1
)

// nameTables maps lowercase tag names to canonical keys per container
var nameTables = map[Container]map[string]string{
	ContainerID3V2: {
		"tit2": KeyTitle,
		"tpe1": KeyArtist,
	},
	ContainerASF: {
		"title":          KeyTitle,
		"wm/albumartist": KeyArtist,
	},
	ContainerVorbisComment: {
		"title":  KeyTitle,
		"artist": KeyArtist,
	},
}

type valueFunc func(data []byte) (any, error)

// valueDecoders converts raw tag bytes by data type
var valueDecoders = map[DataType]valueFunc{
	DataInt:           decodeInt,
	DataFloat:         decodeFloat,
	DataString:        textDecoder(latin1, 1),
	DataStringUTF8:    decodeUTF8,
	DataStringUTF16:   textDecoder(utf16Default, 2),
	DataStringUTF16BE: textDecoder(utf16BigEnd, 2),
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	Logger *zerolog.Logger
}

// Decoder converts raw tags into a Map
type Decoder struct {
	logger zerolog.Logger
}

// NewDecoder creates a tag decoder
func NewDecoder(config DecoderConfig) *Decoder {
	logger := log.Logger.With().Str("component", "metadata").Logger()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Decoder{logger: logger}
}

// Decode builds a fresh Map from tags. Transport sample-rate announcements are
// forwarded to ch instead of being stored. Tags that cannot be decoded are
// skipped.
func (d *Decoder) Decode(tags []Tag, ch FrequencySetter) Map {
	out := make(Map, len(tags))

	for _, tag := range tags {
		if tag.Container == ContainerTransport {
			d.handleTransport(tag, ch)
			continue
		}

		key := Name(tag.Container, tag.Name)
		value, err := DecodeValue(tag.DataType, tag.Data)
		if err != nil {
			d.logger.Debug().
				Err(err).
				Str("tag", tag.Name).
				Str("container", string(tag.Container)).
				Stringer("type", tag.DataType).
				Msg("Skipping tag")
			continue
		}

		out[key] = value
		d.logger.Info().
			Str("tag", tag.Name).
			Stringer("type", tag.DataType).
			Interface("value", value).
			Msg("Stream tag")
	}

	return out
}

func (d *Decoder) handleTransport(tag Tag, ch FrequencySetter) {
	if !strings.EqualFold(tag.Name, SampleRateChange) {
		return
	}
	hz, err := decodeFloat(tag.Data)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Malformed sample rate change")
		return
	}
	d.logger.Info().Float64("hz", hz.(float64)).Msg("Stream forced changing sample rate")
	if ch == nil {
		return
	}
	if err := ch.SetFrequency(hz.(float64)); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to set channel frequency")
	}
}

// Name returns the canonical key for a tag name in the given container.
// Names without a table entry are uppercased.
func Name(container Container, name string) string {
	if table, ok := nameTables[container]; ok {
		if key, ok := table[strings.ToLower(name)]; ok {
			return key
		}
	}
	return canonicalKey(name)
}

// DecodeValue converts raw tag data to int64, float64 or a UTF-8 string
func DecodeValue(dataType DataType, data []byte) (any, error) {
	fn, ok := valueDecoders[dataType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNoDecoder, dataType)
	}
	return fn(data)
}

func decodeInt(data []byte) (any, error) {
	switch len(data) {
	case 1:
		return int64(int8(data[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(data))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(data))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(data)), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes for INT", errBadLength, len(data))
	}
}

func decodeFloat(data []byte) (any, error) {
	switch len(data) {
	case 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
	case 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes for FLOAT", errBadLength, len(data))
	}
}

func decodeUTF8(data []byte) (any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, errBadText
	}
	return trimNUL(string(data)), nil
}

func textDecoder(enc encoding.Encoding, unit int) valueFunc {
	return func(data []byte) (any, error) {
		if rem := len(data) % unit; rem != 0 {
			// A truncated final code unit is padded with zeros
			data = append(bytes.Clone(data), make([]byte, unit-rem)...)
		}
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errBadText, err)
		}
		return trimNUL(string(out)), nil
	}
}

// trimNUL drops a single trailing NUL terminator
func trimNUL(s string) string {
	return strings.TrimSuffix(s, "\x00")
}

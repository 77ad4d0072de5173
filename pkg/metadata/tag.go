// ABOUTME: Tag and metadata map types
// ABOUTME: Defines containers, data types and the decoded name to value map
package metadata

import "strings"

// Container identifies the format a tag was carried in
type Container string

const (
	ContainerID3V2         Container = "ID3V2"
	ContainerASF           Container = "ASF"
	ContainerVorbisComment Container = "VORBISCOMMENT"
	ContainerShoutcast     Container = "SHOUTCAST"
	ContainerIcecast       Container = "ICECAST"
	// ContainerTransport carries pseudo-tags raised by the transport itself
	ContainerTransport Container = "TRANSPORT"
)

// DataType describes how a tag's bytes are encoded
type DataType int

const (
	DataBinary DataType = iota
	DataInt
	DataFloat
	DataString // 8-bit, read as ISO-8859-1
	DataStringUTF8
	DataStringUTF16 // byte order from BOM, big-endian without one
	DataStringUTF16BE
)

func (d DataType) String() string {
	switch d {
	case DataBinary:
		return "BINARY"
	case DataInt:
		return "INT"
	case DataFloat:
		return "FLOAT"
	case DataString:
		return "STRING"
	case DataStringUTF8:
		return "STRING_UTF8"
	case DataStringUTF16:
		return "STRING_UTF16"
	case DataStringUTF16BE:
		return "STRING_UTF16BE"
	default:
		return "UNKNOWN"
	}
}

// SampleRateChange is the transport pseudo-tag announcing a new sample rate.
// Its data is a little-endian float32 or float64 in Hz.
const SampleRateChange = "Sample Rate Change"

// Canonical keys
const (
	KeyTitle  = "TITLE"
	KeyArtist = "ARTIST"
)

// Tag is one raw tag as reported by a stream
type Tag struct {
	Name      string
	Container Container
	DataType  DataType
	Data      []byte
}

// Map holds decoded metadata. Values are int64, float64 or string.
// A Map is always replaced as a whole, never merged.
type Map map[string]any

// String returns the string value stored under key, or ""
func (m Map) String(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Title returns the TITLE entry
func (m Map) Title() string {
	return m.String(KeyTitle)
}

// Artist returns the ARTIST entry
func (m Map) Artist() string {
	return m.String(KeyArtist)
}

// Clone returns a shallow copy safe to hand to another goroutine
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// FrequencySetter receives sample-rate changes announced by the stream
type FrequencySetter interface {
	SetFrequency(hz float64) error
}

func canonicalKey(name string) string {
	return strings.ToUpper(name)
}

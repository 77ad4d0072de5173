// ABOUTME: Stream metadata package for tag normalization
// ABOUTME: Provides Tag, Map and a table-driven Decoder for container and text encodings
// Package metadata turns raw stream tags into a flat name to value map.
//
// Tags arrive from several containers (ID3v2 frames, ASF attributes, Vorbis
// comments, Shoutcast/Icecast headers) and several text encodings. The
// Decoder maps well-known names onto canonical keys such as TITLE and ARTIST
// and converts every string value to UTF-8.
//
// Example:
//
//	dec := metadata.NewDecoder(metadata.DecoderConfig{})
//	m := dec.Decode(tags, channel)
//	fmt.Println(m.Title(), m.Artist())
package metadata

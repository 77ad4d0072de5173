// ABOUTME: Audio decoder package for network stream codecs
// ABOUTME: Provides the Stream interface and MP3, FLAC, Ogg Opus and raw PCM implementations
// Package decode turns an encoded byte stream into interleaved float32 PCM.
//
// Supports: MP3, FLAC, Ogg Opus, raw big-endian PCM (audio/L16, audio/L24)
//
// Every decoder implements Stream. ForContentType picks the decoder from an
// HTTP Content-Type header.
//
// Example:
//
//	s, err := decode.ForContentType(resp.Header.Get("Content-Type"), body, decode.Options{})
//	n, err := s.Read(samples)
package decode

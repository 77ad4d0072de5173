// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format and float32 sample helpers shared by decoders and outputs
// Package audio provides fundamental audio types and utilities.
//
// All PCM inside resonate-radio travels as interleaved float32 samples in
// [-1, 1]. This package defines:
//   - Format: Describes a stream format (codec, sample rate, channels, bit depth)
//   - Conversions from 16-bit, 24-bit and arbitrary-depth integer samples
//   - Downmix and Remix for channel-count changes
//
// Example:
//
//	mono := make([]float32, len(stereo)/2)
//	n := audio.Downmix(stereo, 2, mono)
package audio

// ABOUTME: Visualization tap package holding the most recent mono samples
// ABOUTME: Provides Buffer, written from the audio callback and read by the tick loop
// Package wave keeps a short window of recently played audio for
// visualization.
//
// A Buffer is attached to a playback channel as a tap. The audio device
// thread calls ProcessSamples with every rendered block; the block is mixed
// down to mono and appended. A polling consumer calls ReadLatest to copy the
// newest samples out. One mutex guards both paths.
//
// Example:
//
//	buf := wave.New(wave.DefaultCapacity)
//	out := make([]float32, 256)
//	if buf.ReadLatest(out, 256, 1) {
//		draw(out)
//	}
package wave

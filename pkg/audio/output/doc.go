// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the pull-based Output interface with malgo, oto and null backends
// Package output provides audio playback backends.
//
// Outputs pull audio: Open registers a RenderFunc that the device thread
// calls whenever it needs another block of interleaved float32 samples.
//
// Example:
//
//	out, err := output.New("malgo")
//	err = out.Open(48000, 2, func(buf []float32) { mixer.Render(buf) })
//	defer out.Close()
package output

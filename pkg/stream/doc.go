// ABOUTME: Network stream transport package
// ABOUTME: Provides the mixing System, HTTP transports and playback channels
// Package stream opens internet radio streams and plays them through an
// audio output.
//
// A System owns the output device and mixes every started channel inside the
// device callback. Opening a URL returns a Transport immediately; the HTTP
// request, ICY metadata parsing and decoding run on the transport's own
// goroutines. Callers poll the transport for its state and start playback
// once it reports Ready.
//
// Example:
//
//	sys := stream.NewSystem(stream.Config{Output: output.NewMalgo()})
//	if err := sys.Start(); err != nil { ... }
//	t, err := sys.Open("http://radio.example.com/live.mp3")
//	for t.PollState().State != stream.StateReady { time.Sleep(50 * time.Millisecond) }
//	ch, err := t.StartPlayback()
package stream

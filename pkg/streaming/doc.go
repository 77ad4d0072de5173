// ABOUTME: Stream session controller package
// ABOUTME: Drives one internet radio stream per tick with retry, starvation recovery and metadata
// Package streaming manages the single "current stream" of a player.
//
// A Controller is owned by one goroutine that calls Update once per tick.
// Update polls the active transport, starts playback when it becomes ready,
// retries failed streams, pauses on starvation until the buffer refills and
// publishes decoded metadata to subscribers. Transports that refuse to close
// while connecting are parked and closed on later ticks.
//
// Example:
//
//	ctrl := streaming.New(streaming.Config{Opener: sys, Wave: wave.New(0)})
//	ctrl.OnMetadata(func(m metadata.Map) { fmt.Println(m.Title()) })
//	ctrl.Start("http://radio.example.com/live")
//	for range ticker.C {
//		ctrl.Update()
//	}
package streaming

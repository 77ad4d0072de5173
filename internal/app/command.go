// ABOUTME: Commands accepted by the player loop
// ABOUTME: Produced by the TUI and the remote API, applied on the tick goroutine
package app

import "fmt"

// CommandKind selects the controller operation a Command performs
type CommandKind int

const (
	CommandStart CommandKind = iota
	CommandStop
	CommandPause
	CommandSetGain
	CommandSetMuted
	CommandQuit
)

func (k CommandKind) String() string {
	switch k {
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandPause:
		return "pause"
	case CommandSetGain:
		return "gain"
	case CommandSetMuted:
		return "mute"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

// Command is a request to change playback
type Command struct {
	Kind  CommandKind
	URL   string
	Pause int
	Gain  float32
	Muted bool
}

// Start opens url, replacing the current stream
func Start(url string) Command { return Command{Kind: CommandStart, URL: url} }

// Stop tears the stream down and keeps its URL
func Stop() Command { return Command{Kind: CommandStop} }

// Pause stops (1), resumes (0) or toggles (-1) playback
func Pause(flag int) Command { return Command{Kind: CommandPause, Pause: flag} }

// SetGain sets the stream gain
func SetGain(gain float32) Command { return Command{Kind: CommandSetGain, Gain: gain} }

// SetMuted mutes or unmutes the stream
func SetMuted(muted bool) Command { return Command{Kind: CommandSetMuted, Muted: muted} }

// Quit ends the player loop
func Quit() Command { return Command{Kind: CommandQuit} }

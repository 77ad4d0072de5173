// ABOUTME: Bubbletea model for the radio TUI
// ABOUTME: Renders player snapshots and turns key presses into player commands
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

const gainStep = 0.05

// Sender delivers commands to the player
type Sender func(app.Command)

// SnapshotMsg carries a player snapshot into the model
type SnapshotMsg app.Snapshot

// Model represents the TUI state
type Model struct {
	send Sender

	// Stream
	state    streaming.PlayState
	url      string
	buffered int
	starving bool

	// Metadata
	title   string
	artist  string
	station string

	// Playback
	gain  float32
	muted bool
	peak  float32

	// Dimensions
	width  int
	height int
}

// NewModel creates a model that sends commands through send
func NewModel(send Sender) Model {
	if send == nil {
		send = func(app.Command) {}
	}
	return Model{send: send, gain: 1}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case SnapshotMsg:
		m.applySnapshot(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderNowPlaying())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	status := "Stopped"
	switch m.state {
	case streaming.Active:
		status = "Playing"
		if m.starving {
			status = "Buffering"
		}
	case streaming.PausedWithURL:
		status = "Paused"
	}

	return fmt.Sprintf(`┌─ Resonate Radio ─────────────────────────────────────┐
│ Status: %-44s │
│ Stream: %-44s │
├──────────────────────────────────────────────────────┤
`, status, truncate(m.url, 44))
}

func (m Model) renderNowPlaying() string {
	if m.state != streaming.Active {
		return "│ No stream                                            │\n"
	}

	s := "│ Now Playing:                                         │\n"
	if m.title == "" && m.artist == "" {
		s += "│   (No metadata)                                      │\n"
	} else {
		s += fmt.Sprintf("│   Track:   %-41s │\n", truncate(m.title, 41))
		s += fmt.Sprintf("│   Artist:  %-41s │\n", truncate(m.artist, 41))
	}
	if m.station != "" {
		s += fmt.Sprintf("│   Station: %-41s │\n", truncate(m.station, 41))
	}
	return s
}

func (m Model) renderControls() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " 🔇"
	}

	gainPercent := int(m.gain*100 + 0.5)
	return fmt.Sprintf("│                                                      │\n"+
		"│ Gain:   [%s] %3d%%%s\n"+
		"│ Buffer: [%s] %3d%%\n"+
		"│ Level:  [%s]\n"+
		"├──────────────────────────────────────────────────────┤\n",
		renderBar(gainPercent, 100, 10), gainPercent, muteIcon,
		renderBar(m.buffered, 100, 10), m.buffered,
		renderBar(int(m.peak*100), 100, 10))
}

func (m Model) renderHelp() string {
	return `│ ↑/↓:Gain  m:Mute  p:Pause/Resume  q:Quit             │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.send(app.Quit())
		return m, tea.Quit
	case "up":
		m.gain = min(m.gain+gainStep, 1)
		m.send(app.SetGain(m.gain))
	case "down":
		m.gain = max(m.gain-gainStep, 0)
		m.send(app.SetGain(m.gain))
	case "m":
		m.muted = !m.muted
		m.send(app.SetMuted(m.muted))
	case "p":
		m.send(app.Pause(-1))
	}

	return m, nil
}

func (m *Model) applySnapshot(msg SnapshotMsg) {
	m.state = msg.State
	m.url = msg.URL
	m.buffered = msg.Buffered
	m.starving = msg.Starving
	m.gain = msg.Gain
	m.muted = msg.Muted
	m.peak = msg.Peak
	m.title = msg.Metadata.Title()
	m.artist = msg.Metadata.Artist()
	m.station = msg.Metadata.String("ICY-NAME")
	if m.title == "" {
		m.title = msg.Metadata.String("STREAMTITLE")
	}
}

func renderBar(value, max, width int) string {
	value = min(value, max)
	filled := 0
	if value > 0 {
		filled = (value * width) / max
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

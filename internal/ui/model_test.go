// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests snapshot rendering and key-to-command translation
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
	"github.com/Resonate-Protocol/resonate-radio/pkg/metadata"
	"github.com/Resonate-Protocol/resonate-radio/pkg/streaming"
)

type sentCommands []app.Command

func (s *sentCommands) send(cmd app.Command) { *s = append(*s, cmd) }

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func press(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(keyMsg(key))
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	assert.Equal(t, streaming.Stopped, model.state)
	assert.Equal(t, float32(1), model.gain)
	assert.False(t, model.muted)
	assert.Equal(t, "Loading...", model.View())
}

func TestSnapshotUpdatesModel(t *testing.T) {
	model := NewModel(nil)
	next, _ := model.Update(SnapshotMsg{
		State:    streaming.Active,
		URL:      "http://radio.example/live",
		Gain:     0.5,
		Buffered: 73,
		Metadata: metadata.Map{"TITLE": "Song", "ARTIST": "Band", "ICY-NAME": "Station"},
		Peak:     0.3,
	})
	model = next.(Model)

	assert.Equal(t, "Song", model.title)
	assert.Equal(t, "Band", model.artist)
	assert.Equal(t, "Station", model.station)
	assert.Equal(t, 73, model.buffered)

	next, _ = model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	view := next.(Model).View()
	assert.Contains(t, view, "Playing")
	assert.Contains(t, view, "Song")
	assert.Contains(t, view, "Band")
	assert.Contains(t, view, " 50%")
	assert.Contains(t, view, " 73%")
}

func TestStreamTitleFallback(t *testing.T) {
	model := NewModel(nil)
	model.applySnapshot(SnapshotMsg{
		State:    streaming.Active,
		Metadata: metadata.Map{"STREAMTITLE": "Live Show"},
	})
	assert.Equal(t, "Live Show", model.title)
}

func TestStoppedSnapshotClearsMetadata(t *testing.T) {
	model := NewModel(nil)
	model.applySnapshot(SnapshotMsg{State: streaming.Active, Metadata: metadata.Map{"TITLE": "Song"}})
	model.applySnapshot(SnapshotMsg{State: streaming.PausedWithURL, Metadata: metadata.Map{}})

	assert.Empty(t, model.title)
	model.width = 80
	view := model.View()
	assert.Contains(t, view, "Paused")
	assert.Contains(t, view, "No stream")
}

func TestStarvingShowsBuffering(t *testing.T) {
	model := NewModel(nil)
	model.width = 80
	model.applySnapshot(SnapshotMsg{State: streaming.Active, Starving: true})
	assert.Contains(t, model.View(), "Buffering")
}

func TestGainKeys(t *testing.T) {
	var sent sentCommands
	model := NewModel(sent.send)
	model.gain = 0.5

	model, _ = press(t, model, "up")
	assert.InDelta(t, 0.55, model.gain, 1e-6)

	model, _ = press(t, model, "down")
	model, _ = press(t, model, "down")
	assert.InDelta(t, 0.45, model.gain, 1e-6)

	require.Len(t, sent, 3)
	for _, cmd := range sent {
		assert.Equal(t, app.CommandSetGain, cmd.Kind)
	}
	assert.InDelta(t, 0.45, sent[2].Gain, 1e-6)
}

func TestGainKeysClamp(t *testing.T) {
	model := NewModel(nil)
	model.gain = 1
	model, _ = press(t, model, "up")
	assert.Equal(t, float32(1), model.gain)

	model.gain = 0.01
	model, _ = press(t, model, "down")
	assert.Equal(t, float32(0), model.gain)
}

func TestMutePauseQuitKeys(t *testing.T) {
	var sent sentCommands
	model := NewModel(sent.send)

	model, _ = press(t, model, "m")
	assert.True(t, model.muted)
	model, _ = press(t, model, "p")
	_, cmd := press(t, model, "q")

	require.Len(t, sent, 3)
	assert.Equal(t, app.SetMuted(true), sent[0])
	assert.Equal(t, app.Pause(-1), sent[1])
	assert.Equal(t, app.Quit(), sent[2])
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a long title", 10, "this is..."},
		{"ünïcödé title here", 10, "ünïcödé..."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, truncate(tt.input, tt.length))
	}
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderBar(0, 100, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderBar(50, 100, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderBar(150, 100, 10))
}

// ABOUTME: TUI initialization and wiring
// ABOUTME: Connects the bubbletea program to the player's commands and snapshots
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"github.com/Resonate-Protocol/resonate-radio/internal/app"
)

const sendTimeout = 100 * time.Millisecond

// Run creates the TUI program for player. Call Program.Run to start it.
func Run(player *app.Player) *tea.Program {
	send := func(cmd app.Command) {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := player.Send(ctx, cmd); err != nil {
			log.Debug().Err(err).Stringer("command", cmd.Kind).Msg("TUI command dropped")
		}
	}
	return tea.NewProgram(NewModel(send), tea.WithAltScreen())
}

// Forward sends every snapshot from updates to prog until done is closed
func Forward(prog *tea.Program, updates <-chan app.Snapshot, done <-chan struct{}) {
	for {
		select {
		case snap := <-updates:
			prog.Send(SnapshotMsg(snap))
		case <-done:
			return
		}
	}
}

package session

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/overdriver/internal/engine"
)

// Status lines shown by every front end.
const (
	MsgIdle      = "Select a song to begin."
	MsgReady     = "Timer ready! Press any lane key to start:"
	MsgStarted   = "Timer started!"
	MsgComplete  = "Song complete! Select another song."
	MsgCancelled = "Run cancelled."
	MsgNoSong    = "No song selected!"
	MsgRunning   = "Timer already running!"
)

// ReadyMessage is MsgReady followed by the lane keys that start the run.
func ReadyMessage(laneKeys []string) string {
	return MsgReady + "\n" + strings.Join(laneKeys, " ")
}

// Message renders a notification as a status line.
func Message(n engine.Notification) string {
	switch n.Kind {
	case engine.KindStarted:
		return MsgStarted
	case engine.KindFired:
		return fmt.Sprintf("Overdrive triggered at %d ms\n(Target: %d ms)", n.Elapsed, n.Target)
	case engine.KindDraining:
		return fmt.Sprintf("All %d overdrive(s) triggered. Waiting for the cue to finish...", n.Fired)
	case engine.KindCompleted:
		return MsgComplete
	case engine.KindCancelled:
		return MsgCancelled
	default:
		return ""
	}
}

// StateMessage renders a state when no notification is at hand.
func StateMessage(s engine.State) string {
	switch s {
	case engine.StateArmed:
		return MsgReady
	case engine.StateRunning, engine.StateDraining:
		return MsgStarted
	case engine.StateCompleted:
		return MsgComplete
	case engine.StateCancelled:
		return MsgCancelled
	default:
		return MsgIdle
	}
}

// TimingCount renders the number of offsets of a selection.
func TimingCount(n int) string {
	return fmt.Sprintf("%d overdrive timing(s)", n)
}

package tui

import (
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/config"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
)

func newTestModel(t *testing.T) (Model, *session.Session) {
	t.Helper()
	settings := config.DefaultSettings()
	settings.KeyHoldMs = 1
	sess := session.New(session.Options{
		Settings: settings,
		Catalog: chart.New([]chart.Song{
			{
				DisplayTitle: "Short Song",
				ArtistName:   "Tester",
				Duration:     30,
				Timings: map[string]map[string][]int{
					"expert": {"vocals": {0, 20}},
				},
			},
			{
				DisplayTitle: "Endless Song",
				Duration:     600,
				Timings: map[string]map[string][]int{
					"expert": {"vocals": {0, 60_000}},
				},
			},
		}),
		Logger: log.New(io.Discard),
	})
	t.Cleanup(func() { sess.Shutdown(time.Second) })

	m := NewModel(sess, "", 100, 40)
	t.Cleanup(m.unsubscribe)
	return m, sess
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = send(t, m, runes(string(r)))
	}
	return m
}

func waitState(t *testing.T, sess *session.Session, want engine.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if sess.Status().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", sess.Status().State, want)
}

func TestLaneKey(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want string
	}{
		{runes("a"), "a"},
		{runes("K"), "k"},
		{tea.KeyMsg{Type: tea.KeySpace}, "space"},
		{tea.KeyMsg{Type: tea.KeyEnter}, "enter"},
		{tea.KeyMsg{Type: tea.KeyTab}, "tab"},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a"), Alt: true}, ""},
		{runes("ab"), ""},
		{tea.KeyMsg{Type: tea.KeyUp}, ""},
	}

	for _, tt := range tests {
		if got := LaneKey(tt.msg); got != tt.want {
			t.Errorf("LaneKey(%q) = %q, want %q", tt.msg.String(), got, tt.want)
		}
	}
}

func TestSearchSelectAndArm(t *testing.T) {
	m, sess := newTestModel(t)

	m = typeText(t, m, "short")
	if len(m.results) == 0 || m.results[0] != "Short Song" {
		t.Fatalf("results = %v, want Short Song first", m.results)
	}

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.song == nil || m.song.DisplayTitle != "Short Song" {
		t.Fatalf("song not selected")
	}
	if m.search.Value() != "" || len(m.results) != 0 {
		t.Error("selecting a song should clear the search")
	}

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := sess.Status().State; got != engine.StateArmed {
		t.Fatalf("state = %s, want armed", got)
	}
	if !strings.HasPrefix(m.status, session.MsgReady) {
		t.Errorf("status = %q, want ready message", m.status)
	}

	// A lane key starts the run instead of editing the search box.
	m = send(t, m, runes("a"))
	if m.search.Value() != "" {
		t.Errorf("lane key reached the search box: %q", m.search.Value())
	}
	waitState(t, sess, engine.StateCompleted)
}

func TestArmWithoutSong(t *testing.T) {
	m, sess := newTestModel(t)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.status != session.MsgNoSong {
		t.Errorf("status = %q, want %q", m.status, session.MsgNoSong)
	}
	if got := sess.Status().State; got != engine.StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
}

func TestEscCancelsRun(t *testing.T) {
	m, sess := newTestModel(t)

	m = typeText(t, m, "endless")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter}, tea.KeyMsg{Type: tea.KeyEnter})
	m = send(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	waitState(t, sess, engine.StateRunning)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	waitState(t, sess, engine.StateCancelled)
	_ = m
}

func TestPickerChangeRearms(t *testing.T) {
	m, sess := newTestModel(t)

	m = typeText(t, m, "short")
	m = send(t, m, tea.KeyMsg{Type: tea.KeyEnter}, tea.KeyMsg{Type: tea.KeyEnter})
	first := sess.Status().RunID

	// Short Song has no Easy chart, so re-arming fails and the status says so.
	m = send(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.difficulty() != chart.Easy {
		t.Fatalf("difficulty = %s, want Easy after wrapping", m.difficulty())
	}
	if sess.Status().RunID != first {
		t.Error("a failed re-arm should keep the armed run")
	}
	if m.status == "" {
		t.Error("status should report the missing chart")
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	m, _ := newTestModel(t)

	m = send(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	if m.history != nil {
		t.Error("history screen opened without a store")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(Model).IsQuitting() {
		t.Error("ctrl+c should quit")
	}
	if cmd == nil {
		t.Error("ctrl+c should return tea.Quit")
	}
}

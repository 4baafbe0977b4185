package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
	"github.com/vovakirdan/overdriver/internal/trigger"
)

// refreshRate drives the elapsed-time display while a run is active.
const refreshRate = 30

// noteMsg carries an engine notification into the Bubble Tea loop.
type noteMsg engine.Notification

// notesClosedMsg is sent once the notification channel is closed.
type notesClosedMsg struct{}

// Model is the Bubble Tea model of the overdrive control panel.
type Model struct {
	sess     *session.Session
	keys     KeyMap
	help     help.Model
	search   textinput.Model
	bar      progress.Model
	results  []string
	cursor   int
	inst     int
	diff     int
	song     *chart.Song
	status   string
	lastFire *engine.Notification
	history  *HistoryModel
	user     string
	width    int
	height   int
	ticking  bool
	quitting bool

	notes       <-chan engine.Notification
	unsubscribe func()
}

// NewModel creates a control panel on a shared session.
// user is shown in the header for remote sessions and may be empty.
func NewModel(sess *session.Session, user string, width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "Search for a song..."
	ti.CharLimit = 64
	ti.Width = 30
	ti.Focus()

	h := help.New()
	h.ShowAll = false

	settings := sess.Settings()
	inst, diff := 0, len(chart.Difficulties())-1
	if i, err := chart.ParseInstrument(settings.DefaultInst); err == nil {
		inst = indexOf(chart.Instruments(), i)
	}
	if d, err := chart.ParseDifficulty(settings.DefaultDiff); err == nil {
		diff = indexOf(chart.Difficulties(), d)
	}

	notes, unsubscribe := sess.Subscribe(16)

	m := Model{
		sess:        sess,
		keys:        DefaultKeyMap(),
		help:        h,
		search:      ti,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		inst:        inst,
		diff:        diff,
		user:        user,
		width:       width,
		height:      height,
		notes:       notes,
		unsubscribe: unsubscribe,
	}
	m.syncWithSession()
	return m
}

// syncWithSession picks up a run another client already prepared.
func (m *Model) syncWithSession() {
	st := m.sess.Status()
	sel := m.sess.Selection()
	if sel.Song != nil {
		m.song = sel.Song
		m.inst = indexOf(chart.Instruments(), sel.Instrument)
		m.diff = indexOf(chart.Difficulties(), sel.Difficulty)
	}
	if st.State == engine.StateArmed {
		m.status = session.ReadyMessage(m.sess.Settings().LaneKeys)
	} else {
		m.status = session.StateMessage(st.State)
	}
	m.ticking = st.State.Active()
}

// Init starts listening for notifications.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, waitForNote(m.notes)}
	if m.ticking {
		cmds = append(cmds, tickCmd(refreshRate))
	}
	return tea.Batch(cmds...)
}

// waitForNote blocks on the next notification.
func waitForNote(ch <-chan engine.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return notesClosedMsg{}
		}
		return noteMsg(n)
	}
}

// Update handles messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.bar.Width = min(40, max(10, msg.Width/2-10))
		if m.history != nil {
			h, _ := m.history.Update(msg)
			hm := h.(HistoryModel)
			m.history = &hm
		}
		return m, nil

	case noteMsg:
		return m.handleNote(engine.Notification(msg))

	case notesClosedMsg:
		return m, nil

	case TickMsg:
		if !m.sess.Status().State.Active() {
			m.ticking = false
			return m, nil
		}
		return m, tickCmd(refreshRate)

	case tea.KeyMsg:
		if m.history != nil {
			return m.updateHistory(msg)
		}
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

// handleNote updates the status line from an engine notification.
func (m Model) handleNote(n engine.Notification) (tea.Model, tea.Cmd) {
	next := waitForNote(m.notes)

	switch n.Kind {
	case engine.KindFired:
		m.lastFire = &n
	case engine.KindStarted:
		m.lastFire = nil
	}
	m.status = session.Message(n)
	// Keep the last press visible while the cue drains.
	if n.Kind == engine.KindDraining && m.lastFire != nil {
		m.status = session.Message(*m.lastFire)
	}

	if n.Kind == engine.KindStarted && !m.ticking {
		m.ticking = true
		return m, tea.Batch(next, tickCmd(refreshRate))
	}
	return m, next
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	state := m.sess.Status().State

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.unsubscribe()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.History):
		if m.sess.Store() == nil {
			m.status = "Run history is disabled."
			return m, nil
		}
		h := NewHistoryModel(m.sess.Store(), m.width, m.height)
		m.history = &h
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		if state == engine.StateArmed || state.Active() {
			if err := m.sess.Cancel(); err != nil {
				m.status = err.Error()
			}
			return m, nil
		}
		m.search.SetValue("")
		m.results = nil
		m.cursor = 0
		return m, nil

	case key.Matches(msg, m.keys.StartNow):
		if err := m.sess.StartNow(); err != nil {
			m.status = startError(err)
		}
		return m, nil
	}

	// While armed, lane keys belong to the trigger listener.
	if state == engine.StateArmed {
		if k := LaneKey(msg); k != "" && m.sess.IsLane(k) {
			m.sess.HandleKey(trigger.Press(k))
			return m, nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.results)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.NextInst):
		m.inst = (m.inst + 1) % len(chart.Instruments())
		return m.reselect(state)

	case key.Matches(msg, m.keys.PrevInst):
		m.inst = (m.inst - 1 + len(chart.Instruments())) % len(chart.Instruments())
		return m.reselect(state)

	case key.Matches(msg, m.keys.NextDiff):
		m.diff = (m.diff + 1) % len(chart.Difficulties())
		return m.reselect(state)

	case key.Matches(msg, m.keys.PrevDiff):
		m.diff = (m.diff - 1 + len(chart.Difficulties())) % len(chart.Difficulties())
		return m.reselect(state)

	case key.Matches(msg, m.keys.Select):
		if len(m.results) > 0 {
			return m.selectSong(m.results[m.cursor])
		}
		return m.arm()
	}

	// Everything else edits the search box
	var cmd tea.Cmd
	before := m.search.Value()
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != before {
		m.results = m.sess.Catalog().Search(m.search.Value(), chart.DefaultSearchLimit)
		m.cursor = 0
	}
	return m, cmd
}

// selectSong shows a song in the info panel and clears the search.
func (m Model) selectSong(title string) (tea.Model, tea.Cmd) {
	song, err := m.sess.Catalog().Song(title)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}
	m.song = song
	m.search.SetValue("")
	m.results = nil
	m.cursor = 0
	if m.sess.Status().State.Active() {
		return m, nil
	}
	m.status = "Press enter to arm, or pick an instrument and difficulty."
	return m, nil
}

// arm prepares the selected song with the current pickers.
func (m Model) arm() (tea.Model, tea.Cmd) {
	if m.song == nil {
		m.status = session.MsgNoSong
		return m, nil
	}
	_, err := m.sess.Prepare(m.song.DisplayTitle, m.difficulty(), m.instrument())
	switch {
	case errors.Is(err, session.ErrBusy):
		m.status = session.MsgRunning
	case err != nil:
		m.status = err.Error()
	default:
		m.lastFire = nil
		m.status = session.ReadyMessage(m.sess.Settings().LaneKeys)
	}
	return m, nil
}

// reselect re-arms an armed run after the pickers change.
func (m Model) reselect(state engine.State) (tea.Model, tea.Cmd) {
	if state == engine.StateArmed {
		return m.arm()
	}
	return m, nil
}

func (m Model) instrument() chart.Instrument {
	return chart.Instruments()[m.inst]
}

func (m Model) difficulty() chart.Difficulty {
	return chart.Difficulties()[m.diff]
}

// updateHistory forwards keys to the history screen until it is closed.
func (m Model) updateHistory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	h, cmd := m.history.Update(msg)
	hm := h.(HistoryModel)
	if hm.IsQuitting() {
		m.quitting = true
		m.unsubscribe()
		return m, tea.Quit
	}
	if hm.IsGoingBack() {
		m.history = nil
		return m, nil
	}
	m.history = &hm
	return m, cmd
}

// View renders the control panel.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.history != nil {
		return m.history.View()
	}
	return m.render()
}

// IsQuitting returns true if user requested to quit.
func (m Model) IsQuitting() bool {
	return m.quitting
}

func startError(err error) string {
	if errors.Is(err, engine.ErrStateConflict) {
		return "Nothing armed. Select a song and press enter first."
	}
	return err.Error()
}

func indexOf[T comparable](items []T, v T) int {
	for i, it := range items {
		if it == v {
			return i
		}
	}
	return 0
}

// Run starts the control panel on the local terminal.
func Run(sess *session.Session, width, height int) error {
	model := NewModel(sess, "", width, height)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(), // Use alternate screen buffer
	)

	_, err := p.Run()
	model.unsubscribe()
	return err
}

// elapsed returns time since the run started, or zero.
func elapsed(st engine.Status) time.Duration {
	if st.Started.IsZero() || !st.State.Active() {
		return 0
	}
	return time.Since(st.Started)
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vovakirdan/overdriver/internal/chart"
	"github.com/vovakirdan/overdriver/internal/engine"
	"github.com/vovakirdan/overdriver/internal/session"
)

// Layout constants
const (
	leftPanelWidth  = 36
	rightPanelWidth = 44
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	songStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// stateStyles color the state badge.
	stateStyles = map[engine.State]lipgloss.Style{
		engine.StateIdle:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		engine.StateArmed:     lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		engine.StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		engine.StateDraining:  lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		engine.StateCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		engine.StateCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// render draws both panels, the status line and the help bar.
func (m Model) render() string {
	var b strings.Builder

	header := "  O V E R D R I V E R  "
	if m.user != "" {
		header += fmt.Sprintf("(%s)", m.user)
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(centerText(header, m.width)))
	b.WriteString("\n\n")

	left := panelStyle.Width(leftPanelWidth).Render(m.renderLeft())
	right := panelStyle.Width(rightPanelWidth).Render(m.renderRight())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// renderLeft draws the search box, results and pickers.
func (m Model) renderLeft() string {
	var b strings.Builder

	b.WriteString(m.search.View())
	b.WriteString("\n\n")

	if len(m.results) == 0 {
		if m.search.Value() != "" {
			b.WriteString(labelStyle.Render("No matches"))
			b.WriteString("\n")
		}
	}
	for i, title := range m.results {
		line := truncate(title, leftPanelWidth-4)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Instrument"))
	b.WriteString("\n")
	b.WriteString(renderPicker(chart.Instruments(), m.inst))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Difficulty"))
	b.WriteString("\n")
	b.WriteString(renderPicker(chart.Difficulties(), m.diff))

	return b.String()
}

// renderRight draws the song info and run status.
func (m Model) renderRight() string {
	var b strings.Builder
	st := m.sess.Status()

	if m.song == nil {
		b.WriteString(labelStyle.Render("No song selected"))
		b.WriteString("\n")
	} else {
		b.WriteString(songStyle.Render(truncate(m.song.DisplayTitle, rightPanelWidth-2)))
		b.WriteString("\n")
		b.WriteString(m.song.ArtistName)
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(m.song.Length()))
		b.WriteString("\n\n")
		b.WriteString(chart.Label(m.instrument(), m.difficulty()))
		b.WriteString("\n")
		b.WriteString(session.TimingCount(m.song.Count(m.difficulty(), m.instrument())))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	badge := stateStyles[st.State].Render(strings.ToUpper(st.State.String()))
	b.WriteString(badge)
	if st.State.Active() {
		b.WriteString(fmt.Sprintf("  %s  %d/%d", formatElapsed(elapsed(st)), st.Fired, st.Total))
	}
	b.WriteString("\n")

	if st.Total > 0 && (st.State.Active() || st.State.Terminal()) {
		b.WriteString(m.bar.ViewAs(float64(st.Fired) / float64(st.Total)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(statusStyle.Render(m.status))
	if m.lastFire != nil {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("drift %+d ms", m.lastFire.Drift())))
	}

	return b.String()
}

// renderPicker draws a row of options with the current one highlighted.
func renderPicker[T ~string](options []T, current int) string {
	parts := make([]string, len(options))
	for i, o := range options {
		if i == current {
			parts[i] = selectedStyle.Render(string(o))
		} else {
			parts[i] = string(o)
		}
	}
	return lipgloss.NewStyle().Width(leftPanelWidth).Render(strings.Join(parts, "  "))
}

// formatElapsed renders a duration as m:ss.mmm.
func formatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms/1000)%60, ms%1000)
}

// centerText centers text within given width.
func centerText(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}

// truncate shortens s to n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "."
}

// Package progress drives the optional live status line shown while a
// traversal runs, built on the polling interface (component G of the
// traversal protocol) rather than on the traversal's own output — duz never
// streams entry lines as they complete, it only shows that
// work is happening.
package progress

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/duzproj/duz/internal/walk"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#005B9A", Dark: "#4FA3FF"})
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#4A4A4A", Dark: "#9A9A9A"})
)

// IsTTY reports whether stderr (where the live status line is drawn) is
// attached to a terminal.
func IsTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Watch shows a live spinner on stderr tracking t's completed-record count
// until t finishes, then clears the line. It's driven entirely by
// walk.Tree.Poll; if stderr isn't a TTY it does nothing (the caller should
// check IsTTY first and skip calling Watch at all in that case — Watch
// itself is safe to call regardless).
func Watch(path string, t *walk.Tree) {
	if !IsTTY() {
		return
	}
	p := tea.NewProgram(newModel(path, t), tea.WithOutput(os.Stderr))
	_, _ = p.Run()
}

type tickMsg time.Time

type pollResultMsg struct {
	count uint32
	more  bool
}

type model struct {
	path    string
	tree    *walk.Tree
	count   uint32
	done    bool
	spinIdx int
}

func newModel(path string, t *walk.Tree) *model {
	return &model{path: path, tree: t}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.pollOnce())
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) pollOnce() tea.Cmd {
	prev := m.count
	return func() tea.Msg {
		count, more := m.tree.Poll(prev)
		return pollResultMsg{count: count, more: more}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.spinIdx++
		return m, m.tick()
	case pollResultMsg:
		m.count = msg.count
		if !msg.more {
			m.done = true
			return m, tea.Quit
		}
		return m, m.pollOnce()
	}
	return m, nil
}

func (m *model) View() string {
	if m.done {
		return ""
	}
	spinner := spinnerStyle.Render(spinnerFrames[m.spinIdx%len(spinnerFrames)])
	label := labelStyle.Render(fmt.Sprintf("scanning %s... %d entries", m.path, m.count))
	return fmt.Sprintf("\r\033[K%s %s", spinner, label)
}

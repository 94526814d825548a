package replay

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/timeline"
)

var (
	stepTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	stepInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	stepHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	stepCursorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("236"))

	stepEdgeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

const (
	stepHeaderHeight = 1
	stepFooterHeight = 2
)

// stepModel walks a timeline one event at a time. The viewport shows
// every event row; the footer names the edges live at the cursor.
type stepModel struct {
	title    string
	events   []timeline.Event
	fl       *flow.Flow
	rows     []string
	cursor   int
	viewport viewport.Model
	ready    bool
}

func newStepModel(title string, events []timeline.Event, fl *flow.Flow) stepModel {
	rows := make([]string, len(events))
	for i := range events {
		rows[i] = fmt.Sprintf("%4d │ %s │ %s", i+1, events[i].Timestamp.Format(rowTimeLayout), summaryLabel(&events[i]))
	}
	return stepModel{title: title, events: events, fl: fl, rows: rows}
}

func (m stepModel) Init() tea.Cmd {
	return nil
}

func (m stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "right", "l", "n", " ":
			if m.cursor < len(m.events)-1 {
				m.cursor++
				m.refresh()
			}
		case "left", "h", "p":
			if m.cursor > 0 {
				m.cursor--
				m.refresh()
			}
		case "g", "home":
			m.cursor = 0
			m.refresh()
		case "G", "end":
			if len(m.events) > 0 {
				m.cursor = len(m.events) - 1
				m.refresh()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-stepHeaderHeight-stepFooterHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - stepHeaderHeight - stepFooterHeight
		}
		m.refresh()

	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}

	return m, cmd
}

// refresh re-styles the rows around the cursor and keeps it on screen.
func (m *stepModel) refresh() {
	if !m.ready {
		return
	}
	width := uint(m.viewport.Width)
	lines := make([]string, len(m.rows))
	for i, row := range m.rows {
		row = truncate.String(row, width)
		if i == m.cursor {
			row = stepCursorStyle.Render(row)
		}
		lines[i] = row
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))

	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m stepModel) View() string {
	if !m.ready {
		return "\n  loading..."
	}
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.footerView()
}

func (m stepModel) headerView() string {
	title := stepTitleStyle.Render(m.title)
	shown := 0
	if len(m.events) > 0 {
		shown = m.cursor + 1
	}
	pos := stepInfoStyle.Render(fmt.Sprintf(" %d/%d", shown, len(m.events)))
	gap := m.viewport.Width - lipgloss.Width(title) - lipgloss.Width(pos)
	if gap < 0 {
		gap = 0
	}
	return title + strings.Repeat(" ", gap) + pos
}

func (m stepModel) footerView() string {
	edges := stepEdgeStyle.Render(truncate.String("live: "+m.activeEdgeLine(), uint(m.viewport.Width)))
	help := stepHelpStyle.Render("←/→ step · g/G jump · ↑/↓ scroll · q quit")
	return edges + "\n" + help
}

// activeEdgeLine names the edges live at the cursor. A tool call lights
// its whole call path, so several edges can be live at once.
func (m stepModel) activeEdgeLine() string {
	active := m.fl.ActiveEdges(m.events, m.cursor)
	if len(active) == 0 {
		return "none"
	}
	keys := make([]flow.EdgeKey, 0, len(active))
	for key := range active {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	labels := make([]string, 0, len(keys))
	for _, key := range keys {
		if e, ok := m.fl.Edge(key); ok {
			labels = append(labels, EdgeLabel(m.fl, e))
		}
	}
	return strings.Join(labels, "  ·  ")
}

// RunInteractive opens the timeline stepper in the alternate screen.
// It blocks until the user quits.
func RunInteractive(title string, events []timeline.Event, fl *flow.Flow) error {
	p := tea.NewProgram(newStepModel(title, events, fl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("replay ui: %w", err)
	}
	return nil
}

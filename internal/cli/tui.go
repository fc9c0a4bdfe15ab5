package cli

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/repocull/repocull/pkg/cull"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// RemovalListModel is the bubbletea model for browsing a removal
// report. The f key cycles through the reasons present in the report;
// an empty filter shows everything.
type RemovalListModel struct {
	Report  *report
	All     []cull.Removal
	Visible []cull.Removal
	Reasons []cull.Reason
	Filter  int // index into Reasons, -1 = no filter
	Cursor  int
	Height  int
	Offset  int
}

// NewRemovalListModel creates a removal browser over the given
// removals.
func NewRemovalListModel(rep *report, removals []cull.Removal) RemovalListModel {
	seen := make(map[cull.Reason]bool)
	var reasons []cull.Reason
	for _, r := range removals {
		if !seen[r.Reason] {
			seen[r.Reason] = true
			reasons = append(reasons, r.Reason)
		}
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })

	return RemovalListModel{
		Report:  rep,
		All:     removals,
		Visible: removals,
		Reasons: reasons,
		Filter:  -1,
		Height:  15,
	}
}

func (m RemovalListModel) Init() tea.Cmd {
	return nil
}

func (m RemovalListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Visible)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "f":
			m.Filter++
			if m.Filter >= len(m.Reasons) {
				m.Filter = -1
			}
			m.applyFilter()
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m *RemovalListModel) applyFilter() {
	m.Cursor = 0
	m.Offset = 0
	if m.Filter < 0 {
		m.Visible = m.All
		return
	}
	m.Visible = filterByReason(m.All, m.Reasons[m.Filter])
}

func (m RemovalListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Removals"))
	b.WriteString(" ")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("run %s", m.Report.RunID)))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  f filter reason  q quit"))
	b.WriteString("\n\n")

	filterLabel := "all reasons"
	if m.Filter >= 0 {
		filterLabel = string(m.Reasons[m.Filter])
	}
	b.WriteString(listDimStyle.Render("filter: ") + StyleHighlight.Render(filterLabel))
	b.WriteString("\n\n")

	end := m.Offset + m.Height
	if end > len(m.Visible) {
		end = len(m.Visible)
	}

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Visible[i]

		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, r.Key.Subdir, r.Key.Filename, string(r.Reason)})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Subdir", "Filename", "Reason").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if m.Offset+row == m.Cursor {
				return listSelectedStyle
			}
			return lipgloss.NewStyle()
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")

	if m.Cursor < len(m.Visible) {
		detail := m.Visible[m.Cursor].Detail
		if detail == "" {
			detail = "(no detail)"
		}
		b.WriteString("  " + StyleDim.Render(detail))
		b.WriteString("\n")
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Visible))))

	return b.String()
}

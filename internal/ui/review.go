package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/labtiva/curator/internal/entity"
)

// ReviewInput is what the review screen shows.
type ReviewInput struct {
	// Action is the action about to run, such as delete_indices. Empty
	// makes the review read-only.
	Action      string
	Destructive bool
	Host        string
	// Health is the cluster status color, empty when unknown.
	Health     string
	Kind       entity.Kind
	Entities   []entity.Entity
	Candidates int
	Failures   []entity.Failure
}

// ReviewOutcome is the user's decision.
type ReviewOutcome struct {
	Approved bool
	// Excluded are entities the user dropped from the selection.
	Excluded []string
}

type ReviewModel struct {
	in       ReviewInput
	table    table.Model
	search   SearchBar
	modal    *Modal
	excluded map[string]bool
	names    []string
	approved bool
	quitting bool
	showHelp bool
	width    int
	height   int
}

func NewReview(in ReviewInput) ReviewModel {
	names := make([]string, len(in.Entities))
	for i, e := range in.Entities {
		names[i] = e.Name
	}

	t := table.New(
		table.WithColumns(reviewColumns(in.Kind)),
		table.WithFocused(true),
		table.WithHeight(20),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(ColorGray)
	s.Selected = s.Selected.Foreground(ColorWhite).Background(ActiveBg).Bold(false)
	t.SetStyles(s)

	m := ReviewModel{
		in:       in,
		table:    t,
		search:   NewSearchBar(),
		excluded: make(map[string]bool),
		names:    names,
	}
	m.refreshRows()
	return m
}

func (m ReviewModel) Init() tea.Cmd {
	return nil
}

// Outcome is the decision once the program has exited.
func (m ReviewModel) Outcome() ReviewOutcome {
	out := ReviewOutcome{Approved: m.approved}
	for _, name := range m.names {
		if m.excluded[name] {
			out.Excluded = append(out.Excluded, name)
		}
	}
	return out
}

func (m ReviewModel) readOnly() bool {
	return m.in.Action == ""
}

func (m ReviewModel) remaining() int {
	return len(m.names) - len(m.excluded)
}

func (m ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(max(3, msg.Height-6))
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		if m.modal != nil {
			return m.updateModal(msg)
		}
		if m.search.Active() {
			return m.updateSearch(msg)
		}
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" || msg.String() == "q" {
				m.showHelp = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "?":
			m.showHelp = true
			return m, nil
		case "/":
			m.search.Activate()
			return m, nil
		case "n":
			if i := m.search.NextMatch(); i >= 0 {
				m.table.SetCursor(i)
			}
			return m, nil
		case "N":
			if i := m.search.PrevMatch(); i >= 0 {
				m.table.SetCursor(i)
			}
			return m, nil
		case " ", "x":
			if !m.readOnly() && len(m.names) > 0 {
				name := m.names[m.table.Cursor()]
				if m.excluded[name] {
					delete(m.excluded, name)
				} else {
					m.excluded[name] = true
				}
				m.refreshRows()
			}
			return m, nil
		case "enter":
			if m.readOnly() {
				return m, nil
			}
			if m.in.Destructive && m.remaining() > 0 {
				m.modal = NewModal(
					"Confirm "+m.in.Action,
					fmt.Sprintf("%d %s will be changed. Type the action name to continue.", m.remaining(), m.in.Kind.Plural()),
					m.in.Action,
				)
				return m, nil
			}
			m.approved = true
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m ReviewModel) updateModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cmd := m.modal.Update(msg)
	switch {
	case m.modal.Done():
		m.modal = nil
		m.approved = true
		m.quitting = true
		return m, tea.Quit
	case m.modal.Cancelled():
		m.modal = nil
		return m, nil
	}
	return m, cmd
}

func (m ReviewModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Deactivate()
		return m, nil
	case "enter":
		m.search.FindMatches(m.in.Entities, m.excluded)
		if i := m.search.CurrentMatch(); i >= 0 {
			m.table.SetCursor(i)
		}
		m.search.Deactivate()
		return m, nil
	}
	cmd := m.search.Update(msg)
	return m, cmd
}

func (m *ReviewModel) refreshRows() {
	rows := make([]table.Row, 0, len(m.in.Entities))
	for _, e := range m.in.Entities {
		rows = append(rows, reviewRow(m.in.Kind, e, m.excluded[e.Name]))
	}
	m.table.SetRows(rows)
}

func reviewColumns(kind entity.Kind) []table.Column {
	if kind == entity.KindSnapshot {
		return []table.Column{
			{Title: " ", Width: 2},
			{Title: "Snapshot", Width: 40},
			{Title: "State", Width: 12},
			{Title: "Started", Width: 20},
			{Title: "Indices", Width: 8},
		}
	}
	return []table.Column{
		{Title: " ", Width: 2},
		{Title: "Index", Width: 40},
		{Title: "State", Width: 8},
		{Title: "Created", Width: 20},
		{Title: "Size", Width: 10},
		{Title: "Docs", Width: 14},
		{Title: "Aliases", Width: 24},
	}
}

func reviewRow(kind entity.Kind, e entity.Entity, excluded bool) table.Row {
	mark := "✓"
	if excluded {
		mark = "✗"
	}
	created := "-"
	if e.HasCreationTime() {
		created = e.CreationTime.UTC().Format(time.DateTime)
	}

	if kind == entity.KindSnapshot {
		return table.Row{mark, Truncate(e.Name, 40), string(e.State), created, strconv.Itoa(len(e.Indices))}
	}

	size, docs := "-", "-"
	if e.StatsKnown {
		size = humanize.IBytes(uint64(e.SizeBytes))
		docs = FormatNumber(strconv.FormatInt(e.DocCount, 10))
	}
	aliases := strings.Join(e.Aliases, ",")
	if e.IsWriteTarget {
		aliases = "*" + aliases
	}
	return table.Row{mark, Truncate(e.Name, 40), string(e.State), created, size, docs, Truncate(aliases, 24)}
}

// sizes returns the store size of the kept entities and of all of them.
func (m ReviewModel) sizes() (kept, total int64) {
	for _, e := range m.in.Entities {
		if !e.StatsKnown {
			continue
		}
		total += e.SizeBytes
		if !m.excluded[e.Name] {
			kept += e.SizeBytes
		}
	}
	return kept, total
}

func (m ReviewModel) View() string {
	if m.quitting {
		return ""
	}
	if m.showHelp {
		return renderHelp(m.width, m.height)
	}

	title := "curator · review"
	if !m.readOnly() {
		title = "curator · " + m.in.Action
	}
	if m.in.Host != "" {
		title += " · " + m.in.Host
	}
	header := HeaderStyle.Width(m.width).Render(title)
	if m.in.Health != "" {
		health := lipgloss.NewStyle().Foreground(HealthColor(m.in.Health)).Render("● " + m.in.Health)
		header = lipgloss.JoinHorizontal(lipgloss.Top, HeaderStyle.Render(title), " ", health)
	}

	summary := fmt.Sprintf("%d of %d %s selected", m.remaining(), m.in.Candidates, m.in.Kind.Plural())
	if len(m.excluded) > 0 {
		summary += fmt.Sprintf(", %d dropped", len(m.excluded))
	}
	if kept, total := m.sizes(); total > 0 {
		summary += fmt.Sprintf("  %s %s of %s", RenderBar(float64(kept)/float64(total)*100, 20),
			humanize.IBytes(uint64(kept)), humanize.IBytes(uint64(total)))
	}
	if len(m.in.Failures) > 0 {
		summary += "  " + WarningStyle.Render(fmt.Sprintf("%d unresolved", len(m.in.Failures)))
	}

	body := m.table.View()
	if len(m.names) == 0 {
		body = HelpStyle.Render("  nothing selected")
	}

	footer := StatusBarStyle.Width(m.width).Render(m.statusText())
	if m.search.Active() {
		footer = m.search.View(m.width)
	}

	view := lipgloss.JoinVertical(lipgloss.Left, header, summary, body, footer)
	if m.modal != nil {
		return OverlayModal(view, m.modal.View(), m.width, m.height)
	}
	return view
}

func (m ReviewModel) statusText() string {
	if m.readOnly() {
		return "q: quit  /: search  ?: help"
	}
	return "enter: approve  space: drop/restore  q: abort  /: search  ?: help"
}

// RunReview shows the review screen until the user approves or aborts.
func RunReview(in ReviewInput) (ReviewOutcome, error) {
	final, err := tea.NewProgram(NewReview(in), tea.WithAltScreen()).Run()
	if err != nil {
		return ReviewOutcome{}, fmt.Errorf("running review: %w", err)
	}
	m, ok := final.(ReviewModel)
	if !ok {
		return ReviewOutcome{}, nil
	}
	return m.Outcome(), nil
}

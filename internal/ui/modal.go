package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Modal asks the user to type a confirmation word, such as the name of
// the action about to run.
type Modal struct {
	title     string
	prompt    string
	expected  string
	input     textinput.Model
	err       string
	done      bool
	cancelled bool
}

func NewModal(title, prompt, expected string) *Modal {
	ti := textinput.New()
	ti.Placeholder = expected
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 30

	return &Modal{
		title:    title,
		prompt:   prompt,
		expected: expected,
		input:    ti,
	}
}

func (m *Modal) SetError(err string) {
	m.err = err
}

func (m *Modal) Value() string {
	return m.input.Value()
}

func (m *Modal) SetValue(v string) {
	m.input.SetValue(v)
}

// Done reports whether the expected word was entered.
func (m *Modal) Done() bool {
	return m.done
}

func (m *Modal) Cancelled() bool {
	return m.cancelled
}

func (m *Modal) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			if m.input.Value() != m.expected {
				m.SetError(fmt.Sprintf("type %q to confirm", m.expected))
				return nil
			}
			m.done = true
			return nil
		case "esc":
			m.cancelled = true
			return nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Modal) View() string {
	boxWidth := 50

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorRed).
		MarginBottom(1)

	promptStyle := lipgloss.NewStyle().
		MarginBottom(1)

	errorStyle := lipgloss.NewStyle().
		Foreground(ColorRed).
		MarginTop(1)

	helpStyle := lipgloss.NewStyle().
		Foreground(ColorGray).
		MarginTop(1)

	var content string
	content += titleStyle.Render(m.title) + "\n"
	content += promptStyle.Render(m.prompt) + "\n"
	content += m.input.View() + "\n"

	if m.err != "" {
		content += errorStyle.Render(m.err) + "\n"
	}

	content += helpStyle.Render("Enter: confirm | Esc: back")

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorRed).
		Padding(1, 2).
		Width(boxWidth)

	return boxStyle.Render(content)
}

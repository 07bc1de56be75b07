package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/labtiva/curator/internal/entity"
)

// SearchBar finds rows of the review table. A query is a list of terms
// that must all match; a bare term matches the name and qualified terms
// match one column:
//
//	logs state:closed alias:app is:write is:dropped
type SearchBar struct {
	input   textinput.Model
	matches []int
	current int
	active  bool
}

func NewSearchBar() SearchBar {
	input := textinput.New()
	input.Placeholder = "name, state:, alias:, is:write, is:dropped"
	input.CharLimit = 100
	input.Width = 40
	return SearchBar{input: input}
}

func (s *SearchBar) Active() bool {
	return s.active
}

func (s *SearchBar) Activate() {
	s.active = true
	s.input.Focus()
	s.input.SetValue("")
	s.matches = nil
	s.current = 0
}

func (s *SearchBar) Deactivate() {
	s.active = false
	s.input.Blur()
}

func (s *SearchBar) Query() string {
	return s.input.Value()
}

func (s *SearchBar) Matches() []int {
	return s.matches
}

func (s *SearchBar) CurrentMatch() int {
	if len(s.matches) == 0 {
		return -1
	}
	return s.matches[s.current]
}

// FindMatches records the positions of the entities the query matches.
// dropped holds the names removed from the selection.
func (s *SearchBar) FindMatches(entities []entity.Entity, dropped map[string]bool) {
	s.matches = nil
	s.current = 0

	terms := strings.Fields(strings.ToLower(s.input.Value()))
	if len(terms) == 0 {
		return
	}
	for i, e := range entities {
		if matchAll(terms, e, dropped[e.Name]) {
			s.matches = append(s.matches, i)
		}
	}
}

func matchAll(terms []string, e entity.Entity, dropped bool) bool {
	for _, term := range terms {
		if !matchTerm(term, e, dropped) {
			return false
		}
	}
	return true
}

func matchTerm(term string, e entity.Entity, dropped bool) bool {
	key, value, ok := strings.Cut(term, ":")
	if !ok || value == "" {
		return strings.Contains(strings.ToLower(e.Name), term)
	}
	switch key {
	case "name":
		return strings.Contains(strings.ToLower(e.Name), value)
	case "state":
		return strings.EqualFold(string(e.State), value)
	case "alias":
		for _, a := range e.Aliases {
			if strings.Contains(strings.ToLower(a), value) {
				return true
			}
		}
		return false
	case "is":
		switch value {
		case "write":
			return e.IsWriteTarget
		case "dropped":
			return dropped
		case "kept":
			return !dropped
		}
		return false
	}
	return strings.Contains(strings.ToLower(e.Name), term)
}

func (s *SearchBar) NextMatch() int {
	if len(s.matches) == 0 {
		return -1
	}
	s.current = (s.current + 1) % len(s.matches)
	return s.matches[s.current]
}

func (s *SearchBar) PrevMatch() int {
	if len(s.matches) == 0 {
		return -1
	}
	s.current = (s.current - 1 + len(s.matches)) % len(s.matches)
	return s.matches[s.current]
}

func (s *SearchBar) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return cmd
}

func (s *SearchBar) View(width int) string {
	status := ""
	switch {
	case len(s.matches) > 0:
		status = lipgloss.NewStyle().Foreground(ColorGray).Render(
			fmt.Sprintf(" %d/%d  n/N: next/prev", s.current+1, len(s.matches)))
	case s.input.Value() != "":
		status = lipgloss.NewStyle().Foreground(ColorGray).Render(" enter: find  esc: cancel")
	}
	return lipgloss.NewStyle().
		Background(ActiveBg).
		Padding(0, 1).
		Width(width).
		Render("/" + s.input.View() + status)
}

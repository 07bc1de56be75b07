package ui

import (
	"github.com/charmbracelet/lipgloss"
)

func renderHelp(width, height int) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorWhite).
		MarginBottom(1).
		Render("curator - review")

	sections := []struct {
		header string
		keys   [][]string
	}{
		{
			header: "Review",
			keys: [][]string{
				{"up/down", "Move"},
				{"space / x", "Drop or restore the entity"},
				{"Enter", "Approve the remaining entities"},
				{"q / Esc", "Abort without changes"},
				{"?", "Toggle help"},
			},
		},
		{
			header: "Search",
			keys: [][]string{
				{"/", "Search names"},
				{"state:closed", "Match a state"},
				{"alias:logs", "Match an alias"},
				{"is:write / is:dropped", "Write targets / dropped entities"},
				{"Enter", "Jump to first match"},
				{"n / N", "Next / previous match"},
				{"Esc", "Close search"},
			},
		},
	}

	keyStyle := lipgloss.NewStyle().Foreground(ColorBlue).Width(20)
	descStyle := lipgloss.NewStyle().Foreground(ColorWhite)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorYellow).MarginTop(1)

	var content string
	content += title + "\n\n"

	for _, section := range sections {
		content += headerStyle.Render(section.header) + "\n"
		for _, kv := range section.keys {
			content += keyStyle.Render(kv[0]) + descStyle.Render(kv[1]) + "\n"
		}
	}

	content += "\n" + lipgloss.NewStyle().Foreground(ColorGray).Render("Press ? to close")

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBlue).
		Padding(1, 2).
		Width(50)

	box := boxStyle.Render(content)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}

// Package report renders run results and entity listings as text,
// markdown or JSON, and exports run metrics.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/labtiva/curator/internal/ui"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown report format %q (want text, markdown or json)", s)
}

// Reporter writes reports to one destination. Color enables markdown
// rendering and JSON highlighting; text styling follows what the
// destination supports.
type Reporter struct {
	w      io.Writer
	format Format
	color  bool
	styles styles
}

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	ok      lipgloss.Style
	failed  lipgloss.Style
	skipped lipgloss.Style
	header  lipgloss.Style
}

func New(w io.Writer, format Format, color bool) *Reporter {
	re := lipgloss.NewRenderer(w)
	return &Reporter{
		w:      w,
		format: format,
		color:  color,
		styles: styles{
			title:   re.NewStyle().Bold(true).Foreground(ui.ColorBlue),
			dim:     re.NewStyle().Foreground(ui.ColorGray),
			ok:      re.NewStyle().Foreground(ui.ColorGreen),
			failed:  re.NewStyle().Foreground(ui.ColorRed),
			skipped: re.NewStyle().Foreground(ui.ColorYellow),
			header:  re.NewStyle().Bold(true).Foreground(ui.ColorGray),
		},
	}
}

func (r *Reporter) Format() Format {
	return r.format
}

func (r *Reporter) writeMarkdown(md string) error {
	if r.color {
		rendered, err := glamour.Render(md, "dark")
		if err == nil {
			md = rendered
		}
	}
	_, err := io.WriteString(r.w, md)
	return err
}

func (r *Reporter) writeJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	out := string(data) + "\n"
	if r.color {
		out = highlightJSON(out)
	}
	_, err = io.WriteString(r.w, out)
	return err
}

func highlightJSON(input string) string {
	var buf bytes.Buffer
	err := quick.Highlight(&buf, input, "json", "terminal256", "monokai")
	if err != nil {
		return input
	}
	return buf.String()
}

// mdEscape keeps entity names and messages from breaking table cells.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

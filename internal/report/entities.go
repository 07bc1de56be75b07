package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/labtiva/curator/internal/entity"
	"github.com/labtiva/curator/internal/ui"
)

// EntityView is the reported form of an entity.
type EntityView struct {
	Name             string            `json:"name"`
	Kind             entity.Kind       `json:"kind"`
	State            entity.State      `json:"state"`
	CreationTime     *time.Time        `json:"creation_time,omitempty"`
	SizeBytes        *int64            `json:"size_bytes,omitempty"`
	PrimarySizeBytes *int64            `json:"primary_size_bytes,omitempty"`
	DocCount         *int64            `json:"doc_count,omitempty"`
	IsWriteTarget    bool              `json:"is_write_target,omitempty"`
	Aliases          []string          `json:"aliases,omitempty"`
	Routing          map[string]string `json:"routing,omitempty"`
	Repository       string            `json:"repository,omitempty"`
	Indices          []string          `json:"indices,omitempty"`
	Tags             map[string]string `json:"tags,omitempty"`
}

func View(e entity.Entity) EntityView {
	v := EntityView{
		Name:          e.Name,
		Kind:          e.Kind,
		State:         e.State,
		IsWriteTarget: e.IsWriteTarget,
		Aliases:       e.Aliases,
		Routing:       e.Routing,
		Repository:    e.Repository,
		Indices:       e.Indices,
		Tags:          e.Tags,
	}
	if e.HasCreationTime() {
		t := e.CreationTime
		v.CreationTime = &t
	}
	if e.StatsKnown {
		size, pri, docs := e.SizeBytes, e.PrimarySizeBytes, e.DocCount
		v.SizeBytes, v.PrimarySizeBytes, v.DocCount = &size, &pri, &docs
	}
	return v
}

// ListView is the reported form of a filtered list.
type ListView struct {
	Kind       entity.Kind      `json:"kind"`
	AsOf       time.Time        `json:"as_of"`
	Candidates int              `json:"candidates"`
	Entities   []EntityView     `json:"entities"`
	Failures   []entity.Failure `json:"unresolved,omitempty"`
}

// List writes the entities of list. candidates is the size of the list
// before filtering.
func (r *Reporter) List(list *entity.List, candidates int) error {
	view := ListView{
		Kind:       list.Kind(),
		AsOf:       list.AsOf(),
		Candidates: candidates,
		Entities:   make([]EntityView, 0, list.Len()),
		Failures:   list.Failures(),
	}
	for _, e := range list.Entities() {
		view.Entities = append(view.Entities, View(e))
	}

	headers, rows := entityRows(list.Kind(), list.Entities())
	summary := fmt.Sprintf("%d of %d %s selected", list.Len(), candidates, list.Kind().Plural())

	switch r.format {
	case FormatJSON:
		return r.writeJSON(view)
	case FormatMarkdown:
		var b strings.Builder
		fmt.Fprintf(&b, "## Selected %s\n\n%s\n\n", list.Kind().Plural(), summary)
		if len(rows) > 0 {
			writeMarkdownTable(&b, headers, rows)
		}
		if fs := list.Failures(); len(fs) > 0 {
			b.WriteString("\n### Unresolved\n\n")
			for _, f := range fs {
				fmt.Fprintf(&b, "- `%s` (%s): %s\n", f.Name, f.Step, mdEscape(f.Reason))
			}
		}
		return r.writeMarkdown(b.String())
	}

	var b strings.Builder
	if len(rows) > 0 {
		b.WriteString(r.table(headers, rows))
		b.WriteString("\n")
	}
	b.WriteString(r.styles.dim.Render(summary) + "\n")
	for _, f := range list.Failures() {
		b.WriteString(r.styles.skipped.Render("unresolved") + " " + f.Name + "  " + r.styles.dim.Render(f.Step+": "+f.Reason) + "\n")
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Names writes one entity name per line whatever the format, for piping.
func (r *Reporter) Names(list *entity.List) error {
	for _, name := range list.Names() {
		if _, err := fmt.Fprintln(r.w, name); err != nil {
			return err
		}
	}
	return nil
}

// Entity writes every known attribute of e.
func (r *Reporter) Entity(e entity.Entity) error {
	if r.format == FormatJSON {
		return r.writeJSON(View(e))
	}

	fields := entityFields(e)
	if r.format == FormatMarkdown {
		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n\n", mdEscape(e.Name))
		writeMarkdownTable(&b, []string{"Field", "Value"}, fields)
		return r.writeMarkdown(b.String())
	}

	var b strings.Builder
	b.WriteString(r.styles.title.Render(e.Name) + "\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "  %s %s\n", r.styles.header.Render(fmt.Sprintf("%-14s", f[0])), f[1])
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Table writes arbitrary rows, used for repositories and tasks.
func (r *Reporter) Table(headers []string, rows [][]string, records any) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON(records)
	case FormatMarkdown:
		var b strings.Builder
		writeMarkdownTable(&b, headers, rows)
		return r.writeMarkdown(b.String())
	}
	if len(rows) == 0 {
		_, err := io.WriteString(r.w, r.styles.dim.Render("(none)")+"\n")
		return err
	}
	_, err := io.WriteString(r.w, r.table(headers, rows)+"\n")
	return err
}

func (r *Reporter) table(headers []string, rows [][]string) string {
	header := r.styles.header
	t := ltable.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return header.PaddingRight(2)
			}
			return lipgloss.NewStyle().PaddingRight(2)
		}).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(false).
		BorderColumn(false)
	return t.Render()
}

func writeMarkdownTable(b *strings.Builder, headers []string, rows [][]string) {
	b.WriteString("| " + strings.Join(headers, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(headers)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = mdEscape(c)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func entityRows(kind entity.Kind, items []entity.Entity) ([]string, [][]string) {
	if kind == entity.KindSnapshot {
		headers := []string{"NAME", "STATE", "STARTED", "INDICES"}
		rows := make([][]string, 0, len(items))
		for _, e := range items {
			rows = append(rows, []string{e.Name, string(e.State), formatTime(e), strconv.Itoa(len(e.Indices))})
		}
		return headers, rows
	}

	headers := []string{"NAME", "STATE", "CREATED", "SIZE", "DOCS", "ALIASES"}
	rows := make([][]string, 0, len(items))
	for _, e := range items {
		size, docs := "-", "-"
		if e.StatsKnown {
			size = humanize.IBytes(uint64(e.SizeBytes))
			docs = ui.FormatNumber(strconv.FormatInt(e.DocCount, 10))
		}
		aliases := strings.Join(e.Aliases, ",")
		if e.IsWriteTarget {
			aliases += " (write)"
		}
		rows = append(rows, []string{e.Name, string(e.State), formatTime(e), size, docs, ui.Truncate(aliases, 40)})
	}
	return headers, rows
}

func entityFields(e entity.Entity) [][]string {
	fields := [][]string{
		{"kind", string(e.Kind)},
		{"state", string(e.State)},
		{"created", formatTime(e)},
	}
	if e.Kind == entity.KindSnapshot {
		fields = append(fields,
			[]string{"repository", e.Repository},
			[]string{"indices", strings.Join(e.Indices, ", ")},
		)
		return fields
	}

	if e.StatsKnown {
		fields = append(fields,
			[]string{"size", fmt.Sprintf("%s (%d bytes)", humanize.IBytes(uint64(e.SizeBytes)), e.SizeBytes)},
			[]string{"primary size", humanize.IBytes(uint64(e.PrimarySizeBytes))},
			[]string{"docs", ui.FormatNumber(strconv.FormatInt(e.DocCount, 10))},
		)
	} else {
		fields = append(fields, []string{"stats", "not reported"})
	}
	fields = append(fields,
		[]string{"aliases", strings.Join(e.Aliases, ", ")},
		[]string{"write target", strconv.FormatBool(e.IsWriteTarget)},
	)

	fields = appendSorted(fields, "routing.", e.Routing)
	return appendSorted(fields, "tag.", e.Tags)
}

func appendSorted(fields [][]string, prefix string, m map[string]string) [][]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, []string{prefix + k, m[k]})
	}
	return fields
}

func formatTime(e entity.Entity) string {
	if !e.HasCreationTime() {
		return "-"
	}
	return e.CreationTime.UTC().Format(time.RFC3339)
}

package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/labtiva/curator/internal/action"
)

// Results writes one section per action run.
func (r *Reporter) Results(results []action.Result) error {
	switch r.format {
	case FormatJSON:
		if results == nil {
			results = []action.Result{}
		}
		return r.writeJSON(results)
	case FormatMarkdown:
		var b strings.Builder
		for i, res := range results {
			if i > 0 {
				b.WriteString("\n")
			}
			writeResultMarkdown(&b, res)
		}
		return r.writeMarkdown(b.String())
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		r.writeResultText(&b, res)
	}
	_, err := io.WriteString(r.w, b.String())
	return err
}

// Summary is the one-line count of a result.
func Summary(res action.Result) string {
	if res.DryRun {
		return fmt.Sprintf("dry run: would act on %d %s", len(res.Attempted), res.Target.Plural())
	}
	return fmt.Sprintf("%d attempted, %d succeeded, %d failed, %d skipped in %s",
		len(res.Attempted), len(res.Succeeded), len(res.Failed), len(res.Skipped),
		res.Duration.Round(time.Millisecond))
}

func (r *Reporter) writeResultText(b *strings.Builder, res action.Result) {
	s := r.styles
	b.WriteString(s.title.Render(res.Name()))
	if res.Description != "" {
		b.WriteString("  " + s.dim.Render(res.Description))
	}
	b.WriteString("\n")
	b.WriteString("  " + Summary(res) + "\n")

	if res.DryRun {
		for _, name := range res.Attempted {
			b.WriteString("    " + name + "\n")
		}
		return
	}
	for _, name := range res.Succeeded {
		b.WriteString("  " + s.ok.Render("ok") + "      " + name + "\n")
	}
	for _, f := range res.Failed {
		b.WriteString("  " + s.failed.Render("failed") + "  " + f.Name + "  " + s.dim.Render(string(f.Kind)+": "+f.Message) + "\n")
	}
	for _, name := range res.Skipped {
		b.WriteString("  " + s.skipped.Render("skipped") + " " + name + "\n")
	}
}

func writeResultMarkdown(b *strings.Builder, res action.Result) {
	fmt.Fprintf(b, "## %s\n\n", res.Name())
	if res.Description != "" {
		fmt.Fprintf(b, "_%s_\n\n", mdEscape(res.Description))
	}
	fmt.Fprintf(b, "%s\n\n", Summary(res))

	if len(res.Attempted) == 0 && len(res.Skipped) == 0 {
		return
	}

	b.WriteString("| Entity | Outcome | Detail |\n|---|---|---|\n")
	if res.DryRun {
		for _, name := range res.Attempted {
			fmt.Fprintf(b, "| %s | would act | |\n", mdEscape(name))
		}
		return
	}
	for _, name := range res.Succeeded {
		fmt.Fprintf(b, "| %s | succeeded | |\n", mdEscape(name))
	}
	for _, f := range res.Failed {
		fmt.Fprintf(b, "| %s | failed | %s: %s |\n", mdEscape(f.Name), f.Kind, mdEscape(f.Message))
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(b, "| %s | skipped | |\n", mdEscape(name))
	}
}

package main

import (
	"fmt"
	"io"

	"collection-runner/internal/models"
	"collection-runner/internal/runner"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed)
	skippedColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

// printer writes one line per finished item. It is driven by run snapshots
// and remembers which items it already reported.
type printer struct {
	w       io.Writer
	printed map[int]bool
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, printed: make(map[int]bool)}
}

func (p *printer) header(label string, env models.EnvironmentName, total int) {
	fmt.Fprintf(p.w, "Running %s [%s] - %d requests\n\n", label, env, total)
}

func (p *printer) observe(snap runner.Snapshot) {
	for i, item := range snap.Items {
		if p.printed[i] {
			continue
		}
		switch item.Status {
		case runner.StatusSuccess, runner.StatusError, runner.StatusSkipped:
			p.printed[i] = true
			p.item(item)
		}
	}
}

func (p *printer) item(item runner.Item) {
	switch item.Status {
	case runner.StatusSuccess:
		successColor.Fprint(p.w, "  ✓ ")
	case runner.StatusError:
		errorColor.Fprint(p.w, "  ✗ ")
	default:
		skippedColor.Fprint(p.w, "  - ")
	}

	fmt.Fprintf(p.w, "%-6s %s", item.Method, item.Name)
	if item.StatusCode > 0 {
		fmt.Fprintf(p.w, " %d", item.StatusCode)
	}
	if item.Status != runner.StatusSkipped {
		dimColor.Fprintf(p.w, " (%dms)", item.DurationMs)
	}
	fmt.Fprintln(p.w)

	if item.Error != "" {
		errorColor.Fprintf(p.w, "      %s\n", item.Error)
	}
	if v := item.SchemaValidation; v != nil && !v.Valid {
		skippedColor.Fprintln(p.w, "      schema mismatch:")
		for _, e := range v.Errors {
			fmt.Fprintf(p.w, "        %s\n", e)
		}
	}
}

func (p *printer) summary(snap runner.Snapshot) {
	s := snap.Summary
	fmt.Fprintf(p.w, "\n%s: %d total, ", snap.State, s.Total)
	successColor.Fprintf(p.w, "%d passed", s.Success)
	fmt.Fprint(p.w, ", ")
	errorColor.Fprintf(p.w, "%d failed", s.Error)
	fmt.Fprintf(p.w, " (%.0f%%)\n", s.Percent)

	if l := snap.Latency; l != nil {
		dimColor.Fprintf(p.w, "latency: min %dms, p50 %dms, p95 %dms, max %dms\n", l.Min, l.P50, l.P95, l.Max)
	}
}

package main

import (
	"bytes"
	"testing"

	"collection-runner/internal/runner"
	"collection-runner/internal/schema"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrinter_ReportsEachItemOnce(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	p := newPrinter(&buf)

	items := []runner.Item{
		{Name: "List users", Method: "GET", Status: runner.StatusRunning},
		{Name: "Create user", Method: "POST", Status: runner.StatusPending},
	}
	p.observe(runner.Snapshot{Items: items})
	assert.Empty(t, buf.String())

	items[0].Status = runner.StatusSuccess
	items[0].StatusCode = 200
	items[0].DurationMs = 12
	items[0].SchemaValidation = &schema.Result{Valid: false, Errors: []string{"<root> id is required"}}
	p.observe(runner.Snapshot{Items: items})
	p.observe(runner.Snapshot{Items: items})

	items[1].Status = runner.StatusError
	items[1].Error = "HTTP 500: Internal Server Error"
	items[1].StatusCode = 500
	p.observe(runner.Snapshot{Items: items})

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("List users")))
	assert.Contains(t, out, "✓ GET    List users 200 (12ms)")
	assert.Contains(t, out, "<root> id is required")
	assert.Contains(t, out, "✗ POST   Create user 500")
	assert.Contains(t, out, "HTTP 500: Internal Server Error")
}

func TestPrinter_Summary(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	newPrinter(&buf).summary(runner.Snapshot{
		State:   runner.StateCompleted,
		Summary: runner.Summary{Total: 4, Success: 3, Error: 1, Percent: 75},
	})
	assert.Equal(t, "\ncompleted: 4 total, 3 passed, 1 failed (75%)\n", buf.String())
}

func TestPrinter_SummaryWithLatency(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	newPrinter(&buf).summary(runner.Snapshot{
		State:   runner.StateAborted,
		Summary: runner.Summary{Total: 2, Success: 1, Percent: 50},
		Latency: &runner.Latency{Min: 5, P50: 5, P95: 5, Max: 5, Mean: 5},
	})
	assert.Contains(t, buf.String(), "aborted: 2 total, 1 passed, 0 failed (50%)\n")
	assert.Contains(t, buf.String(), "latency: min 5ms, p50 5ms, p95 5ms, max 5ms\n")
}

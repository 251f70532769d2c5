// Package pipeline orchestrates the nightly run: factors, sentiment,
// macro overlay, per-agent strategy and execution, then the run report.
package pipeline

import (
	"fmt"
	"strings"
	"time"
)

// Stage status values
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusWarning = "warning"
	StatusError   = "error"
)

// StageSummary is the outcome of one pipeline stage.
type StageSummary struct {
	Name      string        `json:"name"`
	Status    string        `json:"status"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// statusFor derives the stage status from its counters. The first error
// string is kept verbatim; later ones only move the counters.
func statusFor(processed, failed int, firstErr string) string {
	switch {
	case failed == 0 && firstErr == "":
		return StatusSuccess
	case processed > 0 && failed > 0:
		return StatusPartial
	case processed > 0:
		return StatusWarning
	default:
		return StatusError
	}
}

// RunReport is the full outcome of one pipeline run.
type RunReport struct {
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Stages    []StageSummary `json:"stages"`
}

// Failed reports whether any stage ended in error.
func (r RunReport) Failed() bool {
	for _, stage := range r.Stages {
		if stage.Status == StatusError {
			return true
		}
	}
	return false
}

// String renders a one-line-per-stage report for logs and the CLI.
func (r RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pipeline run %s (%s)\n", r.StartedAt.Format(time.RFC3339), r.Duration.Round(time.Millisecond))
	for _, stage := range r.Stages {
		fmt.Fprintf(&b, "  %-12s %-8s processed=%d failed=%d in %s", stage.Name, stage.Status, stage.Processed, stage.Failed, stage.Duration.Round(time.Millisecond))
		if stage.Error != "" {
			fmt.Fprintf(&b, " (%s)", stage.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		failed    int
		firstErr  string
		want      string
	}{
		{"all clean", 10, 0, "", StatusSuccess},
		{"nothing to do", 0, 0, "", StatusSuccess},
		{"some failed", 8, 2, "first failure", StatusPartial},
		{"error but work done", 5, 0, "downstream hiccup", StatusWarning},
		{"all failed", 0, 3, "boom", StatusError},
		{"nothing processed with error", 0, 0, "boom", StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.processed, tt.failed, tt.firstErr))
		})
	}
}

func TestRunReport_Failed(t *testing.T) {
	healthy := RunReport{Stages: []StageSummary{
		{Name: "factors", Status: StatusSuccess},
		{Name: "agents", Status: StatusPartial},
	}}
	assert.False(t, healthy.Failed())

	broken := RunReport{Stages: []StageSummary{
		{Name: "factors", Status: StatusSuccess},
		{Name: "macro", Status: StatusError},
	}}
	assert.True(t, broken.Failed())
}

func TestRunReport_String(t *testing.T) {
	report := RunReport{
		StartedAt: time.Date(2026, 8, 24, 21, 30, 0, 0, time.UTC),
		Duration:  42 * time.Second,
		Stages: []StageSummary{
			{Name: "factors", Status: StatusSuccess, Processed: 50, Duration: 12 * time.Second},
			{Name: "macro", Status: StatusError, Error: "no indicators"},
		},
	}

	out := report.String()
	assert.Contains(t, out, "factors")
	assert.Contains(t, out, "processed=50")
	assert.Contains(t, out, "(no indicators)")
}

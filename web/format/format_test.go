package format

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hrm-reasoner/session"
)

func sampleTrace() []session.TraceEntry {
	return []session.TraceEntry{
		{Step: 1, Operation: session.OpHPlan, Note: "Plan for problem: login | signup",
			Metrics: session.Metrics{ConfidenceScore: 0.41, ConvergenceScore: 0.2}},
		{Step: 2, Operation: session.OpLExecute, LCycle: 1, Note: "Check\nauth",
			Metrics: session.Metrics{ConfidenceScore: 0.45, ConvergenceScore: 0.25}},
	}
}

func TestTraceMarkdown(t *testing.T) {
	md := TraceMarkdown(sampleTrace())

	assert.True(t, strings.HasPrefix(md, "### "+HeadingTrace))
	assert.Contains(t, md, "| 1 | h_plan | 0 | 0 | 0.410 | 0.200 | Plan for problem: login \\| signup |")
	assert.Contains(t, md, "| 2 | l_execute | 0 | 1 | 0.450 | 0.250 | Check auth |")
	assert.Empty(t, TraceMarkdown(nil))
}

func TestFrameworkMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		insight  *session.FrameworkInsight
		notes    []string
		contains []string
		empty    bool
	}{
		{name: "nothing", empty: true},
		{
			name:     "detected",
			insight:  &session.FrameworkInsight{Frameworks: []string{"gin"}, Highlights: []string{"Group routes"}},
			notes:    []string{"Use middleware for auth"},
			contains: []string{"Detected: gin", "- Group routes", "- Use middleware for auth"},
		},
		{
			name:     "skipped_shows_notes_only",
			insight:  &session.FrameworkInsight{Skipped: true, Highlights: []string{"hidden"}},
			notes:    []string{"Framework detection skipped"},
			contains: []string{"- Framework detection skipped"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := FrameworkMarkdown(tt.insight, tt.notes)
			if tt.empty {
				assert.Empty(t, md)
				return
			}
			for _, want := range tt.contains {
				assert.Contains(t, md, want)
			}
			assert.NotContains(t, md, "hidden")
		})
	}
}

func TestToHTMLDropsRawHTML(t *testing.T) {
	out := ToHTML("Intro\n- one\n- two\n\nhello <script>alert(1)</script>")

	assert.Contains(t, out, "<li>one</li>")
	assert.NotContains(t, out, "<script>")
}

func TestReportHTML(t *testing.T) {
	st := session.NewState("3f0c3f8e-1111-4222-8333-444455556666", session.Params{Problem: "Build a login flow"},
		time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	st.HContext = []string{"Plan for problem: Build a login flow"}
	st.LastTrace = sampleTrace()
	st.LastHaltTrigger = session.TriggerPlateau

	page := ReportHTML(st)

	assert.Contains(t, page, "<title>Reasoning session 3f0c3f8e-1111-4222-8333-444455556666</title>")
	assert.Contains(t, page, "Build a login flow")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "Last halt trigger: plateau")
}

func TestPreprocessText(t *testing.T) {
	assert.Equal(t, `"quoted" it's`, PreprocessText("“quoted” it’s"))
	assert.Equal(t, "a \\| b c", EscapeCell("a | b\n c"))
}

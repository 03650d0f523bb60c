package format

import (
	"fmt"
	"strings"

	"hrm-reasoner/session"
)

// Section headings used by the markdown renderers.
const (
	HeadingTrace     = "Reasoning trace"
	HeadingState     = "Session state"
	HeadingMetrics   = "Metrics"
	HeadingContext   = "Context"
	HeadingFramework = "Framework guidance"
	HeadingDecisions = "Recent decisions"
)

// Section renders a level-3 heading followed by body. Empty bodies render nothing.
func Section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return "### " + title + "\n\n" + body + "\n"
}

// TraceMarkdown renders the steps of an automatic run as a markdown table.
func TraceMarkdown(trace []session.TraceEntry) string {
	if len(trace) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("| Step | Operation | H | L | Confidence | Convergence | Note |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|---|\n")
	for _, e := range trace {
		fmt.Fprintf(&b, "| %d | %s | %d | %d | %.3f | %.3f | %s |\n",
			e.Step, e.Operation, e.HCycle, e.LCycle,
			e.Metrics.ConfidenceScore, e.Metrics.ConvergenceScore,
			EscapeCell(e.Note))
	}
	return Section(HeadingTrace, b.String())
}

// MetricsMarkdown renders a metrics snapshot as a bullet list.
func MetricsMarkdown(m session.Metrics) string {
	return Section(HeadingMetrics, fmt.Sprintf(
		"- Confidence: %.3f\n- Convergence: %.3f\n- Complexity: %.1f\n- Should continue: %t",
		m.ConfidenceScore, m.ConvergenceScore, m.ComplexityAssessment, m.ShouldContinue))
}

// FrameworkMarkdown renders detected frameworks, highlights and notes.
func FrameworkMarkdown(insight *session.FrameworkInsight, notes []string) string {
	var b strings.Builder
	if insight != nil && !insight.Skipped {
		if len(insight.Frameworks) > 0 {
			fmt.Fprintf(&b, "Detected: %s\n\n", strings.Join(insight.Frameworks, ", "))
		}
		writeList(&b, insight.Highlights)
	}
	writeList(&b, notes)
	return Section(HeadingFramework, b.String())
}

// StateMarkdown renders the full session: cycles, metrics, context, decisions and the
// last automatic trace.
func StateMarkdown(st *session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Session %s\n\n", st.ID)
	if st.Problem != "" {
		fmt.Fprintf(&b, "**Problem:** %s\n\n", PreprocessText(st.Problem))
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "- H-cycle: %d / %d\n", st.HCycle, st.MaxHCycles)
	fmt.Fprintf(&summary, "- L-cycle: %d / %d\n", st.LCycle, st.MaxLCyclesPerH)
	fmt.Fprintf(&summary, "- Convergence threshold: %.2f\n", st.ConvergenceThreshold)
	fmt.Fprintf(&summary, "- Plateau count: %d\n", st.PlateauCount)
	if st.LastHaltTrigger != session.TriggerNone {
		fmt.Fprintf(&summary, "- Last halt trigger: %s\n", st.LastHaltTrigger)
	}
	fmt.Fprintf(&summary, "- Last updated: %s\n", st.LastUpdated.UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString(Section(HeadingState, summary.String()))
	b.WriteString("\n")
	b.WriteString(MetricsMarkdown(st.Metrics))
	b.WriteString("\n")

	var ctx strings.Builder
	if len(st.HContext) > 0 {
		ctx.WriteString("**High level**\n\n")
		writeList(&ctx, st.HContext)
	}
	if len(st.LContext) > 0 {
		ctx.WriteString("**Low level**\n\n")
		writeList(&ctx, st.LContext)
	}
	if len(st.SolutionCandidates) > 0 {
		ctx.WriteString("**Candidates**\n\n")
		writeList(&ctx, st.SolutionCandidates)
	}
	if s := Section(HeadingContext, ctx.String()); s != "" {
		b.WriteString(s + "\n")
	}

	var decisions strings.Builder
	writeList(&decisions, st.RecentDecisions)
	if s := Section(HeadingDecisions, decisions.String()); s != "" {
		b.WriteString(s + "\n")
	}
	if s := FrameworkMarkdown(st.FrameworkInsight, st.FrameworkNotes); s != "" {
		b.WriteString(s + "\n")
	}
	b.WriteString(TraceMarkdown(st.LastTrace))
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	if len(items) == 0 {
		return
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", PreprocessText(item))
	}
	b.WriteString("\n")
}

package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
	"hrm-reasoner/utils"
)

const (
	summaryPreviewChars  = 200
	fallbackSummaryChars = 300
)

// stepInput is the caller-supplied content of one operation. The driver runs every
// operation with an empty input.
type stepInput struct {
	HThought           string
	LThought           string
	Candidates         []string
	ConfidenceScore    *float64
	ComplexityEstimate *float64
}

// stepResult is what a single operation handler produced.
type stepResult struct {
	Summary   string
	Duplicate bool
	Halt      *HaltDecision
}

// apply dispatches one content operation against st. auto_reason is handled by the
// driver and is rejected here.
func (e *Engine) apply(ctx context.Context, st *session.State, op session.Operation, in stepInput) (stepResult, error) {
	var res stepResult
	switch op {
	case session.OpHPlan:
		e.enrich(ctx, st)
		res.Summary = e.hPlan(st, in)
	case session.OpLExecute:
		res.Summary, res.Duplicate = e.lExecute(st, in)
	case session.OpHUpdate:
		res.Summary = e.hUpdate(st, in)
	case session.OpEvaluate:
		res.Summary = e.evaluate(st, in)
	case session.OpHaltCheck:
		d := CheckHalt(st)
		res.Summary = d.Rationale
		res.Halt = &d
	default:
		return res, apperrors.WrapErrorf(apperrors.ErrUnsupportedOperation, "operation %q", op)
	}

	// evaluate already recomputed, halt_check must not touch metrics
	if op != session.OpEvaluate && op != session.OpHaltCheck {
		st.Metrics = ComputeMetrics(st)
	}
	e.logger.Debug("Applied reasoning operation",
		zap.String("session_id", st.ID),
		zap.String("operation", op.String()),
		zap.Int("h_cycle", st.HCycle),
		zap.Int("l_cycle", st.LCycle))
	return res, nil
}

func (e *Engine) hPlan(st *session.State, in stepInput) string {
	thought := utils.NormalizeThought(in.HThought)
	if thought == "" {
		thought = planFallback(st)
	}
	st.HContext = utils.AppendWithinBudget(st.HContext, thought, utils.ContextCharBudget)
	advanceH(st)
	return fmt.Sprintf("High-level plan recorded (H-cycle %d): %s", st.HCycle, utils.Truncate(thought, summaryPreviewChars))
}

// lExecute appends a low-level step unless an equivalent thought was recorded within the
// last few steps. Duplicates leave context and the signature window untouched.
func (e *Engine) lExecute(st *session.State, in stepInput) (string, bool) {
	thought := utils.NormalizeThought(in.LThought)
	if thought == "" {
		thought = executeFallback(st)
	}

	window := lThoughtWindow(st)
	sig := utils.ThoughtSignature(thought)
	if window.Contains(sig) {
		duplicateThoughts.Inc()
		advanceL(st)
		return fmt.Sprintf("Low-level thought duplicate ignored (H-cycle %d, L-cycle %d): %s",
			st.HCycle, st.LCycle, utils.Truncate(thought, summaryPreviewChars)), true
	}

	st.LContext = utils.AppendWithinBudget(st.LContext, thought, utils.ContextCharBudget)
	window.Add(sig)
	st.RecentLThoughtHashes = window.Signatures()
	advanceL(st)
	return fmt.Sprintf("Low-level step recorded (H-cycle %d, L-cycle %d): %s",
		st.HCycle, st.LCycle, utils.Truncate(thought, summaryPreviewChars)), false
}

func (e *Engine) hUpdate(st *session.State, in stepInput) string {
	cycle := st.HCycle
	thought := utils.NormalizeThought(in.HThought)
	if thought == "" {
		thought = synthesisFallback(st)
	}
	if len(in.Candidates) > 0 {
		st.ReplaceCandidates(in.Candidates)
	}
	st.HContext = utils.AppendWithinBudget(st.HContext, thought, utils.ContextCharBudget)
	advanceH(st)
	return fmt.Sprintf("High-level synthesis after cycle %d (%d candidates): %s",
		cycle, len(st.SolutionCandidates), utils.Truncate(thought, summaryPreviewChars))
}

// evaluate applies the optional overrides, recomputes metrics and feeds the plateau window.
func (e *Engine) evaluate(st *session.State, in stepInput) string {
	if in.ComplexityEstimate != nil {
		st.ComplexityEstimate = clamp(*in.ComplexityEstimate, session.MinComplexityEstimate, session.MaxComplexityEstimate)
	}
	st.Metrics = ComputeMetrics(st)
	if in.ConfidenceScore != nil {
		st.Metrics.ConfidenceScore = clamp01(*in.ConfidenceScore)
		st.Metrics.ShouldContinue = shouldContinue(st.Metrics.ConfidenceScore, st.Metrics.ConvergenceScore, st.ConvergenceThreshold)
	}

	plateaued := e.plateau().Observe(st, st.Metrics.ConfidenceScore)
	msg := fmt.Sprintf("Evaluation: confidence %.3f, convergence %.3f, complexity %.1f.",
		st.Metrics.ConfidenceScore, st.Metrics.ConvergenceScore, st.Metrics.ComplexityAssessment)
	if plateaued {
		msg += fmt.Sprintf(" Confidence plateau detected (%d consecutive).", st.PlateauCount)
	}
	return msg
}

// advanceH moves to the next high-level cycle once low-level work has happened in the
// current one. The first plan of a fresh session stays in cycle 0.
func advanceH(st *session.State) {
	if st.LCycle == 0 {
		return
	}
	st.LCycle = 0
	if st.HCycle < st.MaxHCycles {
		st.HCycle++
	}
}

// advanceL counts a low-level step and rolls into the next high-level cycle when the
// per-plan budget is reached.
func advanceL(st *session.State) {
	st.LCycle++
	if st.LCycle >= st.MaxLCyclesPerH {
		st.LCycle = 0
		if st.HCycle < st.MaxHCycles {
			st.HCycle++
		}
	}
}

func planFallback(st *session.State) string {
	if summary := utils.Summarize(st.LContext, fallbackSummaryChars); summary != "" {
		return "Plan from recent execution: " + summary
	}
	if st.Problem != "" {
		return "Plan for problem: " + st.Problem
	}
	return fmt.Sprintf("Plan for H-cycle %d", st.HCycle)
}

func executeFallback(st *session.State) string {
	step := fmt.Sprintf("Execute step %d of H-cycle %d", st.LCycle+1, st.HCycle)
	if plan := utils.Summarize(st.HContext, fallbackSummaryChars); plan != "" {
		return step + " toward: " + plan
	}
	return step
}

func synthesisFallback(st *session.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "synthesis after cycle %d", st.HCycle)
	if summary := utils.Summarize(st.LContext, fallbackSummaryChars); summary != "" {
		b.WriteString(": ")
		b.WriteString(summary)
	}
	return b.String()
}

func appendContext(entries []string, entry string) []string {
	entry = utils.NormalizeThought(entry)
	if entry == "" {
		return entries
	}
	return utils.AppendWithinBudget(entries, entry, utils.ContextCharBudget)
}

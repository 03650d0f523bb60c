package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hrm-reasoner/session"
)

// runBudget bounds an automatic reasoning run by step count and wall-clock time.
type runBudget struct {
	maxSteps int
	deadline time.Time
	now      func() time.Time
	logger   *zap.Logger
}

// ShouldContinue checks whether another iteration may start after step iterations.
// Returns (shouldContinue, reason). If shouldContinue is false, reason names the
// exhausted budget.
func (b *runBudget) ShouldContinue(ctx context.Context, step int) (bool, string) {
	if step >= b.maxSteps {
		b.logger.Info("Reached maximum auto-reason steps",
			zap.Int("max_steps", b.maxSteps))
		return false, "maximum steps reached"
	}
	if !b.now().Before(b.deadline) {
		b.logger.Info("Auto-reason timeout elapsed",
			zap.Int("steps_completed", step))
		return false, "timeout elapsed"
	}
	if err := ctx.Err(); err != nil {
		b.logger.Info("Auto-reason request context ended",
			zap.Int("steps_completed", step),
			zap.Error(err))
		return false, "request ended"
	}
	return true, ""
}

// autoRun holds the bookkeeping of one automatic reasoning run.
type autoRun struct {
	st       *session.State
	trace    []session.TraceEntry
	last     session.Operation
	trigger  session.HaltTrigger
	decision *HaltDecision
}

func (r *autoRun) record(op session.Operation, note string) {
	r.trace = append(r.trace, session.TraceEntry{
		Step:      len(r.trace) + 1,
		Operation: op,
		HCycle:    r.st.HCycle,
		LCycle:    r.st.LCycle,
		Note:      note,
		Metrics:   r.st.Metrics,
	})
	r.last = op
}

// autoReason chains operations chosen by the suggestion policy until a halt check
// fires or the step/time budget runs out. The run is persisted once, at the end.
func (e *Engine) autoReason(ctx context.Context, st *session.State, created bool) (*Response, error) {
	st.AutoMode = true
	e.enrich(ctx, st)

	budget := &runBudget{
		maxSteps: e.opts.MaxSteps,
		deadline: e.now().Add(e.opts.Timeout),
		now:      e.now,
		logger:   e.logger.With(zap.String("session_id", st.ID)),
	}
	run := &autoRun{st: st}

	steps := 0
	stopReason := ""
	for {
		ok, reason := budget.ShouldContinue(ctx, steps)
		if !ok {
			stopReason = reason
			break
		}
		steps++

		next := session.OpHPlan
		if steps > 1 {
			next = SuggestNext(st, run.last).Operation
		}

		if next == session.OpHaltCheck {
			if e.forcedHaltCheck(run, "") {
				break
			}
			continue
		}

		res, err := e.apply(ctx, st, next, stepInput{})
		if err != nil {
			return nil, fmt.Errorf("auto-reason step %d (%s): %w", steps, next, err)
		}
		st.RecordDecision(next, res.Summary, e.now())
		run.record(next, res.Summary)

		if !st.Metrics.ShouldContinue && next != session.OpEvaluate {
			if e.forcedHaltCheck(run, "Safety net: ") {
				break
			}
		}
	}

	if run.trigger == session.TriggerNone {
		run.trigger = session.TriggerMaxSteps
	}
	st.AutoMode = false
	st.LastTrace = run.trace
	st.LastHaltTrigger = run.trigger
	autoReasonSteps.Observe(float64(steps))
	haltsTotal.WithLabelValues(string(run.trigger)).Inc()

	summary := fmt.Sprintf("Auto reasoning finished after %d steps (%d trace entries), halt trigger: %s.",
		steps, len(run.trace), run.trigger)
	if stopReason != "" {
		summary += fmt.Sprintf(" Budget exhausted: %s.", stopReason)
	} else if run.decision != nil {
		summary += " " + run.decision.Rationale
	}

	next := SuggestNext(st, run.last)
	if err := e.sessions.Update(ctx, st, session.OpAutoReason, summary, next.Operation); err != nil {
		return nil, err
	}

	e.logger.Info("Auto reasoning finished",
		zap.String("session_id", st.ID),
		zap.Int("steps", steps),
		zap.String("halt_trigger", string(run.trigger)),
		zap.Float64("confidence", st.Metrics.ConfidenceScore),
		zap.Float64("convergence", st.Metrics.ConvergenceScore))

	resp := successResponse(st, session.OpAutoReason, summary, next, created)
	resp.HaltDecision = run.decision
	resp.withTrace(run.trace, run.trigger)
	resp.withFramework(st.FrameworkInsight, st.FrameworkNotes)
	return resp, nil
}

// forcedHaltCheck evaluates the session and then decides whether to halt, recording a
// single trace entry for the decision. It reports whether the run should stop.
func (e *Engine) forcedHaltCheck(run *autoRun, notePrefix string) bool {
	st := run.st
	st.RecordDecision(session.OpEvaluate, e.evaluate(st, stepInput{}), e.now())

	d := CheckHalt(st)
	st.RecordDecision(session.OpHaltCheck, d.Rationale, e.now())
	run.record(session.OpHaltCheck, notePrefix+d.Rationale)
	run.decision = &d
	if d.ShouldHalt {
		run.trigger = d.Trigger
	}
	return d.ShouldHalt
}

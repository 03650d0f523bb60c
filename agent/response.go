package agent

import (
	"strings"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
	"hrm-reasoner/web/format"
)

// ConvergenceStatus is the tri-state progress reading of a session.
type ConvergenceStatus string

const (
	StatusConverging ConvergenceStatus = "converging"
	StatusConverged  ConvergenceStatus = "converged"
	StatusDiverging  ConvergenceStatus = "diverging"
)

// Content block types.
const (
	BlockSummary   = "summary"
	BlockTrace     = "trace"
	BlockFramework = "framework"
	BlockError     = "error"
)

// ContentBlock is one textual part of a response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// StateSnapshot is the caller-facing view of a session after an operation.
type StateSnapshot struct {
	HCycle               int                 `json:"h_cycle"`
	LCycle               int                 `json:"l_cycle"`
	MaxLCyclesPerH       int                 `json:"max_l_cycles_per_h"`
	MaxHCycles           int                 `json:"max_h_cycles"`
	HContext             string              `json:"h_context"`
	LContext             string              `json:"l_context"`
	SolutionCandidates   []string            `json:"solution_candidates"`
	Operation            session.Operation   `json:"operation,omitempty"`
	ConvergenceStatus    ConvergenceStatus   `json:"convergence_status"`
	ConvergenceThreshold float64             `json:"convergence_threshold"`
	ComplexityEstimate   float64             `json:"complexity_estimate"`
	PlateauCount         int                 `json:"plateau_count"`
	MetricHistory        []float64           `json:"metric_history"`
	RecentDecisions      []string            `json:"recent_decisions"`
	PendingActions       []session.Operation `json:"pending_actions"`
	Problem              string              `json:"problem,omitempty"`
	WorkspacePath        string              `json:"workspace_path,omitempty"`
	FrameworkNotes       []string            `json:"framework_notes,omitempty"`
}

// Response is the reply to one Request. Error responses still carry the last known
// session state so the caller can resume.
type Response struct {
	Content                []ContentBlock         `json:"content"`
	CurrentState           *StateSnapshot         `json:"current_state,omitempty"`
	ReasoningMetrics       session.Metrics        `json:"reasoning_metrics"`
	SuggestedNextOperation session.Operation      `json:"suggested_next_operation"`
	SuggestionPriority     int                    `json:"suggestion_priority"`
	SuggestionReason       string                 `json:"suggestion_reason,omitempty"`
	SessionID              string                 `json:"session_id,omitempty"`
	SessionCreated         bool                   `json:"session_created,omitempty"`
	Trace                  []session.TraceEntry   `json:"trace,omitempty"`
	HaltTrigger            session.HaltTrigger    `json:"halt_trigger,omitempty"`
	HaltDecision           *HaltDecision          `json:"halt_decision,omitempty"`
	IsError                bool                   `json:"is_error,omitempty"`
	Error                  string                 `json:"error,omitempty"`
	ValidationErrors       []apperrors.FieldError `json:"validation_errors,omitempty"`

	err error
}

// Err returns the failure behind an error response, or nil.
func (r *Response) Err() error {
	return r.err
}

// Text joins every content block.
func (r *Response) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Snapshot builds the caller-facing view of st after op.
func Snapshot(st *session.State, op session.Operation) *StateSnapshot {
	return &StateSnapshot{
		HCycle:               st.HCycle,
		LCycle:               st.LCycle,
		MaxLCyclesPerH:       st.MaxLCyclesPerH,
		MaxHCycles:           st.MaxHCycles,
		HContext:             strings.Join(st.HContext, "\n"),
		LContext:             strings.Join(st.LContext, "\n"),
		SolutionCandidates:   append([]string{}, st.SolutionCandidates...),
		Operation:            op,
		ConvergenceStatus:    StatusOf(st),
		ConvergenceThreshold: st.ConvergenceThreshold,
		ComplexityEstimate:   st.ComplexityEstimate,
		PlateauCount:         st.PlateauCount,
		MetricHistory:        append([]float64{}, st.MetricHistory...),
		RecentDecisions:      append([]string{}, st.RecentDecisions...),
		PendingActions:       append([]session.Operation{}, st.PendingActions...),
		Problem:              st.Problem,
		WorkspacePath:        st.WorkspacePath,
		FrameworkNotes:       st.FrameworkNotes,
	}
}

// StatusOf reads the convergence status of st: converged once confidence and
// convergence clear their thresholds, diverging while confidence is flat.
func StatusOf(st *session.State) ConvergenceStatus {
	if d := CheckHalt(st); d.ShouldHalt && d.Trigger == session.TriggerConfidenceConvergence {
		return StatusConverged
	}
	if st.PlateauCount > 0 {
		return StatusDiverging
	}
	return StatusConverging
}

func successResponse(st *session.State, op session.Operation, summary string, next Suggestion, created bool) *Response {
	resp := &Response{
		Content:                []ContentBlock{{Type: BlockSummary, Text: summary}},
		CurrentState:           Snapshot(st, op),
		ReasoningMetrics:       st.Metrics,
		SuggestedNextOperation: next.Operation,
		SuggestionPriority:     next.Priority(),
		SuggestionReason:       next.Reason,
		SessionID:              st.ID,
		SessionCreated:         created,
	}
	return resp
}

func (r *Response) withTrace(trace []session.TraceEntry, trigger session.HaltTrigger) {
	r.Trace = trace
	r.HaltTrigger = trigger
	if len(trace) > 0 {
		r.Content = append(r.Content, ContentBlock{Type: BlockTrace, Text: format.TraceMarkdown(trace)})
	}
}

func (r *Response) withFramework(insight *session.FrameworkInsight, notes []string) {
	if text := format.FrameworkMarkdown(insight, notes); text != "" {
		r.Content = append(r.Content, ContentBlock{Type: BlockFramework, Text: text})
	}
}

// NewErrorResponse reports a failure that happened before any session was involved,
// such as an undecodable request body.
func NewErrorResponse(err error) *Response {
	return errorResponse(nil, "", err)
}

// errorResponse reports err against the last known state st, which may be nil when no
// session could be loaded.
func errorResponse(st *session.State, op session.Operation, err error) *Response {
	next := Suggestion{Operation: session.OpEvaluate, Reason: "recover by reassessing the session"}
	resp := &Response{
		Content:                []ContentBlock{{Type: BlockError, Text: "Error: " + err.Error()}},
		SuggestedNextOperation: next.Operation,
		SuggestionPriority:     next.Priority(),
		SuggestionReason:       next.Reason,
		IsError:                true,
		Error:                  err.Error(),
		err:                    err,
	}
	if ve, ok := apperrors.AsValidation(err); ok {
		resp.ValidationErrors = ve.Fields
	}
	if st != nil {
		resp.CurrentState = Snapshot(st, op)
		resp.ReasoningMetrics = st.Metrics
		resp.SessionID = st.ID
	} else {
		resp.CurrentState = &StateSnapshot{Operation: op}
	}
	resp.CurrentState.ConvergenceStatus = StatusDiverging
	return resp
}

package agent

import (
	"hrm-reasoner/session"
)

// Phase distinguishes caller-driven requests from the automatic driver loop.
type Phase int

const (
	PhaseAny Phase = iota
	PhaseManual
	PhaseAuto
)

func (p Phase) String() string {
	switch p {
	case PhaseManual:
		return "manual"
	case PhaseAuto:
		return "auto"
	default:
		return "any"
	}
}

// MetricState is the coarse reading of the metrics the policy keys on.
type MetricState int

const (
	MetricsAny MetricState = iota
	MetricsContinue
	MetricsStop
	MetricsPlateau
)

func (m MetricState) String() string {
	switch m {
	case MetricsContinue:
		return "continue"
	case MetricsStop:
		return "stop"
	case MetricsPlateau:
		return "plateau"
	default:
		return "any"
	}
}

// PolicyInput is everything the suggestion policy looks at.
type PolicyInput struct {
	Phase       Phase
	Last        session.Operation
	Metrics     MetricState
	HasPlan     bool
	LEntries    int
	LCycle      int
	MaxLCycles  int
	HBudgetUsed bool
}

// NewPolicyInput reads the policy view of st after last ran.
func NewPolicyInput(st *session.State, last session.Operation) PolicyInput {
	in := PolicyInput{
		Phase:       PhaseManual,
		Last:        last,
		Metrics:     MetricsContinue,
		HasPlan:     len(st.HContext) > 0,
		LEntries:    len(st.LContext),
		LCycle:      st.LCycle,
		MaxLCycles:  st.MaxLCyclesPerH,
		HBudgetUsed: st.HCycle >= st.MaxHCycles,
	}
	if st.AutoMode {
		in.Phase = PhaseAuto
	}
	switch {
	case st.PlateauCount >= plateauHaltCount:
		in.Metrics = MetricsPlateau
	case !st.Metrics.ShouldContinue:
		in.Metrics = MetricsStop
	}
	return in
}

// Transition is one row of the suggestion table. Zero-valued keys match anything.
type Transition struct {
	Phase   Phase
	Metrics MetricState
	Last    session.Operation
	NotLast session.Operation
	Guard   func(PolicyInput) bool
	Next    session.Operation
	Reason  string
}

func (t Transition) matches(in PolicyInput) bool {
	if t.Phase != PhaseAny && t.Phase != in.Phase {
		return false
	}
	if t.Metrics != MetricsAny && t.Metrics != in.Metrics {
		return false
	}
	if t.Last != "" && t.Last != in.Last {
		return false
	}
	if t.NotLast != "" && t.NotLast == in.Last {
		return false
	}
	return t.Guard == nil || t.Guard(in)
}

// transitions is evaluated top to bottom; the first matching row wins. The final
// manual rows prefer evaluate, then halt_check, then l_execute, skipping whichever
// operation just ran.
var transitions = []Transition{
	{Metrics: MetricsPlateau, Next: session.OpHaltCheck, Reason: "confidence has plateaued"},

	{Phase: PhaseAuto, Metrics: MetricsStop, Next: session.OpHaltCheck, Reason: "metrics no longer ask to continue"},
	{Phase: PhaseAuto, Metrics: MetricsContinue, Guard: hBudgetUsed, Next: session.OpEvaluate, Reason: "high-level cycle budget is used up"},
	{Phase: PhaseAuto, Metrics: MetricsContinue, NotLast: session.OpHPlan, Guard: atLSetStart, Next: session.OpHPlan, Reason: "start of a new low-level cycle set"},
	{Phase: PhaseAuto, Metrics: MetricsContinue, Guard: lBudgetLeft, Next: session.OpLExecute, Reason: "low-level cycle budget remains"},
	{Phase: PhaseAuto, Metrics: MetricsContinue, Next: session.OpEvaluate, Reason: "low-level cycle budget is used up"},

	{Phase: PhaseManual, Guard: noPlan, Next: session.OpHPlan, Reason: "no high-level plan yet"},
	{Phase: PhaseManual, Guard: fewLEntries, Next: session.OpLExecute, Reason: "fewer low-level steps than the per-plan budget"},
	{Phase: PhaseManual, Last: session.OpLExecute, Next: session.OpHUpdate, Reason: "synthesise the executed steps"},
	{Phase: PhaseManual, NotLast: session.OpEvaluate, Next: session.OpEvaluate, Reason: "reassess progress"},
	{Phase: PhaseManual, NotLast: session.OpHaltCheck, Next: session.OpHaltCheck, Reason: "check whether to stop"},
	{Phase: PhaseManual, Next: session.OpLExecute, Reason: "continue executing"},
}

func hBudgetUsed(in PolicyInput) bool { return in.HBudgetUsed }
func atLSetStart(in PolicyInput) bool { return in.LCycle == 0 }
func lBudgetLeft(in PolicyInput) bool { return in.LCycle < in.MaxLCycles }
func noPlan(in PolicyInput) bool      { return !in.HasPlan }
func fewLEntries(in PolicyInput) bool { return in.LEntries < in.MaxLCycles }

// Transitions returns a copy of the suggestion table in evaluation order.
func Transitions() []Transition {
	return append([]Transition(nil), transitions...)
}

// Suggestion is the policy's proposal for the next operation.
type Suggestion struct {
	Operation session.Operation
	Reason    string
}

// Priority is the static priority of the suggested operation.
func (s Suggestion) Priority() int {
	return s.Operation.Priority()
}

// SuggestFor evaluates the transition table against in.
func SuggestFor(in PolicyInput) Suggestion {
	for _, t := range transitions {
		if t.matches(in) {
			return Suggestion{Operation: t.Next, Reason: t.Reason}
		}
	}
	return Suggestion{Operation: session.OpEvaluate, Reason: "no rule matched"}
}

// SuggestNext proposes the operation to run after last on st.
func SuggestNext(st *session.State, last session.Operation) Suggestion {
	return SuggestFor(NewPolicyInput(st, last))
}

package session

import "strings"

// Operation is one step of the hierarchical reasoning state machine.
type Operation string

const (
	OpHPlan      Operation = "h_plan"
	OpLExecute   Operation = "l_execute"
	OpHUpdate    Operation = "h_update"
	OpEvaluate   Operation = "evaluate"
	OpHaltCheck  Operation = "halt_check"
	OpAutoReason Operation = "auto_reason"
)

// operationPriority is the static preference table; lower values are preferred.
var operationPriority = map[Operation]int{
	OpAutoReason: 0,
	OpHPlan:      1,
	OpLExecute:   2,
	OpHUpdate:    3,
	OpEvaluate:   4,
	OpHaltCheck:  5,
}

// ParseOperation maps a wire name, ignoring case and surrounding space, to an Operation.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	return op, op.Valid()
}

// String returns the wire name of the operation.
func (o Operation) String() string {
	return string(o)
}

// Valid reports whether o is one of the six known operations.
func (o Operation) Valid() bool {
	_, ok := operationPriority[o]
	return ok
}

// Priority returns the static priority of o, or -1 for unknown operations.
func (o Operation) Priority() int {
	if p, ok := operationPriority[o]; ok {
		return p
	}
	return -1
}

// AllOperations lists the known operations in priority order.
func AllOperations() []Operation {
	return []Operation{OpAutoReason, OpHPlan, OpLExecute, OpHUpdate, OpEvaluate, OpHaltCheck}
}

// HaltTrigger tags why a reasoning run stopped.
type HaltTrigger string

const (
	// TriggerNone means no halt condition fired.
	TriggerNone HaltTrigger = ""

	// TriggerConfidenceConvergence means confidence and convergence both cleared their thresholds.
	TriggerConfidenceConvergence HaltTrigger = "confidence_convergence"

	// TriggerPlateau means confidence stopped improving across evaluations.
	TriggerPlateau HaltTrigger = "plateau"

	// TriggerMaxSteps means the step or time budget ran out first.
	TriggerMaxSteps HaltTrigger = "max_steps"
)

// Metrics is the last computed heuristic assessment of a session.
type Metrics struct {
	ConfidenceScore      float64 `json:"confidence_score"`
	ConvergenceScore     float64 `json:"convergence_score"`
	ComplexityAssessment float64 `json:"complexity_assessment"`
	ShouldContinue       bool    `json:"should_continue"`
}

// TraceEntry records one operation of an automatic reasoning run.
type TraceEntry struct {
	Step      int       `json:"step"`
	Operation Operation `json:"operation"`
	HCycle    int       `json:"h_cycle"`
	LCycle    int       `json:"l_cycle"`
	Note      string    `json:"note"`
	Metrics   Metrics   `json:"metrics"`
}

// FrameworkInsight is the cached, opaque output of the framework-detection collaborator
// for one workspace.
type FrameworkInsight struct {
	Workspace  string   `json:"workspace"`
	Frameworks []string `json:"frameworks,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
	Notes      []string `json:"notes,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
}

// Clone returns a deep copy of the insight.
func (f *FrameworkInsight) Clone() *FrameworkInsight {
	if f == nil {
		return nil
	}
	return &FrameworkInsight{
		Workspace:  f.Workspace,
		Frameworks: cloneStrings(f.Frameworks),
		Highlights: cloneStrings(f.Highlights),
		Notes:      cloneStrings(f.Notes),
		Skipped:    f.Skipped,
	}
}

package session

import (
	"fmt"
	"time"

	"hrm-reasoner/utils"
)

// Bounds and defaults of a reasoning session.
const (
	DefaultMaxLCyclesPerH       = 3
	DefaultMaxHCycles           = 4
	MinCycleCap                 = 1
	MaxCycleCap                 = 20
	DefaultConvergenceThreshold = 0.85
	MinConvergenceThreshold     = 0.5
	MaxConvergenceThreshold     = 0.99
	DefaultComplexityEstimate   = 5.0
	MinComplexityEstimate       = 1.0
	MaxComplexityEstimate       = 10.0

	MaxRecentDecisions   = 12
	MaxPendingActions    = 6
	MaxThoughtSignatures = 5
	MaxFrameworkNotes    = 20

	decisionSummaryChars = 160
)

// State is the reasoning state of one conversation.
type State struct {
	ID string `json:"session_id"`

	HCycle         int `json:"h_cycle"`
	LCycle         int `json:"l_cycle"`
	MaxLCyclesPerH int `json:"max_l_cycles_per_h"`
	MaxHCycles     int `json:"max_h_cycles"`

	HContext           []string `json:"h_context"`
	LContext           []string `json:"l_context"`
	SolutionCandidates []string `json:"solution_candidates"`

	ConvergenceThreshold float64   `json:"convergence_threshold"`
	Metrics              Metrics   `json:"metrics"`
	MetricHistory        []float64 `json:"metric_history"`
	PlateauCount         int       `json:"plateau_count"`

	RecentDecisions      []string    `json:"recent_decisions"`
	PendingActions       []Operation `json:"pending_actions"`
	RecentLThoughtHashes []string    `json:"recent_l_thought_hashes"`

	AutoMode           bool    `json:"auto_mode"`
	ComplexityEstimate float64 `json:"complexity_estimate"`
	Problem            string  `json:"problem,omitempty"`
	WorkspacePath      string  `json:"workspace_path,omitempty"`

	FrameworkInsight *FrameworkInsight `json:"framework_insight,omitempty"`
	FrameworkNotes   []string          `json:"framework_notes,omitempty"`

	LastTrace       []TraceEntry `json:"last_trace,omitempty"`
	LastHaltTrigger HaltTrigger  `json:"last_halt_trigger,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
}

// Params carries the caller-supplied settings used when a session is created or
// reapplied. Nil pointers and empty strings mean "not supplied".
type Params struct {
	HCycle               *int
	LCycle               *int
	MaxLCyclesPerH       *int
	MaxHCycles           *int
	ConvergenceThreshold *float64
	ComplexityEstimate   *float64
	Problem              string
	WorkspacePath        string
	HContext             string
	LContext             string
	SolutionCandidates   []string
}

// NewState builds a fresh session with defaults, clamping every supplied value into bounds.
func NewState(id string, p Params, now time.Time) *State {
	st := &State{
		ID:                   id,
		MaxLCyclesPerH:       DefaultMaxLCyclesPerH,
		MaxHCycles:           DefaultMaxHCycles,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		ComplexityEstimate:   DefaultComplexityEstimate,
		CreatedAt:            now,
		LastUpdated:          now,
	}
	st.ApplyParams(p)

	if p.HCycle != nil {
		st.HCycle = *p.HCycle
	}
	if p.LCycle != nil {
		st.LCycle = *p.LCycle
	}
	st.HContext = utils.ParseContextBlob(p.HContext)
	st.LContext = utils.ParseContextBlob(p.LContext)
	if len(p.SolutionCandidates) > 0 {
		st.SolutionCandidates = normalizeCandidates(p.SolutionCandidates)
	}
	st.clampCycles()

	st.Metrics = Metrics{
		ComplexityAssessment: st.ComplexityEstimate,
		ShouldContinue:       true,
	}
	return st
}

// ApplyParams reapplies the mutable subset of params (cycle caps, convergence threshold,
// complexity estimate, problem, workspace path) without touching accumulated context.
func (s *State) ApplyParams(p Params) {
	if p.MaxLCyclesPerH != nil {
		s.MaxLCyclesPerH = clampInt(*p.MaxLCyclesPerH, MinCycleCap, MaxCycleCap)
	}
	if p.MaxHCycles != nil {
		s.MaxHCycles = clampInt(*p.MaxHCycles, MinCycleCap, MaxCycleCap)
	}
	if p.ConvergenceThreshold != nil {
		s.ConvergenceThreshold = clampFloat(*p.ConvergenceThreshold, MinConvergenceThreshold, MaxConvergenceThreshold)
	}
	if p.ComplexityEstimate != nil {
		s.ComplexityEstimate = clampFloat(*p.ComplexityEstimate, MinComplexityEstimate, MaxComplexityEstimate)
	}
	if problem := utils.NormalizeThought(p.Problem); problem != "" {
		s.Problem = problem
	}
	if p.WorkspacePath != "" {
		s.WorkspacePath = p.WorkspacePath
	}
	s.clampCycles()
}

// clampCycles restores 0 <= LCycle < MaxLCyclesPerH and 0 <= HCycle <= MaxHCycles.
func (s *State) clampCycles() {
	s.HCycle = clampInt(s.HCycle, 0, s.MaxHCycles)
	s.LCycle = clampInt(s.LCycle, 0, s.MaxLCyclesPerH-1)
}

// Clone returns a deep copy of the session.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.HContext = cloneStrings(s.HContext)
	c.LContext = cloneStrings(s.LContext)
	c.SolutionCandidates = cloneStrings(s.SolutionCandidates)
	c.MetricHistory = append([]float64(nil), s.MetricHistory...)
	c.RecentDecisions = cloneStrings(s.RecentDecisions)
	c.PendingActions = append([]Operation(nil), s.PendingActions...)
	c.RecentLThoughtHashes = cloneStrings(s.RecentLThoughtHashes)
	c.FrameworkInsight = s.FrameworkInsight.Clone()
	c.FrameworkNotes = cloneStrings(s.FrameworkNotes)
	c.LastTrace = append([]TraceEntry(nil), s.LastTrace...)
	return &c
}

// Expired reports whether the session has been idle longer than ttl at now.
// A ttl of zero or less never expires.
func (s *State) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.LastUpdated) > ttl
}

// ReplaceCandidates swaps the candidate list wholesale.
func (s *State) ReplaceCandidates(candidates []string) {
	s.SolutionCandidates = normalizeCandidates(candidates)
}

// RecordDecision bumps LastUpdated, logs "op:summary" in the bounded decision log and
// pops one pending action. It does not persist.
func (s *State) RecordDecision(op Operation, summary string, now time.Time) {
	s.LastUpdated = now
	decision := fmt.Sprintf("%s:%s", op, utils.Truncate(utils.CollapseWhitespace(summary), decisionSummaryChars))
	s.RecentDecisions = utils.AppendBounded(s.RecentDecisions, decision, MaxRecentDecisions)
	_, s.PendingActions, _ = utils.PopFront(s.PendingActions)
}

// EnqueueAction adds a scheduling hint to the bounded pending queue.
func (s *State) EnqueueAction(op Operation) {
	s.PendingActions = utils.AppendBounded(s.PendingActions, op, MaxPendingActions)
}

// AddFrameworkNote appends to the bounded framework note log.
func (s *State) AddFrameworkNote(note string) {
	note = utils.NormalizeThought(note)
	if note == "" {
		return
	}
	s.FrameworkNotes = utils.AppendBounded(s.FrameworkNotes, note, MaxFrameworkNotes)
}

func normalizeCandidates(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = utils.NormalizeThought(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

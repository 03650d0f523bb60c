package agent

import (
	"fmt"

	"hrm-reasoner/session"
	"hrm-reasoner/utils"
)

// plateauHaltCount is the number of consecutive plateaued evaluations that forces a halt.
const plateauHaltCount = 2

// HaltDecision is the outcome of a halt check.
type HaltDecision struct {
	ShouldHalt bool                `json:"should_halt"`
	Rationale  string              `json:"rationale"`
	Trigger    session.HaltTrigger `json:"trigger,omitempty"`
}

// CheckHalt decides whether reasoning should stop. It reads st and never mutates it,
// so repeated calls without an evaluate in between agree. A plateau takes precedence
// over confidence/convergence.
func CheckHalt(st *session.State) HaltDecision {
	m := st.Metrics
	if st.PlateauCount >= plateauHaltCount {
		return HaltDecision{
			ShouldHalt: true,
			Rationale: fmt.Sprintf("Confidence plateaued for %d consecutive evaluations at %.3f; further cycles are unlikely to help.",
				st.PlateauCount, m.ConfidenceScore),
			Trigger: session.TriggerPlateau,
		}
	}
	if m.ConfidenceScore >= haltConfidence && m.ConvergenceScore >= st.ConvergenceThreshold {
		return HaltDecision{
			ShouldHalt: true,
			Rationale: fmt.Sprintf("Confidence %.3f >= %.2f and convergence %.3f >= %.2f.",
				m.ConfidenceScore, haltConfidence, m.ConvergenceScore, st.ConvergenceThreshold),
			Trigger: session.TriggerConfidenceConvergence,
		}
	}
	return HaltDecision{
		ShouldHalt: false,
		Rationale: fmt.Sprintf("Continue reasoning: confidence %.3f (needs %.2f), convergence %.3f (needs %.2f).",
			m.ConfidenceScore, haltConfidence, m.ConvergenceScore, st.ConvergenceThreshold),
	}
}

// PlateauDetector tracks the rolling confidence window of a session.
type PlateauDetector struct {
	// Window is the number of confidence scores compared.
	Window int

	// Delta is the minimum first-to-last improvement across a full window.
	Delta float64
}

// Observe pushes confidence into the history window. Once the window is full it
// increments PlateauCount when the improvement from the oldest to the newest score is
// below Delta and resets it otherwise. It reports whether this observation plateaued.
func (p PlateauDetector) Observe(st *session.State, confidence float64) bool {
	st.MetricHistory = utils.AppendBounded(st.MetricHistory, confidence, p.Window)
	if len(st.MetricHistory) < p.Window {
		return false
	}
	first := st.MetricHistory[0]
	last := st.MetricHistory[len(st.MetricHistory)-1]
	if last-first < p.Delta {
		st.PlateauCount++
		return true
	}
	st.PlateauCount = 0
	return false
}

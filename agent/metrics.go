package agent

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"hrm-reasoner/session"
)

// Calibrated constants of the heuristic metrics. The weights of each group sum to 1.
const (
	densitySaturationChars = 400.0
	singleEntryDiversity   = 0.2
	candidateSaturation    = 5.0
	momentumSaturation     = 10.0

	weightHighDensity   = 0.35
	weightLowDensity    = 0.35
	weightCandidatesCnv = 0.2
	weightHighDiversity = 0.1

	weightConvergence   = 0.45
	weightCandidatesCnf = 0.25
	weightSimplicity    = 0.15
	weightMomentum      = 0.15

	minComplexityPenalty = 0.1

	// haltConfidence is the confidence a session must reach before it may halt.
	haltConfidence = 0.8

	// convergenceFloor is the lowest convergence at which metrics stop asking to continue.
	convergenceFloor = 0.85
)

// ComputeMetrics maps the current session state to its heuristic assessment.
// It is a pure function of st.
func ComputeMetrics(st *session.State) session.Metrics {
	candidates := candidateStrength(len(st.SolutionCandidates))

	convergence := clamp01(
		weightHighDensity*textDensity(st.HContext) +
			weightLowDensity*textDensity(st.LContext) +
			weightCandidatesCnv*candidates +
			weightHighDiversity*diversity(st.HContext))

	penalty := clamp(st.ComplexityEstimate/10, minComplexityPenalty, 1)
	momentum := clamp01(float64(len(st.RecentDecisions)) / momentumSaturation)

	confidence := clamp01(
		weightConvergence*convergence +
			weightCandidatesCnf*candidates +
			weightSimplicity*(1-penalty) +
			weightMomentum*momentum)

	return session.Metrics{
		ConfidenceScore:      confidence,
		ConvergenceScore:     convergence,
		ComplexityAssessment: clamp(st.ComplexityEstimate, session.MinComplexityEstimate, session.MaxComplexityEstimate),
		ShouldContinue:       shouldContinue(confidence, convergence, st.ConvergenceThreshold),
	}
}

// shouldContinue asks for more reasoning until confidence reaches 0.8 and convergence
// reaches the larger of 0.85 and the session threshold.
func shouldContinue(confidence, convergence, threshold float64) bool {
	return confidence < haltConfidence || convergence < math.Max(convergenceFloor, threshold)
}

// textDensity rewards longer entries up to densitySaturationChars on average.
func textDensity(entries []string) float64 {
	if len(entries) == 0 {
		return 0
	}
	total := 0
	for _, e := range entries {
		total += utf8.RuneCountInString(e)
	}
	mean := float64(total) / float64(len(entries))
	return clamp01(mean / densitySaturationChars)
}

// diversity is a lexical-diversity proxy: unique words over total words plus one.
func diversity(entries []string) float64 {
	switch len(entries) {
	case 0:
		return 0
	case 1:
		return singleEntryDiversity
	}
	unique := make(map[string]struct{})
	total := 0
	for _, e := range entries {
		for _, w := range tokenize(e) {
			unique[w] = struct{}{}
			total++
		}
	}
	return clamp01(float64(len(unique)) / float64(total+1))
}

// tokenize splits on whitespace and punctuation, keeping case.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
}

func candidateStrength(n int) float64 {
	return clamp01(float64(n) / candidateSaturation)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

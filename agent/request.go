package agent

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

// requestValidate is shared by every Engine; validator caches struct metadata.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()
	requestValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Request is one call of the reasoning tool. Free-text fields longer than the thought
// limit are truncated rather than rejected.
type Request struct {
	Operation string `json:"operation" validate:"required"`

	HThought string `json:"h_thought,omitempty"`
	LThought string `json:"l_thought,omitempty"`
	Problem  string `json:"problem,omitempty"`

	HCycle         *int `json:"h_cycle,omitempty" validate:"omitempty,gte=0"`
	LCycle         *int `json:"l_cycle,omitempty" validate:"omitempty,gte=0"`
	MaxLCyclesPerH *int `json:"max_l_cycles_per_h,omitempty" validate:"omitempty,gte=1,lte=20"`
	MaxHCycles     *int `json:"max_h_cycles,omitempty" validate:"omitempty,gte=1,lte=20"`

	ConfidenceScore      *float64 `json:"confidence_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	ComplexityEstimate   *float64 `json:"complexity_estimate,omitempty" validate:"omitempty,gte=1,lte=10"`
	ConvergenceThreshold *float64 `json:"convergence_threshold,omitempty" validate:"omitempty,gte=0.5,lte=0.99"`

	HContext           string   `json:"h_context,omitempty"`
	LContext           string   `json:"l_context,omitempty"`
	SolutionCandidates []string `json:"solution_candidates,omitempty" validate:"omitempty,max=50"`

	SessionID     string `json:"session_id,omitempty" validate:"omitempty,uuid"`
	ResetState    bool   `json:"reset_state,omitempty"`
	WorkspacePath string `json:"workspace_path,omitempty" validate:"omitempty,max=4096"`
}

// Validate checks field bounds and reports every violated field. The operation name is
// checked at dispatch, not here.
func (r *Request) Validate() error {
	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
	}
	out := &apperrors.ValidationError{Fields: make([]apperrors.FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, apperrors.FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fieldMessage(fe),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "max":
		return fmt.Sprintf("must have at most %s items or characters", fe.Param())
	case "uuid":
		return "must be a UUID"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// ParsedOperation returns the requested operation and whether it is known.
func (r *Request) ParsedOperation() (session.Operation, bool) {
	return session.ParseOperation(r.Operation)
}

// Params converts the request into session creation parameters.
func (r *Request) Params() session.Params {
	return session.Params{
		HCycle:               r.HCycle,
		LCycle:               r.LCycle,
		MaxLCyclesPerH:       r.MaxLCyclesPerH,
		MaxHCycles:           r.MaxHCycles,
		ConvergenceThreshold: r.ConvergenceThreshold,
		ComplexityEstimate:   r.ComplexityEstimate,
		Problem:              r.Problem,
		WorkspacePath:        strings.TrimSpace(r.WorkspacePath),
		HContext:             r.HContext,
		LContext:             r.LContext,
		SolutionCandidates:   r.SolutionCandidates,
	}
}

func (r *Request) stepInput() stepInput {
	return stepInput{
		HThought:           r.HThought,
		LThought:           r.LThought,
		Candidates:         r.SolutionCandidates,
		ConfidenceScore:    r.ConfidenceScore,
		ComplexityEstimate: r.ComplexityEstimate,
	}
}

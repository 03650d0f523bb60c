package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

// Engine defaults and bounds.
const (
	DefaultPlateauWindow = 3
	MinPlateauWindow     = 2
	MaxPlateauWindow     = 20
	DefaultPlateauDelta  = 0.02
	DefaultMaxSteps      = 24
	DefaultTimeout       = 15 * time.Second
)

// Options configures an Engine. The default convergence threshold lives on the
// session manager, which seeds it into new sessions.
type Options struct {
	PlateauWindow int
	PlateauDelta  float64
	MaxSteps      int
	Timeout       time.Duration
}

// DefaultOptions returns the production engine settings.
func DefaultOptions() Options {
	return Options{
		PlateauWindow: DefaultPlateauWindow,
		PlateauDelta:  DefaultPlateauDelta,
		MaxSteps:      DefaultMaxSteps,
		Timeout:       DefaultTimeout,
	}
}

// Validate checks the documented bounds.
func (o Options) Validate() error {
	if o.PlateauWindow < MinPlateauWindow || o.PlateauWindow > MaxPlateauWindow {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "plateau window must be in [%d, %d], got %d",
			MinPlateauWindow, MaxPlateauWindow, o.PlateauWindow)
	}
	if o.PlateauDelta <= 0 || o.PlateauDelta >= 1 {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "plateau delta must be in (0, 1), got %.4f", o.PlateauDelta)
	}
	if o.MaxSteps < 1 {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "max steps must be at least 1, got %d", o.MaxSteps)
	}
	if o.Timeout <= 0 {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "auto-reason timeout must be positive, got %s", o.Timeout)
	}
	return nil
}

// FrameworkDetector inspects a workspace and returns advisory framework insight.
// Implementations validate the path themselves and report rejected paths with an
// error matching errors.ErrInvalidWorkspace.
type FrameworkDetector interface {
	Detect(ctx context.Context, workspace string) (*session.FrameworkInsight, error)
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithFrameworkDetector enables framework enrichment.
func WithFrameworkDetector(d FrameworkDetector) EngineOption {
	return func(e *Engine) {
		e.detector = d
	}
}

// WithEngineClock replaces the time source used for the auto-reason deadline.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine dispatches reasoning operations against sessions. Requests for one session id
// must be serialised by the caller.
type Engine struct {
	sessions *session.Manager
	detector FrameworkDetector
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an engine over the session manager.
func NewEngine(sessions *session.Manager, opts Options, logger *zap.Logger, options ...EngineOption) (*Engine, error) {
	if sessions == nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidConfig, "session manager is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		sessions: sessions,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Sessions exposes the underlying session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

func (e *Engine) plateau() PlateauDetector {
	return PlateauDetector{Window: e.opts.PlateauWindow, Delta: e.opts.PlateauDelta}
}

// Process runs one request. It never returns nil: failures become error responses
// carrying the last persisted state of the session.
func (e *Engine) Process(ctx context.Context, req Request) *Response {
	op, known := req.ParsedOperation()

	if err := req.Validate(); err != nil {
		operationsTotal.WithLabelValues(metricOp(op, known), "invalid").Inc()
		e.logger.Debug("Rejected reasoning request", zap.Error(err))
		return errorResponse(e.lastKnown(ctx, req.SessionID), op, err)
	}

	st, created, err := e.session(ctx, req)
	if err != nil {
		operationsTotal.WithLabelValues(metricOp(op, known), "error").Inc()
		e.logger.Error("Failed to load reasoning session",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return errorResponse(e.lastKnown(ctx, req.SessionID), op, err)
	}

	if !known {
		operationsTotal.WithLabelValues("unknown", "unsupported").Inc()
		err := apperrors.WrapErrorf(apperrors.ErrUnsupportedOperation, "operation %q", req.Operation)
		return errorResponse(st, op, err)
	}

	// handlers mutate a copy so a failure leaves st as the last persisted state
	work := st.Clone()
	var resp *Response
	if op == session.OpAutoReason {
		resp, err = e.autoReason(ctx, work, created)
	} else {
		resp, err = e.single(ctx, work, op, req.stepInput(), created)
	}
	if err != nil {
		operationsTotal.WithLabelValues(op.String(), "error").Inc()
		e.logger.Error("Reasoning operation failed",
			zap.String("session_id", st.ID),
			zap.String("operation", op.String()),
			zap.Error(err))
		return errorResponse(st, op, err)
	}

	operationsTotal.WithLabelValues(op.String(), "ok").Inc()
	return resp
}

func (e *Engine) session(ctx context.Context, req Request) (*session.State, bool, error) {
	if req.ResetState && req.SessionID != "" {
		st, err := e.sessions.Reset(ctx, req.SessionID, req.Params())
		return st, true, err
	}
	return e.sessions.GetOrCreate(ctx, req.SessionID, req.Params())
}

// lastKnown loads the persisted state of id for error responses, if there is one.
func (e *Engine) lastKnown(ctx context.Context, id string) *session.State {
	if id == "" {
		return nil
	}
	st, err := e.sessions.Get(ctx, id)
	if err != nil {
		return nil
	}
	return st
}

func (e *Engine) single(ctx context.Context, st *session.State, op session.Operation, in stepInput, created bool) (*Response, error) {
	res, err := e.apply(ctx, st, op, in)
	if err != nil {
		return nil, err
	}

	next := SuggestNext(st, op)
	if err := e.sessions.Update(ctx, st, op, res.Summary, next.Operation); err != nil {
		return nil, err
	}

	resp := successResponse(st, op, res.Summary, next, created)
	resp.HaltDecision = res.Halt
	if op == session.OpHPlan {
		resp.withFramework(st.FrameworkInsight, st.FrameworkNotes)
	}
	return resp, nil
}

// enrich consults the framework detector once per workspace. Highlights join the
// high-level context and notes go to the bounded framework log. Detector failures never
// fail the operation.
func (e *Engine) enrich(ctx context.Context, st *session.State) {
	if e.detector == nil || st.WorkspacePath == "" {
		return
	}
	if st.FrameworkInsight != nil && st.FrameworkInsight.Workspace == st.WorkspacePath {
		frameworkLookups.WithLabelValues("cached").Inc()
		return
	}

	insight, err := e.detect(ctx, st.WorkspacePath)
	switch {
	case apperrors.IsInvalidWorkspace(err):
		frameworkLookups.WithLabelValues("skipped").Inc()
		st.FrameworkInsight = &session.FrameworkInsight{Workspace: st.WorkspacePath, Skipped: true}
		st.AddFrameworkNote(fmt.Sprintf("Framework detection skipped: %v", err))
		return
	case err != nil:
		frameworkLookups.WithLabelValues("failed").Inc()
		e.logger.Warn("Framework detection failed, continuing without enrichment",
			zap.String("session_id", st.ID),
			zap.String("workspace_path", st.WorkspacePath),
			zap.Error(err))
		return
	}

	frameworkLookups.WithLabelValues("ok").Inc()
	insight = insight.Clone()
	insight.Workspace = st.WorkspacePath
	st.FrameworkInsight = insight
	for _, h := range insight.Highlights {
		st.HContext = appendContext(st.HContext, "Framework: "+h)
	}
	for _, n := range insight.Notes {
		st.AddFrameworkNote(n)
	}
}

// detect calls the detector, turning a panic into a collaborator error.
func (e *Engine) detect(ctx context.Context, workspace string) (insight *session.FrameworkInsight, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: framework detector panicked: %v", apperrors.ErrCollaborator, r)
		}
	}()
	insight, err = e.detector.Detect(ctx, workspace)
	if err == nil && insight == nil {
		insight = &session.FrameworkInsight{}
	}
	return insight, err
}

func metricOp(op session.Operation, known bool) string {
	if !known {
		return "unknown"
	}
	return op.String()
}

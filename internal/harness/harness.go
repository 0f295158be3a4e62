package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// DefaultSettleTimeout bounds the wait for background work after each step.
const DefaultSettleTimeout = 5 * time.Second

// Harness runs scenarios.
type Harness struct {
	logger        *slog.Logger
	settleTimeout time.Duration
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger routes runtime logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithSettleTimeout overrides DefaultSettleTimeout.
func WithSettleTimeout(d time.Duration) Option {
	return func(h *Harness) { h.settleTimeout = d }
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		settleTimeout: DefaultSettleTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes scenario with a default harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes scenario in a fresh runtime.
//
// Setup steps run before the runtime starts and must succeed. Each flow step
// is traced, checked against its expect clause, and followed by a settle so
// push events and palette work it caused are applied before the next step.
// Assertions run last against the trace and the final state.
//
// The returned error is reserved for scenarios that cannot run at all;
// failed expectations are reported in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	s, err := newSession(scenario, h.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	defer s.close()

	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, s, step); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Action, err)
		}
	}
	s.backend.ResetCalls()

	if err := s.app.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start runtime: %w", err)
	}
	if err := h.settle(ctx, s); err != nil {
		return nil, err
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		value, err := h.execute(ctx, s, step)
		var bad *argsError
		if errors.As(err, &bad) {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Action, err)
		}
		if serr := h.settle(ctx, s); serr != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Action, serr)
		}

		event := result.AddTrace(traceEvent(step, value, err))
		if step.Expect != nil {
			if msg := checkExpect(event, *step.Expect); msg != "" {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Action, msg))
			}
		}
	}

	state, err := stateMap(s.snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	result.State = state
	if result.Metrics, err = s.metrics(); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, s *session, step Step) (any, error) {
	fn, ok := actions[step.Action]
	if !ok {
		return nil, &argsError{fmt.Errorf("unknown action %q", step.Action)}
	}
	return fn(ctx, s, step.Args)
}

func (h *Harness) settle(ctx context.Context, s *session) error {
	ctx, cancel := context.WithTimeout(ctx, h.settleTimeout)
	defer cancel()
	return s.settle(ctx)
}

func traceEvent(step Step, value any, err error) TraceEvent {
	e := TraceEvent{Action: step.Action, Args: step.Args, Result: value, Outcome: OutcomeOK}
	switch {
	case errors.Is(err, errRejected):
		e.Outcome = OutcomeRejected
	case err != nil:
		e.Outcome = OutcomeError
		e.Error = err.Error()
	}
	return e
}

// checkExpect returns a description of the mismatch, or "" if e matches.
func checkExpect(e TraceEvent, want Expect) string {
	if e.Outcome != want.Outcome {
		if e.Error != "" {
			return fmt.Sprintf("expected outcome %s, got %s (%s)", want.Outcome, e.Outcome, e.Error)
		}
		return fmt.Sprintf("expected outcome %s, got %s", want.Outcome, e.Outcome)
	}
	if want.Error != "" && !containsFold(e.Error, want.Error) {
		return fmt.Sprintf("expected error containing %q, got %q", want.Error, e.Error)
	}
	if want.Result != nil && !matchValue(want.Result, e.Result) {
		return fmt.Sprintf("expected result %v, got %v", want.Result, e.Result)
	}
	return ""
}

package harness

// TraceEvent records one flow step and how it ended.
type TraceEvent struct {
	Seq     int            `json:"seq"`
	Action  string         `json:"action"`
	Args    map[string]any `json:"args,omitempty"`
	Outcome string         `json:"outcome"`
	Result  any            `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// State is the final runtime state, JSON-shaped for path lookups.
	State map[string]any `json:"state,omitempty"`

	// Metrics sums every registered metric family by name. Values depend
	// on timing, so they are kept out of golden snapshots.
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace, numbering it from 1.
func (r *Result) AddTrace(e TraceEvent) TraceEvent {
	e.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, e)
	return e
}

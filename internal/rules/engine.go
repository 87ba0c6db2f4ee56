package rules

// Engine is the entry point shared by the CLI and the gRPC service.
// It holds no state; one instance may be used concurrently.
type Engine struct{}

// NewEngine creates a new rules engine instance.
func NewEngine() *Engine {
	return &Engine{}
}

// Outcome is the per-rule result of Check.
type Outcome struct {
	Key   string
	Err   *ValidationError // nil when the rule is valid
	Stats *TriggerStats    // nil unless the rule is valid and decodes
	Index int

	// DecodeErr is set for a valid rule whose optional fields (priority)
	// do not decode. The rule still counts as valid.
	DecodeErr error
}

// Valid reports whether the rule passed validation.
func (o Outcome) Valid() bool {
	return o.Err == nil
}

// Depth returns the trigger depth, or -1 when no stats are available.
func (o Outcome) Depth() int {
	if o.Stats == nil {
		return -1
	}
	return o.Stats.Depth
}

// Check validates every rule and decodes the valid ones for trigger stats.
// Outcomes are returned in input order.
func (e *Engine) Check(rules []any) []Outcome {
	outcomes := make([]Outcome, len(rules))
	for i, rule := range rules {
		o := Outcome{Key: RuleKey(rule, i), Index: i}
		if errs := validateRule(rule); len(errs) > 0 {
			o.Err = &ValidationError{Errors: errs}
		} else if decoded, err := Decode(rule); err != nil {
			o.DecodeErr = err
		} else {
			stats := Stats(decoded.Trigger)
			o.Stats = &stats
		}
		outcomes[i] = o
	}
	return outcomes
}

// Batch folds outcomes into the ValidateRules result shape.
func Batch(outcomes []Outcome) error {
	failed := make(map[string]*ValidationError)
	for _, o := range outcomes {
		if o.Err != nil {
			failed[o.Key] = o.Err
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &BatchValidationError{Rules: failed}
}

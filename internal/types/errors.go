package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for rule validation. Their messages are a stable contract:
// callers pattern-match on the exact wording.
var (
	// ErrRuleNotMap indicates the rule value is not a record.
	ErrRuleNotMap = errors.New("rule must be a map")

	// ErrMissingField indicates a required rule field is absent or null.
	// Concrete occurrences are reported as *MissingFieldError.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidTrigger indicates a trigger matches no recognized variant or shape.
	ErrInvalidTrigger = errors.New("invalid trigger format")

	// ErrInvalidAction indicates an action matches no recognized variant or shape.
	ErrInvalidAction = errors.New("invalid action format")

	// ErrActionsNotList indicates the actions field is not a sequence.
	ErrActionsNotList = errors.New("actions must be a list")

	// ErrTriggerTooDeep indicates trigger nesting exceeds MaxTriggerDepth.
	ErrTriggerTooDeep = fmt.Errorf("trigger nesting exceeds maximum depth of %d", MaxTriggerDepth)

	// ErrInvalidPriority indicates a present priority is not an integer.
	ErrInvalidPriority = errors.New("priority must be an integer")
)

// MissingFieldError reports one absent or null required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return ErrMissingField.Error() + ": " + e.Field
}

// Is matches ErrMissingField so callers can test the category with errors.Is.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

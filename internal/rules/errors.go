package rules

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError lists every defect found in one rule, in discovery order.
type ValidationError struct {
	Errors []error
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages(), "; ")
}

// Messages returns the error strings in discovery order.
func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return msgs
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.Errors
}

// BatchValidationError maps each failing rule's key to its errors.
// Rules that validated cleanly have no entry.
type BatchValidationError struct {
	Rules map[string]*ValidationError
}

func (e *BatchValidationError) Error() string {
	keys := e.Failed()
	return fmt.Sprintf("%d rule(s) failed validation: %s", len(keys), strings.Join(keys, ", "))
}

// Failed returns the keys of failing rules in sorted order.
func (e *BatchValidationError) Failed() []string {
	keys := make([]string, 0, len(e.Rules))
	for k := range e.Rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Messages returns the error strings per rule key.
func (e *BatchValidationError) Messages() map[string][]string {
	out := make(map[string][]string, len(e.Rules))
	for k, v := range e.Rules {
		out[k] = v.Messages()
	}
	return out
}

// Unwrap exposes the per-rule errors in key order.
func (e *BatchValidationError) Unwrap() []error {
	keys := e.Failed()
	errs := make([]error, len(keys))
	for i, k := range keys {
		errs[i] = e.Rules[k]
	}
	return errs
}

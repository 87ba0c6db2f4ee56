// internal/rules/validate.go
package rules

import (
	"fmt"

	"github.com/solatis/rulelint/internal/types"
)

/*
 * Structural validation of untyped rule records.
 *
 * Checks a rule decoded from JSON/YAML/structpb (map[string]any) against the
 * trigger/action grammar before it is encoded for the conflict-detection
 * engine. Nothing is mutated; every defect found is returned.
 *
 * Validation order (observable in the error list):
 *   1. Required fields id, thing_id, trigger, actions (all four, always)
 *   2. Trigger tree, depth-first, left before right
 *   3. Actions in list order, one error per bad element
 *
 * Depth limit: the depth parameter counts and/or/not ancestors. A node deeper
 * than types.MaxTriggerDepth is reported once and not decomposed, so stack use
 * is bounded regardless of input size.
 *
 * Null triggers: a nil trigger at any depth contributes no error. At the top
 * level the missing-field check already reported it; below and/or/not a nil
 * operand is accepted silently (see DESIGN.md, open question).
 */

// requiredFields is checked in this order; the order is part of the error contract.
var requiredFields = []string{"id", "thing_id", "trigger", "actions"}

// ValidateRule checks a single rule record.
// Returns nil when the rule is valid, otherwise a *ValidationError listing
// every defect in discovery order.
func ValidateRule(rule any) error {
	errs := validateRule(rule)
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// ValidateRules checks each element independently.
// Returns nil when all are valid, otherwise a *BatchValidationError keyed by
// rule id (or rule_<index> when the id is unavailable).
func ValidateRules(rules []any) error {
	failed := make(map[string]*ValidationError)
	for i, rule := range rules {
		errs := validateRule(rule)
		if len(errs) == 0 {
			continue
		}
		failed[RuleKey(rule, i)] = &ValidationError{Errors: errs}
	}
	if len(failed) == 0 {
		return nil
	}
	return &BatchValidationError{Rules: failed}
}

// RuleKey identifies a rule in batch results: its id when present and
// non-null, else a positional placeholder using the zero-based index.
func RuleKey(rule any, index int) string {
	if m, ok := asMap(rule); ok {
		switch id := m["id"].(type) {
		case nil:
		case string:
			return id
		default:
			return fmt.Sprint(id)
		}
	}
	return fmt.Sprintf("rule_%d", index)
}

func validateRule(rule any) []error {
	m, ok := asMap(rule)
	if !ok {
		return []error{types.ErrRuleNotMap}
	}

	var errs []error
	for _, field := range requiredFields {
		if m[field] == nil {
			errs = append(errs, &types.MissingFieldError{Field: field})
		}
	}

	errs = validateTrigger(m["trigger"], 0, errs)
	errs = validateActions(m["actions"], errs)
	return errs
}

// validateTrigger appends trigger defects to errs and returns the result.
// Depth is checked before anything else so an overflowing subtree is never entered.
func validateTrigger(trigger any, depth int, errs []error) []error {
	if depth > types.MaxTriggerDepth {
		return append(errs, types.ErrTriggerTooDeep)
	}
	if trigger == nil {
		return errs
	}

	m, ok := asMap(trigger)
	if !ok {
		return append(errs, types.ErrInvalidTrigger)
	}

	switch types.ParseTriggerTag(m["tag"]) {
	case types.TriggerPropEq:
		if isNonEmptyString(m["property"]) && hasKey(m, "value") {
			return errs
		}
	case types.TriggerEnvEq:
		if isString(m["property"]) && hasKey(m, "value") {
			return errs
		}
	case types.TriggerPropGt, types.TriggerPropLt, types.TriggerPropGte, types.TriggerPropLte,
		types.TriggerEnvGt, types.TriggerEnvLt:
		if isString(m["property"]) && isNumber(m["threshold"]) {
			return errs
		}
	case types.TriggerAlways:
		return errs
	case types.TriggerAnd, types.TriggerOr:
		errs = validateTrigger(m["left"], depth+1, errs)
		return validateTrigger(m["right"], depth+1, errs)
	case types.TriggerNot:
		return validateTrigger(m["inner"], depth+1, errs)
	}

	// Unknown tag and known tag with a bad payload share one message.
	return append(errs, types.ErrInvalidTrigger)
}

func validateActions(actions any, errs []error) []error {
	if actions == nil {
		return errs
	}
	list, ok := asList(actions)
	if !ok {
		return append(errs, types.ErrActionsNotList)
	}
	for _, action := range list {
		if !validAction(action) {
			errs = append(errs, types.ErrInvalidAction)
		}
	}
	return errs
}

func validAction(action any) bool {
	m, ok := asMap(action)
	if !ok {
		return false
	}
	switch types.ParseActionTag(m["tag"]) {
	case types.ActionSetProp:
		return isString(m["thing_id"]) && isString(m["property"]) && hasKey(m, "value")
	case types.ActionSetEnv:
		return isString(m["property"]) && hasKey(m, "value")
	case types.ActionInvoke:
		return isString(m["thing_id"]) && isString(m["action_name"])
	default:
		return false
	}
}

// asMap accepts the record shapes produced by encoding/json, yaml.v3 and structpb.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asList accepts generic slices and slices of records.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func isNonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

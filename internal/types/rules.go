// internal/types/rules.go
package types

/*
 * Domain types for IoT automation rules.
 *
 * Provides Rule, Trigger and Action structures produced by internal/rules
 * after structural validation. Wire formats (JSON, YAML, structpb) decode to
 * untyped maps first; the validator checks those maps and only then are
 * they converted into these types.
 *
 * Key types:
 *   - Rule: Complete rule definition (trigger plus ordered actions)
 *   - Trigger: Sealed recursive expression (leaf predicates, and/or/not)
 *   - Action: Sealed non-recursive effect (set_prop, set_env, invoke)
 *   - TriggerTag/ActionTag: Closed tag enums with an explicit unknown case
 *
 * Dependencies: None
 */

// TriggerTag names a trigger variant.
type TriggerTag string

const (
	TriggerUnknown TriggerTag = ""
	TriggerPropEq  TriggerTag = "prop_eq"
	TriggerPropGt  TriggerTag = "prop_gt"
	TriggerPropLt  TriggerTag = "prop_lt"
	TriggerPropGte TriggerTag = "prop_gte"
	TriggerPropLte TriggerTag = "prop_lte"
	TriggerEnvEq   TriggerTag = "env_eq"
	TriggerEnvGt   TriggerTag = "env_gt"
	TriggerEnvLt   TriggerTag = "env_lt"
	TriggerAlways  TriggerTag = "always"
	TriggerAnd     TriggerTag = "and"
	TriggerOr      TriggerTag = "or"
	TriggerNot     TriggerTag = "not"
)

var triggerTags = map[string]TriggerTag{
	string(TriggerPropEq):  TriggerPropEq,
	string(TriggerPropGt):  TriggerPropGt,
	string(TriggerPropLt):  TriggerPropLt,
	string(TriggerPropGte): TriggerPropGte,
	string(TriggerPropLte): TriggerPropLte,
	string(TriggerEnvEq):   TriggerEnvEq,
	string(TriggerEnvGt):   TriggerEnvGt,
	string(TriggerEnvLt):   TriggerEnvLt,
	string(TriggerAlways):  TriggerAlways,
	string(TriggerAnd):     TriggerAnd,
	string(TriggerOr):      TriggerOr,
	string(TriggerNot):     TriggerNot,
}

// ParseTriggerTag maps a raw tag value to its TriggerTag.
// Non-string and unrecognized values yield TriggerUnknown.
func ParseTriggerTag(v any) TriggerTag {
	s, ok := v.(string)
	if !ok {
		return TriggerUnknown
	}
	return triggerTags[s]
}

// ActionTag names an action variant.
type ActionTag string

const (
	ActionUnknown ActionTag = ""
	ActionSetProp ActionTag = "set_prop"
	ActionSetEnv  ActionTag = "set_env"
	ActionInvoke  ActionTag = "invoke"
)

// ParseActionTag maps a raw tag value to its ActionTag.
// Non-string and unrecognized values yield ActionUnknown.
func ParseActionTag(v any) ActionTag {
	s, _ := v.(string)
	switch ActionTag(s) {
	case ActionSetProp, ActionSetEnv, ActionInvoke:
		return ActionTag(s)
	default:
		return ActionUnknown
	}
}

// CompareOp is the relation of a threshold predicate.
type CompareOp int

const (
	OpGt CompareOp = iota
	OpLt
	OpGte
	OpLte
)

// Trigger is a node of a trigger expression tree.
// The set of implementations is closed; see the variants below.
type Trigger interface {
	Tag() TriggerTag
	isTrigger()
}

// PropEq matches when a device property equals Value.
type PropEq struct {
	Property string
	Value    any
}

// PropCompare matches a device property against a numeric threshold.
type PropCompare struct {
	Op        CompareOp
	Property  string
	Threshold float64
}

// EnvEq matches when an environment property equals Value.
type EnvEq struct {
	Property string
	Value    any
}

// EnvCompare matches an environment property against a numeric threshold.
// Only OpGt and OpLt are produced by decoding.
type EnvCompare struct {
	Op        CompareOp
	Property  string
	Threshold float64
}

// Always matches unconditionally.
type Always struct{}

// And matches when both operands match. A nil operand means "absent".
type And struct {
	Left, Right Trigger
}

// Or matches when either operand matches. A nil operand means "absent".
type Or struct {
	Left, Right Trigger
}

// Not negates Inner. A nil Inner means "absent".
type Not struct {
	Inner Trigger
}

func (PropEq) Tag() TriggerTag { return TriggerPropEq }
func (EnvEq) Tag() TriggerTag  { return TriggerEnvEq }
func (Always) Tag() TriggerTag { return TriggerAlways }
func (And) Tag() TriggerTag    { return TriggerAnd }
func (Or) Tag() TriggerTag     { return TriggerOr }
func (Not) Tag() TriggerTag    { return TriggerNot }

func (t PropCompare) Tag() TriggerTag {
	switch t.Op {
	case OpGt:
		return TriggerPropGt
	case OpLt:
		return TriggerPropLt
	case OpGte:
		return TriggerPropGte
	case OpLte:
		return TriggerPropLte
	default:
		return TriggerUnknown
	}
}

func (t EnvCompare) Tag() TriggerTag {
	switch t.Op {
	case OpGt:
		return TriggerEnvGt
	case OpLt:
		return TriggerEnvLt
	default:
		return TriggerUnknown
	}
}

func (PropEq) isTrigger()      {}
func (PropCompare) isTrigger() {}
func (EnvEq) isTrigger()       {}
func (EnvCompare) isTrigger()  {}
func (Always) isTrigger()      {}
func (And) isTrigger()         {}
func (Or) isTrigger()          {}
func (Not) isTrigger()         {}

// Action is an effect applied when a rule's trigger fires.
// The set of implementations is closed; see the variants below.
type Action interface {
	Tag() ActionTag
	isAction()
}

// SetProp assigns Value to a property of another device.
type SetProp struct {
	ThingID  string
	Property string
	Value    any
}

// SetEnv assigns Value to an environment property.
type SetEnv struct {
	Property string
	Value    any
}

// Invoke calls a named action on a device.
type Invoke struct {
	ThingID    string
	ActionName string
}

func (SetProp) Tag() ActionTag { return ActionSetProp }
func (SetEnv) Tag() ActionTag  { return ActionSetEnv }
func (Invoke) Tag() ActionTag  { return ActionInvoke }

func (SetProp) isAction() {}
func (SetEnv) isAction()  {}
func (Invoke) isAction()  {}

// Rule is a structurally valid automation rule.
// ID and ThingID are opaque and carried through unchanged.
type Rule struct {
	ID       any
	ThingID  any
	Trigger  Trigger
	Actions  []Action
	Priority int
}

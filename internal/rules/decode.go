// internal/rules/decode.go
package rules

import (
	"github.com/solatis/rulelint/internal/types"
)

/*
 * Conversion of validated rule records to typed rules.
 *
 * Decode runs ValidateRule first and only converts inputs that passed, so
 * the converters below can assume the shapes validate.go accepts. The input
 * map is read, never modified.
 *
 * Defaults: priority falls back to types.DefaultPriority when absent or null.
 * A present priority that is not an integral number is the one defect
 * reported here rather than by the validator, which does not inspect
 * optional fields.
 */

// Decode validates a rule record and converts it to a types.Rule.
// Returns the *ValidationError from ValidateRule unchanged when the record is
// invalid, or types.ErrInvalidPriority for a non-integer priority.
func Decode(rule any) (*types.Rule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	m, _ := asMap(rule)

	priority := types.DefaultPriority
	if p := m["priority"]; p != nil {
		n, ok := toInt(p)
		if !ok {
			return nil, types.ErrInvalidPriority
		}
		priority = n
	}

	list, _ := asList(m["actions"])
	actions := make([]types.Action, 0, len(list))
	for _, a := range list {
		actions = append(actions, decodeAction(a))
	}

	return &types.Rule{
		ID:       m["id"],
		ThingID:  m["thing_id"],
		Trigger:  decodeTrigger(m["trigger"]),
		Actions:  actions,
		Priority: priority,
	}, nil
}

// decodeTrigger converts a validated trigger record. Nil stays nil.
func decodeTrigger(v any) types.Trigger {
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	property, _ := m["property"].(string)
	threshold, _ := toFloat64(m["threshold"])

	switch tag := types.ParseTriggerTag(m["tag"]); tag {
	case types.TriggerPropEq:
		return types.PropEq{Property: property, Value: m["value"]}
	case types.TriggerPropGt, types.TriggerPropLt, types.TriggerPropGte, types.TriggerPropLte:
		return types.PropCompare{Op: compareOp(tag), Property: property, Threshold: threshold}
	case types.TriggerEnvEq:
		return types.EnvEq{Property: property, Value: m["value"]}
	case types.TriggerEnvGt, types.TriggerEnvLt:
		return types.EnvCompare{Op: compareOp(tag), Property: property, Threshold: threshold}
	case types.TriggerAlways:
		return types.Always{}
	case types.TriggerAnd:
		return types.And{Left: decodeTrigger(m["left"]), Right: decodeTrigger(m["right"])}
	case types.TriggerOr:
		return types.Or{Left: decodeTrigger(m["left"]), Right: decodeTrigger(m["right"])}
	case types.TriggerNot:
		return types.Not{Inner: decodeTrigger(m["inner"])}
	default:
		return nil
	}
}

func compareOp(tag types.TriggerTag) types.CompareOp {
	switch tag {
	case types.TriggerPropLt, types.TriggerEnvLt:
		return types.OpLt
	case types.TriggerPropGte:
		return types.OpGte
	case types.TriggerPropLte:
		return types.OpLte
	default:
		return types.OpGt
	}
}

// decodeAction converts a validated action record.
func decodeAction(v any) types.Action {
	m, _ := asMap(v)
	thingID, _ := m["thing_id"].(string)
	property, _ := m["property"].(string)

	switch types.ParseActionTag(m["tag"]) {
	case types.ActionSetProp:
		return types.SetProp{ThingID: thingID, Property: property, Value: m["value"]}
	case types.ActionSetEnv:
		return types.SetEnv{Property: property, Value: m["value"]}
	default:
		actionName, _ := m["action_name"].(string)
		return types.Invoke{ThingID: thingID, ActionName: actionName}
	}
}

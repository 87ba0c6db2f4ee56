package rules

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/solatis/rulelint/internal/types"
)

func TestDecode_FullRule(t *testing.T) {
	rule := map[string]any{
		"id":       "r7",
		"thing_id": "thermostat",
		"priority": float64(3),
		"trigger": map[string]any{
			"tag":  "and",
			"left": map[string]any{"tag": "prop_gte", "property": "temp", "threshold": 22},
			"right": map[string]any{
				"tag":   "not",
				"inner": map[string]any{"tag": "env_eq", "property": "mode", "value": "away"},
			},
		},
		"actions": []any{
			map[string]any{"tag": "set_prop", "thing_id": "fan", "property": "power", "value": "on"},
			map[string]any{"tag": "set_env", "property": "cooling", "value": true},
			map[string]any{"tag": "invoke", "thing_id": "speaker", "action_name": "chime"},
		},
	}

	got, err := Decode(rule)
	if err != nil {
		t.Fatalf("Decode() error = %v, want nil", err)
	}

	want := &types.Rule{
		ID:      "r7",
		ThingID: "thermostat",
		Trigger: types.And{
			Left:  types.PropCompare{Op: types.OpGte, Property: "temp", Threshold: 22},
			Right: types.Not{Inner: types.EnvEq{Property: "mode", Value: "away"}},
		},
		Actions: []types.Action{
			types.SetProp{ThingID: "fan", Property: "power", Value: "on"},
			types.SetEnv{Property: "cooling", Value: true},
			types.Invoke{ThingID: "speaker", ActionName: "chime"},
		},
		Priority: 3,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Decode() = %#v, want %#v", got, want)
	}
}

func TestDecode_TriggerTags(t *testing.T) {
	tests := []struct {
		trigger map[string]any
		want    types.TriggerTag
	}{
		{map[string]any{"tag": "prop_eq", "property": "p", "value": 1}, types.TriggerPropEq},
		{map[string]any{"tag": "prop_gt", "property": "p", "threshold": 1}, types.TriggerPropGt},
		{map[string]any{"tag": "prop_lt", "property": "p", "threshold": 1}, types.TriggerPropLt},
		{map[string]any{"tag": "prop_gte", "property": "p", "threshold": 1}, types.TriggerPropGte},
		{map[string]any{"tag": "prop_lte", "property": "p", "threshold": 1}, types.TriggerPropLte},
		{map[string]any{"tag": "env_eq", "property": "p", "value": 1}, types.TriggerEnvEq},
		{map[string]any{"tag": "env_gt", "property": "p", "threshold": 1}, types.TriggerEnvGt},
		{map[string]any{"tag": "env_lt", "property": "p", "threshold": 1}, types.TriggerEnvLt},
		{map[string]any{"tag": "always"}, types.TriggerAlways},
		{map[string]any{"tag": "or", "left": nil, "right": nil}, types.TriggerOr},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			got, err := Decode(ruleWithTrigger(tt.trigger))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.Trigger.Tag() != tt.want {
				t.Errorf("Trigger.Tag() = %v, want %v", got.Trigger.Tag(), tt.want)
			}
		})
	}
}

func TestDecode_DefaultPriority(t *testing.T) {
	got, err := Decode(validRule())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.Priority != types.DefaultPriority {
		t.Errorf("Priority = %d, want %d", got.Priority, types.DefaultPriority)
	}
}

func TestDecode_InvalidPriority(t *testing.T) {
	for _, p := range []any{"high", 1.5, true, 1e20, math.Pow(2, 64), uint64(1 << 63), json.Number("9223372036854775808")} {
		rule := validRule()
		rule["priority"] = p
		if _, err := Decode(rule); !errors.Is(err, types.ErrInvalidPriority) {
			t.Errorf("Decode(priority=%v) error = %v, want ErrInvalidPriority", p, err)
		}
	}
}

func TestDecode_IntegralPriority(t *testing.T) {
	for _, p := range []any{int64(-4), uint32(7), uint64(12), float64(-9), json.Number("5"), json.Number("6.0")} {
		rule := validRule()
		rule["priority"] = p
		got, err := Decode(rule)
		if err != nil {
			t.Errorf("Decode(priority=%v) error = %v", p, err)
			continue
		}
		want, _ := toFloat64(p)
		if float64(got.Priority) != want {
			t.Errorf("Decode(priority=%v) Priority = %d", p, got.Priority)
		}
	}
}

func TestDecode_InvalidRule(t *testing.T) {
	_, err := Decode(map[string]any{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Decode() error = %v, want *ValidationError", err)
	}
	if len(verr.Errors) != 4 {
		t.Errorf("len(Errors) = %d, want 4", len(verr.Errors))
	}
}

func TestDecode_NullOperandStaysNil(t *testing.T) {
	got, err := Decode(ruleWithTrigger(map[string]any{"tag": "not", "inner": nil}))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n, ok := got.Trigger.(types.Not); !ok || n.Inner != nil {
		t.Errorf("Trigger = %#v, want Not{Inner: nil}", got.Trigger)
	}
}

// Package types provides domain models shared across rulelint components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the validator can be embedded by encoders without
// pulling in server deps. ID utilities in ids.go import uuid but are isolated
// for selective inclusion.
package types

// ReportID represents a UUIDv7 validation report identifier.
// String alias enables type safety while maintaining JSON string serialization.
type ReportID string

// Resource limits enforced by the validator.
const (
	// MaxTriggerDepth bounds the number of and/or/not ancestors of any trigger node.
	// Depths 0 through 10 are accepted; a node at depth 11 is rejected undecomposed.
	MaxTriggerDepth = 10

	// DefaultPriority applies when a rule carries no priority field.
	DefaultPriority = 1
)

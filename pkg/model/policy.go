// pkg/model/policy.go
package model

import (
	"fmt"
	"strings"
)

// ReplaceClass categorizes how an object type tolerates full replacement
type ReplaceClass int

const (
	// ClassUnknown is returned for object types the policy table does not cover
	ClassUnknown ReplaceClass = iota
	// ClassPreferAlter marks types worth altering in place before replacing
	ClassPreferAlter
	// ClassSafeRecreate marks types where CREATE OR REPLACE is cheap and safe
	ClassSafeRecreate
	// ClassDangerousReplace marks types whose replacement destroys contained state
	ClassDangerousReplace
)

// String returns a string representation of the replace class
func (c ReplaceClass) String() string {
	switch c {
	case ClassUnknown:
		return "Unknown"
	case ClassPreferAlter:
		return "PreferAlter"
	case ClassSafeRecreate:
		return "SafeRecreate"
	case ClassDangerousReplace:
		return "DangerousReplace"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}

// PolicyTable maps lowercase object type names to their replace class.
// The table is built once and injected; callers must not mutate it.
type PolicyTable map[string]ReplaceClass

// DefaultPolicies returns the standard object type policy table
func DefaultPolicies() PolicyTable {
	return PolicyTable{
		"table":          ClassPreferAlter,
		"external table": ClassPreferAlter,
		"sequence":       ClassPreferAlter,

		"view":              ClassSafeRecreate,
		"file format":       ClassSafeRecreate,
		"stage":             ClassSafeRecreate,
		"pipe":              ClassSafeRecreate,
		"task":              ClassSafeRecreate,
		"function":          ClassSafeRecreate,
		"procedure":         ClassSafeRecreate,
		"materialized view": ClassSafeRecreate,

		"database": ClassDangerousReplace,
		"schema":   ClassDangerousReplace,
	}
}

// ClassOf looks up the replace class for an object type
func (t PolicyTable) ClassOf(objectType string) ReplaceClass {
	return t[strings.ToLower(strings.TrimSpace(objectType))]
}

// PreferAlter reports whether in-place alteration should be attempted first
func (t PolicyTable) PreferAlter(objectType string) bool {
	return t.ClassOf(objectType) == ClassPreferAlter
}

// Dangerous reports whether replacing or dropping the type requires
// explicit operator approval.
func (t PolicyTable) Dangerous(objectType string) bool {
	return t.ClassOf(objectType) == ClassDangerousReplace
}

// pkg/model/objects.go
package model

import (
	"fmt"
	"strings"
)

// StateKey builds the unique state store key for an object identity.
// Keys are case-insensitive and canonicalized to lowercase.
func StateKey(objectType, fqn string) string {
	return strings.ToLower(strings.TrimSpace(fmt.Sprintf("%s-%s", objectType, fqn)))
}

// ObjectRecord is the persisted snapshot of one live object. Records are
// created and overwritten only by the snapshot collector and read by the
// plan engine; they are never mutated mid-plan.
type ObjectRecord struct {
	Name     string `json:"name"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	FQN      string `json:"fqn"`
	Type     string `json:"type"`
	DDL      string `json:"ddl"`
	Hash     string `json:"hash"`
	FilePath string `json:"file_path"`
	LastSeen string `json:"last_seen"`
}

// Key returns the state store key for the record
func (r ObjectRecord) Key() string {
	return StateKey(r.Type, r.FQN)
}

// DesiredObject is one definition file parsed from the definitions tree.
// It is ephemeral and recomputed on every plan generation.
type DesiredObject struct {
	Database   string `json:"database"`
	Schema     string `json:"schema"`
	ObjectType string `json:"object_type"`
	Name       string `json:"name"`
	FQN        string `json:"fqn"`
	FilePath   string `json:"file_path"`
	DDL        string `json:"ddl"`
	Hash       string `json:"hash,omitempty"`
}

// Key returns the state store key for the desired object
func (d DesiredObject) Key() string {
	return StateKey(d.ObjectType, d.FQN)
}

// Validation verdicts attached to plan items by the validator.
const (
	ValidationOK               = "OK"
	ValidationError            = "ERROR"
	ValidationOKAlter          = "OK: ALTER"
	ValidationWarningRefresh   = "WARNING: REFRESH"
	ValidationWarningReference = "WARNING object reference found:"
)

// NewObject is a plan item for an object that exists on disk but not in state
type NewObject struct {
	DesiredObject
	Validation string `json:"validation,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ModifiedObject is a plan item for an object whose desired definition hash
// differs from the recorded one. Alter metadata is attached only for object
// types in the prefer-alter class.
type ModifiedObject struct {
	DesiredObject
	CurrentDDL    string   `json:"current_ddl,omitempty"`
	AlterPossible bool     `json:"alter_possible"`
	AlterReason   string   `json:"alter_reason,omitempty"`
	AlterSQL      []string `json:"alter_sql"`
	Validation    string   `json:"validation,omitempty"`
	Message       string   `json:"message,omitempty"`
}

// DeletedObject is a plan item for a state record with no matching file.
// Message carries the dependent key set when the lineage check fires.
type DeletedObject struct {
	ObjectRecord
	Validation string   `json:"validation,omitempty"`
	Message    []string `json:"message,omitempty"`
}

// Plan is the durable reconciliation artifact. Once validated and persisted
// it is read-only input for the apply engine.
type Plan struct {
	NewObjects      []NewObject      `json:"new_objects"`
	ModifiedObjects []ModifiedObject `json:"modified_objects"`
	DeletedObjects  []DeletedObject  `json:"deleted_objects"`
}

// NewPlan returns an empty plan with initialized slices so the persisted
// JSON always carries all three arrays.
func NewPlan() *Plan {
	return &Plan{
		NewObjects:      make([]NewObject, 0),
		ModifiedObjects: make([]ModifiedObject, 0),
		DeletedObjects:  make([]DeletedObject, 0),
	}
}

// Empty reports whether the plan contains no changes
func (p *Plan) Empty() bool {
	return len(p.NewObjects) == 0 && len(p.ModifiedObjects) == 0 && len(p.DeletedObjects) == 0
}

// Counts returns the number of new, modified, and deleted items
func (p *Plan) Counts() (added, modified, dropped int) {
	return len(p.NewObjects), len(p.ModifiedObjects), len(p.DeletedObjects)
}

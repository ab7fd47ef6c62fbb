// pkg/model/fault.go
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies a reconciliation failure
type Kind int

const (
	// KindUnknown is the zero value for uncategorized failures
	KindUnknown Kind = iota
	// KindConfiguration marks a malformed path, profile, or environment; fatal to the run
	KindConfiguration
	// KindParse marks DDL that cannot be decomposed into columns; degrades one item to replacement
	KindParse
	// KindRemoteValidation marks a live dry-run rejection; recorded as a plan item verdict
	KindRemoteValidation
	// KindReferenceIntegrity marks a deletion target still referenced by other objects
	KindReferenceIntegrity
	// KindTransaction marks an apply-time statement failure; rolls back one object's batch
	KindTransaction
)

// String returns a string representation of the fault kind
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "Unknown"
	case KindConfiguration:
		return "Configuration"
	case KindParse:
		return "Parse"
	case KindRemoteValidation:
		return "RemoteValidation"
	case KindReferenceIntegrity:
		return "ReferenceIntegrity"
	case KindTransaction:
		return "Transaction"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// Fault is an explicit error value carrying a kind and context. It replaces
// control-flow exceptions: parse and validation failures travel to plan items
// as values, configuration faults abort the run.
type Fault struct {
	Kind      Kind
	Object    string
	Statement string
	Err       error
	Message   string
	Timestamp time.Time
}

// NewFault creates a fault with the current timestamp
func NewFault(kind Kind, err error) Fault {
	f := Fault{
		Kind:      kind,
		Err:       err,
		Timestamp: time.Now(),
	}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// WithObject attaches the affected object key or fqn
func (f Fault) WithObject(object string) Fault {
	f.Object = object
	return f
}

// WithStatement attaches the SQL statement that failed
func (f Fault) WithStatement(statement string) Fault {
	f.Statement = statement
	return f
}

// Error implements the error interface
func (f Fault) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", f.Kind))

	if f.Object != "" {
		sb.WriteString(fmt.Sprintf("Object: %s ", f.Object))
	}

	if f.Err != nil {
		sb.WriteString(f.Err.Error())
	} else if f.Message != "" {
		sb.WriteString(f.Message)
	}

	return sb.String()
}

// Unwrap exposes the wrapped cause for errors.Is and errors.As
func (f Fault) Unwrap() error {
	return f.Err
}

// Fatal reports whether the fault must abort the whole run
func (f Fault) Fatal() bool {
	return f.Kind == KindConfiguration
}

// IsKind reports whether err is (or wraps) a Fault of the given kind
func IsKind(err error, kind Kind) bool {
	var f Fault
	if errors.As(err, &f) {
		return f.Kind == kind
	}
	return false
}

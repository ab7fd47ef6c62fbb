// pkg/apply/summary.go
package apply

import (
	"fmt"
	"strings"
	"time"
)

// Operation labels one kind of apply action.
type Operation string

const (
	OpCreate  Operation = "create"
	OpAlter   Operation = "alter"
	OpReplace Operation = "replace"
	OpDrop    Operation = "drop"
)

// Failure records one rolled-back statement batch.
type Failure struct {
	Operation  Operation
	ObjectType string
	FQN        string
	Err        error
}

// Summary aggregates one apply run.
type Summary struct {
	Created  int
	Altered  int
	Replaced int
	Dropped  int
	Skipped  int
	Failed   int
	DryRun   bool

	Failures []Failure

	StartTime     time.Time
	EndTime       time.Time
	TotalDuration time.Duration
}

// NewSummary starts a summary clocked from now.
func NewSummary() *Summary {
	return &Summary{StartTime: time.Now()}
}

// Add counts one successful (or dry-run) batch for an operation.
func (s *Summary) Add(op Operation) {
	switch op {
	case OpCreate:
		s.Created++
	case OpAlter:
		s.Altered++
	case OpReplace:
		s.Replaced++
	case OpDrop:
		s.Dropped++
	}
}

// AddSkipped counts an object withheld from execution.
func (s *Summary) AddSkipped() {
	s.Skipped++
}

// AddFailure records a rolled-back batch. The run continues; failures
// never unwind other objects.
func (s *Summary) AddFailure(op Operation, objectType, fqn string, err error) {
	s.Failed++
	s.Failures = append(s.Failures, Failure{
		Operation:  op,
		ObjectType: objectType,
		FQN:        fqn,
		Err:        err,
	})
}

// Applied reports the number of batches that executed successfully.
func (s *Summary) Applied() int {
	return s.Created + s.Altered + s.Replaced + s.Dropped
}

// Complete finalizes the summary and computes the total duration.
func (s *Summary) Complete() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// Render formats the post-apply report for terminal output.
func (s *Summary) Render() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 60))
	if s.DryRun {
		b.WriteString("\nDRY RUN, no statements executed:\n")
	} else {
		b.WriteString("\nAPPLY COMPLETE:\n")
	}
	fmt.Fprintf(&b, "• %d created, %d altered, %d replaced, %d dropped.\n",
		s.Created, s.Altered, s.Replaced, s.Dropped)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "• %d skipped (approval required).\n", s.Skipped)
	}
	for _, failure := range s.Failures {
		fmt.Fprintf(&b, "• FAILED %s %s %s: %v\n",
			failure.Operation, failure.ObjectType, failure.FQN, failure.Err)
	}
	return b.String()
}

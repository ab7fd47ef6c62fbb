// pkg/state/job.go
package state

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/snowplan/pkg/connector"
	"github.com/David-Botos/snowplan/pkg/model"
)

// FetchJob is the export of one live object definition.
type FetchJob struct {
	ID         string
	ObjectType string
	Listing    connector.ObjectListing
	Priority   int
	CreatedAt  time.Time
}

// NewFetchJob creates a job for one listed object.
func NewFetchJob(objectType string, listing connector.ObjectListing) FetchJob {
	return FetchJob{
		ID:         uuid.New().String(),
		ObjectType: objectType,
		Listing:    listing,
		CreatedAt:  time.Now(),
	}
}

// WithPriority sets the job priority (lower runs sooner when queued).
func (j FetchJob) WithPriority(priority int) FetchJob {
	j.Priority = priority
	return j
}

// FQN returns the fully qualified name as listed. For procedures and
// functions this includes the argument signature.
func (j FetchJob) FQN() string {
	return j.Listing.FQN()
}

// CleanFQN returns the fully qualified name without any signature.
func (j FetchJob) CleanFQN() string {
	return j.Listing.CleanFQN()
}

// Key returns the state key for this object, built from the clean name.
func (j FetchJob) Key() string {
	return model.StateKey(j.ObjectType, j.CleanFQN())
}

// FetchResult reports the outcome of one job.
type FetchResult struct {
	JobID      string
	ObjectType string
	FQN        string
	WorkerID   int
	Success    bool
	FilePath   string
	Error      error
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// NewFetchResult starts a result for a job claimed by a worker.
func NewFetchResult(job FetchJob, workerID int) *FetchResult {
	return &FetchResult{
		JobID:      job.ID,
		ObjectType: job.ObjectType,
		FQN:        job.FQN(),
		WorkerID:   workerID,
		StartTime:  time.Now(),
	}
}

// Complete marks the result finished and computes its duration.
func (r *FetchResult) Complete(success bool) {
	r.Success = success
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Fail records the error and completes the result.
func (r *FetchResult) Fail(err error) {
	r.Error = err
	r.Complete(false)
}

// RefreshSummary aggregates one refresh run.
type RefreshSummary struct {
	TotalObjects  int
	Exported      int
	Failed        int
	CountsByType  map[string]int
	StartTime     time.Time
	EndTime       time.Time
	TotalDuration time.Duration
}

// NewRefreshSummary starts a summary clocked from now.
func NewRefreshSummary() *RefreshSummary {
	return &RefreshSummary{
		CountsByType: make(map[string]int),
		StartTime:    time.Now(),
	}
}

// AddResult folds one result into the summary.
func (s *RefreshSummary) AddResult(result FetchResult) {
	s.TotalObjects++
	if result.Success {
		s.Exported++
		s.CountsByType[result.ObjectType]++
		return
	}
	s.Failed++
}

// Complete finalizes the summary and computes the total duration.
func (s *RefreshSummary) Complete() {
	s.EndTime = time.Now()
	s.TotalDuration = s.EndTime.Sub(s.StartTime)
}

// Types returns the exported object types in sorted order.
func (s *RefreshSummary) Types() []string {
	types := make([]string, 0, len(s.CountsByType))
	for t := range s.CountsByType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Render formats the post-refresh report for terminal output.
func (s *RefreshSummary) Render() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\nEXPORTED TO STATE:\n")
	for _, objectType := range s.Types() {
		count := s.CountsByType[objectType]
		plural := ""
		if count > 1 {
			plural = "s"
		}
		fmt.Fprintf(&b, "• %d %s%s.\n", count, objectType, plural)
	}
	if s.Failed > 0 {
		fmt.Fprintf(&b, "• %d failed.\n", s.Failed)
	}
	return b.String()
}

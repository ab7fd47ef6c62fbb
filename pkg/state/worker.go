// pkg/state/worker.go
package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/connector"
	"github.com/David-Botos/snowplan/pkg/ddl"
	"github.com/David-Botos/snowplan/pkg/model"
)

// WorkerState describes what a worker is currently doing.
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
	WorkerStateError     WorkerState = "error"
)

// Worker drains fetch jobs, writes each definition to disk, and records
// it in the store.
type Worker struct {
	ID     int
	source DefinitionSource
	store  *Store
	layout Layout
	logger *zap.Logger

	state      WorkerState
	stateLock  sync.RWMutex
	currentJob *FetchJob
}

// NewWorker creates an idle worker.
func NewWorker(id int, source DefinitionSource, store *Store, layout Layout, logger *zap.Logger) *Worker {
	return &Worker{
		ID:     id,
		source: source,
		store:  store,
		layout: layout,
		logger: logger.Named(fmt.Sprintf("worker-%d", id)),
		state:  WorkerStateIdle,
	}
}

// GetState returns the current worker state.
func (w *Worker) GetState() WorkerState {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.state
}

func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	oldState := w.state
	w.state = state
	w.stateLock.Unlock()

	if oldState != state {
		w.logger.Debug("Worker state transition",
			zap.Int("worker_id", w.ID),
			zap.String("from", string(oldState)),
			zap.String("to", string(state)))
	}
}

// Start runs the worker loop until the job channel closes or the
// context is cancelled.
func (w *Worker) Start(ctx context.Context, jobs <-chan FetchJob, results chan<- FetchResult) {
	w.logger.Debug("Worker starting", zap.Int("worker_id", w.ID))

	for {
		select {
		case <-ctx.Done():
			w.setState(WorkerStateCompleted)
			return
		case job, ok := <-jobs:
			if !ok {
				w.setState(WorkerStateCompleted)
				return
			}

			w.stateLock.Lock()
			w.currentJob = &job
			w.stateLock.Unlock()
			w.setState(WorkerStateWorking)

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.setState(WorkerStateCompleted)
				return
			}

			w.stateLock.Lock()
			w.currentJob = nil
			w.stateLock.Unlock()
			w.setState(WorkerStateIdle)
		}
	}
}

// ProcessJob exports one object: fetch its definition, write the file,
// record it in the store.
func (w *Worker) ProcessJob(ctx context.Context, job FetchJob) FetchResult {
	result := NewFetchResult(job, w.ID)

	definition, err := w.fetchDefinition(ctx, job)
	if err != nil {
		w.logger.Warn("Definition fetch failed",
			zap.String("object_type", job.ObjectType),
			zap.String("fqn", job.FQN()),
			zap.Error(err))
		result.Fail(err)
		return *result
	}

	path := w.layout.ObjectPath(job.ObjectType, job.Listing)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		result.Fail(fmt.Errorf("create directory for %s: %w", path, err))
		return *result
	}
	if err := os.WriteFile(path, []byte(definition), 0o644); err != nil {
		result.Fail(fmt.Errorf("write %s: %w", path, err))
		return *result
	}

	record := model.ObjectRecord{
		Name:     strings.ToLower(strings.TrimSpace(job.Listing.Name)),
		Database: strings.ToLower(strings.TrimSpace(job.Listing.Database)),
		Schema:   strings.ToLower(strings.TrimSpace(job.Listing.Schema)),
		FQN:      strings.ToLower(strings.TrimSpace(job.FQN())),
		Type:     job.ObjectType,
		DDL:      definition,
		Hash:     ddl.HashDDL(definition),
		FilePath: path,
		LastSeen: time.Now().UTC().Format(time.RFC3339),
	}
	w.store.Upsert(job.Key(), record)

	result.FilePath = path
	result.Complete(true)
	return *result
}

// fetchDefinition returns the canonical definition text for one object.
// Stages are synthesized locally because get_ddl does not cover them.
func (w *Worker) fetchDefinition(ctx context.Context, job FetchJob) (string, error) {
	if job.ObjectType == "stage" {
		return StageDDL(job.Listing), nil
	}
	return w.source.FetchDDL(ctx, job.ObjectType, job.FQN())
}

// StageDDL builds a replace-style stage definition from listing fields,
// skipping clauses the listing does not carry.
func StageDDL(listing connector.ObjectListing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE OR REPLACE STAGE %s\n", listing.FQN())
	if listing.URL.Valid && listing.URL.String != "" {
		fmt.Fprintf(&b, "URL='%s'\n", listing.URL.String)
	}
	if listing.StorageIntegration.Valid && listing.StorageIntegration.String != "" {
		fmt.Fprintf(&b, "STORAGE_INTEGRATION=%s\n", listing.StorageIntegration.String)
	}
	if listing.DirectoryEnabled.String == "Y" {
		b.WriteString("DIRECTORY=(ENABLE=TRUE)\n")
	}
	b.WriteString(";")
	return b.String()
}

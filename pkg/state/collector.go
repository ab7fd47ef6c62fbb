// pkg/state/collector.go
package state

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/David-Botos/snowplan/pkg/config"
	"github.com/David-Botos/snowplan/pkg/connector"
)

// DefinitionSource supplies live listings and canonical definitions.
type DefinitionSource interface {
	ListObjects(ctx context.Context, objectType, scope string) ([]connector.ObjectListing, error)
	FetchDDL(ctx context.Context, objectType, fqn string) (string, error)
}

// Collector refreshes the state store from live definitions using a
// worker pool. The store is only persisted after a complete run; a
// partial snapshot would present every unvisited object as deleted.
type Collector struct {
	source      DefinitionSource
	store       *Store
	layout      Layout
	logger      *zap.Logger
	objectTypes []string
	databases   []string
	workerCount int
}

// NewCollector creates a collector bound to the configured scope.
func NewCollector(source DefinitionSource, store *Store, layout Layout, cfg *config.Config) *Collector {
	workerCount := cfg.Threads
	if workerCount <= 0 {
		workerCount = config.DefaultThreads
	}

	return &Collector{
		source:      source,
		store:       store,
		layout:      layout,
		logger:      zap.L().Named("state-collector"),
		objectTypes: cfg.ObjectTypes,
		databases:   cfg.Databases,
		workerCount: workerCount,
	}
}

// WithWorkerCount overrides the pool size.
func (c *Collector) WithWorkerCount(count int) *Collector {
	if count > 0 {
		c.workerCount = count
	}
	return c
}

// Refresh lists every configured object type in every configured scope,
// exports each object's definition, and overwrites the state snapshot.
func (c *Collector) Refresh(ctx context.Context) (*RefreshSummary, error) {
	summary := NewRefreshSummary()

	jobs, err := c.collectJobs(ctx)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		c.logger.Warn("No objects listed for configured scope")
		summary.Complete()
		return summary, c.store.Save()
	}

	c.logger.Info("Starting refresh",
		zap.Int("objects", len(jobs)),
		zap.Int("workers", c.workerCount))

	jobQueue := make(chan FetchJob, c.workerCount*10)
	resultQueue := make(chan FetchResult, c.workerCount*10)

	done := make(chan struct{})
	go c.processResults(resultQueue, summary, done)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		worker := NewWorker(i, c.source, c.store, c.layout, c.logger)
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Start(workerCtx, jobQueue, resultQueue)
		}(worker)
	}

submit:
	for _, job := range jobs {
		select {
		case jobQueue <- job:
		case <-ctx.Done():
			break submit
		}
	}
	close(jobQueue)

	allJobsComplete := make(chan struct{})
	go func() {
		wg.Wait()
		close(allJobsComplete)
	}()

	select {
	case <-ctx.Done():
		c.logger.Warn("Refresh cancelled, snapshot not saved", zap.Error(ctx.Err()))
		cancelWorkers()
		<-allJobsComplete
	case <-allJobsComplete:
	}

	close(resultQueue)
	<-done

	summary.Complete()

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	if err := c.store.Save(); err != nil {
		return summary, err
	}

	c.logger.Info("Refresh complete",
		zap.Int("exported", summary.Exported),
		zap.Int("failed", summary.Failed),
		zap.Int("tracked", c.store.Len()),
		zap.Duration("duration", summary.TotalDuration))
	return summary, nil
}

func (c *Collector) collectJobs(ctx context.Context) ([]FetchJob, error) {
	var jobs []FetchJob
	for _, objectType := range c.objectTypes {
		for _, scope := range c.scopes() {
			listings, err := c.source.ListObjects(ctx, objectType, scope)
			if err != nil {
				return nil, fmt.Errorf("list %ss in %s: %w", objectType, scope, err)
			}
			for _, listing := range listings {
				jobs = append(jobs, NewFetchJob(objectType, listing))
			}
		}
	}
	return jobs, nil
}

// scopes returns one listing scope per configured database, or the
// whole account when none are configured.
func (c *Collector) scopes() []string {
	if len(c.databases) == 0 {
		return []string{"account"}
	}
	scopes := make([]string, 0, len(c.databases))
	for _, db := range c.databases {
		scopes = append(scopes, "database "+db)
	}
	return scopes
}

func (c *Collector) processResults(results <-chan FetchResult, summary *RefreshSummary, done chan<- struct{}) {
	defer close(done)
	for result := range results {
		summary.AddResult(result)
		if result.Success {
			c.logger.Info("Exported definition",
				zap.String("object_type", result.ObjectType),
				zap.String("fqn", result.FQN),
				zap.String("path", result.FilePath),
				zap.Duration("duration", result.Duration))
			continue
		}
		c.logger.Error("Export failed",
			zap.String("object_type", result.ObjectType),
			zap.String("fqn", result.FQN),
			zap.Error(result.Error))
	}
}

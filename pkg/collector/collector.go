// Package collector orchestrates multi-source collection runs: concurrent
// fetching with per-source isolation, then the normalize, classify and dedup
// pipeline, then a single merge into storage.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feedlens/feedlens/pkg/dedup"
	"github.com/feedlens/feedlens/pkg/domain"
	"github.com/feedlens/feedlens/pkg/progress"
	"github.com/feedlens/feedlens/pkg/repository"
)

// Fetcher retrieves source-native items for one configured source
type Fetcher interface {
	Fetch(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error)
}

// RecordStore is the persistence surface the coordinator writes records through
type RecordStore interface {
	MergeCollected(ctx context.Context, items []domain.NormalizedItem, classifications []domain.Classification) (repository.MergeStats, error)
}

// RunStore archives finished runs
type RunStore interface {
	SaveRun(ctx context.Context, run *domain.CollectionRun) error
	GetRun(ctx context.Context, runID string) (*domain.CollectionRun, error)
}

// Normalizer converts raw items to the normalized representation
type Normalizer interface {
	Normalize(raw domain.RawItem, source string) domain.NormalizedItem
}

// Classifier assigns the classification tuple to a normalized item
type Classifier interface {
	Classify(item domain.NormalizedItem) domain.Classification
	TablesVersion() string
}

// Params tunes coordinator behavior
type Params struct {
	SourceTimeout       time.Duration // per-source fetch deadline
	MaxWorkers          int           // concurrent source fetches
	SimilarityThreshold float64       // token-jaccard cutoff for repeat reporting
	FetchRetries        int           // attempts per source before declaring failure
}

// Coordinator runs the collection pipeline. At most one run is in flight at a
// time; a second trigger while one is active fails synchronously.
type Coordinator struct {
	fetchers    map[domain.SourceKind]Fetcher
	sources     []domain.SourceConfig
	normalizer  Normalizer
	classifier  Classifier
	records     RecordStore
	runs        RunStore
	broadcaster *progress.Broadcaster
	params      Params

	mu     sync.Mutex
	active *domain.CollectionRun
	cancel context.CancelFunc
	done   chan struct{} // closed when the active run finishes, nil otherwise
}

// NewCoordinator creates a run coordinator over the given dependencies
func NewCoordinator(fetchers map[domain.SourceKind]Fetcher, sources []domain.SourceConfig,
	normalizer Normalizer, classifier Classifier, records RecordStore, runs RunStore,
	broadcaster *progress.Broadcaster, params Params) *Coordinator {

	if params.SourceTimeout <= 0 {
		params.SourceTimeout = 2 * time.Minute
	}
	if params.MaxWorkers <= 0 {
		params.MaxWorkers = 8
	}
	if params.SimilarityThreshold <= 0 {
		params.SimilarityThreshold = 0.7
	}
	if params.FetchRetries <= 0 {
		params.FetchRetries = 3
	}

	return &Coordinator{
		fetchers:    fetchers,
		sources:     sources,
		normalizer:  normalizer,
		classifier:  classifier,
		records:     records,
		runs:        runs,
		broadcaster: broadcaster,
		params:      params,
	}
}

// StartRun triggers a new collection run and returns its id immediately. The
// run itself executes in the background; progress is observable through the
// broadcaster and RunStatus. Returns domain.ErrRunActive when a run is
// already in flight.
func (c *Coordinator) StartRun(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil && !c.active.Status.Terminal() {
		return "", domain.ErrRunActive
	}

	enabled := make([]domain.SourceConfig, 0, len(c.sources))
	for _, src := range c.sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	if len(enabled) == 0 {
		return "", fmt.Errorf("no enabled sources configured")
	}

	run := &domain.CollectionRun{
		RunID:     uuid.NewString(),
		Status:    domain.RunPending,
		Sources:   make(map[string]domain.SourceProgress, len(enabled)),
		StartedAt: time.Now().UTC(),
		TablesVer: c.classifier.TablesVersion(),
	}
	for _, src := range enabled {
		run.Sources[src.Name] = domain.SourceProgress{Status: domain.SourcePending}
	}

	// run lifetime is detached from the triggering request
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.active = run
	c.cancel = cancel
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		defer cancel()
		c.execute(runCtx, run, enabled)
	}(c.done)

	lgr.Printf("[INFO] collection run %s started, %d sources", run.RunID, len(enabled))
	return run.RunID, nil
}

// RunStatus returns a snapshot of the run with the given id, consulting the
// in-flight run first and the archive after
func (c *Coordinator) RunStatus(ctx context.Context, runID string) (*domain.CollectionRun, error) {
	c.mu.Lock()
	if c.active != nil && c.active.RunID == runID {
		snapshot := c.active.Clone()
		c.mu.Unlock()
		return &snapshot, nil
	}
	c.mu.Unlock()
	return c.runs.GetRun(ctx, runID)
}

// ActiveRun returns a snapshot of the in-flight run, or nil when idle
func (c *Coordinator) ActiveRun() *domain.CollectionRun {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.Status.Terminal() {
		return nil
	}
	snapshot := c.active.Clone()
	return &snapshot
}

// CancelRun requests cancellation of the in-flight run. Returns
// domain.ErrRunNotFound when no active run matches the id.
func (c *Coordinator) CancelRun(runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.RunID != runID || c.active.Status.Terminal() {
		return domain.ErrRunNotFound
	}
	lgr.Printf("[INFO] cancelling collection run %s", runID)
	c.cancel()
	return nil
}

// Wait blocks until the active run finishes, for graceful shutdown and tests
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// execute drives one run from fetch to archive. Source failures are isolated:
// a run finishes completed as long as at least one source delivered.
func (c *Coordinator) execute(ctx context.Context, run *domain.CollectionRun, sources []domain.SourceConfig) {
	c.setStatus(run, domain.RunRunning)
	c.publish(run, "")

	var resMu sync.Mutex
	collected := make([]domain.NormalizedItem, 0)
	fetched := 0

	workers := c.params.MaxWorkers
	if len(sources) < workers {
		workers = len(sources)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, src := range sources {
		g.Go(func() error {
			c.setSourceStatus(run, src.Name, domain.SourceRunning, 0)
			c.publish(run, src.Name)

			items, err := c.fetchSource(gctx, src)
			resMu.Lock()
			defer resMu.Unlock()

			if err != nil {
				status := domain.SourceError
				if errors.Is(err, context.Canceled) {
					status = domain.SourceCancelled
				}
				c.setSourceStatus(run, src.Name, status, 0)
				c.addFailure(run, src.Name, err)
				lgr.Printf("[WARN] source %s failed: %v", src.Name, err)
			} else {
				for _, raw := range items {
					collected = append(collected, c.normalizer.Normalize(raw, src.Name))
				}
				fetched++
				c.setSourceStatus(run, src.Name, domain.SourceCompleted, len(items))
				lgr.Printf("[INFO] source %s delivered %d items", src.Name, len(items))
			}
			c.publish(run, src.Name)
			return nil // source failures never abort sibling sources
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		c.finish(ctx, run, domain.RunCancelled)
		return
	}
	if fetched == 0 {
		c.finish(ctx, run, domain.RunError)
		return
	}

	// single-threaded tail: dedup and merge operate on the settled full set
	survivors := c.pipeline(run, collected)

	classifications := make([]domain.Classification, len(survivors))
	for i, item := range survivors {
		classifications[i] = c.classifier.Classify(item)
	}

	stats, err := c.records.MergeCollected(ctx, survivors, classifications)
	if err != nil {
		lgr.Printf("[ERROR] merge failed for run %s: %v", run.RunID, err)
		c.addFailure(run, "storage", err)
		c.finish(ctx, run, domain.RunError)
		return
	}

	c.mu.Lock()
	run.NewItems = stats.Inserted
	run.UpdatedItems = stats.Updated
	c.mu.Unlock()

	c.finish(ctx, run, domain.RunCompleted)
}

// fetchSource runs one fetch under the per-source deadline with retries
func (c *Coordinator) fetchSource(ctx context.Context, src domain.SourceConfig) ([]domain.RawItem, error) {
	fetcher, ok := c.fetchers[src.Kind]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for kind %q", src.Kind)
	}

	srcCtx, cancel := context.WithTimeout(ctx, c.params.SourceTimeout)
	defer cancel()

	var items []domain.RawItem
	retrier := repeater.NewBackoff(c.params.FetchRetries, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))
	err := retrier.Do(srcCtx, func() error {
		var ferr error
		items, ferr = fetcher.Fetch(srcCtx, src)
		return ferr
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if src.MaxItems > 0 && len(items) > src.MaxItems {
		items = items[:src.MaxItems]
	}
	return items, nil
}

// pipeline dedupes the collected set and records repeat-pair analytics
func (c *Coordinator) pipeline(run *domain.CollectionRun, collected []domain.NormalizedItem) []domain.NormalizedItem {
	survivors := dedup.Dedupe(collected)
	pairs := dedup.SimilarPairs(survivors, c.params.SimilarityThreshold)

	c.mu.Lock()
	run.TotalItems = len(survivors)
	run.SimilarPairs = len(pairs)
	c.mu.Unlock()

	if dropped := len(collected) - len(survivors); dropped > 0 {
		lgr.Printf("[INFO] run %s removed %d duplicates, %d similar pairs reported", run.RunID, dropped, len(pairs))
	}
	return survivors
}

// finish sets the terminal status, archives the run and emits the final
// progress event exactly once
func (c *Coordinator) finish(ctx context.Context, run *domain.CollectionRun, status domain.RunStatus) {
	c.mu.Lock()
	run.Status = status
	run.FinishedAt = time.Now().UTC()
	for name, sp := range run.Sources {
		if sp.Status == domain.SourcePending || sp.Status == domain.SourceRunning {
			if status == domain.RunCancelled {
				sp.Status = domain.SourceCancelled
			} else {
				sp.Status = domain.SourceError
			}
			run.Sources[name] = sp
		}
	}
	snapshot := run.Clone()
	c.mu.Unlock()

	// archive even cancelled and failed runs, detached from run cancellation
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.runs.SaveRun(saveCtx, &snapshot); err != nil {
		lgr.Printf("[ERROR] failed to archive run %s: %v", run.RunID, err)
	}

	c.broadcaster.Publish(progress.Update{
		RunID:           snapshot.RunID,
		Status:          snapshot.Status,
		ProgressPercent: 100,
		SourceCounts:    sourceCounts(snapshot),
		Errors:          snapshot.Errors,
	})
	lgr.Printf("[INFO] collection run %s finished: %s, %d items, %d new, %d updated, %d errors",
		snapshot.RunID, snapshot.Status, snapshot.TotalItems, snapshot.NewItems, snapshot.UpdatedItems, len(snapshot.Errors))
}

func (c *Coordinator) setStatus(run *domain.CollectionRun, status domain.RunStatus) {
	c.mu.Lock()
	run.Status = status
	c.mu.Unlock()
}

func (c *Coordinator) setSourceStatus(run *domain.CollectionRun, name string, status domain.SourceStatus, count int) {
	c.mu.Lock()
	sp := run.Sources[name]
	sp.Status = status
	if count > sp.Count {
		sp.Count = count
	}
	run.Sources[name] = sp
	c.mu.Unlock()
}

func (c *Coordinator) addFailure(run *domain.CollectionRun, source string, err error) {
	c.mu.Lock()
	run.Errors = append(run.Errors, domain.SourceFailure{Source: source, Error: err.Error()})
	c.mu.Unlock()
}

// publish emits a non-terminal progress event reflecting the run snapshot
func (c *Coordinator) publish(run *domain.CollectionRun, currentSource string) {
	c.mu.Lock()
	snapshot := run.Clone()
	c.mu.Unlock()

	settled := 0
	for _, sp := range snapshot.Sources {
		if sp.Status == domain.SourceCompleted || sp.Status == domain.SourceError || sp.Status == domain.SourceCancelled {
			settled++
		}
	}
	percent := 0.0
	if len(snapshot.Sources) > 0 {
		// fetch phase covers 90 percent, the merge tail the rest
		percent = 90 * float64(settled) / float64(len(snapshot.Sources))
	}

	c.broadcaster.Publish(progress.Update{
		RunID:           snapshot.RunID,
		Status:          snapshot.Status,
		ProgressPercent: percent,
		CurrentSource:   currentSource,
		SourceCounts:    sourceCounts(snapshot),
		Errors:          snapshot.Errors,
	})
}

func sourceCounts(run domain.CollectionRun) map[string]int {
	counts := make(map[string]int, len(run.Sources))
	for name, sp := range run.Sources {
		counts[name] = sp.Count
	}
	return counts
}

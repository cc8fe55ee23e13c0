package harvest

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
	"github.com/umwelt-info/harvester/internal/store"
	"github.com/umwelt-info/harvester/pkg/log"
)

// Store is the directory layout a Run writes into: staging area setup,
// per-source sinks, carry-forward of inactive sources, and the final
// atomic swap.
type Store interface {
	BeginRun() error
	SourceDir(name string) (Sink, error)
	CarryForward(name string) error
	Commit() error
}

// NewStore adapts internal/store.Root to the Store interface above: Root's
// SourceDir returns the concrete *store.SourceDir rather than the Sink
// interface, so it cannot satisfy Store directly.
func NewStore(root *store.Root) Store { return storeAdapter{root} }

type storeAdapter struct{ root *store.Root }

func (s storeAdapter) BeginRun() error                      { return s.root.BeginRun() }
func (s storeAdapter) SourceDir(name string) (Sink, error)  { return s.root.SourceDir(name) }
func (s storeAdapter) CarryForward(name string) error       { return s.root.CarryForward(name) }
func (s storeAdapter) Commit() error                        { return s.root.Commit() }

// MetricsRecorder receives one observation per harvested source; internal/
// metricsstore's Store implements it.
type MetricsRecorder interface {
	RecordHarvest(source string, startTime time.Time, duration time.Duration, result BatchResult)
}

// RunResult summarizes one orchestrator pass over every configured source.
type RunResult struct {
	Results map[string]BatchResult
	Errors  map[string]error
}

// Run executes spec.md §4.2 end to end: stage datasets.new, fan out one
// task per active source (bounded by source.Concurrency internally; the
// errgroup across sources here sets no limit), hard-link inactive sources
// forward, wait,
// then atomically swap. A per-source failure is recorded and logged but
// does not abort sibling sources; a Store failure (staging, commit) is
// fatal to the whole run.
func Run(ctx context.Context, cfg *hconfig.Config, sourceGroup string, dest Store, client *httpclient.Client, resolver dataset.GeoResolver, metrics MetricsRecorder) (RunResult, error) {
	active, inactive := cfg.Active(sourceGroup)

	if err := dest.BeginRun(); err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		Results: make(map[string]BatchResult, len(active)),
		Errors:  make(map[string]error),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, source := range active {
		source := source
		g.Go(func() error {
			sink, err := dest.SourceDir(source.Name)
			if err != nil {
				return err
			}

			harvester, err := New(source, client, resolver)
			if err != nil {
				return err
			}

			start := time.Now()
			batchResult, err := harvester.Harvest(gctx, sink)
			duration := time.Since(start)

			if metrics != nil {
				metrics.RecordHarvest(source.Name, start, duration, batchResult)
			}

			mu.Lock()
			result.Results[source.Name] = batchResult
			if err != nil {
				result.Errors[source.Name] = err
				log.Errorf("harvest of source %q failed: %v", source.Name, err)
			}
			mu.Unlock()
			return nil
		})
	}

	for _, source := range inactive {
		source := source
		g.Go(func() error {
			return dest.CarryForward(source.Name)
		})
	}

	if err := g.Wait(); err != nil {
		return RunResult{}, err
	}

	if err := dest.Commit(); err != nil {
		return RunResult{}, err
	}

	return result, nil
}

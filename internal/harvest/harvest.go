// Package harvest implements the seven protocol harvesters and the
// orchestrator that fans them out, matching spec.md §4.2/§4.3. Grounded on
// original_source/src/bin/harvester.rs (orchestrator) and
// original_source/src/harvester/*.rs (protocols).
package harvest

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
	"github.com/umwelt-info/harvester/pkg/log"
)

// BatchResult is the outcome of harvesting one source: count is the
// upstream-reported total, Transmitted the number of datasets written,
// Failed the number of per-record or per-batch failures folded in.
type BatchResult struct {
	Count       int
	Transmitted int
	Failed      int
}

func (r *BatchResult) merge(other BatchResult) {
	r.Transmitted += other.Transmitted
	r.Failed += other.Failed
}

// Sink is where a harvester writes normalized datasets; internal/store's
// per-source directory writer implements it.
type Sink interface {
	Write(id string, d *dataset.Dataset) error
}

// Harvester fetches one source end to end and writes every dataset it can
// translate into sink.
type Harvester interface {
	Harvest(ctx context.Context, sink Sink) (BatchResult, error)
}

// New dispatches on source.Type to build the matching protocol harvester
// (spec.md §9: "closed tagged enumeration of types dispatched in the
// orchestrator").
func New(source hconfig.Source, client *httpclient.Client, resolver dataset.GeoResolver) (Harvester, error) {
	region := resolveSourceRegion(source, resolver)

	switch source.Type {
	case hconfig.Ckan:
		return &ckanHarvester{source: source, client: client, region: region}, nil
	case hconfig.Csw:
		return &cswHarvester{source: source, client: client, region: region}, nil
	case hconfig.GeoNetworkQ:
		return &geoNetworkQHarvester{source: source, client: client, region: region}, nil
	case hconfig.DorisBfs:
		return &dorisBfsHarvester{source: source, client: client, region: region}, nil
	case hconfig.WasserDe:
		return &wasserDeHarvester{source: source, client: client, region: region}, nil
	case hconfig.SmartFinder:
		return &smartFinderHarvester{source: source, client: client, region: region}, nil
	case hconfig.Manual:
		return &manualHarvester{source: source, region: region}, nil
	default:
		return nil, errs.Config("source %q has unhandled type %q", source.Name, source.Type)
	}
}

// resolveSourceRegion resolves a source's configured coverage area once at
// harvester construction, rather than per record: most catalogues serve a
// single region (spec.md §9 soft-failure note applies equally here — a nil
// resolver or an unmatched name just yields an Other(name) region).
func resolveSourceRegion(source hconfig.Source, resolver dataset.GeoResolver) *dataset.Region {
	if source.Region == "" {
		return nil
	}
	r := dataset.ParseRegion(source.Region, resolver)
	return &r
}

// writeRecord validates d and writes it to sink, returning any failure as
// a per-record error that callers count as a single failure rather than
// aborting the surrounding batch (spec.md §7 kind 4).
func writeRecord(sink Sink, id string, d *dataset.Dataset) error {
	if err := d.Validate(); err != nil {
		return errs.Record(id, err)
	}
	if err := sink.Write(id, d); err != nil {
		return errs.Record(id, err)
	}
	return nil
}

// pageFetcher fetches one page/batch starting at start and returns the
// upstream total, how many records it saw, and how many of those failed to
// translate/write.
type pageFetcher func(ctx context.Context, start int) (total int, seen int, failed int, err error)

// paginate drives the common batched-pagination pattern of spec.md §4.3:
// fetch page 0 first (to learn the upstream total), then fan out the
// remaining pages bounded by concurrency. A page-level error counts
// batchSize failures and the batch's own record count toward Transmitted
// is lost, but other pages continue (spec.md §7 kind 3).
func paginate(ctx context.Context, concurrency, batchSize int, firstStart int, starts func(total int) []int, fetch pageFetcher) (BatchResult, error) {
	total, seen, failed, err := fetch(ctx, firstStart)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Count: total, Transmitted: seen - failed, Failed: failed}

	remaining := starts(total)
	if len(remaining) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(max(concurrency, 1)))
	results := make([]BatchResult, len(remaining))

	for i, start := range remaining {
		i, start := i, start
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			_, seen, failed, err := fetch(gctx, start)
			if err != nil {
				log.Errorf("batch at offset %d failed: %v", start, err)
				results[i] = BatchResult{Failed: batchSize}
				return nil
			}
			results[i] = BatchResult{Transmitted: seen - failed, Failed: failed}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	for _, r := range results {
		result.merge(r)
	}
	return result, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

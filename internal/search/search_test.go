package search

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/store"
)

func TestTweakScoreIncreasesWithAccesses(t *testing.T) {
	base := tweakScore(1.0, 0)
	withAccesses := tweakScore(1.0, 1000)
	assert.Greater(t, withAccesses, base)
	assert.InDelta(t, math.Log2(2), base, 1e-9)
}

func TestTweakScoreZeroAccessesIsPositiveMultiplier(t *testing.T) {
	assert.Greater(t, tweakScore(1.0, 0), 0.0)
}

type fakeCounter map[string]uint64

func (c fakeCounter) Count(source, id string) uint64 { return c[source+"/"+id] }

func seedDatasets(t *testing.T, root *store.Root) {
	t.Helper()
	require.NoError(t, root.BeginRun())

	demo, err := root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, demo.Write("river", &dataset.Dataset{
		Title:       "Wasserqualität der Flüsse in Bayern",
		Description: "Messwerte zur Wasserqualität",
		Provenance:  "bayern",
		License:     dataset.CcBy40,
	}))
	require.NoError(t, demo.Write("air", &dataset.Dataset{
		Title:       "Luftqualität in München",
		Description: "Feinstaubmessungen",
		Provenance:  "bayern",
		License:     dataset.DlDeBy20,
	}))
	require.NoError(t, root.Commit())
}

func TestReindexThenSearchFindsStemmedMatch(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	seedDatasets(t, root)

	indexPath := filepath.Join(t.TempDir(), "index")
	indexer, err := OpenIndexer(indexPath)
	require.NoError(t, err)

	counts := fakeCounter{"demo/river": 50}
	n, err := indexer.Reindex(root, counts)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, indexer.Close())

	searcher, err := OpenSearcher(indexPath)
	require.NoError(t, err)
	defer searcher.Close()

	result, err := searcher.Search(context.Background(), "Wasserqualität", "", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Total)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "demo", result.Hits[0].Source)
	assert.Equal(t, "river", result.Hits[0].ID)
}

func TestSearchFacetRootRestrictsToLicense(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	seedDatasets(t, root)

	indexPath := filepath.Join(t.TempDir(), "index")
	indexer, err := OpenIndexer(indexPath)
	require.NoError(t, err)
	_, err = indexer.Reindex(root, nil)
	require.NoError(t, err)
	require.NoError(t, indexer.Close())

	searcher, err := OpenSearcher(indexPath)
	require.NoError(t, err)
	defer searcher.Close()

	licenseRoot := "/" + dataset.CcBy40.ID()
	result, err := searcher.Search(context.Background(), "Bayern München", "", licenseRoot, 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "river", result.Hits[0].ID)
	assert.Equal(t, map[string]int{licenseRoot: 1}, result.Facets.License)
}

func TestSearchFacetCountsDefaultToUnrestrictedRoot(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	seedDatasets(t, root)

	indexPath := filepath.Join(t.TempDir(), "index")
	indexer, err := OpenIndexer(indexPath)
	require.NoError(t, err)
	_, err = indexer.Reindex(root, nil)
	require.NoError(t, err)
	require.NoError(t, indexer.Close())

	searcher, err := OpenSearcher(indexPath)
	require.NoError(t, err)
	defer searcher.Close()

	result, err := searcher.Search(context.Background(), "Bayern München", "", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Total)
	// spec.md §8's literal example: an unrestricted query facets as {/: N},
	// not a per-license breakdown.
	assert.Equal(t, map[string]int{"/": 2}, result.Facets.License)
	assert.Equal(t, map[string]int{"/": 2}, result.Facets.Provenance)
}

func TestSearchFacetRootDescendsToSubtree(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	require.NoError(t, root.BeginRun())
	demo, err := root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, demo.Write("a", &dataset.Dataset{Title: "Messwerte a", Provenance: "bayern/lfu", License: dataset.CcBy40}))
	require.NoError(t, demo.Write("b", &dataset.Dataset{Title: "Messwerte b", Provenance: "bayern/lwg", License: dataset.CcBy40}))
	require.NoError(t, demo.Write("c", &dataset.Dataset{Title: "Messwerte c", Provenance: "nrw", License: dataset.CcBy40}))
	require.NoError(t, root.Commit())

	indexPath := filepath.Join(t.TempDir(), "index")
	indexer, err := OpenIndexer(indexPath)
	require.NoError(t, err)
	_, err = indexer.Reindex(root, nil)
	require.NoError(t, err)
	require.NoError(t, indexer.Close())

	searcher, err := OpenSearcher(indexPath)
	require.NoError(t, err)
	defer searcher.Close()

	result, err := searcher.Search(context.Background(), "Messwerte", "/bayern", "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), result.Total)
}

func TestReindexIsIdempotentAcrossRuns(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	seedDatasets(t, root)

	indexPath := filepath.Join(t.TempDir(), "index")
	indexer, err := OpenIndexer(indexPath)
	require.NoError(t, err)

	_, err = indexer.Reindex(root, nil)
	require.NoError(t, err)
	n, err := indexer.Reindex(root, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, indexer.Close())
}

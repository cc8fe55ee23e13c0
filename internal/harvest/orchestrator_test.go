package harvest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
	"github.com/umwelt-info/harvester/internal/store"
)

type recordedHarvest struct {
	source   string
	duration time.Duration
	result   BatchResult
}

type fakeMetrics struct{ recorded []recordedHarvest }

func (f *fakeMetrics) RecordHarvest(source string, startTime time.Time, duration time.Duration, result BatchResult) {
	f.recorded = append(f.recorded, recordedHarvest{source: source, duration: duration, result: result})
}

func TestRunHarvestsActiveAndCarriesForwardInactive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		packages := []ckanPackage{{ID: "x", Name: "x", Title: "Only"}}
		end := start + 1
		if end > len(packages) {
			end = len(packages)
		}
		resp := ckanPackageSearch{Success: true, Result: ckanSearchResult{Count: len(packages), Results: packages[start:end]}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)

	// Seed a prior run for the inactive source so CarryForward has something
	// to hard-link.
	require.NoError(t, root.BeginRun())
	seedSink, err := root.SourceDir("archived")
	require.NoError(t, err)
	require.NoError(t, seedSink.Write("old-id", &dataset.Dataset{Title: "Old"}))
	require.NoError(t, root.Commit())

	cfg := &hconfig.Config{Sources: []hconfig.Source{
		{Name: "live", Type: hconfig.Ckan, URL: server.URL, Group: "active", BatchSize: 10, Concurrency: 1},
		{Name: "archived", Type: hconfig.Ckan, URL: server.URL, Group: "other", BatchSize: 10, Concurrency: 1},
	}}

	client, err := httpclient.New(t.TempDir(), httpclient.Live)
	require.NoError(t, err)

	metrics := &fakeMetrics{}
	result, err := Run(context.Background(), cfg, "active", NewStore(root), client, nil, metrics)
	require.NoError(t, err)

	assert.Equal(t, BatchResult{Count: 1, Transmitted: 1, Failed: 0}, result.Results["live"])
	assert.Empty(t, result.Errors)
	require.Len(t, metrics.recorded, 1)
	assert.Equal(t, "live", metrics.recorded[0].source)

	liveIDs, err := root.Datasets("live")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, liveIDs)

	archivedIDs, err := root.Datasets("archived")
	require.NoError(t, err)
	assert.Equal(t, []string{"old-id"}, archivedIDs)
}

func TestRunRemovesStaleDatasetsNewBeforeStarting(t *testing.T) {
	dataPath := t.TempDir()
	stalePath := filepath.Join(dataPath, "datasets.new", "leftover")
	require.NoError(t, os.MkdirAll(stalePath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stalePath, "junk"), []byte("x"), 0o644))

	root := store.NewRoot(dataPath)
	cfg := &hconfig.Config{Sources: nil}

	client, err := httpclient.New(t.TempDir(), httpclient.Live)
	require.NoError(t, err)

	_, err = Run(context.Background(), cfg, "", NewStore(root), client, nil, nil)
	require.NoError(t, err)

	_, err = os.Stat(stalePath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunRecordsPerSourceErrorWithoutAbortingSiblings(t *testing.T) {
	// A malformed-but-200 response fails at JSON decode, not at the HTTP
	// transport layer, so it doesn't trigger the retry backoff (spec.md
	// §4.1) and the test stays fast.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	goodServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := ckanPackageSearch{Success: true, Result: ckanSearchResult{Count: 0, Results: []ckanPackage{}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer goodServer.Close()

	root := store.NewRoot(t.TempDir())
	cfg := &hconfig.Config{Sources: []hconfig.Source{
		{Name: "broken", Type: hconfig.Ckan, URL: server.URL, BatchSize: 10, Concurrency: 1},
		{Name: "fine", Type: hconfig.Ckan, URL: goodServer.URL, BatchSize: 10, Concurrency: 1},
	}}

	client, err := httpclient.New(t.TempDir(), httpclient.Live)
	require.NoError(t, err)

	result, err := Run(context.Background(), cfg, "", NewStore(root), client, nil, nil)
	require.NoError(t, err)

	assert.Contains(t, result.Errors, "broken")
	assert.NotContains(t, result.Errors, "fine")
	assert.Equal(t, BatchResult{}, result.Results["fine"])
}

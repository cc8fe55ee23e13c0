package metricsstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/store"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics")
	s, err := Load(path)
	require.NoError(t, err)
	_, ok := s.Harvest("demo")
	assert.False(t, ok)
	assert.Empty(t, s.LicenseHistogram())
}

func TestRecordHarvestThenFlushRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics")
	s, err := Load(path)
	require.NoError(t, err)

	start := time.Unix(1700000000, 0).UTC()
	s.RecordHarvest("demo", start, 3*time.Second, 42, 40, 2)
	require.NoError(t, s.Flush())

	reloaded, err := Load(path)
	require.NoError(t, err)
	r, ok := reloaded.Harvest("demo")
	require.True(t, ok)
	assert.Equal(t, start, r.StartTime)
	assert.Equal(t, 3*time.Second, r.Duration)
	assert.Equal(t, 42, r.Count)
	assert.Equal(t, 40, r.Transmitted)
	assert.Equal(t, 2, r.Failed)
}

func TestObserveDatasetBuildsLicenseAndTagHistograms(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "metrics"))
	require.NoError(t, err)

	s.ObserveDataset(&dataset.Dataset{
		Title:   "a",
		License: dataset.CcBy40,
		Tags:    dataset.Tags{dataset.Wrrl, dataset.OtherTag("fish")},
	})
	s.ObserveDataset(&dataset.Dataset{
		Title:   "b",
		License: dataset.CcBy40,
		Tags:    dataset.Tags{dataset.Wrrl},
	})

	license := s.LicenseHistogram()
	assert.Equal(t, uint64(2), license[dataset.CcBy40.ID()])

	tags := s.TagHistogram()
	assert.Equal(t, uint64(2), tags["WRRL"])
	assert.Equal(t, uint64(1), tags["fish"])
}

func TestResetHistogramsClearsPriorPass(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "metrics"))
	require.NoError(t, err)

	s.ObserveDataset(&dataset.Dataset{Title: "a", License: dataset.CcBy40})
	assert.NotEmpty(t, s.LicenseHistogram())

	s.ResetHistograms()
	assert.Empty(t, s.LicenseHistogram())
}

func TestReindexHistogramsWalksLiveSnapshot(t *testing.T) {
	dataPath := t.TempDir()
	root := store.NewRoot(dataPath)
	require.NoError(t, root.BeginRun())

	demo, err := root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, demo.Write("river", &dataset.Dataset{
		Title:   "Wasserqualität",
		License: dataset.CcBy40,
		Tags:    dataset.Tags{dataset.Wrrl},
	}))
	require.NoError(t, root.Commit())

	s, err := Load(filepath.Join(t.TempDir(), "metrics"))
	require.NoError(t, err)
	require.NoError(t, s.ReindexHistograms(root))

	license := s.LicenseHistogram()
	assert.Equal(t, uint64(1), license[dataset.CcBy40.ID()])
}

func TestFlushLeavesNoTempFileBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics")
	s, err := Load(path)
	require.NoError(t, err)
	s.RecordHarvest("demo", time.Unix(0, 0), time.Second, 1, 1, 0)
	require.NoError(t, s.Flush())

	_, err = os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(err))
}

func TestCollectorsObserveSetsGaugeValues(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "metrics"))
	require.NoError(t, err)
	s.RecordHarvest("demo", time.Unix(0, 0), 5*time.Second, 10, 9, 1)
	s.ObserveDataset(&dataset.Dataset{Title: "a", License: dataset.CcBy40})

	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)
	c.Observe(s)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

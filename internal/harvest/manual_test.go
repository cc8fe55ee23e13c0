package harvest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/hconfig"
)

type memSink struct {
	written map[string]*dataset.Dataset
}

func newMemSink() *memSink { return &memSink{written: map[string]*dataset.Dataset{}} }

func (s *memSink) Write(id string, d *dataset.Dataset) error {
	s.written[id] = d
	return nil
}

func TestManualHarvesterReadsTomlFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.toml")
	body := `
[[datasets]]
id = "ds-1"
title = "Handgepflegter Datensatz"
description = "Beschreibung"
license = "cc-by/4.0"
tags = ["WRRL"]
source_url = "https://example.org/ds-1"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	h := &manualHarvester{source: hconfig.Source{Name: "manual-src", URL: path}}
	sink := newMemSink()

	result, err := h.Harvest(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Count: 1, Transmitted: 1, Failed: 0}, result)

	got := sink.written["ds-1"]
	require.NotNil(t, got)
	assert.Equal(t, "Handgepflegter Datensatz", got.Title)
	assert.True(t, got.License.Equal(dataset.CcBy40))
	assert.True(t, got.Tags[0].Equal(dataset.Wrrl))
}

func TestManualHarvesterCountsMissingTitleAsFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manual.toml")
	body := `
[[datasets]]
id = "no-title"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	h := &manualHarvester{source: hconfig.Source{Name: "manual-src", URL: path}}
	result, err := h.Harvest(context.Background(), newMemSink())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Transmitted)
}

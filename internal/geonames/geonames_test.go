package geonames

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geonames.tsv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestBuildMatchAndResolveRoundTrip(t *testing.T) {
	tsv := writeTSV(t, "2867714\tBayern\tBayern\tBavaria,Free State of Bavaria\n2911297\tHamburg\tHamburg\t\n")
	idxPath := filepath.Join(t.TempDir(), "geonames")

	idx, err := Build(idxPath, tsv)
	require.NoError(t, err)
	defer idx.Close()

	id, ok := idx.Match("Bayern")
	require.True(t, ok)
	assert.Equal(t, uint64(2867714), id)

	id, ok = idx.Match("Bavaria")
	require.True(t, ok)
	assert.Equal(t, uint64(2867714), id)

	assert.Equal(t, "Bayern", idx.Resolve(2867714))
}

func TestMatchAndResolveSoftFailOnNilIndex(t *testing.T) {
	var idx *Index
	_, ok := idx.Match("Bayern")
	assert.False(t, ok)
	assert.Equal(t, "GeoNames/42", idx.Resolve(42))
}

func TestMatchMissUnknownPlace(t *testing.T) {
	tsv := writeTSV(t, "2867714\tBayern\tBayern\t\n")
	idxPath := filepath.Join(t.TempDir(), "geonames")

	idx, err := Build(idxPath, tsv)
	require.NoError(t, err)
	defer idx.Close()

	_, ok := idx.Match("Atlantis")
	assert.False(t, ok)
}

func TestResolveUnknownIDFallsBackToPlaceholder(t *testing.T) {
	tsv := writeTSV(t, "2867714\tBayern\tBayern\t\n")
	idxPath := filepath.Join(t.TempDir(), "geonames")

	idx, err := Build(idxPath, tsv)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, "GeoNames/999", idx.Resolve(999))
}

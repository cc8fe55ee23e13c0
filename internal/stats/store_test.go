package stats

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Count("demo", "a"))
}

func TestRecordAccessIncrementsAndReturnsNewValue(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "stats"))
	require.NoError(t, err)

	assert.Equal(t, uint64(1), s.RecordAccess("demo", "a"))
	assert.Equal(t, uint64(2), s.RecordAccess("demo", "a"))
	assert.Equal(t, uint64(2), s.Count("demo", "a"))
}

func TestFlushThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	s, err := Load(path)
	require.NoError(t, err)

	s.RecordAccess("demo", "a")
	s.RecordAccess("demo", "a")
	s.RecordAccess("demo", "b")
	s.RecordAccess("other", "c")
	require.NoError(t, s.Flush())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reloaded.Count("demo", "a"))
	assert.Equal(t, uint64(1), reloaded.Count("demo", "b"))
	assert.Equal(t, uint64(1), reloaded.Count("other", "c"))
}

func TestFlushLeavesNoTempFileBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats")
	s, err := Load(path)
	require.NoError(t, err)
	s.RecordAccess("demo", "a")
	require.NoError(t, s.Flush())

	_, err = os.Stat(path + ".new")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadDecodesLegacyVarintFormat(t *testing.T) {
	var buf []byte
	buf = binary.AppendUvarint(buf, 1) // one entry

	appendVarintString := func(s string) {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}
	appendVarintString("demo")
	appendVarintString("legacy-id")
	buf = binary.AppendUvarint(buf, 7)

	path := filepath.Join(t.TempDir(), "stats")
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), s.Count("demo", "legacy-id"))
}

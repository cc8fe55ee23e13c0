package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umwelt-info/harvester/internal/dataset"
)

func TestSourceDirWriteAndOverwriteWarns(t *testing.T) {
	root := NewRoot(t.TempDir())
	require.NoError(t, root.BeginRun())

	sink, err := root.SourceDir("demo")
	require.NoError(t, err)

	d := &dataset.Dataset{Title: "Alpha"}
	require.NoError(t, sink.Write("a", d))
	require.NoError(t, sink.Write("a", d)) // collision: warn and overwrite, not an error

	raw, err := os.ReadFile(filepath.Join(root.datasetsNewPath(), "demo", "a"))
	require.NoError(t, err)
	got, err := dataset.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.Title)
}

func TestSourceDirEscapesPathSeparators(t *testing.T) {
	root := NewRoot(t.TempDir())
	require.NoError(t, root.BeginRun())

	sink, err := root.SourceDir("demo")
	require.NoError(t, err)

	require.NoError(t, sink.Write("a/b", &dataset.Dataset{Title: "Slashy"}))

	entries, err := os.ReadDir(filepath.Join(root.datasetsNewPath(), "demo"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), "/")
}

func TestCommitFirstRunHasNoOld(t *testing.T) {
	root := NewRoot(t.TempDir())
	require.NoError(t, root.BeginRun())

	sink, err := root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, sink.Write("a", &dataset.Dataset{Title: "Alpha"}))

	require.NoError(t, root.Commit())

	_, err = os.Stat(root.datasetsOldPath())
	assert.True(t, os.IsNotExist(err))

	ids, err := root.Datasets("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

func TestCommitSecondRunRotatesOld(t *testing.T) {
	root := NewRoot(t.TempDir())

	require.NoError(t, root.BeginRun())
	sink, err := root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, sink.Write("a", &dataset.Dataset{Title: "First"}))
	require.NoError(t, root.Commit())

	require.NoError(t, root.BeginRun())
	sink, err = root.SourceDir("demo")
	require.NoError(t, err)
	require.NoError(t, sink.Write("b", &dataset.Dataset{Title: "Second"}))
	require.NoError(t, root.Commit())

	_, err = os.Stat(root.datasetsOldPath())
	require.NoError(t, err)

	ids, err := root.Datasets("demo")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)

	oldEntries, err := os.ReadDir(filepath.Join(root.datasetsOldPath(), "demo"))
	require.NoError(t, err)
	require.Len(t, oldEntries, 1)
	assert.Equal(t, "a", oldEntries[0].Name())
}

func TestCarryForwardHardLinksPriorFiles(t *testing.T) {
	root := NewRoot(t.TempDir())

	require.NoError(t, root.BeginRun())
	sink, err := root.SourceDir("kept")
	require.NoError(t, err)
	require.NoError(t, sink.Write("a", &dataset.Dataset{Title: "Kept"}))
	require.NoError(t, root.Commit())

	require.NoError(t, root.BeginRun())
	require.NoError(t, root.CarryForward("kept"))

	path := filepath.Join(root.datasetsNewPath(), "kept", "a")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := dataset.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.Title)
}

func TestCarryForwardMissingSourceIsNoop(t *testing.T) {
	root := NewRoot(t.TempDir())
	require.NoError(t, root.BeginRun())
	assert.NoError(t, root.CarryForward("never-harvested"))
}

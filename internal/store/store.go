// Package store implements the on-disk dataset layout of spec.md §3/§4.2:
// datasets/<source>/<id>, the datasets.new/datasets.old staging area, and
// the atomic rename sequence that makes a harvest run's result visible.
// Grounded on original_source/src/bin/harvester.rs (rename ordering) and
// pkg/archive/fsBackend.go (getDirectory/getPath-style path helpers, write
// via os + path/filepath rather than a third-party object-store client).
package store

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/pkg/log"
)

const (
	datasetsDir    = "datasets"
	datasetsNewDir = "datasets.new"
	datasetsOldDir = "datasets.old"
)

// Root is the data root named by DATA_PATH. It owns the staging area for
// one harvest run at a time.
type Root struct {
	path string
}

func NewRoot(path string) *Root {
	return &Root{path: path}
}

func (r *Root) DatasetsPath() string    { return filepath.Join(r.path, datasetsDir) }
func (r *Root) datasetsNewPath() string { return filepath.Join(r.path, datasetsNewDir) }
func (r *Root) datasetsOldPath() string { return filepath.Join(r.path, datasetsOldDir) }

// BeginRun removes any stale datasets.new/ left by a prior aborted run and
// creates a fresh one (spec.md §4.2, §5 "Cancellation").
func (r *Root) BeginRun() error {
	newPath := r.datasetsNewPath()
	if err := os.RemoveAll(newPath); err != nil {
		return errs.Storage("remove stale datasets.new", err)
	}
	if err := os.MkdirAll(newPath, 0o755); err != nil {
		return errs.Storage("create datasets.new", err)
	}
	return nil
}

// SourceDir returns a Sink that writes one active source's output into
// datasets.new/<name>/, creating the directory first.
func (r *Root) SourceDir(name string) (*SourceDir, error) {
	dir := filepath.Join(r.datasetsNewPath(), name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Storage("create source directory", err)
	}
	return &SourceDir{path: dir}, nil
}

// CarryForward hard-links an inactive source's prior files from
// datasets/<name>/ into datasets.new/<name>/ (spec.md §4.2: "copies via
// hard links, synchronously"). A source with no prior run is a no-op.
func (r *Root) CarryForward(name string) error {
	oldDir := filepath.Join(r.DatasetsPath(), name)
	entries, err := os.ReadDir(oldDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errs.Storage("read prior source directory", err)
	}

	newDir := filepath.Join(r.datasetsNewPath(), name)
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		return errs.Storage("create carried-forward source directory", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(oldDir, entry.Name())
		dst := filepath.Join(newDir, entry.Name())
		if err := os.Link(src, dst); err != nil {
			return errs.Storage("hard-link carried-forward dataset", err)
		}
	}
	return nil
}

// Commit performs the atomic swap described in spec.md §4.2: if
// datasets/ exists, it becomes datasets.old/ (replacing any existing one),
// then datasets.new/ becomes datasets/. Readers of datasets/ therefore
// always see either the prior snapshot or the new one, never a partial
// tree (spec.md §5 "Ordering guarantees").
func (r *Root) Commit() error {
	datasetsPath := r.DatasetsPath()
	oldPath := r.datasetsOldPath()
	newPath := r.datasetsNewPath()

	if _, err := os.Stat(datasetsPath); err == nil {
		if err := os.RemoveAll(oldPath); err != nil {
			return errs.Storage("remove prior datasets.old", err)
		}
		if err := os.Rename(datasetsPath, oldPath); err != nil {
			return errs.Storage("rotate datasets to datasets.old", err)
		}
	} else if !os.IsNotExist(err) {
		return errs.Storage("stat datasets", err)
	}

	if err := os.Rename(newPath, datasetsPath); err != nil {
		return errs.Storage("promote datasets.new to datasets", err)
	}
	return nil
}

// SourceDir writes one source's datasets into its own directory under
// datasets.new/, implementing the harvest.Sink interface.
type SourceDir struct {
	path string
}

// Write encodes d and writes it to <dir>/<id> with create-new semantics;
// on a pre-existing file it warns and overwrites (spec.md §4.3 "Dataset
// write").
func (s *SourceDir) Write(id string, d *dataset.Dataset) error {
	raw, err := dataset.Encode(d, true)
	if err != nil {
		return errs.Record(id, err)
	}

	path := filepath.Join(s.path, escapeID(id))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if os.IsExist(err) {
		log.Warnf("dataset %q already present in this run, overwriting", id)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	}
	if err != nil {
		return errs.Record(id, err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return errs.Record(id, err)
	}
	return nil
}

// escapeID makes an upstream record id safe as a single path segment: ids
// are usually already filesystem-safe (UUIDs, slugs), but CKAN/CSW/handle
// identifiers occasionally carry slashes or other reserved characters.
func escapeID(id string) string {
	return url.PathEscape(id)
}

// Datasets lists the ids currently stored for source under datasets/.
func (r *Root) Datasets(source string) ([]string, error) {
	dir := filepath.Join(r.DatasetsPath(), source)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage("list source directory", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, err := url.PathUnescape(entry.Name())
		if err != nil {
			id = entry.Name()
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Load decodes the dataset stored for source/id under datasets/.
func (r *Root) Load(source, id string) (*dataset.Dataset, error) {
	path := filepath.Join(r.DatasetsPath(), source, escapeID(id))
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Storage("read dataset", err)
	}
	return dataset.Decode(raw)
}

// Sources lists the source names currently present under datasets/.
func (r *Root) Sources() ([]string, error) {
	entries, err := os.ReadDir(r.DatasetsPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Storage("list datasets directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

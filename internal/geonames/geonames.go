// Package geonames implements the secondary geo index of spec.md §4.6: a
// name → id / id → name lookup built once from a GeoNames TSV dump and
// queried by internal/dataset's Region normalization. Grounded on
// original_source/src/geonames.rs and original_source/src/bin/geonames.rs;
// library github.com/blevesearch/bleve/v2, the same full-text engine used
// for the primary index (internal/search), so both indexes share one
// dependency rather than introducing a second search library just for
// this smaller lookup.
package geonames

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/iamlouk/lrucache"

	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/pkg/log"
)

const resolveCacheBytes = 8 << 20 // 8 MiB, enough for tens of thousands of resolved names

type geonameDoc struct {
	ID       uint64   `json:"id"`
	Name     string   `json:"name"`
	AltNames []string `json:"alt_names"`
}

// Index is the built geo index, satisfying dataset.GeoResolver. It is safe
// for concurrent reads once Build or Open has returned.
type Index struct {
	idx      bleve.Index
	resolves *lrucache.Cache
}

func buildMapping() mapping.IndexMapping {
	name := bleve.NewTextFieldMapping()
	altNames := bleve.NewTextFieldMapping()

	id := bleve.NewNumericFieldMapping()
	id.Store = true
	id.Index = true

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("name", name)
	doc.AddFieldMappingsAt("alt_names", altNames)
	doc.AddFieldMappingsAt("id", id)

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	return im
}

// Open opens a previously built index at path.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		return nil, errs.Storage("open geonames index", err)
	}
	return &Index{idx: idx, resolves: lrucache.New(resolveCacheBytes)}, nil
}

// Build indexes the tab-separated GeoNames dump at tsvPath (columns: id,
// name, ascii_name, alt_names — alt_names comma-separated) into a fresh
// index at path (spec.md §4.6: "built once from a tab-separated dump").
func Build(path, tsvPath string) (*Index, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, errs.Storage("remove stale geonames index", err)
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, errs.Storage("create geonames index", err)
	}

	f, err := os.Open(tsvPath)
	if err != nil {
		return nil, errs.Storage("open geonames dump", err)
	}
	defer f.Close()

	batch := idx.NewBatch()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 4 {
			continue
		}
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			log.Warnf("geonames: skipping row with invalid id %q: %v", fields[0], err)
			continue
		}
		var altNames []string
		if fields[3] != "" {
			altNames = strings.Split(fields[3], ",")
		}

		doc := geonameDoc{ID: id, Name: fields[1], AltNames: altNames}
		if err := batch.Index(fmt.Sprintf("%d", id), doc); err != nil {
			return nil, errs.Storage("batch geonames row", err)
		}
		count++
		if batch.Size() >= 1000 {
			if err := idx.Batch(batch); err != nil {
				return nil, errs.Storage("index geonames batch", err)
			}
			batch = idx.NewBatch()
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Storage("read geonames dump", err)
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return nil, errs.Storage("index final geonames batch", err)
		}
	}

	log.Infof("geonames: indexed %d places from %s", count, tsvPath)
	return &Index{idx: idx, resolves: lrucache.New(resolveCacheBytes)}, nil
}

// Match looks up name against both name and alt_names, returning the
// single top hit's id. Failure is soft: a missing index or a query error
// both yield (0, false), never an error; a query error is logged, a
// missing index is not (spec.md §4.6).
func (i *Index) Match(name string) (uint64, bool) {
	if i == nil || i.idx == nil {
		return 0, false
	}

	nameQuery := bleve.NewMatchQuery(name)
	nameQuery.SetField("name")
	altQuery := bleve.NewMatchQuery(name)
	altQuery.SetField("alt_names")
	query := bleve.NewDisjunctionQuery(nameQuery, altQuery)

	req := bleve.NewSearchRequestOptions(query, 1, 0, false)
	req.Fields = []string{"id"}

	result, err := i.idx.Search(req)
	if err != nil {
		log.Warnf("geonames: match(%q) failed: %v", name, err)
		return 0, false
	}
	if len(result.Hits) == 0 {
		return 0, false
	}

	idField, ok := result.Hits[0].Fields["id"].(float64)
	if !ok {
		return 0, false
	}
	return uint64(idField), true
}

// Resolve returns the canonical name for id, memoized via an LRU cache
// (the teacher's pkg/lrucache, reused for the same bounded-memory-cache
// purpose it serves elsewhere). A missing index or query error degrades to
// a placeholder rather than an error (spec.md §4.6).
func (i *Index) Resolve(id uint64) string {
	if i == nil || i.idx == nil {
		return placeholder(id)
	}

	key := strconv.FormatUint(id, 10)
	value := i.resolves.Get(key, func() (interface{}, time.Duration, int) {
		name := i.resolveUncached(id)
		return name, time.Hour, len(name)
	})
	name, _ := value.(string)
	if name == "" {
		return placeholder(id)
	}
	return name
}

func (i *Index) resolveUncached(id uint64) string {
	inclusive := true
	query := bleve.NewNumericRangeInclusiveQuery(floatPtr(float64(id)), floatPtr(float64(id)), &inclusive, &inclusive)
	query.SetField("id")

	req := bleve.NewSearchRequestOptions(query, 1, 0, false)
	req.Fields = []string{"name"}

	result, err := i.idx.Search(req)
	if err != nil {
		log.Warnf("geonames: resolve(%d) failed: %v", id, err)
		return ""
	}
	if len(result.Hits) == 0 {
		return ""
	}
	name, _ := result.Hits[0].Fields["name"].(string)
	return name
}

func placeholder(id uint64) string {
	return fmt.Sprintf("GeoNames/%d", id)
}

func floatPtr(f float64) *float64 { return &f }

func (i *Index) Close() error {
	if i == nil || i.idx == nil {
		return nil
	}
	return i.idx.Close()
}

// Command indexer rebuilds the full-text index from the live dataset
// store (spec.md §4.5, §6) and refreshes the metrics store's license/tag
// histograms, which are reset every indexer pass.
package main

import (
	"os"
	"path/filepath"

	"github.com/umwelt-info/harvester/internal/metricsstore"
	"github.com/umwelt-info/harvester/internal/search"
	"github.com/umwelt-info/harvester/internal/stats"
	"github.com/umwelt-info/harvester/internal/store"
	"github.com/umwelt-info/harvester/pkg/log"
)

func main() {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		log.Fatal("environment variable DATA_PATH not set")
	}

	root := store.NewRoot(dataPath)

	accessCounts, err := stats.Load(filepath.Join(dataPath, "stats"))
	if err != nil {
		log.Fatalf("load stats store: %v", err)
	}

	indexer, err := search.OpenIndexer(filepath.Join(dataPath, "index"))
	if err != nil {
		log.Fatalf("open search index: %v", err)
	}
	defer indexer.Close()

	count, err := indexer.Reindex(root, accessCounts)
	if err != nil {
		log.Fatalf("reindex: %v", err)
	}
	log.Infof("indexed %d datasets", count)

	metrics, err := metricsstore.Load(filepath.Join(dataPath, "metrics"))
	if err != nil {
		log.Fatalf("load metrics store: %v", err)
	}
	if err := metrics.ReindexHistograms(root); err != nil {
		log.Fatalf("rebuild metrics histograms: %v", err)
	}
	if err := metrics.Flush(); err != nil {
		log.Fatalf("flush metrics store: %v", err)
	}
}

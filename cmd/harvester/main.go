// Command harvester runs one harvest pass over every active source in
// harvester.toml and atomically publishes the result (spec.md §4.2, §6).
// Grounded on original_source/src/bin/harvester.rs and the teacher's
// cmd/cc-backend/main.go env/startup idiom.
package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/umwelt-info/harvester/internal/harvest"
	"github.com/umwelt-info/harvester/internal/hconfig"
	"github.com/umwelt-info/harvester/internal/httpclient"
	"github.com/umwelt-info/harvester/internal/metricsstore"
	"github.com/umwelt-info/harvester/internal/geonames"
	"github.com/umwelt-info/harvester/internal/store"
	"github.com/umwelt-info/harvester/pkg/log"
)

func main() {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		log.Fatal("environment variable DATA_PATH not set")
	}

	mode := httpclient.Live
	if _, replay := os.LookupEnv("REPLAY_RESPONSES"); replay {
		mode = httpclient.Replay
	}
	sourceGroup := os.Getenv("SOURCE_GROUP")

	cfg, err := hconfig.Load(filepath.Join(dataPath, "harvester.toml"))
	if err != nil {
		log.Fatalf("load harvester.toml: %v", err)
	}

	client, err := httpclient.New(filepath.Join(dataPath, "responses"), mode)
	if err != nil {
		log.Fatalf("open http client: %v", err)
	}

	resolver, err := openGeoResolver(dataPath)
	if err != nil {
		log.Warnf("geonames index unavailable, region resolution will use placeholders: %v", err)
	}
	if resolver != nil {
		defer resolver.Close()
	}

	root := store.NewRoot(dataPath)

	metrics, err := metricsstore.Load(filepath.Join(dataPath, "metrics"))
	if err != nil {
		log.Fatalf("load metrics store: %v", err)
	}
	recorder := metricsRecorder{metrics}

	result, err := harvest.Run(context.Background(), cfg, sourceGroup, harvest.NewStore(root), client, resolver, recorder)
	if err != nil {
		log.Fatalf("harvest run failed: %v", err)
	}

	if err := metrics.Flush(); err != nil {
		log.Errorf("flush metrics store: %v", err)
	}

	var failed int
	for source, batch := range result.Results {
		log.Infof("source %q: count=%d transmitted=%d failed=%d", source, batch.Count, batch.Transmitted, batch.Failed)
		failed += batch.Failed
	}
	if len(result.Errors) > 0 {
		for source, err := range result.Errors {
			log.Errorf("source %q failed: %v", source, err)
		}
	}
	log.Infof("harvest complete: %d sources, %d records failed", len(result.Results), failed)
}

// openGeoResolver opens the secondary geonames index if one has been
// built; a missing index degrades region resolution to placeholders
// rather than aborting the run (spec.md §9 soft-failure design note).
func openGeoResolver(dataPath string) (*geonames.Index, error) {
	path := filepath.Join(dataPath, "geonames")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, err
	}
	return geonames.Open(path)
}

// metricsRecorder adapts internal/metricsstore.Store to harvest.MetricsRecorder;
// the two packages otherwise have no reason to know about each other.
type metricsRecorder struct {
	store *metricsstore.Store
}

func (r metricsRecorder) RecordHarvest(source string, startTime time.Time, duration time.Duration, result harvest.BatchResult) {
	r.store.RecordHarvest(source, startTime, duration, result.Count, result.Transmitted, result.Failed)
}

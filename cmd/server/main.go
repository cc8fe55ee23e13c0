// Command server is the thin read-only HTTP adapter spec.md §1 places out
// of scope for the core: it opens the artifacts the harvester/indexer
// binaries produced and serves search/detail/metrics over HTTP (spec.md
// §6). Grounded on original_source/src/bin/server.rs's startup sequence
// and the teacher's cmd/cc-backend/main.go signal-handling idiom.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umwelt-info/harvester/internal/geonames"
	"github.com/umwelt-info/harvester/internal/metricsstore"
	"github.com/umwelt-info/harvester/internal/search"
	"github.com/umwelt-info/harvester/internal/server"
	"github.com/umwelt-info/harvester/internal/stats"
	"github.com/umwelt-info/harvester/internal/store"
	"github.com/umwelt-info/harvester/pkg/log"
)

func main() {
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		log.Fatal("environment variable DATA_PATH not set")
	}
	bindAddr := os.Getenv("BIND_ADDR")
	if bindAddr == "" {
		log.Fatal("environment variable BIND_ADDR not set")
	}
	requestLimit, err := strconv.Atoi(os.Getenv("REQUEST_LIMIT"))
	if err != nil || requestLimit <= 0 {
		log.Fatal("environment variable REQUEST_LIMIT not set or invalid")
	}

	searcher, err := search.OpenSearcher(filepath.Join(dataPath, "index"))
	if err != nil {
		log.Fatalf("open search index: %v", err)
	}
	defer searcher.Close()

	root := store.NewRoot(dataPath)

	statsStore, err := stats.Load(filepath.Join(dataPath, "stats"))
	if err != nil {
		log.Fatalf("load stats store: %v", err)
	}
	flusher, err := stats.StartFlushing(statsStore)
	if err != nil {
		log.Fatalf("start stats flush scheduler: %v", err)
	}

	metricsStore, err := metricsstore.Load(filepath.Join(dataPath, "metrics"))
	if err != nil {
		log.Fatalf("load metrics store: %v", err)
	}

	var resolver *geonames.Index
	if idx, err := geonames.Open(filepath.Join(dataPath, "geonames")); err == nil {
		resolver = idx
		defer resolver.Close()
	} else {
		log.Warnf("geonames index unavailable, region display will use placeholders: %v", err)
	}

	srv := server.New(searcher, root, statsStore, metricsStore, resolver, requestLimit)

	reg := prometheus.NewRegistry()
	collectors := metricsstore.NewCollectors(reg)

	mux := srv.Router()
	mux.Handle("/debug/metrics", observeBeforeServing(collectors, metricsStore, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	httpServer := &http.Server{
		Addr:         bindAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		log.Fatalf("listen on %s: %v", bindAddr, err)
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()
	log.Infof("listening on %s", bindAddr)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down")
	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
	if err := flusher.Shutdown(); err != nil {
		log.Errorf("stop stats flush scheduler: %v", err)
	}
	if err := srv.Flush(context.Background()); err != nil {
		log.Errorf("final stats/metrics flush failed: %v", err)
	}
}

// observeBeforeServing refreshes the Prometheus gauges from metricsStore's
// current state just before every scrape, since nothing else in this
// short poll loop pushes updates to them proactively.
func observeBeforeServing(c *metricsstore.Collectors, store *metricsstore.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Observe(store)
		next.ServeHTTP(w, r)
	})
}

package metricsstore

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors registers gauges mirroring the Store's in-memory state;
// cmd/server exposes them on its /debug/metrics endpoint. Each
// NewCollectors call registers a fresh set of gauges on the Registerer it
// is given.
type Collectors struct {
	harvestDuration *prometheus.GaugeVec
	harvestCount    *prometheus.GaugeVec
	harvestFailed   *prometheus.GaugeVec
	licenseCount    *prometheus.GaugeVec
	tagCount        *prometheus.GaugeVec
}

var registerOnce sync.Once

// NewCollectors builds and registers the metrics-store gauges against reg.
// Registering twice on the same reg panics, so cmd/server and the tests
// each pass a fresh prometheus.NewRegistry().
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		harvestDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_harvest_duration_seconds",
			Help: "Duration of the most recent harvest of a source.",
		}, []string{"source"}),
		harvestCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_harvest_transmitted_total",
			Help: "Datasets transmitted by the most recent harvest of a source.",
		}, []string{"source"}),
		harvestFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_harvest_failed_total",
			Help: "Records failed during the most recent harvest of a source.",
		}, []string{"source"}),
		licenseCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_datasets_by_license",
			Help: "Number of indexed datasets per license, reset each indexer pass.",
		}, []string{"license"}),
		tagCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_datasets_by_tag",
			Help: "Number of indexed datasets per tag, reset each indexer pass.",
		}, []string{"tag"}),
	}
	reg.MustRegister(c.harvestDuration, c.harvestCount, c.harvestFailed, c.licenseCount, c.tagCount)
	return c
}

// Observe pushes s's current state onto the registered gauges. cmd/server
// invokes it before serving each /debug/metrics request; the gauges
// otherwise just echo the last Observe call.
func (c *Collectors) Observe(s *Store) {
	s.mu.Lock()
	records := make(map[string]HarvestRecord, len(s.records))
	for k, v := range s.records {
		records[k] = v
	}
	license := cloneCounts(s.license)
	tags := cloneCounts(s.tags)
	s.mu.Unlock()

	c.harvestDuration.Reset()
	c.harvestCount.Reset()
	c.harvestFailed.Reset()
	for source, r := range records {
		c.harvestDuration.WithLabelValues(source).Set(r.Duration.Seconds())
		c.harvestCount.WithLabelValues(source).Set(float64(r.Transmitted))
		c.harvestFailed.WithLabelValues(source).Set(float64(r.Failed))
	}

	c.licenseCount.Reset()
	for license, count := range license {
		c.licenseCount.WithLabelValues(license).Set(float64(count))
	}

	c.tagCount.Reset()
	for tag, count := range tags {
		c.tagCount.WithLabelValues(tag).Set(float64(count))
	}
}

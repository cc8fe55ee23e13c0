// Package metricsstore implements the metrics store of spec.md §4.8:
// per-harvest records keyed by source name, plus per-run license/tag
// histograms reset each indexer pass. It shares the fixed-width
// write-temp-then-rename encoding decided for internal/stats (spec.md §9
// Open Question 2) and is grounded on the same
// original_source/src/harvester/stats.rs write pattern, generalized to a
// second record shape.
package metricsstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/umwelt-info/harvester/internal/dataset"
	"github.com/umwelt-info/harvester/internal/errs"
	"github.com/umwelt-info/harvester/internal/store"
)

var fixedWidthMagic = [4]byte{'M', 'T', '0', '1'}

// HarvestRecord is one source's outcome from the most recent harvest run
// (spec.md §4.8: "{ start_time, duration, count, transmitted, failed }").
type HarvestRecord struct {
	StartTime   time.Time
	Duration    time.Duration
	Count       int
	Transmitted int
	Failed      int
}

// Store holds per-harvest records and per-run histograms, guarded by a
// mutex and updated once per source at end-of-task (spec.md §5).
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]HarvestRecord
	license map[string]uint64
	tags    map[string]uint64
}

// Load reads path on startup; a missing file starts with empty state.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: map[string]HarvestRecord{},
		license: map[string]uint64{},
		tags:    map[string]uint64{},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.Storage("read metrics file", err)
	}

	records, license, tags, err := decode(raw)
	if err != nil {
		return nil, errs.Storage("decode metrics file", err)
	}
	s.records, s.license, s.tags = records, license, tags
	return s, nil
}

// RecordHarvest stores source's outcome, overwriting any record left by a
// prior run (spec.md §4.8: "per-harvest records keyed by source name").
func (s *Store) RecordHarvest(source string, startTime time.Time, duration time.Duration, count, transmitted, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[source] = HarvestRecord{
		StartTime:   startTime,
		Duration:    duration,
		Count:       count,
		Transmitted: transmitted,
		Failed:      failed,
	}
}

// Harvest returns the most recently recorded outcome for source.
func (s *Store) Harvest(source string) (HarvestRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[source]
	return r, ok
}

// ResetHistograms clears the license and tag histograms (spec.md §4.8:
// "per-run aggregates reset each indexer pass").
func (s *Store) ResetHistograms() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.license = map[string]uint64{}
	s.tags = map[string]uint64{}
}

// ObserveDataset folds one dataset's license and tags into the current
// pass's histograms. Called by the indexer once per dataset it visits.
func (s *Store) ObserveDataset(d *dataset.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.license[d.License.ID()]++
	for _, tag := range d.Tags {
		s.tags[tag.String()]++
	}
}

// LicenseHistogram returns a snapshot of the current license counts.
func (s *Store) LicenseHistogram() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounts(s.license)
}

// TagHistogram returns a snapshot of the current tag counts.
func (s *Store) TagHistogram() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneCounts(s.tags)
}

func cloneCounts(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ReindexHistograms walks every dataset currently in root's live snapshot
// and rebuilds the license/tag histograms from scratch, matching spec.md
// §4.8's "reset each indexer pass" (the indexer is the only writer of
// these histograms; RecordHarvest is the harvester's).
func (s *Store) ReindexHistograms(root *store.Root) error {
	s.ResetHistograms()

	sources, err := root.Sources()
	if err != nil {
		return errs.Storage("list sources for metrics reindex", err)
	}
	for _, source := range sources {
		ids, err := root.Datasets(source)
		if err != nil {
			return errs.Storage("list datasets for metrics reindex", err)
		}
		for _, id := range ids {
			d, err := root.Load(source, id)
			if err != nil {
				return errs.Storage("load dataset for metrics reindex", err)
			}
			s.ObserveDataset(d)
		}
	}
	return nil
}

// Flush writes the store crash-safely: encode to a buffer, write
// "<path>.new", rename over path (spec.md §4.8: "same crash-safe write
// pattern as Stats").
func (s *Store) Flush() error {
	s.mu.Lock()
	raw := encode(s.records, s.license, s.tags)
	s.mu.Unlock()

	tmp := s.path + ".new"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Storage("write metrics temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errs.Storage("rename metrics temp file", err)
	}
	return nil
}

func encode(records map[string]HarvestRecord, license, tags map[string]uint64) []byte {
	buf := make([]byte, 0, 4+8*3)
	buf = append(buf, fixedWidthMagic[:]...)

	buf = binary.BigEndian.AppendUint64(buf, uint64(len(records)))
	for source, r := range records {
		buf = appendLengthPrefixed(buf, source)
		buf = binary.BigEndian.AppendUint64(buf, uint64(r.StartTime.Unix()))
		buf = binary.BigEndian.AppendUint64(buf, uint64(r.Duration))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(r.Count)))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(r.Transmitted)))
		buf = binary.BigEndian.AppendUint64(buf, uint64(int64(r.Failed)))
	}

	buf = appendHistogram(buf, license)
	buf = appendHistogram(buf, tags)
	return buf
}

func appendHistogram(buf []byte, h map[string]uint64) []byte {
	buf = binary.BigEndian.AppendUint64(buf, uint64(len(h)))
	for key, count := range h {
		buf = appendLengthPrefixed(buf, key)
		buf = binary.BigEndian.AppendUint64(buf, count)
	}
	return buf
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func decode(raw []byte) (map[string]HarvestRecord, map[string]uint64, map[string]uint64, error) {
	if len(raw) < 4 || [4]byte(raw[:4]) != fixedWidthMagic {
		return nil, nil, nil, fmt.Errorf("metrics file: missing or unrecognized magic header")
	}
	raw = raw[4:]

	records := map[string]HarvestRecord{}
	recordCount, rest, err := readUint64(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("metrics file: read record count: %w", err)
	}
	raw = rest

	for i := uint64(0); i < recordCount; i++ {
		source, rest, err := readLengthPrefixed(raw)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read source: %w", err)
		}
		startUnix, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read start_time for %s: %w", source, err)
		}
		durationNanos, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read duration for %s: %w", source, err)
		}
		count, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read count for %s: %w", source, err)
		}
		transmitted, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read transmitted for %s: %w", source, err)
		}
		failed, rest, err := readUint64(rest)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("metrics file: read failed for %s: %w", source, err)
		}
		raw = rest

		records[source] = HarvestRecord{
			StartTime:   time.Unix(int64(startUnix), 0).UTC(),
			Duration:    time.Duration(durationNanos),
			Count:       int(int64(count)),
			Transmitted: int(int64(transmitted)),
			Failed:      int(int64(failed)),
		}
	}

	license, raw, err := readHistogram(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("metrics file: read license histogram: %w", err)
	}
	tags, _, err := readHistogram(raw)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("metrics file: read tag histogram: %w", err)
	}

	return records, license, tags, nil
}

func readHistogram(raw []byte) (map[string]uint64, []byte, error) {
	n, raw, err := readUint64(raw)
	if err != nil {
		return nil, nil, err
	}
	h := map[string]uint64{}
	for i := uint64(0); i < n; i++ {
		key, rest, err := readLengthPrefixed(raw)
		if err != nil {
			return nil, nil, err
		}
		count, rest2, err := readUint64(rest)
		if err != nil {
			return nil, nil, err
		}
		h[key] = count
		raw = rest2
	}
	return h, raw, nil
}

func readUint64(raw []byte) (uint64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("truncated metrics file: missing uint64")
	}
	return binary.BigEndian.Uint64(raw[:8]), raw[8:], nil
}

func readLengthPrefixed(raw []byte) (string, []byte, error) {
	if len(raw) < 4 {
		return "", nil, fmt.Errorf("truncated metrics file: missing string length")
	}
	n := binary.BigEndian.Uint32(raw)
	raw = raw[4:]
	if uint32(len(raw)) < n {
		return "", nil, fmt.Errorf("truncated metrics file: missing string body")
	}
	return string(raw[:n]), raw[n:], nil
}

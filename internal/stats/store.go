// Package stats implements the access-counter store of spec.md §4.7: a
// source → id → access-count mapping, crash-safely written via
// write-temp-then-rename and flushed periodically by a gocron job.
// Grounded on original_source/src/harvester/stats.rs and the teacher's
// write-temp-then-rename idiom in pkg/archive/fsBackend.go (Compress's
// gzip-then-rename-adjacent-file pattern, generalized here to the whole
// file).
package stats

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/umwelt-info/harvester/internal/errs"
)

// fixedWidthMagic tags the current encoding (spec.md §9 Open Question 2):
// a plain varint stream has no such header, so its absence is what
// triggers the legacy decode path.
var fixedWidthMagic = [4]byte{'S', 'T', '0', '2'}

// Store holds access counts in memory, guarded by a mutex (spec.md §5
// "Stats counter: protected by a mutex; incremented on every
// observation"), and persists them to a single file.
type Store struct {
	mu     sync.Mutex
	path   string
	counts map[string]map[string]uint64
}

// Load reads path on startup; a missing file is an empty store (spec.md
// §4.7).
func Load(path string) (*Store, error) {
	s := &Store{path: path, counts: map[string]map[string]uint64{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errs.Storage("read stats file", err)
	}

	counts, err := decode(raw)
	if err != nil {
		return nil, errs.Storage("decode stats file", err)
	}
	s.counts = counts
	return s, nil
}

// Count returns source/id's current access count without incrementing it;
// this is what internal/search's Indexer reads into the "accesses" field.
func (s *Store) Count(source, id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[source][id]
}

// RecordAccess increments source/id's counter and returns the new value
// (spec.md §4.7 "record_access").
func (s *Store) RecordAccess(source, id string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySource, ok := s.counts[source]
	if !ok {
		bySource = map[string]uint64{}
		s.counts[source] = bySource
	}
	bySource[id]++
	return bySource[id]
}

// Flush writes the store crash-safely: encode to a buffer, write
// "<path>.new", rename over path (spec.md §4.7).
func (s *Store) Flush() error {
	s.mu.Lock()
	raw := encode(s.counts)
	s.mu.Unlock()

	tmp := s.path + ".new"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errs.Storage("write stats temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errs.Storage("rename stats temp file", err)
	}
	return nil
}

func encode(counts map[string]map[string]uint64) []byte {
	var entries int
	for _, bySource := range counts {
		entries += len(bySource)
	}

	buf := make([]byte, 0, 4+8+entries*16)
	buf = append(buf, fixedWidthMagic[:]...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(entries))

	for source, bySource := range counts {
		for id, count := range bySource {
			buf = appendLengthPrefixed(buf, source)
			buf = appendLengthPrefixed(buf, id)
			buf = binary.BigEndian.AppendUint64(buf, count)
		}
	}
	return buf
}

func appendLengthPrefixed(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func decode(raw []byte) (map[string]map[string]uint64, error) {
	if len(raw) >= 4 && [4]byte(raw[:4]) == fixedWidthMagic {
		return decodeFixedWidth(raw[4:])
	}
	return decodeLegacyVarint(raw)
}

func decodeFixedWidth(raw []byte) (map[string]map[string]uint64, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("truncated stats file: missing entry count")
	}
	entries := binary.BigEndian.Uint64(raw[:8])
	raw = raw[8:]

	counts := map[string]map[string]uint64{}
	for i := uint64(0); i < entries; i++ {
		source, rest, err := readLengthPrefixed(raw)
		if err != nil {
			return nil, err
		}
		id, rest2, err := readLengthPrefixed(rest)
		if err != nil {
			return nil, err
		}
		if len(rest2) < 8 {
			return nil, fmt.Errorf("truncated stats file: missing count for %s/%s", source, id)
		}
		count := binary.BigEndian.Uint64(rest2[:8])
		raw = rest2[8:]

		bySource, ok := counts[source]
		if !ok {
			bySource = map[string]uint64{}
			counts[source] = bySource
		}
		bySource[id] = count
	}
	return counts, nil
}

func readLengthPrefixed(raw []byte) (string, []byte, error) {
	if len(raw) < 4 {
		return "", nil, fmt.Errorf("truncated stats file: missing string length")
	}
	n := binary.BigEndian.Uint32(raw)
	raw = raw[4:]
	if uint32(len(raw)) < n {
		return "", nil, fmt.Errorf("truncated stats file: missing string body")
	}
	return string(raw[:n]), raw[n:], nil
}

// decodeLegacyVarint reads the pre-OQ2 format: a varint entry count
// followed by varint-length-prefixed source/id strings and a varint
// count, matching internal/dataset/codec.go's own varint primitives.
func decodeLegacyVarint(raw []byte) (map[string]map[string]uint64, error) {
	r := newByteReader(raw)

	entries, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("legacy stats file: read entry count: %w", err)
	}

	counts := map[string]map[string]uint64{}
	for i := uint64(0); i < entries; i++ {
		source, err := readVarintString(r)
		if err != nil {
			return nil, fmt.Errorf("legacy stats file: read source: %w", err)
		}
		id, err := readVarintString(r)
		if err != nil {
			return nil, fmt.Errorf("legacy stats file: read id: %w", err)
		}
		count, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("legacy stats file: read count: %w", err)
		}

		bySource, ok := counts[source]
		if !ok {
			bySource = map[string]uint64{}
			counts[source] = bySource
		}
		bySource[id] = count
	}
	return counts, nil
}

func readVarintString(r io.ByteReader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		buf[i] = b
	}
	return string(buf), nil
}

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

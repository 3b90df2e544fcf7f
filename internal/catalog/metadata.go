// Package catalog implements the Data Store: the collections directory,
// metadata persistence, version directories, and the Open/Feed/Swap
// lifecycle layered above individual Collection Stores. Each collection
// keeps one active, published Collection Store plus, during a feed, one
// staging Store that swaps in atomically once the feed ends.
package catalog

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// IndexDescriptor names one index over a collection's items. The first in
// a collection's list is the primary index and must be unique.
type IndexDescriptor struct {
	Name   string `json:"name"`
	Unique bool   `json:"unique"`
}

// Metadata is the persisted shape of a collection's schema and sizing
// knobs. LastVersion is intentionally absent: it is always derived from
// the directory listing, never persisted.
type Metadata struct {
	Name                     string            `json:"name"`
	Indexes                  []IndexDescriptor `json:"indexes"`
	MaxItemsPerSegment       int               `json:"max_items_per_segment"`
	SegmentDataCapacityBytes int               `json:"segment_data_capacity_bytes"`
	MaxVersionsToKeep        int               `json:"max_versions_to_keep"`
	CreatedAt                time.Time         `json:"created_at"`
}

// K returns the number of index keys every item in this collection carries.
func (m Metadata) K() int { return len(m.Indexes) }

func writeMetadata(path string, m Metadata) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

func readMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, err
	}
	return m, nil
}

// versionLess implements the case-insensitive lexicographic ordering the
// spec requires for version monotonicity checks.
func versionLess(a, b string) bool {
	return strings.ToLower(a) < strings.ToLower(b)
}

func versionLessOrEqual(a, b string) bool {
	return strings.ToLower(a) <= strings.ToLower(b)
}

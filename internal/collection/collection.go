// Package collection implements one Collection Store: an ordered sequence
// of memory-mapped segments plus the in-memory primary-key index that sits
// on top of them. Opening a published Store scans every segment's header
// table once to rebuild the index; an lruCache then bounds how many of
// those segments stay mapped at a time, reopening evicted ones on demand.
package collection

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"frozenkv/internal/frozenerr"
	"frozenkv/internal/header"
	"frozenkv/internal/segment"
)

var segmentNameRe = regexp.MustCompile(`^[0-9]{4}\.bin$`)

// IndexEntry is the in-memory record of where one item lives.
type IndexEntry struct {
	OtherKeys    []int64
	FileIndex    int32
	OffsetInFile int32
	Length       int32
}

// Item is a document fed into the store: its payload and its ordered keys.
type Item struct {
	Data []byte
	Keys []int64
}

// Store is one collection version: ordered segments, the primary-key
// index, and the write cursor used while it is the active staging target
// of a feed. A Store returned by Open (an already-published version) is
// never written to again.
type Store struct {
	dir  string
	k    int
	caps segment.Caps

	segments []*segment.Segment
	cache    *lruCache

	uniqueIndex map[int64]IndexEntry
	dupIndex    map[int64][]IndexEntry

	objectCount    int
	nonUniqueKeys  int
	totalSizeBytes int64
}

// Open constructs a Store from an existing directory (possibly empty),
// scanning every segment's header table and rebuilding the in-memory index.
// cacheSize bounds how many segments stay mmap'd simultaneously; 0 means
// "keep them all mapped" (the common case for small collections).
func Open(dir string, k int, caps segment.Caps, cacheSize int) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, frozenerr.IoError(err, "read version directory").WithDetail("dir", dir)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && segmentNameRe.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	s := &Store{
		dir:         dir,
		k:           k,
		caps:        caps,
		uniqueIndex: make(map[int64]IndexEntry),
		dupIndex:    make(map[int64][]IndexEntry),
	}
	s.cache = newLRUCache(cacheSize, s.loadSegment)

	for i, name := range names {
		seg, err := segment.Open(filepath.Join(dir, name), int32(i), k, caps.SegmentDataCapacityBytes, caps.MaxItemsPerSegment)
		if err != nil {
			return nil, err
		}
		seg.Scan(k, func(h header.ObjectHeader, slot int) {
			s.insertIndex(h, int32(i))
			s.objectCount++
			s.totalSizeBytes += int64(h.Length)
		})
		if cacheSize > 0 {
			// Indexing only needs the header table, not a live mapping:
			// unmap it now and leave a nil placeholder so segmentAt routes
			// the first read that touches this segment through s.cache,
			// which bounds how many stay mmap'd at once.
			if err := seg.Close(); err != nil {
				return nil, err
			}
			s.segments = append(s.segments, nil)
			continue
		}
		s.segments = append(s.segments, seg)
	}
	s.nonUniqueKeys = len(s.dupIndex)
	return s, nil
}

// OpenStaging constructs a fresh, empty Store used as a begin_feed target.
// The directory must already exist and be empty.
func OpenStaging(dir string, k int, caps segment.Caps) (*Store, error) {
	return &Store{
		dir:         dir,
		k:           k,
		caps:        caps,
		uniqueIndex: make(map[int64]IndexEntry),
		dupIndex:    make(map[int64][]IndexEntry),
	}, nil
}

func (s *Store) loadSegment(i int32) (*segment.Segment, error) {
	return segment.Open(filepath.Join(s.dir, segment.NameFor(int(i))), i, s.k, s.caps.SegmentDataCapacityBytes, s.caps.MaxItemsPerSegment)
}

// Store appends item to the current segment, rolling over to a new one
// when the item-count or byte cap would be exceeded, and updates the
// in-memory index incrementally.
func (s *Store) Store(item Item) error {
	if len(item.Data) > s.caps.SegmentDataCapacityBytes {
		return frozenerr.ItemTooLarge("item data exceeds segment_data_capacity_bytes").
			WithDetail("len", len(item.Data)).WithDetail("cap", s.caps.SegmentDataCapacityBytes)
	}

	cur, err := s.currentSegment()
	if err != nil {
		return err
	}

	if cur.FreeHeaderSlots() == 0 || cur.FreeDataBytes() < len(item.Data) {
		if cur.FreeHeaderSlots() > 0 {
			// Byte capacity exhausted but header slots remain: mark the
			// segment short before rolling over.
			cur.WriteEndMarker(s.k)
		}
		cur, err = s.rollSegment()
		if err != nil {
			return err
		}
	}

	h := cur.Append(item.Data, item.Keys)
	s.insertIndex(h, cur.FileIndex)
	s.objectCount++
	s.totalSizeBytes += int64(h.Length)
	return nil
}

func (s *Store) currentSegment() (*segment.Segment, error) {
	if len(s.segments) == 0 {
		return s.rollSegment()
	}
	return s.segments[len(s.segments)-1], nil
}

func (s *Store) rollSegment() (*segment.Segment, error) {
	idx := int32(len(s.segments))
	path := filepath.Join(s.dir, segment.NameFor(int(idx)))
	seg, err := segment.Create(path, idx, s.k, s.caps.SegmentDataCapacityBytes, s.caps.MaxItemsPerSegment)
	if err != nil {
		return nil, err
	}
	s.segments = append(s.segments, seg)
	return seg, nil
}

// insertIndex applies the incremental update rule: absent from both maps
// inserts into unique_index; present in unique_index but not dup_index
// migrates the existing entry into dup_index and appends the new one;
// already in dup_index just appends.
func (s *Store) insertIndex(h header.ObjectHeader, fileIndex int32) {
	primary := h.Keys[0]
	entry := IndexEntry{
		OtherKeys:    append([]int64(nil), h.Keys[1:]...),
		FileIndex:    fileIndex,
		OffsetInFile: h.OffsetInFile,
		Length:       h.Length,
	}

	if existing, ok := s.uniqueIndex[primary]; ok {
		delete(s.uniqueIndex, primary)
		s.dupIndex[primary] = append(s.dupIndex[primary], existing, entry)
		return
	}
	if _, ok := s.dupIndex[primary]; ok {
		s.dupIndex[primary] = append(s.dupIndex[primary], entry)
		return
	}
	s.uniqueIndex[primary] = entry
}

// EndOfFeed finalizes the index, restoring the disjointness invariant: any
// key present in both maps is removed from unique_index.
func (s *Store) EndOfFeed() {
	for k := range s.dupIndex {
		delete(s.uniqueIndex, k)
	}
	s.nonUniqueKeys = len(s.dupIndex)
}

// GetByPrimary returns the ordered sequence of items matching k: unique_index
// first (a single hit), else dup_index in insertion order, else empty.
func (s *Store) GetByPrimary(key int64) ([][]byte, error) {
	if entry, ok := s.uniqueIndex[key]; ok {
		data, err := s.readEntry(entry)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}
	if entries, ok := s.dupIndex[key]; ok {
		out := make([][]byte, 0, len(entries))
		for _, entry := range entries {
			data, err := s.readEntry(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, data)
		}
		return out, nil
	}
	return nil, nil
}

func (s *Store) readEntry(entry IndexEntry) ([]byte, error) {
	seg, err := s.segmentAt(entry.FileIndex)
	if err != nil {
		return nil, err
	}
	h := header.ObjectHeader{OffsetInFile: entry.OffsetInFile, Length: entry.Length}
	return seg.ReadAt(h), nil
}

func (s *Store) segmentAt(i int32) (*segment.Segment, error) {
	if int(i) < len(s.segments) && s.segments[i] != nil {
		return s.segments[i], nil
	}
	return s.cache.Get(i)
}

// ObjectCount, NonUniqueKeys, TotalSizeBytes report the totals computed on
// open/feed, used by GetCollectionsDescription.
func (s *Store) ObjectCount() int      { return s.objectCount }
func (s *Store) NonUniqueKeys() int    { return s.nonUniqueKeys }
func (s *Store) TotalSizeBytes() int64 { return s.totalSizeBytes }
func (s *Store) SegmentCount() int     { return len(s.segments) }

// Close unmaps every open segment.
func (s *Store) Close() error {
	var firstErr error
	for _, seg := range s.segments {
		if seg == nil {
			continue
		}
		if err := seg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cache != nil {
		s.cache.Close()
	}
	return firstErr
}

package collection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"frozenkv/internal/segment"
)

func caps(itemsPerSeg, bytesPerSeg int) segment.Caps {
	return segment.Caps{MaxItemsPerSegment: itemsPerSeg, SegmentDataCapacityBytes: bytesPerSeg}
}

func TestStoreAndLookupUniqueAndDuplicate(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStaging(dir, 2, caps(1_000_000, 1_000_000))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Store(Item{Data: []byte("alice"), Keys: []int64{1, 100}}))
	require.NoError(t, s.Store(Item{Data: []byte("bob"), Keys: []int64{2, 200}}))
	require.NoError(t, s.Store(Item{Data: []byte("bob-again"), Keys: []int64{2, 300}}))
	s.EndOfFeed()

	got, err := s.GetByPrimary(1)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("alice")}, got)

	got, err = s.GetByPrimary(2)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("bob"), []byte("bob-again")}, got)

	got, err = s.GetByPrimary(999)
	require.NoError(t, err)
	require.Nil(t, got)

	// Invariant 2: disjointness.
	_, inUnique := s.uniqueIndex[2]
	require.False(t, inUnique)
	_, inDup := s.dupIndex[2]
	require.True(t, inDup)

	// Invariant 3: key coverage.
	require.Equal(t, 2, len(s.uniqueIndex)+len(s.dupIndex))
}

func TestSegmentRolloverByItemCount(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStaging(dir, 1, caps(2, 1_000_000))
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Store(Item{Data: []byte("x"), Keys: []int64{int64(i)}}))
	}
	s.EndOfFeed()

	require.Equal(t, 3, s.SegmentCount()) // ceil(5/2)

	for i := 0; i < 5; i++ {
		got, err := s.GetByPrimary(int64(i))
		require.NoError(t, err)
		require.Equal(t, [][]byte{[]byte("x")}, got)
	}
}

func TestItemTooLarge(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStaging(dir, 1, caps(10, 8))
	require.NoError(t, err)
	defer s.Close()

	err = s.Store(Item{Data: make([]byte, 100), Keys: []int64{1}})
	require.Error(t, err)
}

func TestCacheBoundsMappedSegments(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStaging(dir, 1, caps(1, 1_000_000))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Store(Item{Data: []byte("x"), Keys: []int64{int64(i)}}))
	}
	s.EndOfFeed()
	require.Equal(t, 5, s.SegmentCount())
	require.NoError(t, s.Close())

	s2, err := Open(dir, 1, caps(1, 1_000_000), 2)
	require.NoError(t, err)
	defer s2.Close()

	// Every segment starts unmapped: with a cache bound set, Open unmaps each
	// segment after scanning it and leaves the mapping to the cache.
	mapped := 0
	for _, seg := range s2.segments {
		if seg != nil {
			mapped++
		}
	}
	require.Zero(t, mapped)

	for i := 0; i < 5; i++ {
		got, err := s2.GetByPrimary(int64(i))
		require.NoError(t, err)
		require.Equal(t, [][]byte{[]byte("x")}, got)
	}

	s2.cache.mu.Lock()
	cached := s2.cache.order.Len()
	s2.cache.mu.Unlock()
	require.LessOrEqual(t, cached, 2)
}

func TestReopenRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenStaging(dir, 1, caps(1_000_000, 1_000_000))
	require.NoError(t, err)
	require.NoError(t, s.Store(Item{Data: []byte("payload"), Keys: []int64{42}}))
	s.EndOfFeed()
	require.NoError(t, s.Close())

	s2, err := Open(dir, 1, caps(1_000_000, 1_000_000), 0)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetByPrimary(42)
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("payload")}, got)
}

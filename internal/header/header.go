// Package header implements the fixed-width on-disk object header: the
// per-document record living in a segment's header table. Encode/Decode use
// explicit byte offsets and validate before trusting anything read off
// disk; the header's width depends on the collection's configured key
// count k, so every field offset is computed, not constant.
package header

import "encoding/binary"

// Width returns the on-disk size in bytes of a header with k index keys:
// offset_in_file(i32) + length(i32) + k*key(i64).
func Width(k int) int {
	return 8 + 8*k
}

// ObjectHeader is the decoded form of one header-table slot.
type ObjectHeader struct {
	OffsetInFile int32
	Length       int32
	Keys         []int64
}

// IsEndMarker reports whether h terminates the header table (length == 0).
func (h ObjectHeader) IsEndMarker() bool { return h.Length == 0 }

// EndMarker returns the header written immediately before a short segment
// rolls over to the next one.
func EndMarker(k int) ObjectHeader {
	return ObjectHeader{Keys: make([]int64, k)}
}

// Encode writes h into dst, which must be at least Width(len(h.Keys)) bytes.
func Encode(dst []byte, h ObjectHeader) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(h.OffsetInFile))
	binary.LittleEndian.PutUint32(dst[4:8], uint32(h.Length))
	for i, key := range h.Keys {
		off := 8 + 8*i
		binary.LittleEndian.PutUint64(dst[off:off+8], uint64(key))
	}
}

// Decode parses a k-keyed header out of src, which must be at least
// Width(k) bytes.
func Decode(src []byte, k int) ObjectHeader {
	h := ObjectHeader{
		OffsetInFile: int32(binary.LittleEndian.Uint32(src[0:4])),
		Length:       int32(binary.LittleEndian.Uint32(src[4:8])),
		Keys:         make([]int64, k),
	}
	for i := range h.Keys {
		off := 8 + 8*i
		h.Keys[i] = int64(binary.LittleEndian.Uint64(src[off : off+8]))
	}
	return h
}

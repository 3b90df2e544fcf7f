// Package segment implements the memory-mapped, fixed-size segment file:
// a header table prefix followed by a data area of opaque item bytes. The
// file is pre-allocated via Truncate and then mapped for the life of the
// segment, unmapped on Close. The header table is the on-disk primary-key
// catalogue for the segment, scanned sequentially on open until an
// END-MARKER or the item-count cap is reached.
package segment

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"frozenkv/internal/frozenerr"
	"frozenkv/internal/header"
)

// NameFor returns the zero-padded 4-digit segment file name for index i
// (0-based), e.g. NameFor(0) == "0001.bin".
func NameFor(i int) string {
	return fmt.Sprintf("%04d.bin", i+1)
}

// Segment is one fixed-size memory-mapped file: a reserved header table
// followed by a data area. FileIndex is 0-based and is an in-memory
// enrichment only — it is never persisted into the file itself.
type Segment struct {
	FileIndex int32

	file        *os.File
	data        []byte // full mmap'd region: header table + data area
	headerWidth int
	headerCap   int // max_items_per_segment
	headerBytes int // headerCap * headerWidth

	itemCount  int // number of stored (non end-marker) headers
	nextOffset int // first free byte in the data area
	closed     bool
}

// Create allocates a brand-new segment file of exactly capacityBytes,
// zero-filled, with its header table reserved up front.
func Create(path string, fileIndex int32, k int, capacityBytes, headerCap int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, frozenerr.IoError(err, "create segment file").WithDetail("path", path)
	}
	if err := f.Truncate(int64(capacityBytes)); err != nil {
		f.Close()
		return nil, frozenerr.IoError(err, "preallocate segment file").WithDetail("path", path)
	}
	return mapSegment(f, fileIndex, k, capacityBytes, headerCap)
}

// Open memory-maps an existing segment file. The caller must call Scan to
// discover itemCount/nextOffset before appending to it.
func Open(path string, fileIndex int32, k int, capacityBytes, headerCap int) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, frozenerr.IoError(err, "open segment file").WithDetail("path", path)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, frozenerr.IoError(err, "stat segment file").WithDetail("path", path)
	}
	if fi.Size() != int64(capacityBytes) {
		f.Close()
		return nil, frozenerr.New(frozenerr.CodeIoError, "segment file size mismatch").
			WithDetail("path", path).WithDetail("want", capacityBytes).WithDetail("have", fi.Size())
	}
	return mapSegment(f, fileIndex, k, capacityBytes, headerCap)
}

func mapSegment(f *os.File, fileIndex int32, k int, capacityBytes, headerCap int) (*Segment, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, capacityBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, frozenerr.IoError(err, "mmap segment file")
	}
	headerWidth := header.Width(k)
	headerBytes := headerCap * headerWidth
	s := &Segment{
		FileIndex:   fileIndex,
		file:        f,
		data:        data,
		headerWidth: headerWidth,
		headerCap:   headerCap,
		headerBytes: headerBytes,
		nextOffset:  headerBytes,
	}
	return s, nil
}

// Scan walks the header table from the start, invoking fn for every
// non-end-marker header, and returns once an END-MARKER is hit or the
// header cap is reached. It also restores itemCount/nextOffset bookkeeping
// so the segment is ready to accept further writes (relevant when the
// active segment of a freshly opened version is scanned back in).
func (s *Segment) Scan(k int, fn func(h header.ObjectHeader, slot int)) {
	s.itemCount = 0
	maxEnd := s.headerBytes
	for i := 0; i < s.headerCap; i++ {
		off := i * s.headerWidth
		h := header.Decode(s.data[off:off+s.headerWidth], k)
		if h.IsEndMarker() {
			break
		}
		fn(h, i)
		s.itemCount++
		end := int(h.OffsetInFile) + int(h.Length)
		if end > maxEnd {
			maxEnd = end
		}
	}
	s.nextOffset = maxEnd
}

// Capacity returns the total mmap'd size of the segment file.
func (s *Segment) Capacity() int { return len(s.data) }

// FreeHeaderSlots reports how many more headers can be written.
func (s *Segment) FreeHeaderSlots() int { return s.headerCap - s.itemCount }

// FreeDataBytes reports how many bytes remain in the data area.
func (s *Segment) FreeDataBytes() int { return len(s.data) - s.nextOffset }

// Append writes data's bytes into the data area and a matching header at
// the next free header slot, returning the header that was written. The
// caller (Collection Store) is responsible for checking FreeHeaderSlots
// and FreeDataBytes before calling Append.
func (s *Segment) Append(data []byte, keys []int64) header.ObjectHeader {
	h := header.ObjectHeader{
		OffsetInFile: int32(s.nextOffset),
		Length:       int32(len(data)),
		Keys:         keys,
	}
	copy(s.data[s.nextOffset:], data)
	s.writeHeader(h, s.itemCount)
	s.nextOffset += len(data)
	s.itemCount++
	return h
}

// WriteEndMarker writes an END-MARKER at the next free header slot,
// signalling a short segment (rolled over for lack of data-area room
// rather than header-table room).
func (s *Segment) WriteEndMarker(k int) {
	if s.itemCount >= s.headerCap {
		return
	}
	s.writeHeader(header.EndMarker(k), s.itemCount)
}

func (s *Segment) writeHeader(h header.ObjectHeader, slot int) {
	off := slot * s.headerWidth
	header.Encode(s.data[off:off+s.headerWidth], h)
}

// ReadAt returns a zero-copy slice of the data area for the given header.
// The returned slice aliases the mmap'd region and is only valid for the
// lifetime of the segment.
func (s *Segment) ReadAt(h header.ObjectHeader) []byte {
	start := int(h.OffsetInFile)
	end := start + int(h.Length)
	return s.data[start:end]
}

// Close unmaps and closes the underlying file.
func (s *Segment) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := unix.Munmap(s.data); err != nil {
		s.file.Close()
		return frozenerr.IoError(err, "munmap segment file")
	}
	return s.file.Close()
}

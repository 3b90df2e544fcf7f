// Package frame implements the outer wire envelope every message on the
// protocol uses: tag(i32 LE) + payload_length(i32 LE) + payload. The read
// side draws its payload buffer from a sync.Pool, so frames at or below
// MaxPayloadSize reuse a buffer in steady state instead of allocating one
// per read; the write side uses a small stack-allocated header buffer.
package frame

import (
	"encoding/binary"
	"io"
	"sync"

	"frozenkv/internal/frozenerr"
)

// MaxPayloadSize is the largest payload accepted before a frame is
// rejected as FrameTooLarge: 1 MiB.
const MaxPayloadSize = 1 << 20

const headerSize = 8 // tag(4) + payload_length(4)

// Tag identifies a message kind on the wire.
type Tag int32

const (
	TagPing                      Tag = 1
	TagBeginFeed                 Tag = 2
	TagFeedItem                  Tag = 3 // never framed individually; carried in a feed batch
	TagCreateCollection          Tag = 5
	TagStatusResponse            Tag = 6
	TagQueryByPrimaryKey         Tag = 7
	TagQueryResponse             Tag = 8
	TagDropCollection            Tag = 9
	TagGetCollectionsDescription Tag = 10
	TagCollectionsDescription    Tag = 11
)

// Frame is a decoded message: its tag and opaque payload bytes.
type Frame struct {
	Tag     Tag
	Payload []byte

	pooled *[]byte // underlying pooled buffer, returned via Release
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 4096)
		return &b
	},
}

func getBuffer(size int) *[]byte {
	ptr := bufPool.Get().(*[]byte)
	if cap(*ptr) < size {
		*ptr = make([]byte, size)
	}
	*ptr = (*ptr)[:size]
	return ptr
}

func putBuffer(ptr *[]byte) {
	if ptr == nil || cap(*ptr) > 1<<22 {
		return // don't pool unusually large buffers
	}
	bufPool.Put(ptr)
}

// Release returns f's underlying scratch buffer to the pool. Callers must
// not use f.Payload after calling Release.
func (f *Frame) Release() {
	if f.pooled != nil {
		putBuffer(f.pooled)
		f.pooled = nil
		f.Payload = nil
	}
}

// Read parses one frame off r. It returns MalformedFrame on a short read
// and FrameTooLarge when payload_length exceeds MaxPayloadSize.
func Read(r io.Reader) (*Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, frozenerr.MalformedFrame("short frame header").WithDetail("cause", err.Error())
	}

	tag := Tag(int32(binary.LittleEndian.Uint32(hdr[0:4])))
	payloadLen := int32(binary.LittleEndian.Uint32(hdr[4:8]))
	if payloadLen < 0 || payloadLen > MaxPayloadSize {
		return nil, frozenerr.FrameTooLarge("payload_length exceeds maximum").WithDetail("length", payloadLen)
	}

	ptr := getBuffer(int(payloadLen))
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, *ptr); err != nil {
			putBuffer(ptr)
			return nil, frozenerr.MalformedFrame("short frame payload").WithDetail("cause", err.Error())
		}
	}
	return &Frame{Tag: tag, Payload: *ptr, pooled: ptr}, nil
}

// Write serializes tag+payload to w using a stack-allocated header buffer,
// writing the payload directly without an intermediate copy.
func Write(w io.Writer, tag Tag, payload []byte) error {
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

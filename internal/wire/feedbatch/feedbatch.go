// Package feedbatch implements the framed batch-of-items sub-protocol used
// only while streaming a feed: after BeginFeed is accepted, items travel as
// a sequence of batches directly on the connection, outside the
// tag+payload_length outer frame. Builder accumulates items into a growing
// buffer and patches in the batch's total length prefix once it is known,
// rather than computing the length up front.
package feedbatch

import (
	"encoding/binary"
	"io"

	"frozenkv/internal/frozenerr"
)

// Item is one record inside a batch.
type Item struct {
	Keys []int64
	Data []byte
}

// Builder accumulates items into a growing batch buffer, tracking a
// caller-chosen byte budget so producers can cap batches (the reference
// producer targets ~1 MiB / 5,000 items; any size is accepted on read).
type Builder struct {
	items []Item
	bytes int // running data_bytes + per-item framing overhead
}

func NewBuilder() *Builder { return &Builder{} }

// Add appends an item and returns the builder's running byte estimate,
// letting the caller decide when to call WriteTo.
func (b *Builder) Add(item Item) int {
	b.items = append(b.items, item)
	b.bytes += 8 + 8*len(item.Keys) + len(item.Data)
	return b.bytes
}

func (b *Builder) Len() int   { return len(b.items) }
func (b *Builder) Bytes() int { return b.bytes }

// WriteTo serializes the accumulated items as one batch frame and resets
// the builder. Calling WriteTo on an empty builder writes the terminating
// empty batch.
func (b *Builder) WriteTo(w io.Writer) error {
	if len(b.items) == 0 {
		return WriteTerminator(w)
	}
	body := make([]byte, 0, b.bytes+4)
	body = appendI32(body, int32(len(b.items)))
	for _, item := range b.items {
		body = appendI32(body, int32(4+8*len(item.Keys)+len(item.Data)))
		body = appendI32(body, int32(len(item.Keys)))
		for _, k := range item.Keys {
			body = appendI64(body, k)
		}
		body = append(body, item.Data...)
	}

	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}

	b.items = b.items[:0]
	b.bytes = 0
	return nil
}

// WriteTerminator writes the empty batch that ends a feed stream.
func WriteTerminator(w io.Writer) error {
	var zero [4]byte
	_, err := w.Write(zero[:])
	return err
}

func appendI32(dst []byte, v int32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	return append(dst, tmp[:]...)
}

func appendI64(dst []byte, v int64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	return append(dst, tmp[:]...)
}

// MaxBatchBytes bounds how large a single incoming batch frame may be;
// batches larger than this are rejected as malformed rather than silently
// exhausting memory.
const MaxBatchBytes = 64 << 20

// ReadBatch reads one batch frame from r. A zero-length, zero-item batch
// is the stream terminator and is returned as (nil, nil).
func ReadBatch(r io.Reader) ([]Item, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	batchLen := int32(binary.LittleEndian.Uint32(lenBuf[:]))
	if batchLen < 0 || int(batchLen) > MaxBatchBytes {
		return nil, frozenerr.MalformedFrame("feed batch exceeds maximum size").WithDetail("length", batchLen)
	}
	if batchLen == 0 {
		return nil, nil
	}

	body := make([]byte, batchLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, frozenerr.MalformedFrame("short feed batch body").WithDetail("cause", err.Error())
	}

	pos := 0
	need := func(n int) error {
		if pos+n > len(body) {
			return frozenerr.MalformedFrame("feed batch truncated")
		}
		return nil
	}
	if err := need(4); err != nil {
		return nil, err
	}
	itemCount := int32(binary.LittleEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if itemCount < 0 {
		return nil, frozenerr.MalformedFrame("negative item count")
	}

	items := make([]Item, 0, itemCount)
	for i := int32(0); i < itemCount; i++ {
		if err := need(8); err != nil {
			return nil, err
		}
		itemSize := int32(binary.LittleEndian.Uint32(body[pos : pos+4]))
		keysCount := int32(binary.LittleEndian.Uint32(body[pos+4 : pos+8]))
		pos += 8
		if itemSize < 0 || keysCount < 0 {
			return nil, frozenerr.MalformedFrame("negative item/key size")
		}
		if err := need(8 * int(keysCount)); err != nil {
			return nil, err
		}
		keys := make([]int64, keysCount)
		for k := range keys {
			keys[k] = int64(binary.LittleEndian.Uint64(body[pos : pos+8]))
			pos += 8
		}
		dataLen := int(itemSize) - 4 - 8*int(keysCount) // item_size counts keys_count + keys + data, not itself
		if dataLen < 0 {
			return nil, frozenerr.MalformedFrame("item_size smaller than its own framing")
		}
		if err := need(dataLen); err != nil {
			return nil, err
		}
		data := make([]byte, dataLen)
		copy(data, body[pos:pos+dataLen])
		pos += dataLen

		items = append(items, Item{Keys: keys, Data: data})
	}
	return items, nil
}

// Package codec implements the self-describing binary encoding used for
// frame payloads: every variable-length field (strings, byte sequences,
// lists) is length-prefixed so a Reader can walk a payload without a
// schema. It sits underneath the outer frame tags and needs no reflection
// or schema registry to round-trip the handful of field shapes the
// protocol's messages use.
package codec

import (
	"encoding/binary"

	"frozenkv/internal/frozenerr"
)

// Writer accumulates a payload's fields into a growing byte slice.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutI32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutI64(v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutBytes(v []byte) {
	w.PutI32(int32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) PutString(v string) {
	w.PutBytes([]byte(v))
}

func (w *Writer) PutOptionalString(v *string) {
	if v == nil {
		w.PutBool(false)
		return
	}
	w.PutBool(true)
	w.PutString(*v)
}

func (w *Writer) PutStringList(vs []string) {
	w.PutI32(int32(len(vs)))
	for _, v := range vs {
		w.PutString(v)
	}
}

func (w *Writer) PutI64List(vs []int64) {
	w.PutI32(int32(len(vs)))
	for _, v := range vs {
		w.PutI64(v)
	}
}

func (w *Writer) Bytes() []byte { return w.buf }

// Reader parses a payload's fields back out in the order they were
// written. It validates every length prefix against the remaining buffer
// before slicing, returning MalformedFrame on any truncation.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return frozenerr.MalformedFrame("payload truncated").
			WithDetail("need", n).WithDetail("have", len(r.buf)-r.pos)
	}
	return nil
}

func (r *Reader) Bool() (bool, error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4]))
	r.pos += 4
	return v, nil
}

func (r *Reader) I64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.I32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, frozenerr.MalformedFrame("negative length prefix")
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *Reader) String() (string, error) {
	b, err := r.Bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) OptionalString() (*string, error) {
	present, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Reader) StringList() ([]string, error) {
	n, err := r.I32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, frozenerr.MalformedFrame("negative list length")
	}
	out := make([]string, n)
	for i := range out {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func (r *Reader) I64List() ([]int64, error) {
	n, err := r.I32()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, frozenerr.MalformedFrame("negative list length")
	}
	out := make([]int64, n)
	for i := range out {
		v, err := r.I64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Remaining reports how many unread bytes are left in the buffer.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

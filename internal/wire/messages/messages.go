// Package messages encodes and decodes the payload shape carried by each
// tagged frame (§4.4 of the protocol). Each Go type here round-trips
// through internal/wire/codec's length-prefixed field writer/reader.
package messages

import "frozenkv/internal/wire/codec"

// BeginFeed is the payload of tag 2.
type BeginFeed struct {
	Collection string
	Version    string
}

func (m BeginFeed) Encode() []byte {
	w := codec.NewWriter()
	w.PutString(m.Collection)
	w.PutString(m.Version)
	return w.Bytes()
}

func DecodeBeginFeed(payload []byte) (BeginFeed, error) {
	r := codec.NewReader(payload)
	var m BeginFeed
	var err error
	if m.Collection, err = r.String(); err != nil {
		return m, err
	}
	if m.Version, err = r.String(); err != nil {
		return m, err
	}
	return m, nil
}

// CreateCollection is the payload of tag 5.
type CreateCollection struct {
	Collection      string
	PrimaryKeyName  string
	OtherIndexNames []string
}

func (m CreateCollection) Encode() []byte {
	w := codec.NewWriter()
	w.PutString(m.Collection)
	w.PutString(m.PrimaryKeyName)
	w.PutStringList(m.OtherIndexNames)
	return w.Bytes()
}

func DecodeCreateCollection(payload []byte) (CreateCollection, error) {
	r := codec.NewReader(payload)
	var m CreateCollection
	var err error
	if m.Collection, err = r.String(); err != nil {
		return m, err
	}
	if m.PrimaryKeyName, err = r.String(); err != nil {
		return m, err
	}
	if m.OtherIndexNames, err = r.StringList(); err != nil {
		return m, err
	}
	return m, nil
}

// StatusResponse is the payload of tag 6.
type StatusResponse struct {
	Success bool
	Error   *string
}

func (m StatusResponse) Encode() []byte {
	w := codec.NewWriter()
	w.PutBool(m.Success)
	w.PutOptionalString(m.Error)
	return w.Bytes()
}

func DecodeStatusResponse(payload []byte) (StatusResponse, error) {
	r := codec.NewReader(payload)
	var m StatusResponse
	var err error
	if m.Success, err = r.Bool(); err != nil {
		return m, err
	}
	if m.Error, err = r.OptionalString(); err != nil {
		return m, err
	}
	return m, nil
}

// QueryByPrimaryKey is the payload of tag 7.
type QueryByPrimaryKey struct {
	Collection       string
	PrimaryKeyValues []int64
}

func (m QueryByPrimaryKey) Encode() []byte {
	w := codec.NewWriter()
	w.PutString(m.Collection)
	w.PutI64List(m.PrimaryKeyValues)
	return w.Bytes()
}

func DecodeQueryByPrimaryKey(payload []byte) (QueryByPrimaryKey, error) {
	r := codec.NewReader(payload)
	var m QueryByPrimaryKey
	var err error
	if m.Collection, err = r.String(); err != nil {
		return m, err
	}
	if m.PrimaryKeyValues, err = r.I64List(); err != nil {
		return m, err
	}
	return m, nil
}

// QueryResponse is the payload of tag 8.
type QueryResponse struct {
	SingleAnswer bool
	ObjectsData  [][]byte
	Collection   *string
}

func (m QueryResponse) Encode() []byte {
	w := codec.NewWriter()
	w.PutBool(m.SingleAnswer)
	w.PutI32(int32(len(m.ObjectsData)))
	for _, d := range m.ObjectsData {
		w.PutBytes(d)
	}
	w.PutOptionalString(m.Collection)
	return w.Bytes()
}

func DecodeQueryResponse(payload []byte) (QueryResponse, error) {
	r := codec.NewReader(payload)
	var m QueryResponse
	var err error
	if m.SingleAnswer, err = r.Bool(); err != nil {
		return m, err
	}
	n, err := r.I32()
	if err != nil {
		return m, err
	}
	m.ObjectsData = make([][]byte, n)
	for i := range m.ObjectsData {
		b, err := r.Bytes()
		if err != nil {
			return m, err
		}
		m.ObjectsData[i] = append([]byte(nil), b...)
	}
	if m.Collection, err = r.OptionalString(); err != nil {
		return m, err
	}
	return m, nil
}

// DropCollection is the payload of tag 9.
type DropCollection struct {
	Collection string
}

func (m DropCollection) Encode() []byte {
	w := codec.NewWriter()
	w.PutString(m.Collection)
	return w.Bytes()
}

func DecodeDropCollection(payload []byte) (DropCollection, error) {
	r := codec.NewReader(payload)
	var m DropCollection
	var err error
	if m.Collection, err = r.String(); err != nil {
		return m, err
	}
	return m, nil
}

// CollectionDescription is one entry of a CollectionsDescription payload.
type CollectionDescription struct {
	Name                 string
	Count                int32
	SizeInBytes          int64
	LastVersion          *string
	KeyNames             []string
	SegmentFileSize      int32
	MaxObjectsPerSegment int32
}

// CollectionsDescription is the payload of tag 11.
type CollectionsDescription struct {
	Collections []CollectionDescription
}

func (m CollectionsDescription) Encode() []byte {
	w := codec.NewWriter()
	w.PutI32(int32(len(m.Collections)))
	for _, c := range m.Collections {
		w.PutString(c.Name)
		w.PutI32(c.Count)
		w.PutI64(c.SizeInBytes)
		w.PutOptionalString(c.LastVersion)
		w.PutStringList(c.KeyNames)
		w.PutI32(c.SegmentFileSize)
		w.PutI32(c.MaxObjectsPerSegment)
	}
	return w.Bytes()
}

func DecodeCollectionsDescription(payload []byte) (CollectionsDescription, error) {
	r := codec.NewReader(payload)
	n, err := r.I32()
	if err != nil {
		return CollectionsDescription{}, err
	}
	out := CollectionsDescription{Collections: make([]CollectionDescription, n)}
	for i := range out.Collections {
		c := &out.Collections[i]
		if c.Name, err = r.String(); err != nil {
			return out, err
		}
		if c.Count, err = r.I32(); err != nil {
			return out, err
		}
		if c.SizeInBytes, err = r.I64(); err != nil {
			return out, err
		}
		if c.LastVersion, err = r.OptionalString(); err != nil {
			return out, err
		}
		if c.KeyNames, err = r.StringList(); err != nil {
			return out, err
		}
		if c.SegmentFileSize, err = r.I32(); err != nil {
			return out, err
		}
		if c.MaxObjectsPerSegment, err = r.I32(); err != nil {
			return out, err
		}
	}
	return out, nil
}

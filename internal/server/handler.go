package server

import (
	"errors"
	"io"
	"net"

	"frozenkv/internal/catalog"
	"frozenkv/internal/collection"
	"frozenkv/internal/frozenerr"
	"frozenkv/internal/wire/feedbatch"
	"frozenkv/internal/wire/frame"
	"frozenkv/internal/wire/messages"
)

// handleConnection implements the per-connection read-dispatch-write
// loop. It exits on EOF (client disconnect), on server shutdown, on any
// frame read error (FrameTooLarge and MalformedFrame are logged), or when a
// handler returns an error (an undecodable payload, a broken feed stream, a
// failed write). In each of these cases the connection is closed without a
// further StatusResponse. Logical failures inside a handler are instead
// reported as a failure StatusResponse and the connection stays open.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	for {
		f, err := frame.Read(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			if code, ok := frozenerr.CodeOf(err); ok && (code == frozenerr.CodeFrameTooLarge || code == frozenerr.CodeMalformedFrame) {
				s.cfg.Logger.Warnw("protocol error, closing connection", "error", err)
				return
			}
			return
		}

		select {
		case <-s.quit:
			f.Release()
			return
		default:
		}

		if err := s.dispatch(conn, f); err != nil {
			f.Release()
			s.cfg.Logger.Warnw("connection handler error, closing", "error", err)
			return
		}
		f.Release()
	}
}

func (s *Server) dispatch(conn net.Conn, f *frame.Frame) error {
	switch f.Tag {
	case frame.TagPing:
		return frame.Write(conn, frame.TagPing, nil)

	case frame.TagCreateCollection:
		return s.handleCreateCollection(conn, f.Payload)

	case frame.TagDropCollection:
		return s.handleDropCollection(conn, f.Payload)

	case frame.TagGetCollectionsDescription:
		return s.handleGetCollectionsDescription(conn)

	case frame.TagQueryByPrimaryKey:
		return s.handleQuery(conn, f.Payload)

	case frame.TagBeginFeed:
		return s.handleBeginFeed(conn, f.Payload)

	default:
		return s.writeStatus(conn, frozenerr.InvalidRequest("unknown request tag"))
	}
}

func (s *Server) writeStatus(conn net.Conn, err error) error {
	resp := messages.StatusResponse{Success: err == nil}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	return frame.Write(conn, frame.TagStatusResponse, resp.Encode())
}

func (s *Server) handleCreateCollection(conn net.Conn, payload []byte) error {
	req, err := messages.DecodeCreateCollection(payload)
	if err != nil {
		return err
	}
	if req.PrimaryKeyName == "" {
		return s.writeStatus(conn, frozenerr.InvalidRequest("primary_key_name must not be empty"))
	}

	indexes := []catalog.IndexDescriptor{{Name: req.PrimaryKeyName, Unique: true}}
	for _, name := range req.OtherIndexNames {
		indexes = append(indexes, catalog.IndexDescriptor{Name: name, Unique: false})
	}

	// CreateCollection's wire payload carries only names (collection,
	// primary_key_name, other_index_names): segment capacities are a
	// server-side policy, not a client-supplied parameter. These match the
	// values used throughout the large-feed rollover scenario.
	md := catalog.Metadata{
		Name:                     req.Collection,
		Indexes:                  indexes,
		MaxItemsPerSegment:       1_000_000,
		SegmentDataCapacityBytes: 1_000_000_000,
		MaxVersionsToKeep:        5,
	}
	return s.writeStatus(conn, s.cfg.Catalog.CreateCollection(md))
}

func (s *Server) handleDropCollection(conn net.Conn, payload []byte) error {
	req, err := messages.DecodeDropCollection(payload)
	if err != nil {
		return err
	}
	if req.Collection == "" {
		return s.writeStatus(conn, frozenerr.InvalidRequest("collection must not be empty"))
	}
	return s.writeStatus(conn, s.cfg.Catalog.DropCollection(req.Collection))
}

func (s *Server) handleGetCollectionsDescription(conn net.Conn) error {
	info, err := s.cfg.Catalog.GetCollectionsInformation()
	if err != nil {
		return s.writeStatus(conn, err)
	}

	resp := messages.CollectionsDescription{}
	for _, desc := range info {
		keyNames := make([]string, len(desc.Indexes))
		for i, idx := range desc.Indexes {
			keyNames[i] = idx.Name
		}
		resp.Collections = append(resp.Collections, messages.CollectionDescription{
			Name:                 desc.Name,
			Count:                int32(desc.ObjectCount),
			SizeInBytes:          desc.TotalSizeBytes,
			LastVersion:          desc.LastVersion,
			KeyNames:             keyNames,
			SegmentFileSize:      int32(desc.SegmentDataCapacityBytes),
			MaxObjectsPerSegment: int32(desc.MaxItemsPerSegment),
		})
	}
	return frame.Write(conn, frame.TagCollectionsDescription, resp.Encode())
}

func (s *Server) handleQuery(conn net.Conn, payload []byte) error {
	req, err := messages.DecodeQueryByPrimaryKey(payload)
	if err != nil {
		return err
	}
	if req.Collection == "" {
		return s.writeStatus(conn, frozenerr.InvalidRequest("collection must not be empty"))
	}

	var objects [][]byte
	for _, key := range req.PrimaryKeyValues {
		items, err := s.cfg.Catalog.GetByPrimaryKey(req.Collection, key)
		if err != nil {
			return s.writeStatus(conn, err)
		}
		objects = append(objects, items...)
	}

	collectionName := req.Collection
	resp := messages.QueryResponse{SingleAnswer: true, ObjectsData: objects, Collection: &collectionName}
	return frame.Write(conn, frame.TagQueryResponse, resp.Encode())
}

func (s *Server) handleBeginFeed(conn net.Conn, payload []byte) error {
	req, err := messages.DecodeBeginFeed(payload)
	if err != nil {
		return err
	}

	if beginErr := s.cfg.Catalog.BeginFeed(req.Collection, req.Version); beginErr != nil {
		return s.writeStatus(conn, beginErr)
	}
	if err := s.writeStatus(conn, nil); err != nil {
		s.cfg.Catalog.AbortFeed(req.Collection)
		return err
	}

	queue := make(chan collection.Item, s.cfg.FeedQueueDepth)
	feederErrCh := make(chan error, 1)
	go func() {
		var feedErr error
		for item := range queue {
			if feedErr != nil {
				continue // drain without further work once an error occurred
			}
			if err := s.cfg.Catalog.FeedItem(req.Collection, item); err != nil {
				feedErr = err
			}
		}
		feederErrCh <- feedErr
	}()

	var streamErr error
	for {
		items, err := feedbatch.ReadBatch(conn)
		if err != nil {
			streamErr = err
			break
		}
		if items == nil {
			break // terminator batch
		}
		for _, it := range items {
			queue <- collection.Item{Data: it.Data, Keys: it.Keys}
		}
	}
	close(queue)
	feedErr := <-feederErrCh

	if streamErr != nil {
		s.cfg.Catalog.AbortFeed(req.Collection)
		return streamErr
	}
	if feedErr != nil {
		s.cfg.Catalog.AbortFeed(req.Collection)
		return s.writeStatus(conn, feedErr)
	}
	return s.writeStatus(conn, s.cfg.Catalog.EndFeed(req.Collection))
}

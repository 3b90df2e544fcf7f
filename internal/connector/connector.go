// Package connector implements a single client connection: one TCP
// stream, strict request/response, and the feed-streaming sub-protocol.
// Every call is synchronous and blocks until its response frame arrives;
// callers needing concurrency use multiple Connectors. A Connector also
// tracks its own health flag, cleared on any I/O error, so a Connector Pool
// can discard a dead connection when it is returned.
package connector

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"frozenkv/internal/frozenerr"
	"frozenkv/internal/wire/feedbatch"
	"frozenkv/internal/wire/frame"
	"frozenkv/internal/wire/messages"
)

const pingTimeout = 100 * time.Millisecond

// Connector owns one TCP stream while alive and serializes requests
// strictly: one outstanding request at a time.
type Connector struct {
	addr string

	mu   sync.Mutex
	conn net.Conn

	healthy atomic.Bool
}

// Connect dials addr, preferring an IPv4 resolution when the host resolves
// to both families, for determinism with local/dual-stack test servers.
func Connect(addr string) (*Connector, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, frozenerr.IoError(err, "invalid address").WithDetail("addr", addr)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Not a hostname (e.g. "127.0.0.1", "::1", "localhost" may still
		// fail to resolve in minimal environments); fall back to dialing
		// the address verbatim.
		return dial(addr)
	}

	dialAddr := addr
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			dialAddr = net.JoinHostPort(ip4.String(), port)
			break
		}
	}
	return dial(dialAddr)
}

func dial(addr string) (*Connector, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, frozenerr.IoError(err, "dial").WithDetail("addr", addr)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}
	c := &Connector{addr: addr, conn: conn}
	c.healthy.Store(true)
	return c, nil
}

// IsHealthy reports whether the connector's stream is still believed
// usable; it flips false on any I/O error.
func (c *Connector) IsHealthy() bool { return c.healthy.Load() }

func (c *Connector) markUnhealthy() { c.healthy.Store(false) }

// Ping performs a latency-bounded round trip; any failure (including
// timeout) returns false and marks the connector unhealthy.
func (c *Connector) Ping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetDeadline(time.Now().Add(pingTimeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := frame.Write(c.conn, frame.TagPing, nil); err != nil {
		c.markUnhealthy()
		return false
	}
	f, err := frame.Read(c.conn)
	if err != nil {
		c.markUnhealthy()
		return false
	}
	f.Release()
	return true
}

func (c *Connector) roundTrip(tag frame.Tag, payload []byte) (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := frame.Write(c.conn, tag, payload); err != nil {
		c.markUnhealthy()
		return nil, frozenerr.IoError(err, "write request")
	}
	f, err := frame.Read(c.conn)
	if err != nil {
		c.markUnhealthy()
		return nil, frozenerr.IoError(err, "read response")
	}
	return f, nil
}

func (c *Connector) statusRoundTrip(tag frame.Tag, payload []byte) error {
	f, err := c.roundTrip(tag, payload)
	if err != nil {
		return err
	}
	defer f.Release()
	if f.Tag != frame.TagStatusResponse {
		return frozenerr.InvalidRequest("unexpected response tag")
	}
	status, err := messages.DecodeStatusResponse(f.Payload)
	if err != nil {
		return err
	}
	if !status.Success {
		msg := "request failed"
		if status.Error != nil {
			msg = *status.Error
		}
		return frozenerr.New(frozenerr.CodeInvalidRequest, msg)
	}
	return nil
}

// CreateCollection declares a new collection with a primary and optional
// secondary indexes.
func (c *Connector) CreateCollection(name, primaryKeyName string, otherIndexNames []string) error {
	req := messages.CreateCollection{Collection: name, PrimaryKeyName: primaryKeyName, OtherIndexNames: otherIndexNames}
	return c.statusRoundTrip(frame.TagCreateCollection, req.Encode())
}

// DropCollection removes a collection and all its versions.
func (c *Connector) DropCollection(name string) error {
	req := messages.DropCollection{Collection: name}
	return c.statusRoundTrip(frame.TagDropCollection, req.Encode())
}

// GetCollectionsDescription snapshots every collection's metadata and counts.
func (c *Connector) GetCollectionsDescription() (messages.CollectionsDescription, error) {
	f, err := c.roundTrip(frame.TagGetCollectionsDescription, nil)
	if err != nil {
		return messages.CollectionsDescription{}, err
	}
	defer f.Release()
	if f.Tag != frame.TagCollectionsDescription {
		return messages.CollectionsDescription{}, frozenerr.InvalidRequest("unexpected response tag")
	}
	return messages.DecodeCollectionsDescription(f.Payload)
}

// QueryByPrimaryKey looks up each of keys in collection.
func (c *Connector) QueryByPrimaryKey(collectionName string, keys []int64) (messages.QueryResponse, error) {
	req := messages.QueryByPrimaryKey{Collection: collectionName, PrimaryKeyValues: keys}
	f, err := c.roundTrip(frame.TagQueryByPrimaryKey, req.Encode())
	if err != nil {
		return messages.QueryResponse{}, err
	}
	defer f.Release()
	if f.Tag != frame.TagQueryResponse {
		return messages.QueryResponse{}, frozenerr.InvalidRequest("unexpected response tag")
	}
	return messages.DecodeQueryResponse(f.Payload)
}

// Feed streams every item from items into collectionName as version,
// driven by BeginFeed/batches/terminator/final-status. items is drained
// completely even if an earlier item already failed server-side, since
// the wire protocol has no mid-stream abort signal.
func (c *Connector) Feed(collectionName, version string, items <-chan feedbatch.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	begin := messages.BeginFeed{Collection: collectionName, Version: version}
	if err := frame.Write(c.conn, frame.TagBeginFeed, begin.Encode()); err != nil {
		c.markUnhealthy()
		return frozenerr.IoError(err, "write begin feed")
	}
	f, err := frame.Read(c.conn)
	if err != nil {
		c.markUnhealthy()
		return frozenerr.IoError(err, "read begin feed status")
	}
	status, decodeErr := messages.DecodeStatusResponse(f.Payload)
	f.Release()
	if decodeErr != nil {
		return decodeErr
	}
	if !status.Success {
		msg := "begin feed failed"
		if status.Error != nil {
			msg = *status.Error
		}
		return frozenerr.New(frozenerr.CodeInvalidRequest, msg)
	}

	const batchByteBudget = 1 << 20
	const batchItemBudget = 5000

	builder := feedbatch.NewBuilder()
	for item := range items {
		builder.Add(item)
		if builder.Bytes() >= batchByteBudget || builder.Len() >= batchItemBudget {
			if err := builder.WriteTo(c.conn); err != nil {
				c.markUnhealthy()
				return frozenerr.IoError(err, "write feed batch")
			}
		}
	}
	if builder.Len() > 0 {
		if err := builder.WriteTo(c.conn); err != nil {
			c.markUnhealthy()
			return frozenerr.IoError(err, "write final feed batch")
		}
	}
	if err := feedbatch.WriteTerminator(c.conn); err != nil {
		c.markUnhealthy()
		return frozenerr.IoError(err, "write feed terminator")
	}

	f, err = frame.Read(c.conn)
	if err != nil {
		c.markUnhealthy()
		return frozenerr.IoError(err, "read final feed status")
	}
	defer f.Release()
	final, err := messages.DecodeStatusResponse(f.Payload)
	if err != nil {
		return err
	}
	if !final.Success {
		msg := "feed failed"
		if final.Error != nil {
			msg = *final.Error
		}
		return frozenerr.New(frozenerr.CodeInvalidRequest, msg)
	}
	return nil
}

// Close closes the underlying connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

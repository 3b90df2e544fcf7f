// Package aggregator implements client-side fan-out over N replica pools:
// round-robin queries with disconnected-pool skipping, and a parallel feed
// that writes each item once into a bounded per-replica channel consumed
// by one goroutine per replica. Collection-management calls (declare, drop)
// go to every connected replica and their errors are combined with
// go.uber.org/multierr rather than discarded after the first failure, so a
// caller can see every replica that rejected the request.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"frozenkv/internal/frozenerr"
	"frozenkv/internal/pool"
	"frozenkv/internal/wire/feedbatch"
	"frozenkv/internal/wire/messages"
)

// FeedChannelCapacity bounds each per-replica channel used during Feed.
const FeedChannelCapacity = 10_000

// Aggregator holds one Connector Pool per replica.
type Aggregator struct {
	mu     sync.Mutex
	pools  []*pool.Pool
	cursor int
	logger *zap.SugaredLogger
}

// New constructs an Aggregator over pools, which must already be started.
func New(pools []*pool.Pool, logger *zap.SugaredLogger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Aggregator{pools: pools, logger: logger}
}

// QueryByPrimaryKey is served by any connected replica, selected
// round-robin with skipping of disconnected pools. On a socket error the
// offending pool is marked not-connected (via drain, triggered by
// Connector.IsHealthy on Return) and the query retries on the next
// replica.
func (a *Aggregator) QueryByPrimaryKey(collectionName string, keys []int64) (messages.QueryResponse, error) {
	n := len(a.pools)
	if n == 0 {
		return messages.QueryResponse{}, frozenerr.RemoteUnavailable("no replicas configured")
	}

	a.mu.Lock()
	start := a.cursor
	a.cursor = (a.cursor + 1) % n
	a.mu.Unlock()

	var lastErr error
	for i := 0; i < n; i++ {
		p := a.pools[(start+i)%n]
		if !p.IsConnected() {
			continue
		}
		c, err := p.Get()
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.QueryByPrimaryKey(collectionName, keys)
		p.Return(c)
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return messages.QueryResponse{}, lastErr
	}
	return messages.QueryResponse{}, frozenerr.RemoteUnavailable("no connected replicas")
}

// DeclareCollection requires every currently connected replica to succeed;
// errors from multiple replicas are combined rather than only the first
// reported.
func (a *Aggregator) DeclareCollection(name, primaryKeyName string, otherIndexNames []string) error {
	return a.forEachConnected(func(p *pool.Pool) error {
		c, err := p.Get()
		if err != nil {
			return err
		}
		defer p.Return(c)
		return c.CreateCollection(name, primaryKeyName, otherIndexNames)
	})
}

// DropCollection requires every currently connected replica to succeed.
func (a *Aggregator) DropCollection(name string) error {
	return a.forEachConnected(func(p *pool.Pool) error {
		c, err := p.Get()
		if err != nil {
			return err
		}
		defer p.Return(c)
		return c.DropCollection(name)
	})
}

func (a *Aggregator) forEachConnected(fn func(*pool.Pool) error) error {
	var connected []*pool.Pool
	for _, p := range a.pools {
		if p.IsConnected() {
			connected = append(connected, p)
		}
	}
	if len(connected) == 0 {
		return frozenerr.RemoteUnavailable("no connected replicas")
	}

	errs := make([]error, len(connected))
	var wg sync.WaitGroup
	for i, p := range connected {
		wg.Add(1)
		go func(i int, p *pool.Pool) {
			defer wg.Done()
			errs[i] = fn(p)
		}(i, p)
	}
	wg.Wait()

	return multierr.Combine(errs...)
}

// FeedVersion returns the aggregator-chosen version string for a new feed:
// a UTC timestamp formatted YYYYMMDD_HHmmss. This keeps versions monotonic
// across replicas without any cross-replica coordination.
func FeedVersion(now time.Time) string {
	return now.UTC().Format("20060102_150405")
}

// Feed fans items out to every connected replica: one bounded channel and
// one consumer goroutine per replica, each driving Connector.Feed. Each
// item is read once from items and sent into every channel; failure of any
// single replica does not prevent the others from completing.
func (a *Aggregator) Feed(collectionName, version string, items <-chan feedbatch.Item) error {
	var connected []*pool.Pool
	for _, p := range a.pools {
		if p.IsConnected() {
			connected = append(connected, p)
		}
	}
	if len(connected) == 0 {
		return frozenerr.RemoteUnavailable("no connected replicas")
	}

	channels := make([]chan feedbatch.Item, len(connected))
	for i := range channels {
		channels[i] = make(chan feedbatch.Item, FeedChannelCapacity)
	}

	errs := make([]error, len(connected))
	var wg sync.WaitGroup
	for i, p := range connected {
		wg.Add(1)
		go func(i int, p *pool.Pool, ch <-chan feedbatch.Item) {
			defer wg.Done()
			c, err := p.Get()
			if err != nil {
				errs[i] = err
				for range ch {
					// drain so the producer never blocks on this replica
				}
				return
			}
			defer p.Return(c)
			errs[i] = c.Feed(collectionName, version, ch)
			for range ch {
				// drain what Feed left unread (e.g. after a rejected BeginFeed)
			}
		}(i, p, channels[i])
	}

	for item := range items {
		for _, ch := range channels {
			ch <- item
		}
	}
	for _, ch := range channels {
		close(ch)
	}
	wg.Wait()

	if err := multierr.Combine(errs...); err != nil {
		return fmt.Errorf("feed: %w", err)
	}
	return nil
}

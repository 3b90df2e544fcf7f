// Package pool implements the Connector Pool: a fixed-capacity set of live
// connectors to one replica endpoint plus a watchdog that pings one
// connector on a ticker and drains the whole pool once the ping fails; on
// later ticks it tries one fresh connection and, if that answers a ping,
// rebuilds the whole pool rather than repairing individual connections.
package pool

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"frozenkv/internal/connector"
	"frozenkv/internal/frozenerr"
)

// Config bundles what a Pool needs: the endpoint to dial, how many live
// connectors to keep, and the watchdog's check period.
type Config struct {
	Addr           string
	Capacity       int
	WatchdogPeriod time.Duration
	Logger         *zap.SugaredLogger
}

// Pool is a bounded set of live Connectors to a single host:port, with a
// watchdog task that detects and recovers from a dead replica.
type Pool struct {
	cfg Config

	mu          sync.Mutex
	connected   bool
	available   chan *connector.Connector

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a disconnected pool; call Start to dial and run the
// watchdog.
func New(cfg Config) *Pool {
	if cfg.WatchdogPeriod <= 0 {
		cfg.WatchdogPeriod = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Pool{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start attempts an initial connection (best-effort; the watchdog will
// keep retrying if it fails) and launches the watchdog loop.
func (p *Pool) Start() {
	p.tryConnect()
	p.wg.Add(1)
	go p.watchdog()
}

func (p *Pool) tryConnect() {
	connectors := make([]*connector.Connector, 0, p.cfg.Capacity)
	for i := 0; i < p.cfg.Capacity; i++ {
		c, err := connector.Connect(p.cfg.Addr)
		if err != nil {
			p.cfg.Logger.Warnw("pool connect failed", "addr", p.cfg.Addr, "error", err)
			for _, existing := range connectors {
				existing.Close()
			}
			return
		}
		connectors = append(connectors, c)
	}

	available := make(chan *connector.Connector, p.cfg.Capacity)
	for _, c := range connectors {
		available <- c
	}

	p.mu.Lock()
	p.available = available
	p.connected = true
	p.mu.Unlock()
	p.cfg.Logger.Infow("pool connected", "addr", p.cfg.Addr, "capacity", p.cfg.Capacity)
}

func (p *Pool) watchdog() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.WatchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.checkHealth()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) checkHealth() {
	if p.IsConnected() {
		c, err := p.Get()
		if err != nil {
			return
		}
		healthy := c.Ping()
		p.Return(c)
		if !healthy {
			p.cfg.Logger.Warnw("pool ping failed, marking disconnected", "addr", p.cfg.Addr)
			p.drain()
		}
		return
	}

	// Disconnected: attempt one fresh connection+ping; on success rebuild
	// the full pool.
	c, err := connector.Connect(p.cfg.Addr)
	if err != nil {
		return
	}
	healthy := c.Ping()
	c.Close()
	if healthy {
		p.tryConnect()
	}
}

func (p *Pool) drain() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return
	}
	p.connected = false
	close(p.available)
	for c := range p.available {
		c.Close()
	}
	p.available = nil
}

// IsConnected reports whether the pool currently believes it has live
// connectors.
func (p *Pool) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Get waits for an available connector. It fails RemoteUnavailable if the
// pool is disconnected.
func (p *Pool) Get() (*connector.Connector, error) {
	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return nil, frozenerr.RemoteUnavailable("pool is not connected").WithDetail("addr", p.cfg.Addr)
	}
	ch := p.available
	p.mu.Unlock()

	select {
	case c, ok := <-ch:
		if !ok {
			return nil, frozenerr.RemoteUnavailable("pool is not connected").WithDetail("addr", p.cfg.Addr)
		}
		return c, nil
	case <-p.stopCh:
		return nil, frozenerr.RemoteUnavailable("pool is stopped").WithDetail("addr", p.cfg.Addr)
	}
}

// Return puts c back in the pool, or disposes it (and marks the pool
// disconnected) if it's unhealthy.
func (p *Pool) Return(c *connector.Connector) {
	if !c.IsHealthy() {
		c.Close()
		p.drain()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		c.Close()
		return
	}
	select {
	case p.available <- c:
	default:
		c.Close()
	}
}

// Stop cancels the watchdog and drains the pool.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.drain()
}

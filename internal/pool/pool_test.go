package pool

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"frozenkv/internal/wire/frame"
)

// pingListener accepts connections and echoes Ping frames, the minimum a
// Connector needs to consider a peer healthy. It mirrors the server's own
// dispatch for tag Ping without pulling in the whole server package.
type pingListener struct {
	ln net.Listener
	wg sync.WaitGroup

	mu    sync.Mutex
	conns []net.Conn
}

func newPingListener(t *testing.T) *pingListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pl := &pingListener{ln: ln}
	pl.wg.Add(1)
	go pl.acceptLoop()
	t.Cleanup(func() {
		ln.Close()
		pl.wg.Wait()
	})
	return pl
}

func (pl *pingListener) acceptLoop() {
	defer pl.wg.Done()
	for {
		conn, err := pl.ln.Accept()
		if err != nil {
			return
		}
		pl.mu.Lock()
		pl.conns = append(pl.conns, conn)
		pl.mu.Unlock()

		pl.wg.Add(1)
		go func() {
			defer pl.wg.Done()
			defer conn.Close()
			for {
				f, err := frame.Read(conn)
				if err != nil {
					return
				}
				if f.Tag == frame.TagPing {
					frame.Write(conn, frame.TagPing, nil)
				}
				f.Release()
			}
		}()
	}
}

func (pl *pingListener) addr() string { return pl.ln.Addr().String() }

// closeAll severs every connection accepted so far, simulating the
// replica going down without stopping the listener from accepting new
// (fresh) connections, which is closer to a crashed-and-restarted peer
// than closing the listener would be.
func (pl *pingListener) closeAll() {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for _, c := range pl.conns {
		c.Close()
	}
	pl.conns = nil
}

func TestPoolConnectsAndServesConnectors(t *testing.T) {
	pl := newPingListener(t)

	p := New(Config{Addr: pl.addr(), Capacity: 2, WatchdogPeriod: time.Hour})
	p.Start()
	defer p.Stop()

	require.Eventually(t, p.IsConnected, time.Second, time.Millisecond)

	c, err := p.Get()
	require.NoError(t, err)
	require.True(t, c.Ping())
	p.Return(c)
}

func TestPoolWatchdogDetectsDisconnect(t *testing.T) {
	pl := newPingListener(t)

	p := New(Config{Addr: pl.addr(), Capacity: 1, WatchdogPeriod: 20 * time.Millisecond})
	p.Start()
	defer p.Stop()

	require.Eventually(t, p.IsConnected, time.Second, time.Millisecond)

	pl.closeAll()

	require.Eventually(t, func() bool { return !p.IsConnected() }, 2*time.Second, 5*time.Millisecond)
}

func TestPoolGetFailsWhenNeverConnected(t *testing.T) {
	p := New(Config{Addr: "127.0.0.1:1", Capacity: 1, WatchdogPeriod: time.Hour})
	p.Start()
	defer p.Stop()

	_, err := p.Get()
	require.Error(t, err)
}

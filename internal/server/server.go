// Package server implements the TCP Server: one listener, an accept loop
// that spawns an independent per-connection task, and a per-connection
// read-dispatch-write loop covering the six request tags (Ping, BeginFeed,
// CreateCollection, QueryByPrimaryKey, DropCollection,
// GetCollectionsDescription). Stop closes the
// listener and every in-flight connection, then waits for each handler
// goroutine to return before returning itself.
package server

import (
	"context"
	"net"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"frozenkv/internal/catalog"
)

// Config bundles what the Server needs to bind and serve.
type Config struct {
	ListenAddr     string
	Catalog        *catalog.Catalog
	Logger         *zap.SugaredLogger
	FeedQueueDepth int
}

// Server is the TCP listener plus per-connection dispatch loop.
type Server struct {
	cfg Config

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.FeedQueueDepth <= 0 {
		cfg.FeedQueueDepth = 1_000_000
	}
	return &Server{cfg: cfg, quit: make(chan struct{}), conns: make(map[net.Conn]struct{})}
}

// listenConfig disables IPv6-only so the listener accepts both families,
// per the protocol's TCP-tuning requirement.
var listenConfig = net.ListenConfig{
	Control: func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		})
		if err != nil {
			return err
		}
		// Dual-stack isn't available on every platform/socket combination
		// (e.g. an explicit "tcp4" network); ignore the error in that case.
		_ = sockErr
		return nil
	},
}

// Serve binds the listener and runs the accept loop until Stop is called.
// It blocks until the listener is closed.
func (s *Server) Serve() error {
	ln, err := listenConfig.Listen(context.Background(), "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.cfg.Logger.Infow("server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.cfg.Logger.Warnw("accept error", "error", err)
				return err
			}
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		s.trackConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrackConn(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Addr returns the bound address once Serve has started listening,
// resolving a requested port of 0 to the OS-chosen one.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener, causing the accept loop to exit, force-closes
// every in-flight connection so a handler blocked on a read unblocks
// immediately rather than waiting for the peer to hang up, and waits for
// every connection handler to finish. Stop is idempotent: a second call is
// a no-op rather than a panic on an already-closed channel.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.mu.Lock()
		if s.listener != nil {
			s.listener.Close()
		}
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
	})
	s.wg.Wait()
}

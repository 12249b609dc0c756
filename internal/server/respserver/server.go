package respserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/feoxd/internal/pubsub"
	"github.com/yndnr/feoxd/internal/registry"
	"github.com/yndnr/feoxd/internal/store"
	"github.com/yndnr/feoxd/internal/telemetry/metric"
)

// Config holds the RESP server configuration.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:6379".
	Addr string
	// Requirepass enables AUTH with this password; empty disables auth.
	Requirepass string
	// RateLimit is the maximum commands per second per client IP; 0 = off.
	RateLimit int
	// Port is reported by INFO; derived from Addr when 0.
	Port int
}

// Server accepts RESP connections and runs one state machine per client.
type Server struct {
	cfg      Config
	handler  *Handler
	store    *store.Store
	hub      *pubsub.Hub
	registry *registry.Registry
	metrics  *metric.Metrics
	logger   *slog.Logger

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	connsTotal atomic.Uint64
}

// New creates a Server. The hub must have been created with EncodeMessage as
// its frame encoder.
func New(cfg Config, st *store.Store, hub *pubsub.Hub, reg *registry.Registry, metrics *metric.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.New()
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		hub:      hub,
		registry: reg,
		metrics:  metrics,
		logger:   logger,
	}
	s.handler = newHandler(s)
	return s
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("resp server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()
	return nil
}

// Addr returns the bound listen address; useful with ":0" in tests.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting and waits for connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	// Kick every live connection loose.
	s.registry.Kill(registry.KillFilter{Type: "normal"})
	s.registry.Kill(registry.KillFilter{Type: "pubsub"})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			s.logger.Error("accept failed", "error", err)
			return
		}

		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetNoDelay(true)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(nc)
		}()
	}
}

func (s *Server) serveConn(nc net.Conn) {
	c := newConn(s, nc)
	c.client = s.registry.Register(nc.RemoteAddr().String(), c.scheduleClose)
	c.authenticated = s.handler.cfg.requirepass() == ""

	s.connsTotal.Add(1)
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	s.logger.Debug("connection accepted", "client_id", c.client.ID, "addr", c.client.Addr)

	go c.writeLoop()
	defer s.teardown(c)

	for {
		if c.killed.Load() || c.closed.Load() {
			return
		}
		c.waitForDrain()

		if t := s.handler.cfg.idleTimeout(); t > 0 {
			_ = nc.SetReadDeadline(time.Now().Add(t))
		} else {
			_ = nc.SetReadDeadline(time.Time{})
		}

		args, err := c.reader.ReadCommand()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, ErrLimit):
				s.logger.Warn("protocol limit exceeded", "client_id", c.client.ID, "error", err)
				c.writeError("ERR Protocol error: " + err.Error())
			case errors.Is(err, ErrProtocol):
				c.writeError("ERR Protocol error: " + err.Error())
			default:
				var netErr net.Error
				if !errors.As(err, &netErr) || !netErr.Timeout() {
					s.logger.Debug("read failed", "client_id", c.client.ID, "error", err)
				}
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		s.handler.Dispatch(c, args)
		if c.quitting {
			return
		}
	}
}

// SetRequirepass swaps the AUTH password at runtime (config file reload).
func (s *Server) SetRequirepass(p string) {
	s.handler.SetRequirepass(p)
}

// port returns the TCP port reported by INFO and CONFIG GET.
func (s *Server) port() int {
	if s.cfg.Port != 0 {
		return s.cfg.Port
	}
	if s.ln != nil {
		if ta, ok := s.ln.Addr().(*net.TCPAddr); ok {
			return ta.Port
		}
	}
	return 0
}

// bindAddr returns the configured bind host.
func (s *Server) bindAddr() string {
	host, _, err := net.SplitHostPort(s.cfg.Addr)
	if err != nil {
		return s.cfg.Addr
	}
	return host
}

// teardown releases everything the connection holds: subscriptions, the
// registry record, and the writer goroutine.
func (s *Server) teardown(c *Conn) {
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	patterns := make([]string, 0, len(c.patterns))
	for p := range c.patterns {
		patterns = append(patterns, p)
	}
	s.hub.Drop(c, channels, patterns)

	s.registry.Unregister(c.client.ID)
	s.metrics.ConnectionsActive.Dec()

	c.quitOnce.Do(func() { close(c.quit) })
	s.logger.Debug("connection closed", "client_id", c.client.ID)
}

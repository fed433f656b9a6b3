package api

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleproxy/internal/deviceinfo"
	"github.com/srg/bleproxy/internal/groutine"
	"github.com/srg/bleproxy/internal/proxy"
)

// DefaultPort is the native API port clients expect.
const DefaultPort = 6053

// shutdownBudget bounds the orderly-disconnect phase during shutdown.
const shutdownBudget = 3 * time.Second

// Server accepts API clients and hands each to its own Connection.
type Server struct {
	logger     *logrus.Logger
	proxy      *proxy.Proxy
	info       *deviceinfo.Provider
	password   string
	serverInfo string
	name       string

	listener net.Listener

	mu    sync.Mutex
	conns map[*Connection]struct{}
	wg    sync.WaitGroup
}

// Config carries the server's identity and authentication settings.
type Config struct {
	Name       string
	ServerInfo string
	Password   string
}

func NewServer(cfg Config, p *proxy.Proxy, info *deviceinfo.Provider, logger *logrus.Logger) *Server {
	return &Server{
		logger:     logger,
		proxy:      p,
		info:       info,
		password:   cfg.Password,
		serverInfo: cfg.ServerInfo,
		name:       cfg.Name,
		conns:      make(map[*Connection]struct{}),
	}
}

// Listen binds the TCP listener.
func (s *Server) Listen(host string, port int) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = listener
	s.logger.WithField("addr", addr).Info("API server listening")
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until the listener closes.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosing(err) {
				return nil
			}
			return fmt.Errorf("accepting client: %w", err)
		}

		c := newConnection(conn, s)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		c.logger.Info("Client connected")

		s.wg.Add(1)
		groutine.Go(nil, "api-conn-"+conn.RemoteAddr().String(), func(context.Context) {
			defer s.wg.Done()
			c.serve()
		})
	}
}

func (s *Server) forget(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Shutdown stops accepting, asks every client to disconnect within the
// 3 s budget, then waits for connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		_ = s.listener.Close()
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownBudget)
	defer cancel()

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			c.requestDisconnect(ctx)
		}(c)
	}
	wg.Wait()

	s.wg.Wait()
	return nil
}

// ConnectionCount reports the number of live clients.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

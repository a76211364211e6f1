// Package server implements the TCP accept loop, per-connection
// workers, the background idle monitor, and graceful shutdown.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mhesketh/srag-ml/internal/dispatcher"
	"github.com/mhesketh/srag-ml/internal/protocol"
)

const (
	acceptTimeout    = 1 * time.Second
	connReadTimeout  = 30 * time.Second
	idleCheckPeriod  = 30 * time.Second
	llmIdleThreshold = 300 * time.Second
)

// Unloader is the subset of llmengine.Engine the idle monitor depends on.
type Unloader interface {
	IsLoaded() bool
	IdleSeconds() float64
	Unload() error
}

// Config carries the launch-time parameters needed to bind and serve.
type Config struct {
	Host      string
	Port      int
	PortFile  string
	AuthToken string
}

// Server owns the listening socket, the idle monitor, and shutdown.
type Server struct {
	cfg        Config
	dispatcher *dispatcher.Dispatcher
	llm        Unloader // nil when configured for an external provider
	logger     *slog.Logger

	listener net.Listener
	running  atomic.Bool
}

// New returns a Server ready to Run. llm may be nil.
func New(cfg Config, d *dispatcher.Dispatcher, llm Unloader, logger *slog.Logger) *Server {
	s := &Server{cfg: cfg, dispatcher: d, llm: llm, logger: logger}
	d.Shutdown = s.requestShutdown
	return s
}

// Run binds the listening socket, writes the port file if configured, and
// blocks serving connections until Shutdown is called or ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	s.running.Store(true)

	addr := ln.Addr().(*net.TCPAddr)
	if s.cfg.PortFile != "" {
		if err := writePortFile(s.cfg.PortFile, addr.Port); err != nil {
			_ = ln.Close()
			return fmt.Errorf("server: write port file: %w", err)
		}
	}
	s.logger.Info("ML service listening", "host", s.cfg.Host, "port", addr.Port)

	go s.idleMonitor()

	go func() {
		<-ctx.Done()
		s.requestShutdown()
	}()

	s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for s.running.Load() {
		if tl, ok := s.listener.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(acceptTimeout))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !s.running.Load() {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	for s.running.Load() {
		_ = conn.SetReadDeadline(time.Now().Add(connReadTimeout))

		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("connection closed", "error", err)
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			s.reply(conn, protocol.NewError(0, protocol.CodeParseError, fmt.Sprintf("parse error: %v", err)))
			continue
		}

		if s.cfg.AuthToken != "" && !constantTimeEqual(req.Auth, s.cfg.AuthToken) {
			s.reply(conn, protocol.NewError(req.ID, protocol.CodeAuthFailed, "auth token mismatch"))
			continue
		}

		result, err := s.dispatcher.Dispatch(context.Background(), req.Method, req.Params)
		if err != nil {
			s.reply(conn, protocol.NewError(req.ID, protocol.CodeInternal, err.Error()))
			continue
		}

		resp, err := protocol.NewResult(req.ID, result)
		if err != nil {
			s.reply(conn, protocol.NewError(req.ID, protocol.CodeInternal, err.Error()))
			continue
		}
		if !s.reply(conn, resp) {
			return
		}
	}
}

// reply writes resp to conn, returning false if the write failed (the
// caller should close the connection in that case).
func (s *Server) reply(conn net.Conn, resp protocol.Response) bool {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return false
	}
	if err := protocol.WriteFrame(conn, payload); err != nil {
		s.logger.Debug("write response failed", "error", err)
		return false
	}
	return true
}

func (s *Server) idleMonitor() {
	ticker := time.NewTicker(idleCheckPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if !s.running.Load() {
			return
		}
		if s.llm == nil {
			continue
		}
		mu := s.dispatcher.Mutex()
		mu.Lock()
		if s.llm.IsLoaded() && s.llm.IdleSeconds() > llmIdleThreshold.Seconds() {
			s.logger.Info("LLM idle, unloading", "idle_seconds", s.llm.IdleSeconds())
			if err := s.llm.Unload(); err != nil {
				s.logger.Error("idle unload failed", "error", err)
			}
		}
		mu.Unlock()
	}
}

// requestShutdown stops the accept loop, closes the socket, removes the
// port file, and unloads the embedder/LLM. Safe to call more than once
// and from the shutdown RPC or an external interrupt.
func (s *Server) requestShutdown() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info("shutting down ML service")
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.cfg.PortFile != "" {
		_ = os.Remove(s.cfg.PortFile)
	}
	if err := s.dispatcher.Embedder.Unload(); err != nil {
		s.logger.Error("embedder unload failed", "error", err)
	}
	if s.llm != nil {
		if err := s.llm.Unload(); err != nil {
			s.logger.Error("llm unload failed", "error", err)
		}
	}
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writePortFile(path string, port int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d", port)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

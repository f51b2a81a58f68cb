// Package protocol serves the Redis wire protocol (RESP) for kvstream.
//
// One TCP port carries both RESP clients and HTTP (admin API, /metrics,
// /debug/pprof); cmux routes a connection by its first bytes. STREAM
// requests go to the dispatcher, other commands are relayed to the backing
// store unchanged.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/kvstream/dispatcher"
	"github.com/maxpert/kvstream/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
	"github.com/tidwall/redcon"
)

// StreamCommand is the prefix that routes a request through the dispatcher
const StreamCommand = "STREAM"

const DefaultCommandTimeout = 5 * time.Second

// Commands that need a dedicated backend connection cannot be relayed over a pool
var unsupportedCommands = map[string]bool{
	"SUBSCRIBE":    true,
	"PSUBSCRIBE":   true,
	"SSUBSCRIBE":   true,
	"UNSUBSCRIBE":  true,
	"PUNSUBSCRIBE": true,
	"MONITOR":      true,
	"SELECT":       true,
	"MULTI":        true,
	"EXEC":         true,
	"DISCARD":      true,
	"WATCH":        true,
	"UNWATCH":      true,
	"BLPOP":        true,
	"BRPOP":        true,
	"BLMOVE":       true,
}

// Handler processes the arguments following STREAM
type Handler interface {
	Handle(ctx context.Context, args []string) (interface{}, error)
}

// Config configures a Server
type Config struct {
	Address        string // host:port; port 0 picks a free port
	MaxConnections int    // 0 = unlimited
	CommandTimeout time.Duration
	Handler        Handler
	Backend        dispatcher.Backend
	MetricsHandler http.Handler          // Optional /metrics
	HTTPRoutes     func(*http.ServeMux) // Optional extra HTTP routes (admin)
}

// Server is the client-facing listener
type Server struct {
	config Config

	listener net.Listener
	mux      cmux.CMux
	resp     *redcon.Server
	http     *http.Server

	conns  atomic.Int64
	nextID atomic.Uint64
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// session is the per-connection state kept in redcon's conn context
type session struct {
	id     uint64
	remote string
}

func NewServer(config Config) (*Server, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("stream handler is required")
	}
	if config.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = DefaultCommandTimeout
	}
	return &Server{config: config}, nil
}

// Start listens and serves in the background
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener

	s.mux = cmux.New(listener)
	httpListener := s.mux.Match(cmux.HTTP1Fast())
	respListener := s.mux.Match(cmux.Any())

	s.http = &http.Server{
		Handler:           s.httpMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.resp = redcon.NewServer(listener.Addr().String(), s.handle, s.accept, s.closed)

	s.serve("HTTP server", func() error { return s.http.Serve(httpListener) })
	s.serve("RESP server", func() error { return s.resp.Serve(respListener) })
	s.serve("cmux", s.mux.Serve)

	log.Info().
		Str("address", listener.Addr().String()).
		Int("max_connections", s.config.MaxConnections).
		Msg("Listening for RESP and HTTP")

	return nil
}

func (s *Server) serve(name string, fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn()
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) ||
			errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, cmux.ErrServerClosed) {
			return
		}
		log.Error().Err(err).Msg(name + " failed")
	}()
}

func (s *Server) httpMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	if s.config.MetricsHandler != nil {
		mux.Handle("/metrics", s.config.MetricsHandler)
	}
	if s.config.HTTPRoutes != nil {
		s.config.HTTPRoutes(mux)
	}
	return mux
}

// Addr is the bound address, valid after Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections is the number of open RESP connections
func (s *Server) Connections() int64 {
	return s.conns.Load()
}

// Stop closes the listeners and every client connection
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping RESP server")

		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.http.Shutdown(ctx)
			cancel()
		}
		if s.resp != nil {
			s.resp.Close()
		}
		if s.listener != nil {
			s.listener.Close()
		}
		s.wg.Wait()
	})
}

func (s *Server) accept(conn redcon.Conn) bool {
	n := s.conns.Add(1)
	if max := s.config.MaxConnections; max > 0 && n > int64(max) {
		s.conns.Add(-1)
		conn.WriteError("ERR max number of clients reached")
		log.Warn().Str("remote", conn.RemoteAddr()).Msg("Rejected connection, limit reached")
		return false
	}

	conn.SetContext(&session{id: s.nextID.Add(1), remote: conn.RemoteAddr()})
	telemetry.ClientConnections.Inc()
	log.Debug().Str("remote", conn.RemoteAddr()).Msg("Client connected")
	return true
}

func (s *Server) closed(conn redcon.Conn, err error) {
	s.conns.Add(-1)
	telemetry.ClientConnections.Dec()

	ev := log.Debug().Str("remote", conn.RemoteAddr())
	if sess, ok := conn.Context().(*session); ok {
		ev = ev.Uint64("conn_id", sess.id)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("Client disconnected")
}

func (s *Server) handle(conn redcon.Conn, cmd redcon.Command) {
	if len(cmd.Args) == 0 {
		conn.WriteError("ERR empty command")
		return
	}

	args := make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		args[i] = string(a)
	}
	name := strings.ToUpper(args[0])

	switch name {
	case "PING":
		if len(args) > 1 {
			conn.WriteBulkString(args[1])
		} else {
			conn.WriteString("PONG")
		}
		return
	case "QUIT":
		conn.WriteString("OK")
		conn.Close()
		return
	case "HELLO":
		// RESP3 clients fall back to RESP2 on this error
		conn.WriteError("NOPROTO unsupported protocol version")
		return
	}

	if unsupportedCommands[name] {
		conn.WriteError(fmt.Sprintf("ERR '%s' is not supported through kvstream", strings.ToLower(name)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.CommandTimeout)
	defer cancel()

	if name == StreamCommand {
		s.handleStream(ctx, conn, args[1:])
		return
	}

	reply, err := s.config.Backend.Execute(ctx, args)
	if err != nil {
		log.Warn().Err(err).Str("command", name).Msg("Relay to backing store failed")
		conn.WriteError(ErrorMessage(err))
		return
	}
	writeReply(conn, reply)
}

func (s *Server) handleStream(ctx context.Context, conn redcon.Conn, args []string) {
	reply, err := s.config.Handler.Handle(ctx, args)

	var dispatchErr *dispatcher.DispatchError
	if errors.As(err, &dispatchErr) {
		// The command itself succeeded; its reply stands
		log.Warn().
			Err(dispatchErr.Err).
			Str("type", dispatchErr.KeyType.String()).
			Str("key", dispatchErr.Key).
			Str("function", dispatchErr.Function).
			Msg("Filter dispatch failed")
		writeReply(conn, reply)
		return
	}
	if err != nil {
		log.Debug().Err(err).Strs("args", args).Msg("STREAM request failed")
		conn.WriteError(ErrorMessage(err))
		return
	}

	writeReply(conn, reply)
}

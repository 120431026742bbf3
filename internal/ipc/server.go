package ipc

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"sync"
	"time"

	"github.com/anthonyhab/bb-auth/internal/log"
	"github.com/anthonyhab/bb-auth/internal/provider"
	"github.com/anthonyhab/bb-auth/internal/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// EventSink receives every session event the IPC layer produces, in
// addition to the fan-out the server performs to subscribed connections
// itself. The daemon core implements this to decide whether the provider
// launcher needs to run (§4.9).
type EventSink interface {
	HandleSessionEvent(session.Event)
}

// ReplyForwarder is an optional capability of a sink: sessions whose
// source has no connection-level reply handle to unicast to (polkit,
// whose subsystem boundary is a callback, not a socket) need the
// session.respond value handed onward explicitly. handleRespond checks
// for this via type assertion rather than widening EventSink, since most
// sinks and all of the test suite have no need of it.
type ReplyForwarder interface {
	ForwardReply(id, response string)
}

// Server owns the unix-socket listener, the set of live connections, the
// provider/session tables it routes against, and the in-flight
// keyring_request/pinentry_request calls that are blocked waiting for a
// UI provider's response.
type Server struct {
	socketPath string
	sessions   *session.Store
	providers  *provider.Registry
	sink       EventSink
	tracer     trace.Tracer

	listener net.Listener

	mu         sync.Mutex
	conns      map[string]*conn
	pending    map[string]chan map[string]any
	eventQueue []map[string]any

	closeOnce sync.Once
	stopEvict chan struct{}
}

// NewServer builds a Server around an already-constructed session store
// and provider registry, both normally owned and shared by the daemon
// core. sink may be nil if the caller does not need launcher-trigger
// notifications (e.g. in tests that exercise wire behaviour only).
func NewServer(socketPath string, sessions *session.Store, providers *provider.Registry, sink EventSink) *Server {
	return &Server{
		socketPath: socketPath,
		sessions:   sessions,
		providers:  providers,
		sink:       sink,
		conns:      make(map[string]*conn),
		pending:    make(map[string]chan map[string]any),
		stopEvict:  make(chan struct{}),
	}
}

// SetTracer attaches a tracer used to span every dispatched message
// (SPEC_FULL.md §4.10). Leaving it unset keeps dispatch free of tracing
// overhead, since DispatchSpan treats a nil tracer as a pass-through.
func (s *Server) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

// ListenAndServe binds the unix socket (removing a stale file left behind
// by a crashed daemon) and accepts connections until the listener is
// closed. It also runs the provider heartbeat-eviction sweep on its own
// ticker for the lifetime of the server.
func (s *Server) ListenAndServe() error {
	if err := os.RemoveAll(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.runEvictionSweep()

	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(nc)
	}
}

// Close shuts the listener and every live connection down.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopEvict)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.mu.Lock()
		conns := make([]*conn, 0, len(s.conns))
		for _, c := range s.conns {
			conns = append(conns, c)
		}
		s.mu.Unlock()
		for _, c := range conns {
			_ = c.nc.Close()
		}
	})
	return err
}

func (s *Server) runEvictionSweep() {
	ticker := time.NewTicker(provider.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopEvict:
			return
		case now := <-ticker.C:
			evicted, transitions := s.providers.EvictStale(now)
			for _, connID := range evicted {
				log.Info(log.CatProvider, "evicted stale provider", "conn", connID)
			}
			s.applyTransitions(transitions)
		}
	}
}

func (s *Server) handleConn(nc net.Conn) {
	c := newConn(uuid.New().String(), nc)
	s.addConn(c)
	defer func() {
		_ = nc.Close()
		s.removeConn(c)
	}()

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 4096), MaxMessageSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		s.dispatch(c, append([]byte(nil), line...))
	}
}

func (s *Server) addConn(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()

	if transitions, ok := s.providers.Unregister(c.id); ok {
		s.applyTransitions(transitions)
	}

	// Disconnect cleanup is scoped to sessions whose reply handle is THIS
	// connection only (§4.12's "cleanup only requests whose replySocket
	// matches the closing connection").
	for _, sess := range s.sessions.List() {
		if sess.State.IsTerminal() || sess.Reply.ConnID != c.id {
			continue
		}
		if ev, err := s.sessions.OnCancel(sess.ID); err == nil {
			s.broadcastAndForward(ev)
		}
	}
}

func (s *Server) connByID(id string) (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[id]
	return c, ok
}

func (s *Server) sendTo(connID string, msg map[string]any) {
	if c, ok := s.connByID(connID); ok {
		_ = c.writeJSON(msg)
	}
}

func (s *Server) applyTransitions(t provider.TransitionSet) {
	if !t.Changed() {
		return
	}
	if t.ActivatedConnID != "" {
		s.sendTo(t.ActivatedConnID, map[string]any{"type": "ui.active", "id": t.ActivatedID, "active": true})
	}
	if t.DeactivatedConnID != "" {
		s.sendTo(t.DeactivatedConnID, map[string]any{"type": "ui.active", "active": false})
	}
}

// registerPending makes a channel available for a single reply to id and
// returns it. unregisterPending must be called (via defer) once the
// caller stops waiting, whether it got an answer or timed out.
func (s *Server) registerPending(id string) chan map[string]any {
	ch := make(chan map[string]any, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) unregisterPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// deliverPending hands payload to whatever connection is blocked waiting
// on id, if any. Returns false if nothing was waiting (e.g. a polkit
// session, which has no blocked reply connection).
func (s *Server) deliverPending(id string, payload map[string]any) bool {
	s.mu.Lock()
	ch, ok := s.pending[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- payload:
		return true
	default:
		return false
	}
}

package net

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// Server accepts websocket connections and creates Sessions.
// New/dead sessions are communicated to the game loop via channels.
type Server struct {
	listener net.Listener
	http     *http.Server
	upgrader websocket.Upgrader
	path     string
	opts     SessionOptions

	nextID   atomic.Uint64
	newConns chan *Session
	deadCh   chan uint64

	mu   deadlock.RWMutex // guards live; touched by HTTP goroutines and the game loop
	live map[uint64]*Session

	log *zap.Logger
}

// NewServer listens on bindAddr and upgrades requests on path to sessions.
func NewServer(bindAddr, path string, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		path:     path,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 256),
		live:     make(map[uint64]*Session),
		log:      log,
	}
	mux := http.NewServeMux()
	mux.Handle(path, s)
	s.http = &http.Server{Handler: mux}
	return s, nil
}

// AcceptLoop runs in its own goroutine and serves HTTP until Shutdown.
func (s *Server) AcceptLoop() {
	if err := s.http.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("http serve failed", zap.Error(err))
	}
}

// ServeHTTP upgrades the request, starts a session and hands it to the game loop.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.opts, s.log)
	sess.onClose = s.sessionClosed

	s.mu.Lock()
	s.live[id] = sess
	s.mu.Unlock()

	sess.Start()
	s.log.Info("client connected", zap.Uint64("session", id), zap.String("ip", sess.IP))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("connection queue full, rejecting client")
		sess.Close()
	}
}

func (s *Server) sessionClosed(sess *Session) {
	s.mu.Lock()
	delete(s.live, sess.ID)
	s.mu.Unlock()
	s.NotifyDead(sess.ID)
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID to the game loop.
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
		s.log.Warn("dead session queue full", zap.Uint64("session", sessionID))
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Count returns the number of open sessions.
func (s *Server) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// Shutdown stops accepting connections and closes every open session.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)

	s.mu.RLock()
	open := make([]*Session, 0, len(s.live))
	for _, sess := range s.live {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	for _, sess := range open {
		sess.Close()
	}
	return err
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

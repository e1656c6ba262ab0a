package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dungeonz/server/internal/net/packet"
	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
)

// SessionOptions are the per-connection limits taken from config.
type SessionOptions struct {
	InQueueSize  int
	OutQueueSize int
	PktPerSec    int // 0 = unlimited
	WriteTimeout time.Duration
	ReadLimit    int64
}

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn *websocket.Conn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan packet.Message // game loop reads client messages from here
	OutQueue chan []byte         // writer goroutine reads from here

	IP string

	outMu  deadlock.Mutex
	outBuf [][]byte // encoded events, flushed once per tick by OutputSystem

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	onClose   func(*Session)

	// Per-second message rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn *websocket.Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan packet.Message, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		pktPerSec:    opts.PktPerSec,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 10 * time.Second
	}
	s.state.Store(int32(packet.StateConnected))
	return s
}

// SessionID returns the server-assigned connection id.
func (s *Session) SessionID() uint64 { return s.ID }

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// IsOpen reports whether events sent now can still reach the client.
func (s *Session) IsOpen() bool {
	return !s.closed.Load() && s.State() != packet.StateDisconnecting
}

// SendEvent encodes (event, data) and buffers it for this tick's flush.
// It never blocks on the network.
func (s *Session) SendEvent(event string, data any) {
	if s.closed.Load() {
		return
	}
	frame, err := packet.Encode(event, data)
	if err != nil {
		s.log.Warn("drop unencodable event", zap.String("event", event), zap.Error(err))
		return
	}
	s.outMu.Lock()
	s.outBuf = append(s.outBuf, frame)
	s.outMu.Unlock()
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
func (s *Session) FlushOutput() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow client")
			s.outBuf = s.outBuf[:0]
			go s.Close()
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
		if s.onClose != nil {
			s.onClose(s)
		}
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the websocket,
// decodes them, and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		mt, frame, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.BinaryMessage {
			s.log.Debug("ignoring non-binary frame", zap.Int("type", mt))
			continue
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("message rate exceeded, disconnecting", zap.Int("pps", s.pktCount))
				return
			}
		}

		msg, err := packet.Decode(frame)
		if err != nil {
			s.log.Debug("bad frame", zap.Error(err))
			continue
		}

		// Block until InQueue has space or session closes. Dropping move
		// messages would desync the client's position.
		select {
		case s.InQueue <- msg:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine and writes queued frames to the socket.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}

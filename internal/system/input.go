package system

import (
	"time"

	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/net"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

// SessionSource hands new and dead sessions to the game loop. *net.Server
// implements it.
type SessionSource interface {
	NewSessions() <-chan *net.Session
	DeadSessions() <-chan uint64
}

// InputSystem drains message queues from all sessions and dispatches them
// through the registry. Phase 0 (Input).
type InputSystem struct {
	source     SessionSource
	registry   *packet.Registry
	store      *net.SessionStore
	world      *world.State
	bus        *event.Bus
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(source SessionSource, registry *packet.Registry, store *net.SessionStore, ws *world.State, bus *event.Bus, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 1
	}
	return &InputSystem{
		source:     source,
		registry:   registry,
		store:      store,
		world:      ws,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.acceptNew()
	s.reapDead()

	var closed []*net.Session
	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			closed = append(closed, sess)
			return
		}
		s.drain(sess)
	})
	// A session can close between its dead notification and this tick, or the
	// notification can be dropped when the dead queue is full.
	for _, sess := range closed {
		s.disconnect(sess)
	}

	// Early flush: moves and chat produced here reach the writer goroutines
	// while the rest of the tick runs. OutputSystem flushes the remainder.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

func (s *InputSystem) acceptNew() {
	for {
		select {
		case sess := <-s.source.NewSessions():
			s.store.Add(sess)
		default:
			return
		}
	}
}

func (s *InputSystem) reapDead() {
	for {
		select {
		case id := <-s.source.DeadSessions():
			if sess := s.store.Get(id); sess != nil {
				s.disconnect(sess)
			}
		default:
			return
		}
	}
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case msg := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), msg); err != nil {
				s.log.Debug("dispatch failed",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

// disconnect takes the session's player out of the world and forgets the
// session. Safe to call more than once.
func (s *InputSystem) disconnect(sess *net.Session) {
	if s.store.Get(sess.ID) == nil {
		return
	}
	s.store.Remove(sess.ID)

	p, z := s.world.Leave(sess.ID)
	if p == nil {
		return
	}
	board := ""
	if z != nil {
		board = z.Name()
	}
	event.Emit(s.bus, event.PlayerLeft{
		SessionID: sess.ID,
		PlayerID:  p.ID,
		Name:      p.Name,
		Board:     board,
		Row:       p.Row,
		Col:       p.Col,
	})
}

package handler

import (
	"context"

	"github.com/dungeonz/server/internal/config"
	"github.com/dungeonz/server/internal/core/event"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/persist"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

// Client event names sent only by handlers.
const (
	EvError = "error"
)

// Client is the session as handlers see it. *net.Session implements it.
type Client interface {
	space.Conn
	SessionID() uint64
	State() packet.SessionState
	SetState(packet.SessionState)
	Close()
}

// PositionStore loads and saves where players last stood.
type PositionStore interface {
	Load(ctx context.Context, name string) (*persist.PositionRow, error)
	SaveBatch(ctx context.Context, rows []persist.PositionRow) error
}

// Deps holds shared dependencies injected into all handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	World     *world.State
	Bus       *event.Bus
	Positions PositionStore // nil when persistence is disabled
}

// RegisterAll registers all client event handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	connected := []packet.SessionState{packet.StateConnected}
	inWorld := []packet.SessionState{packet.StateInWorld}

	reg.Register("join", connected, func(sess any, msg packet.Message) {
		HandleJoin(sess.(Client), msg, deps)
	})
	reg.Register("move", inWorld, func(sess any, msg packet.Message) {
		HandleMove(sess.(Client), msg, deps)
	})
	reg.Register("chat", inWorld, func(sess any, msg packet.Message) {
		HandleChat(sess.(Client), msg, deps)
	})
	reg.Register("quit", []packet.SessionState{packet.StateConnected, packet.StateInWorld}, func(sess any, msg packet.Message) {
		HandleQuit(sess.(Client), msg, deps)
	})
}

func sendError(c Client, message string) {
	c.SendEvent(EvError, map[string]any{"message": message})
}

package handler

import (
	"errors"

	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

type moveRequest struct {
	Direction string `msgpack:"direction"`
}

// HandleMove steps the player one tile. Blocked moves are dropped silently;
// the client keeps its own idea of walls and only an invalid direction is
// reported back.
func HandleMove(c Client, msg packet.Message, deps *Deps) {
	var req moveRequest
	if err := msg.Bind(&req); err != nil {
		sendError(c, "bad move request")
		return
	}
	dir, err := space.ParseDirection(req.Direction)
	if err != nil {
		sendError(c, "invalid direction")
		return
	}

	p := deps.World.GetBySession(c.SessionID())
	if p == nil {
		return
	}
	z := deps.World.ZoneOf(p)
	if z == nil {
		return
	}
	if err := z.MovePlayer(p, dir); err != nil {
		if errors.Is(err, world.ErrBlocked) {
			deps.Log.Debug("move blocked", zap.Int64("player", p.ID), zap.Error(err))
			return
		}
		deps.Log.Warn("move failed", zap.Int64("player", p.ID), zap.Error(err))
	}
}

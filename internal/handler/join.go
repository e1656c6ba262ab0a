package handler

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dungeonz/server/internal/core/event"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

const maxNameLength = 16

type joinRequest struct {
	Name string `msgpack:"name"`
}

// HandleJoin places the session's player on a board. A saved position is
// restored when persistence is enabled and the tile is still walkable.
func HandleJoin(c Client, msg packet.Message, deps *Deps) {
	var req joinRequest
	if err := msg.Bind(&req); err != nil {
		sendError(c, "bad join request")
		return
	}
	name := strings.TrimSpace(req.Name)
	if !validName(name) {
		sendError(c, "invalid name")
		return
	}

	saved := loadSavedPosition(name, deps)
	p, err := deps.World.Join(c.SessionID(), name, c, saved)
	if err != nil {
		deps.Log.Info("join rejected",
			zap.Uint64("session", c.SessionID()),
			zap.String("name", name),
			zap.Error(err))
		sendError(c, "cannot join")
		return
	}
	c.SetState(packet.StateInWorld)

	event.Emit(deps.Bus, event.PlayerJoined{
		SessionID: c.SessionID(),
		PlayerID:  p.ID,
		Name:      p.Name,
		Board:     p.BoardName,
		Row:       p.Row,
		Col:       p.Col,
	})
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxNameLength {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

func loadSavedPosition(name string, deps *Deps) *world.SavedPosition {
	if deps.Positions == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	row, err := deps.Positions.Load(ctx, data.FoldName(name))
	if err != nil {
		deps.Log.Warn("load saved position failed", zap.String("name", name), zap.Error(err))
		return nil
	}
	if row == nil {
		return nil
	}
	return &world.SavedPosition{Board: row.Board, Row: row.Row, Col: row.Col}
}

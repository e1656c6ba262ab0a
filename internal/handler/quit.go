package handler

import (
	"github.com/dungeonz/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleQuit closes the session. InputSystem does the world cleanup when it
// sees the closed session.
func HandleQuit(c Client, _ packet.Message, deps *Deps) {
	deps.Log.Info("player quit", zap.Uint64("session", c.SessionID()))
	c.Close()
}

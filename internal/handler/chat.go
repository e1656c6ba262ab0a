package handler

import (
	"github.com/dungeonz/server/internal/net/packet"
)

type chatRequest struct {
	Text string `msgpack:"text"`
}

// HandleChat relays a line of chat to players who can see the speaker.
func HandleChat(c Client, msg packet.Message, deps *Deps) {
	var req chatRequest
	if err := msg.Bind(&req); err != nil {
		sendError(c, "bad chat request")
		return
	}
	p := deps.World.GetBySession(c.SessionID())
	if p == nil {
		return
	}
	if z := deps.World.ZoneOf(p); z != nil {
		z.Say(p, req.Text)
	}
}

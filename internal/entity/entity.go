package entity

import (
	"fmt"

	"github.com/dungeonz/server/internal/space"
)

// Kind discriminates the variants of a Dynamic.
type Kind int

const (
	KindPlayer Kind = iota + 1
	KindMob
	KindProjectile
	KindPickup
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindMob:
		return "mob"
	case KindProjectile:
		return "projectile"
	case KindPickup:
		return "pickup"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Dynamic is the base record of anything that moves or changes on a board.
// Kind-specific state lives in Props and is emitted verbatim.
// Accessed only from the goroutine that owns its board.
type Dynamic struct {
	ID        int64
	Kind      Kind
	TypeName  string // e.g. "Rat", "ProjArrow"
	Row       int
	Col       int
	Direction space.Direction
	Props     map[string]any
}

func (d *Dynamic) ObjectID() int64          { return d.ID }
func (d *Dynamic) Position() (row, col int) { return d.Row, d.Col }

// EmittableProperties is the snapshot clients receive for this object.
// Returns a fresh map every call.
func (d *Dynamic) EmittableProperties() map[string]any {
	out := make(map[string]any, len(d.Props)+5)
	for k, v := range d.Props {
		out[k] = v
	}
	out["id"] = d.ID
	out["typeNumber"] = d.TypeName
	out["row"] = d.Row
	out["col"] = d.Col
	if d.Direction.Valid() {
		out["direction"] = d.Direction.String()
	}
	return out
}

// Player is a connected client's avatar.
type Player struct {
	Dynamic
	Name      string
	BoardName string
	SessionID uint64
	Dirty     bool // position changed since the last save
	conn      space.Conn
}

func NewPlayer(id int64, name string, conn space.Conn) *Player {
	return &Player{
		Dynamic: Dynamic{
			ID:        id,
			Kind:      KindPlayer,
			TypeName:  "Player",
			Direction: space.DirDown,
		},
		Name: name,
		conn: conn,
	}
}

// Conn is the player's transport handle.
func (p *Player) Conn() space.Conn { return p.conn }

func (p *Player) EmittableProperties() map[string]any {
	out := p.Dynamic.EmittableProperties()
	out["displayName"] = p.Name
	return out
}

// Pickup is an item lying on a tile.
type Pickup struct {
	ID       int64
	ItemType string
	Quantity int
	Row      int
	Col      int
	TTL      int // ticks until it despawns; 0 = permanent
}

func (p *Pickup) ObjectID() int64          { return p.ID }
func (p *Pickup) Position() (row, col int) { return p.Row, p.Col }

func (p *Pickup) EmittableProperties() map[string]any {
	return map[string]any{
		"id":       p.ID,
		"itemType": p.ItemType,
		"quantity": p.Quantity,
		"row":      p.Row,
		"col":      p.Col,
	}
}

package world

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/entity"
	"github.com/dungeonz/server/internal/space"
	"go.uber.org/zap"
)

// ErrBlocked is returned when a move targets a tile that is off the map or
// not walkable.
var ErrBlocked = errors.New("destination blocked")

// Client event names.
const (
	EvJoinWorld      = "join_world"
	EvPlayerAdded    = "player_added"
	EvPlayerRemoved  = "player_removed"
	EvEntityAdded    = "entity_added"
	EvEntityRemoved  = "entity_removed"
	EvPickupAdded    = "pickup_added"
	EvPickupRemoved  = "pickup_removed"
	EvMoved          = "moved"
	EvNearbyDynamics = "nearby_dynamics"
	EvDayPhase       = "day_phase"
	EvChat           = "chat"
)

const maxChatLength = 200

// Zone is one board plus the objects living on it. Every occupancy change
// goes through the Zone so the board index always matches object positions.
// Accessed only from the goroutine that currently owns it, without locks.
type Zone struct {
	board   *space.Board
	mapData *data.MapData
	ids     *space.Counter

	players  map[int64]*entity.Player
	entities map[int64]*entity.Dynamic
	pickups  map[int64]*entity.Pickup

	log *zap.Logger
}

func NewZone(m *data.MapData, boardIDs, objectIDs *space.Counter, log *zap.Logger) *Zone {
	board := space.NewBoard(space.BoardConfig{
		Name:        m.Info.Name,
		AlwaysNight: m.Info.AlwaysNight,
		ViewRange:   m.Info.ViewRange,
		Layout:      m,
	}, boardIDs)
	z := &Zone{
		board:    board,
		mapData:  m,
		ids:      objectIDs,
		players:  make(map[int64]*entity.Player),
		entities: make(map[int64]*entity.Dynamic),
		pickups:  make(map[int64]*entity.Pickup),
		log:      log.With(zap.String("board", m.Info.Name), zap.Int64("board_id", board.ID())),
	}
	for _, s := range m.Info.Entities {
		z.SpawnEntity(entity.KindMob, s.TypeName, s.Row, s.Col, s.Props)
	}
	for _, s := range m.Info.Pickups {
		z.SpawnPickup(s.ItemType, s.Quantity, s.Row, s.Col, s.TTL)
	}
	return z
}

func (z *Zone) Board() *space.Board { return z.board }
func (z *Zone) Name() string        { return z.board.Name() }
func (z *Zone) PlayerCount() int    { return len(z.players) }
func (z *Zone) EntityCount() int    { return len(z.entities) }
func (z *Zone) PickupCount() int    { return len(z.pickups) }

// Entity returns a live entity by id, or nil.
func (z *Zone) Entity(id int64) *entity.Dynamic { return z.entities[id] }

// Pickup returns a live pickup by id, or nil.
func (z *Zone) Pickup(id int64) *entity.Pickup { return z.pickups[id] }

// CanOccupy reports whether an object may be placed on (row, col).
func (z *Zone) CanOccupy(row, col int) bool {
	return z.mapData.InBounds(row, col) && z.mapData.IsWalkable(row, col)
}

// ── Players ───────────────────────────────────────────────────────

// AddPlayer places p on (row, col), tells nearby players about it and sends
// the joiner its initial view.
func (z *Zone) AddPlayer(p *entity.Player, row, col int) error {
	if !z.CanOccupy(row, col) {
		return fmt.Errorf("add player %d at (%d,%d): %w", p.ID, row, col, ErrBlocked)
	}
	p.Row, p.Col = row, col
	p.BoardName = z.board.Name()

	// Announce before indexing so the joiner does not receive its own add.
	z.board.EmitToNearbyPlayers(row, col, EvPlayerAdded, p.EmittableProperties())
	z.board.AddPlayer(p)
	z.players[p.ID] = p

	if c := p.Conn(); c != nil && c.IsOpen() {
		c.SendEvent(EvJoinWorld, z.joinWorldData(p))
	}
	z.log.Debug("player added", zap.Int64("player", p.ID), zap.Int("row", row), zap.Int("col", col))
	return nil
}

func (z *Zone) joinWorldData(p *entity.Player) map[string]any {
	var others []map[string]any
	for _, o := range z.board.GetNearbyPlayers(p.Row, p.Col, z.board.ViewRange()) {
		if o.ObjectID() == p.ID {
			continue
		}
		if e, ok := o.(space.Emittable); ok {
			others = append(others, e.EmittableProperties())
		}
	}
	var pickups []map[string]any
	for _, pk := range z.board.GetNearbyPickups(p.Row, p.Col) {
		if e, ok := pk.(space.Emittable); ok {
			pickups = append(pickups, e.EmittableProperties())
		}
	}
	return map[string]any{
		"boardId":   z.board.ID(),
		"boardName": z.board.Name(),
		"dayPhase":  int(z.board.DayPhase()),
		"viewRange": z.board.ViewRange(),
		"player":    p.EmittableProperties(),
		"dynamics":  z.board.GetNearbyDynamicsData(p.Row, p.Col),
		"players":   others,
		"pickups":   pickups,
	}
}

// RemovePlayer takes p off the board and tells nearby players.
func (z *Zone) RemovePlayer(p *entity.Player) {
	if _, ok := z.players[p.ID]; !ok {
		return
	}
	z.board.RemovePlayer(p)
	delete(z.players, p.ID)
	z.board.EmitToNearbyPlayers(p.Row, p.Col, EvPlayerRemoved, map[string]any{"id": p.ID})
}

// MovePlayer steps p one tile in dir.
func (z *Zone) MovePlayer(p *entity.Player, dir space.Direction) error {
	if err := z.step(&p.Dynamic, dir, func() { z.board.RemovePlayer(p) }, func() { z.board.AddPlayer(p) }); err != nil {
		return err
	}
	p.Dirty = true

	z.board.EmitToNearbyPlayers(p.Row, p.Col, EvMoved, movedData(&p.Dynamic))
	// Players on the far edge have just come into view of the mover.
	if err := z.board.EmitToPlayersAtViewRange(p.Row, p.Col, dir, EvPlayerAdded, p.EmittableProperties()); err != nil {
		return err
	}
	return z.sendEdgeView(p, dir)
}

// sendEdgeView tells p about everything on the far edge of its window after
// a step in dir: entities as one nearby_dynamics batch, then each player and
// pickup that just came into view.
func (z *Zone) sendEdgeView(p *entity.Player, dir space.Direction) error {
	dynamics, err := z.board.GetDynamicsDataAtViewRange(p.Row, p.Col, dir)
	if err != nil {
		return err
	}
	players, err := z.board.GetObserversAtViewRange(p.Row, p.Col, dir)
	if err != nil {
		return err
	}
	pickups, err := z.board.GetPickupsAtViewRange(p.Row, p.Col, dir)
	if err != nil {
		return err
	}

	c := p.Conn()
	if c == nil || !c.IsOpen() {
		return nil
	}
	if len(dynamics) > 0 {
		c.SendEvent(EvNearbyDynamics, dynamics)
	}
	for _, o := range players {
		if o.ObjectID() == p.ID {
			continue
		}
		if e, ok := o.(space.Emittable); ok {
			c.SendEvent(EvPlayerAdded, e.EmittableProperties())
		}
	}
	for _, pk := range pickups {
		if e, ok := pk.(space.Emittable); ok {
			c.SendEvent(EvPickupAdded, e.EmittableProperties())
		}
	}
	return nil
}

// step moves d one tile in dir with the remove → mutate → add ordering the
// board requires.
func (z *Zone) step(d *entity.Dynamic, dir space.Direction, remove, add func()) error {
	if !dir.Valid() {
		return fmt.Errorf("move %d: %w: %d", d.ID, space.ErrInvalidDirection, int(dir))
	}
	dr, dc := dir.Delta()
	row, col := d.Row+dr, d.Col+dc
	d.Direction = dir
	if !z.CanOccupy(row, col) {
		return fmt.Errorf("move %d to (%d,%d): %w", d.ID, row, col, ErrBlocked)
	}
	remove()
	d.Row, d.Col = row, col
	add()
	return nil
}

func movedData(d *entity.Dynamic) map[string]any {
	return map[string]any{
		"id":        d.ID,
		"row":       d.Row,
		"col":       d.Col,
		"direction": d.Direction.String(),
	}
}

// Say relays chat from p to everyone who can see it.
func (z *Zone) Say(p *entity.Player, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}
	z.board.EmitToNearbyPlayers(p.Row, p.Col, EvChat, map[string]any{"id": p.ID, "text": text})
}

// ── Entities ──────────────────────────────────────────────────────

// SpawnEntity creates an entity on (row, col) and announces it.
func (z *Zone) SpawnEntity(kind entity.Kind, typeName string, row, col int, props map[string]any) *entity.Dynamic {
	e := &entity.Dynamic{
		ID:       z.ids.Next(),
		Kind:     kind,
		TypeName: typeName,
		Row:      row,
		Col:      col,
		Props:    props,
	}
	z.board.AddEntity(e)
	z.entities[e.ID] = e
	z.board.EmitToNearbyPlayers(row, col, EvEntityAdded, e.EmittableProperties())
	return e
}

// MoveEntity steps e one tile in dir.
func (z *Zone) MoveEntity(e *entity.Dynamic, dir space.Direction) error {
	if err := z.step(e, dir, func() { z.board.RemoveEntity(e) }, func() { z.board.AddEntity(e) }); err != nil {
		return err
	}
	z.board.EmitToNearbyPlayers(e.Row, e.Col, EvMoved, movedData(e))
	return z.board.EmitToPlayersAtViewRange(e.Row, e.Col, dir, EvEntityAdded, e.EmittableProperties())
}

// DespawnEntity removes e and tells nearby players.
func (z *Zone) DespawnEntity(e *entity.Dynamic) {
	if _, ok := z.entities[e.ID]; !ok {
		return
	}
	z.board.RemoveEntity(e)
	delete(z.entities, e.ID)
	z.board.EmitToNearbyPlayers(e.Row, e.Col, EvEntityRemoved, map[string]any{"id": e.ID})
}

// ── Pickups ───────────────────────────────────────────────────────

// SpawnPickup drops an item on (row, col). ttl is in ticks, 0 = permanent.
func (z *Zone) SpawnPickup(itemType string, quantity, row, col, ttl int) *entity.Pickup {
	if quantity <= 0 {
		quantity = 1
	}
	p := &entity.Pickup{
		ID:       z.ids.Next(),
		ItemType: itemType,
		Quantity: quantity,
		Row:      row,
		Col:      col,
		TTL:      ttl,
	}
	z.board.AddPickup(p)
	z.pickups[p.ID] = p
	z.board.EmitToNearbyPlayers(row, col, EvPickupAdded, p.EmittableProperties())
	return p
}

// RemovePickup takes p off the ground and tells nearby players.
func (z *Zone) RemovePickup(p *entity.Pickup) {
	if _, ok := z.pickups[p.ID]; !ok {
		return
	}
	z.board.RemovePickup(p)
	delete(z.pickups, p.ID)
	z.board.EmitToNearbyPlayers(p.Row, p.Col, EvPickupRemoved, map[string]any{"id": p.ID})
}

// ── Tick ──────────────────────────────────────────────────────────

// Tick advances per-board timers. It touches nothing outside this zone, so
// zones may tick in parallel.
func (z *Zone) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var expired []*entity.Pickup
	for _, p := range z.pickups {
		if p.TTL <= 0 {
			continue
		}
		p.TTL--
		if p.TTL == 0 {
			expired = append(expired, p)
		}
	}
	for _, p := range expired {
		z.RemovePickup(p)
	}
	return nil
}

// SetDayPhase pushes the world clock into this board and tells every
// player on it when the board accepted the change.
func (z *Zone) SetDayPhase(phase space.DayPhase) {
	if !z.board.SetDayPhase(phase) {
		return
	}
	for _, p := range z.players {
		if c := p.Conn(); c != nil && c.IsOpen() {
			c.SendEvent(EvDayPhase, int(phase))
		}
	}
}

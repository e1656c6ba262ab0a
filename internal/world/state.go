package world

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/entity"
	"github.com/dungeonz/server/internal/space"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoEntrance is returned when a board has nowhere to spawn a player.
var ErrNoEntrance = errors.New("board has no walkable entrance")

// ErrUnknownBoard is returned for a board name that was never loaded.
var ErrUnknownBoard = errors.New("unknown board")

// SavedPosition is where a returning player last stood.
type SavedPosition struct {
	Board string
	Row   int
	Col   int
}

// State tracks every zone and the players currently in-world.
// Single-goroutine access only (game loop), except TickZones which hands
// each zone to its own goroutine for the duration of the call.
type State struct {
	zones     map[string]*Zone // folded board name → zone
	zoneList  []*Zone          // load order, for iteration
	bySession map[uint64]*entity.Player
	byName    map[string]*entity.Player
	zoneOf    map[int64]*Zone // player ID → zone

	defaultBoard string
	playerIDs    *space.Counter
	dayPhase     space.DayPhase
}

// NewState builds one zone per loaded map. defaultBoard is where new players
// spawn; it must be one of the maps.
func NewState(maps *data.MapDataTable, defaultBoard string, boardIDs, objectIDs *space.Counter, log *zap.Logger) (*State, error) {
	s := &State{
		zones:        make(map[string]*Zone, maps.Count()),
		bySession:    make(map[uint64]*entity.Player),
		byName:       make(map[string]*entity.Player),
		zoneOf:       make(map[int64]*Zone),
		defaultBoard: data.FoldName(defaultBoard),
		playerIDs:    objectIDs,
		dayPhase:     space.Dawn,
	}
	for _, m := range maps.All() {
		z := NewZone(m, boardIDs, objectIDs, log)
		s.zones[data.FoldName(m.Info.Name)] = z
		s.zoneList = append(s.zoneList, z)
	}
	if _, ok := s.zones[s.defaultBoard]; !ok {
		return nil, fmt.Errorf("default board %q: %w", defaultBoard, ErrUnknownBoard)
	}
	return s, nil
}

// Zone returns a zone by board name, or nil.
func (s *State) Zone(name string) *Zone {
	return s.zones[data.FoldName(name)]
}

// Zones returns every zone in load order.
func (s *State) Zones() []*Zone {
	return s.zoneList
}

// Join creates a player for a new session and places it in the world.
// A saved position is used when it is still a walkable tile on a known
// board; otherwise the player spawns on a random entrance of the default board.
func (s *State) Join(sessionID uint64, name string, conn space.Conn, saved *SavedPosition) (*entity.Player, error) {
	if _, dup := s.bySession[sessionID]; dup {
		return nil, fmt.Errorf("session %d already in world", sessionID)
	}
	if _, dup := s.byName[data.FoldName(name)]; dup {
		return nil, fmt.Errorf("player %q already in world", name)
	}

	z, row, col, err := s.spawnPoint(saved)
	if err != nil {
		return nil, err
	}

	p := entity.NewPlayer(s.playerIDs.Next(), name, conn)
	p.SessionID = sessionID
	p.Dirty = true
	if err := z.AddPlayer(p, row, col); err != nil {
		return nil, err
	}
	s.bySession[sessionID] = p
	s.byName[data.FoldName(name)] = p
	s.zoneOf[p.ID] = z
	return p, nil
}

func (s *State) spawnPoint(saved *SavedPosition) (*Zone, int, int, error) {
	if saved != nil {
		if z := s.Zone(saved.Board); z != nil && z.CanOccupy(saved.Row, saved.Col) {
			return z, saved.Row, saved.Col, nil
		}
	}
	z := s.zones[s.defaultBoard]
	var open []space.RowCol
	for _, rc := range z.Board().EntranceTilePositions() {
		if z.CanOccupy(rc.Row, rc.Col) {
			open = append(open, rc)
		}
	}
	if len(open) == 0 {
		return nil, 0, 0, fmt.Errorf("spawn on %s: %w", z.Name(), ErrNoEntrance)
	}
	rc := open[rand.Intn(len(open))]
	return z, rc.Row, rc.Col, nil
}

// Leave removes the session's player from the world and returns it with
// the board it was on, or nil if the session never joined.
func (s *State) Leave(sessionID uint64) (*entity.Player, *Zone) {
	p := s.bySession[sessionID]
	if p == nil {
		return nil, nil
	}
	z := s.zoneOf[p.ID]
	if z != nil {
		z.RemovePlayer(p)
	}
	delete(s.bySession, sessionID)
	delete(s.byName, data.FoldName(p.Name))
	delete(s.zoneOf, p.ID)
	return p, z
}

// GetBySession returns a player by session ID.
func (s *State) GetBySession(sessionID uint64) *entity.Player {
	return s.bySession[sessionID]
}

// ZoneOf returns the zone a player is on.
func (s *State) ZoneOf(p *entity.Player) *Zone {
	return s.zoneOf[p.ID]
}

// PlayerCount returns the number of players in-world.
func (s *State) PlayerCount() int {
	return len(s.bySession)
}

// AllPlayers iterates all in-world players.
func (s *State) AllPlayers(fn func(*entity.Player)) {
	for _, p := range s.bySession {
		fn(p)
	}
}

// DayPhase is the world clock's current phase.
func (s *State) DayPhase() space.DayPhase {
	return s.dayPhase
}

// SetDayPhase pushes a new world phase into every zone. Boards pinned to
// night ignore it.
func (s *State) SetDayPhase(phase space.DayPhase) {
	if phase == s.dayPhase {
		return
	}
	s.dayPhase = phase
	for _, z := range s.zoneList {
		z.SetDayPhase(phase)
	}
}

// TickZones runs every zone's Tick concurrently. Zones share no state, and
// nothing else touches them until TickZones returns.
func (s *State) TickZones(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, z := range s.zoneList {
		z := z
		g.Go(func() error {
			return z.Tick(ctx)
		})
	}
	return g.Wait()
}

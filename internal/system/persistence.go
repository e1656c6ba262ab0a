package system

import (
	"context"
	"time"

	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/entity"
	"github.com/dungeonz/server/internal/handler"
	"github.com/dungeonz/server/internal/persist"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

// PersistenceSystem periodically saves the positions of online players that
// moved since their last save, and saves players as they leave.
// Phase 5 (Persist).
type PersistenceSystem struct {
	world     *world.State
	store     handler.PositionStore
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
	departed  []persist.PositionRow
}

func NewPersistenceSystem(ws *world.State, store handler.PositionStore, bus *event.Bus, intervalTicks int, log *zap.Logger) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	s := &PersistenceSystem{
		world:    ws,
		store:    store,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(bus, func(e event.PlayerLeft) {
		if e.Board == "" {
			return
		}
		s.departed = append(s.departed, persist.PositionRow{
			Name:  data.FoldName(e.Name),
			Board: e.Board,
			Row:   e.Row,
			Col:   e.Col,
		})
	})
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	if len(s.departed) > 0 {
		s.save(s.departed, nil)
		s.departed = s.departed[:0]
	}
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.savePlayers(true)
}

// SaveAllPlayers persists every online player and any pending departures,
// ignoring dirty flags. Called on shutdown.
func (s *PersistenceSystem) SaveAllPlayers() {
	if len(s.departed) > 0 {
		s.save(s.departed, nil)
		s.departed = s.departed[:0]
	}
	s.savePlayers(false)
}

func (s *PersistenceSystem) savePlayers(dirtyOnly bool) {
	var rows []persist.PositionRow
	var players []*entity.Player
	s.world.AllPlayers(func(p *entity.Player) {
		if dirtyOnly && !p.Dirty {
			return
		}
		if p.BoardName == "" {
			return
		}
		rows = append(rows, persist.PositionRow{
			Name:  data.FoldName(p.Name),
			Board: p.BoardName,
			Row:   p.Row,
			Col:   p.Col,
		})
		players = append(players, p)
	})
	s.save(rows, players)
}

// save writes rows in one batch. On success the given players are marked clean.
func (s *PersistenceSystem) save(rows []persist.PositionRow, players []*entity.Player) {
	if len(rows) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.SaveBatch(ctx, rows); err != nil {
		// Players stay dirty and are retried next interval.
		s.log.Error("save positions failed", zap.Int("count", len(rows)), zap.Error(err))
		return
	}
	for _, p := range players {
		p.Dirty = false
	}
	s.log.Debug("positions saved", zap.Int("count", len(rows)))
}

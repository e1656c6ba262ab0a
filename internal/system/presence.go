package system

import (
	"time"

	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/space"
	"go.uber.org/zap"
)

// PresenceSystem keeps per-board online counts from join/leave events and
// logs arrivals, departures and day phase changes. Phase 3 (PostUpdate).
type PresenceSystem struct {
	joined []event.PlayerJoined
	left   []event.PlayerLeft
	phases []int
	online map[string]int // folded board name → players
	total  int
	peak   int
	log    *zap.Logger
}

func NewPresenceSystem(bus *event.Bus, log *zap.Logger) *PresenceSystem {
	s := &PresenceSystem{
		online: make(map[string]int),
		log:    log,
	}
	event.Subscribe(bus, func(e event.PlayerJoined) { s.joined = append(s.joined, e) })
	event.Subscribe(bus, func(e event.PlayerLeft) { s.left = append(s.left, e) })
	event.Subscribe(bus, func(e event.DayPhaseChanged) { s.phases = append(s.phases, e.Phase) })
	return s
}

func (s *PresenceSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *PresenceSystem) Update(_ time.Duration) {
	for _, e := range s.joined {
		s.online[data.FoldName(e.Board)]++
		s.total++
		s.log.Info("player joined",
			zap.String("name", e.Name),
			zap.Uint64("session", e.SessionID),
			zap.String("board", e.Board),
			zap.Int("row", e.Row),
			zap.Int("col", e.Col),
		)
	}
	for _, e := range s.left {
		// Sessions that never joined carry no board and were never counted.
		if e.Board == "" {
			continue
		}
		board := data.FoldName(e.Board)
		if s.online[board] > 0 {
			s.online[board]--
			s.total--
		}
		s.log.Info("player left",
			zap.String("name", e.Name),
			zap.Uint64("session", e.SessionID),
			zap.String("board", e.Board),
		)
	}
	if s.total > s.peak {
		s.peak = s.total
	}
	for _, p := range s.phases {
		s.log.Info("day phase", zap.Stringer("phase", space.DayPhase(p)), zap.Int("online", s.total))
	}
	s.joined = s.joined[:0]
	s.left = s.left[:0]
	s.phases = s.phases[:0]
}

// Online returns the number of players on board.
func (s *PresenceSystem) Online(board string) int { return s.online[data.FoldName(board)] }

// Total returns the number of players in-world.
func (s *PresenceSystem) Total() int { return s.total }

// Peak returns the highest Total seen since start.
func (s *PresenceSystem) Peak() int { return s.peak }

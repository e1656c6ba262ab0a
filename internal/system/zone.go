package system

import (
	"context"
	"time"

	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

// ZoneSystem advances every board's timers in parallel. Phase 2 (Update).
type ZoneSystem struct {
	world *world.State
	log   *zap.Logger
}

func NewZoneSystem(ws *world.State, log *zap.Logger) *ZoneSystem {
	return &ZoneSystem{world: ws, log: log}
}

func (s *ZoneSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ZoneSystem) Update(dt time.Duration) {
	// A zone tick longer than a few ticks is a bug; cut it off rather than
	// stall the loop.
	ctx, cancel := context.WithTimeout(context.Background(), 10*dt+time.Second)
	defer cancel()
	if err := s.world.TickZones(ctx); err != nil {
		s.log.Error("zone tick failed", zap.Error(err))
	}
}

package system

import (
	"time"

	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

// DayPhaseCalculator maps elapsed world time to a phase number (1-4).
// *scripting.Engine implements it.
type DayPhaseCalculator interface {
	CalcDayPhase(elapsed, cycle time.Duration) int
}

const clockInterval = time.Second

// ClockSystem drives the world's day/night cycle. Phase 2 (Update).
type ClockSystem struct {
	world   *world.State
	calc    DayPhaseCalculator
	bus     *event.Bus
	cycle   time.Duration
	elapsed time.Duration
	since   time.Duration // time since the last evaluation
	log     *zap.Logger
}

func NewClockSystem(ws *world.State, calc DayPhaseCalculator, bus *event.Bus, cycle time.Duration, log *zap.Logger) *ClockSystem {
	return &ClockSystem{
		world: ws,
		calc:  calc,
		bus:   bus,
		cycle: cycle,
		since: clockInterval, // evaluate on the first tick
		log:   log,
	}
}

func (s *ClockSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *ClockSystem) Update(dt time.Duration) {
	s.elapsed += dt
	s.since += dt
	if s.since < clockInterval {
		return
	}
	s.since = 0

	phase := space.DayPhase(s.calc.CalcDayPhase(s.elapsed, s.cycle))
	if !phase.Valid() {
		s.log.Warn("day phase out of range", zap.Int("phase", int(phase)))
		return
	}
	if phase == s.world.DayPhase() {
		return
	}
	s.world.SetDayPhase(phase)
	event.Emit(s.bus, event.DayPhaseChanged{Phase: int(phase)})
}

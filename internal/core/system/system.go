package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // drain session queues, run handlers
	PhasePreUpdate               // deliver last tick's events
	PhaseUpdate                  // zone ticks, world clock
	PhasePostUpdate              // react to this tick's world changes
	PhaseOutput                  // flush buffered events to sessions
	PhasePersist                 // periodic saves

	phaseCount
)

// Valid reports whether p is one of the defined phases.
func (p Phase) Valid() bool { return p >= PhaseInput && p < phaseCount }

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	}
	return "unknown"
}

// System is one stage of the game loop.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

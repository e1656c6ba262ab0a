package space

import "fmt"

// DayPhase is the time of day on a board.
type DayPhase int

const (
	Dawn DayPhase = iota + 1
	Day
	Dusk
	Night
)

func (p DayPhase) String() string {
	switch p {
	case Dawn:
		return "Dawn"
	case Day:
		return "Day"
	case Dusk:
		return "Dusk"
	case Night:
		return "Night"
	default:
		return fmt.Sprintf("DayPhase(%d)", int(p))
	}
}

func (p DayPhase) Valid() bool {
	return p >= Dawn && p <= Night
}

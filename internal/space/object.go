package space

import (
	"errors"
	"fmt"
	"strings"
)

// Positioned is anything that occupies a single tile on a board.
type Positioned interface {
	ObjectID() int64
	Position() (row, col int)
}

// Emittable is a positioned object that can describe itself to clients.
// The property map is owned by the object and treated as opaque here.
type Emittable interface {
	Positioned
	EmittableProperties() map[string]any
}

// Conn is the transport handle of a connected player.
// SendEvent must not block the caller.
type Conn interface {
	IsOpen() bool
	SendEvent(event string, data any)
}

// Observer is a player that receives broadcasts.
type Observer interface {
	Positioned
	Conn() Conn
}

// RowCol is a grid position.
type RowCol struct {
	Row int `msgpack:"row"`
	Col int `msgpack:"col"`
}

// Direction is a cardinal step on the grid.
type Direction int

const (
	DirUp Direction = iota + 1
	DirDown
	DirLeft
	DirRight
)

// ErrInvalidDirection is returned for any value outside the four cardinal directions.
var ErrInvalidDirection = errors.New("invalid direction")

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "u"
	case DirDown:
		return "d"
	case DirLeft:
		return "l"
	case DirRight:
		return "r"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	return d >= DirUp && d <= DirRight
}

// Delta returns the row/col offset of a one-tile step.
func (d Direction) Delta() (dr, dc int) {
	switch d {
	case DirUp:
		return -1, 0
	case DirDown:
		return 1, 0
	case DirLeft:
		return 0, -1
	case DirRight:
		return 0, 1
	}
	return 0, 0
}

// ParseDirection accepts the short client form ("u", "d", "l", "r") and the long names.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "u", "up":
		return DirUp, nil
	case "d", "down":
		return DirDown, nil
	case "l", "left":
		return DirLeft, nil
	case "r", "right":
		return DirRight, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

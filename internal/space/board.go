package space

import "fmt"

// DefaultViewRange is how many tiles a player sees in each direction from
// its own tile. Clients size their viewport from the same value.
const DefaultViewRange = 15

// Layout is the static shape of a map: row count, per-row width and which
// tiles are spawn entrances. Everything else about a tile is opaque here.
type Layout interface {
	Rows() int
	Cols(row int) int
	IsEntrance(row, col int) bool
}

// BoardConfig describes a board to build.
type BoardConfig struct {
	Name        string
	AlwaysNight bool
	ViewRange   int // 0 = DefaultViewRange
	Layout      Layout
}

// Board is the spatial index of one map: which object sits on which tile,
// and who must hear about changes around a position.
//
// A Board is not safe for concurrent use. It is owned by a single goroutine
// at a time (the game loop's input phase or its zone tick, never both), so a
// scan always sees the grid exactly as the owner left it.
type Board struct {
	id          int64
	name        string
	alwaysNight bool
	viewRange   int

	grid                  [][]Tile
	entranceTilePositions []RowCol
	dayPhase              DayPhase
}

// NewBoard shapes the grid from cfg.Layout and takes its id from ids.
func NewBoard(cfg BoardConfig, ids *Counter) *Board {
	b := &Board{
		id:          ids.Next(),
		name:        cfg.Name,
		alwaysNight: cfg.AlwaysNight,
		viewRange:   cfg.ViewRange,
		dayPhase:    Dawn,
	}
	if b.viewRange <= 0 {
		b.viewRange = DefaultViewRange
	}
	if b.alwaysNight {
		b.dayPhase = Night
	}

	if cfg.Layout != nil {
		rows := cfg.Layout.Rows()
		b.grid = make([][]Tile, rows)
		for r := 0; r < rows; r++ {
			cols := cfg.Layout.Cols(r)
			b.grid[r] = make([]Tile, cols)
			for c := 0; c < cols; c++ {
				if cfg.Layout.IsEntrance(r, c) {
					b.entranceTilePositions = append(b.entranceTilePositions, RowCol{Row: r, Col: c})
				}
			}
		}
	}
	return b
}

func (b *Board) ID() int64         { return b.id }
func (b *Board) Name() string      { return b.name }
func (b *Board) AlwaysNight() bool { return b.alwaysNight }
func (b *Board) ViewRange() int    { return b.viewRange }
func (b *Board) Rows() int         { return len(b.grid) }

// DayPhase is the board's current time of day.
func (b *Board) DayPhase() DayPhase { return b.dayPhase }

// EntranceTilePositions returns a copy of the spawn candidates in row-major order.
func (b *Board) EntranceTilePositions() []RowCol {
	out := make([]RowCol, len(b.entranceTilePositions))
	copy(out, b.entranceTilePositions)
	return out
}

// SetDayPhase updates the phase unless the board is pinned to night.
// Returns true if the stored phase changed.
func (b *Board) SetDayPhase(p DayPhase) bool {
	if b.alwaysNight || b.dayPhase == p {
		return false
	}
	b.dayPhase = p
	return true
}

// GetTileAt returns the tile at (row, col), or false when the position is
// off the grid (negative, past the last row, or past the end of a short row).
func (b *Board) GetTileAt(row, col int) (*Tile, bool) {
	if row < 0 || row >= len(b.grid) {
		return nil, false
	}
	r := b.grid[row]
	if col < 0 || col >= len(r) {
		return nil, false
	}
	return &r[col], true
}

// ── Occupancy ─────────────────────────────────────────────────────
//
// Add indexes the object at its current row/col; the position must already
// be on the grid. Remove must be called with the object's position before it
// changes, or the wrong tile is cleared.

func (b *Board) AddEntity(e Emittable) {
	row, col := e.Position()
	tile := &b.grid[row][col]
	if !tile.HasOccupantOf(KindEntity) {
		tile.entities = make(map[int64]Emittable)
	}
	tile.entities[e.ObjectID()] = e
}

func (b *Board) RemoveEntity(e Emittable) {
	row, col := e.Position()
	delete(b.grid[row][col].entities, e.ObjectID())
}

func (b *Board) AddPlayer(p Observer) {
	row, col := p.Position()
	tile := &b.grid[row][col]
	if !tile.HasOccupantOf(KindPlayer) {
		tile.players = make(map[int64]Observer)
	}
	tile.players[p.ObjectID()] = p
}

func (b *Board) RemovePlayer(p Observer) {
	row, col := p.Position()
	delete(b.grid[row][col].players, p.ObjectID())
}

func (b *Board) AddPickup(p Positioned) {
	row, col := p.Position()
	tile := &b.grid[row][col]
	if !tile.HasOccupantOf(KindPickup) {
		tile.pickups = make(map[int64]Positioned)
	}
	tile.pickups[p.ObjectID()] = p
}

func (b *Board) RemovePickup(p Positioned) {
	row, col := p.Position()
	delete(b.grid[row][col].pickups, p.ObjectID())
}

// ── Queries ───────────────────────────────────────────────────────

// GetNearbyDynamicsData collects the emittable properties of every entity
// within view range of (row, col). Order follows the tile scan and carries
// no meaning.
func (b *Board) GetNearbyDynamicsData(row, col int) []map[string]any {
	var out []map[string]any
	b.scanWindow(row, col, b.viewRange, func(t *Tile) {
		for _, e := range t.entities {
			out = append(out, e.EmittableProperties())
		}
	})
	return out
}

// GetNearbyPlayers returns every player within rng tiles of (row, col).
func (b *Board) GetNearbyPlayers(row, col, rng int) []Observer {
	var out []Observer
	b.scanWindow(row, col, rng, func(t *Tile) {
		for _, p := range t.players {
			out = append(out, p)
		}
	})
	return out
}

// GetNearbyPickups returns every pickup within view range of (row, col).
func (b *Board) GetNearbyPickups(row, col int) []Positioned {
	var out []Positioned
	b.scanWindow(row, col, b.viewRange, func(t *Tile) {
		for _, p := range t.pickups {
			out = append(out, p)
		}
	})
	return out
}

// scanWindow visits every on-grid tile of the square of side 2*rng+1
// centred on (row, col), each exactly once.
func (b *Board) scanWindow(row, col, rng int, fn func(*Tile)) {
	for r := row - rng; r <= row+rng; r++ {
		if r < 0 || r >= len(b.grid) {
			continue
		}
		cells := b.grid[r]
		for c := col - rng; c <= col+rng; c++ {
			if c < 0 || c >= len(cells) {
				continue
			}
			fn(&cells[c])
		}
	}
}

// ── Broadcast ─────────────────────────────────────────────────────

// EmitToPlayers pushes (event, data) to every player whose connection is
// open. Closed connections are skipped; the transport cleans them up.
func (b *Board) EmitToPlayers(players map[int64]Observer, event string, data any) {
	for _, p := range players {
		conn := p.Conn()
		if conn == nil || !conn.IsOpen() {
			continue
		}
		conn.SendEvent(event, data)
	}
}

// EmitToNearbyPlayers sends to every player that can see (row, col).
func (b *Board) EmitToNearbyPlayers(row, col int, event string, data any) {
	b.EmitToPlayersInRange(row, col, b.viewRange, event, data)
}

// EmitToPlayersInRange sends to every player within rng tiles of (row, col).
func (b *Board) EmitToPlayersInRange(row, col, rng int, event string, data any) {
	b.scanWindow(row, col, rng, func(t *Tile) {
		b.EmitToPlayers(t.players, event, data)
	})
}

// EmitToPlayersAtViewRange sends only to players on the far edge of the view
// window in dir. After a one-tile step these are the only observers whose
// view of the mover changed.
func (b *Board) EmitToPlayersAtViewRange(row, col int, dir Direction, event string, data any) error {
	err := b.scanEdge(row, col, dir, func(t *Tile) {
		b.EmitToPlayers(t.players, event, data)
	})
	if err != nil {
		return fmt.Errorf("emit %q at view range: %w", event, err)
	}
	return nil
}

// GetDynamicsDataAtViewRange collects the entities on the far edge of the
// view window in dir: what a viewer at (row, col) has just started to see
// after stepping in dir.
func (b *Board) GetDynamicsDataAtViewRange(row, col int, dir Direction) ([]map[string]any, error) {
	var out []map[string]any
	err := b.scanEdge(row, col, dir, func(t *Tile) {
		for _, e := range t.entities {
			out = append(out, e.EmittableProperties())
		}
	})
	return out, err
}

// GetObserversAtViewRange returns the players on the far edge of the view
// window in dir.
func (b *Board) GetObserversAtViewRange(row, col int, dir Direction) ([]Observer, error) {
	var out []Observer
	err := b.scanEdge(row, col, dir, func(t *Tile) {
		for _, p := range t.players {
			out = append(out, p)
		}
	})
	return out, err
}

// GetPickupsAtViewRange returns the pickups on the far edge of the view
// window in dir.
func (b *Board) GetPickupsAtViewRange(row, col int, dir Direction) ([]Positioned, error) {
	var out []Positioned
	err := b.scanEdge(row, col, dir, func(t *Tile) {
		for _, p := range t.pickups {
			out = append(out, p)
		}
	})
	return out, err
}

// scanEdge visits the on-grid tiles of the edge of the view window in dir.
// LEFT/RIGHT walk one column across the window's rows, UP/DOWN one row
// across its columns. Unknown directions fail before any tile is visited.
func (b *Board) scanEdge(row, col int, dir Direction, fn func(*Tile)) error {
	vr := b.viewRange
	switch dir {
	case DirLeft:
		b.scanColumn(col-vr, row-vr, row+vr, fn)
	case DirRight:
		b.scanColumn(col+vr, row-vr, row+vr, fn)
	case DirUp:
		b.scanRow(row-vr, col-vr, col+vr, fn)
	case DirDown:
		b.scanRow(row+vr, col-vr, col+vr, fn)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidDirection, int(dir))
	}
	return nil
}

func (b *Board) scanColumn(col, fromRow, toRow int, fn func(*Tile)) {
	for r := fromRow; r <= toRow; r++ {
		if t, ok := b.GetTileAt(r, col); ok {
			fn(t)
		}
	}
}

func (b *Board) scanRow(row, fromCol, toCol int, fn func(*Tile)) {
	if row < 0 || row >= len(b.grid) {
		return
	}
	for c := fromCol; c <= toCol; c++ {
		if t, ok := b.GetTileAt(row, c); ok {
			fn(t)
		}
	}
}

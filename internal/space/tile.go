package space

// OccupantKind selects one of the three collections held by a Tile.
type OccupantKind int

const (
	KindEntity OccupantKind = iota
	KindPlayer
	KindPickup
)

// Tile is one grid cell. Each collection stays nil until its first occupant
// arrives; a nil map reads as empty.
type Tile struct {
	entities map[int64]Emittable
	players  map[int64]Observer
	pickups  map[int64]Positioned
}

// HasOccupantOf reports whether the collection for kind has been allocated.
// An allocated collection may be empty after its occupants left.
func (t *Tile) HasOccupantOf(kind OccupantKind) bool {
	switch kind {
	case KindEntity:
		return t.entities != nil
	case KindPlayer:
		return t.players != nil
	case KindPickup:
		return t.pickups != nil
	}
	return false
}

// Entities returns the live entity collection. Read only.
func (t *Tile) Entities() map[int64]Emittable { return t.entities }

// Players returns the live player collection. Read only.
func (t *Tile) Players() map[int64]Observer { return t.players }

// Pickups returns the live pickup collection. Read only.
func (t *Tile) Pickups() map[int64]Positioned { return t.pickups }

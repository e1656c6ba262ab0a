package event

// PlayerJoined is emitted once a session's player is placed on a board.
type PlayerJoined struct {
	SessionID uint64
	PlayerID  int64
	Name      string
	Board     string
	Row       int
	Col       int
}

// PlayerLeft is emitted after a player is taken off its board, whether by
// quitting or by a dropped connection. Position is where it last stood.
type PlayerLeft struct {
	SessionID uint64
	PlayerID  int64
	Name      string
	Board     string
	Row       int
	Col       int
}

// DayPhaseChanged is emitted when the world clock crosses into a new phase.
type DayPhaseChanged struct {
	Phase int
}

package world

import (
	"context"
	"errors"
	"testing"

	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/space"
	"go.uber.org/zap"
)

func newTestState(t *testing.T, maps ...*data.MapData) *State {
	t.Helper()
	table, err := data.NewMapDataTable(maps...)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewState(table, maps[0].Info.Name, space.NewCounter(0), space.NewCounter(0), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewStateUnknownDefault(t *testing.T) {
	table, _ := data.NewMapDataTable(openMap("town", 3, 3, 1, nil, nil))
	if _, err := NewState(table, "nowhere", space.NewCounter(0), space.NewCounter(0), zap.NewNop()); !errors.Is(err, ErrUnknownBoard) {
		t.Errorf("err = %v", err)
	}
}

func TestJoinSpawnsOnEntrance(t *testing.T) {
	entrances := []space.RowCol{{Row: 1, Col: 1}, {Row: 2, Col: 3}}
	s := newTestState(t, openMap("Town", 5, 5, 2, entrances, nil))

	p, err := s.Join(7, "alice", &recordingConn{open: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	onEntrance := false
	for _, e := range entrances {
		if p.Row == e.Row && p.Col == e.Col {
			onEntrance = true
		}
	}
	if !onEntrance {
		t.Errorf("spawned at (%d,%d), not an entrance", p.Row, p.Col)
	}
	if p.SessionID != 7 || p.BoardName != "Town" {
		t.Errorf("player = %+v", p)
	}
	if s.GetBySession(7) != p || s.ZoneOf(p) != s.Zone("town") || s.PlayerCount() != 1 {
		t.Error("player not registered")
	}
}

func TestJoinUsesSavedPosition(t *testing.T) {
	town := openMap("town", 5, 5, 2, []space.RowCol{{Row: 0, Col: 0}}, nil)
	cave := openMap("cave", 6, 6, 2, nil, []space.RowCol{{Row: 3, Col: 3}})
	s := newTestState(t, town, cave)

	p, err := s.Join(1, "bob", &recordingConn{open: true}, &SavedPosition{Board: "CAVE", Row: 4, Col: 2})
	if err != nil {
		t.Fatal(err)
	}
	if s.ZoneOf(p).Name() != "cave" || p.Row != 4 || p.Col != 2 {
		t.Errorf("placed on %s (%d,%d)", s.ZoneOf(p).Name(), p.Row, p.Col)
	}

	// A wall or an unknown board falls back to the default entrance.
	for i, saved := range []*SavedPosition{
		{Board: "cave", Row: 3, Col: 3},
		{Board: "sewer", Row: 1, Col: 1},
	} {
		q, err := s.Join(uint64(10+i), "carol"+string(rune('a'+i)), &recordingConn{open: true}, saved)
		if err != nil {
			t.Fatal(err)
		}
		if s.ZoneOf(q).Name() != "town" || q.Row != 0 || q.Col != 0 {
			t.Errorf("fallback %d placed on %s (%d,%d)", i, s.ZoneOf(q).Name(), q.Row, q.Col)
		}
	}
}

func TestJoinRejectsDuplicatesAndNoEntrance(t *testing.T) {
	s := newTestState(t, openMap("town", 4, 4, 1, []space.RowCol{{Row: 1, Col: 1}}, nil))
	if _, err := s.Join(1, "Dave", &recordingConn{open: true}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Join(1, "erin", &recordingConn{open: true}, nil); err == nil {
		t.Error("duplicate session accepted")
	}
	if _, err := s.Join(2, "dave", &recordingConn{open: true}, nil); err == nil {
		t.Error("duplicate name accepted")
	}

	closed := newTestState(t, openMap("walled", 3, 3, 1, nil, nil))
	if _, err := closed.Join(1, "x", &recordingConn{open: true}, nil); !errors.Is(err, ErrNoEntrance) {
		t.Errorf("err = %v", err)
	}
}

func TestLeave(t *testing.T) {
	s := newTestState(t, openMap("town", 5, 5, 2, []space.RowCol{{Row: 2, Col: 2}}, nil))
	p, _ := s.Join(1, "a", &recordingConn{open: true}, nil)
	_, wconn := newTestPlayer(s.Zone("town"), 99, 2, 3)
	wconn.reset()

	left, z := s.Leave(1)
	if left != p || z == nil || z.Name() != "town" {
		t.Fatalf("Leave = %v, %v", left, z)
	}
	if wconn.count(EvPlayerRemoved) != 1 {
		t.Errorf("watcher events = %v", wconn.events)
	}
	if tile, _ := z.Board().GetTileAt(2, 2); len(tile.Players()) != 0 {
		t.Error("player still indexed")
	}
	if s.GetBySession(1) != nil || s.PlayerCount() != 0 {
		t.Error("player still registered")
	}
	if p2, z2 := s.Leave(1); p2 != nil || z2 != nil {
		t.Error("second Leave should be a no-op")
	}
	// The name is free again.
	if _, err := s.Join(2, "A", &recordingConn{open: true}, nil); err != nil {
		t.Errorf("rejoin: %v", err)
	}
}

func TestStateDayPhase(t *testing.T) {
	day := openMap("meadow", 3, 3, 1, []space.RowCol{{Row: 1, Col: 1}}, nil)
	night := data.NewMapData(data.MapInfo{Name: "crypt", AlwaysNight: true, ViewRange: 1}, [][]byte{{3, 1}, {1, 1}})
	s := newTestState(t, day, night)

	if s.DayPhase() != space.Dawn {
		t.Errorf("initial phase = %v", s.DayPhase())
	}
	s.SetDayPhase(space.Dusk)
	if s.DayPhase() != space.Dusk || s.Zone("meadow").Board().DayPhase() != space.Dusk {
		t.Error("meadow did not follow the clock")
	}
	if s.Zone("crypt").Board().DayPhase() != space.Night {
		t.Error("always-night board changed phase")
	}
}

func TestTickZones(t *testing.T) {
	a := openMap("a", 4, 4, 1, nil, nil)
	b := openMap("b", 4, 4, 1, nil, nil)
	s := newTestState(t, a, b)
	pa := s.Zone("a").SpawnPickup("Coin", 1, 0, 0, 1)
	pb := s.Zone("b").SpawnPickup("Coin", 1, 0, 0, 1)

	if err := s.TickZones(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.Zone("a").Pickup(pa.ID) != nil || s.Zone("b").Pickup(pb.ID) != nil {
		t.Error("pickups should have expired on both zones")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.TickZones(ctx); err == nil {
		t.Error("expected context error")
	}
}

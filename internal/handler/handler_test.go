package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/dungeonz/server/internal/config"
	"github.com/dungeonz/server/internal/core/event"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/persist"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
)

type fakeClient struct {
	id     uint64
	state  packet.SessionState
	closed bool
	events []string
	data   []any
}

func (c *fakeClient) IsOpen() bool                    { return !c.closed }
func (c *fakeClient) SessionID() uint64               { return c.id }
func (c *fakeClient) State() packet.SessionState      { return c.state }
func (c *fakeClient) SetState(st packet.SessionState) { c.state = st }
func (c *fakeClient) Close()                          { c.closed = true }

func (c *fakeClient) SendEvent(event string, data any) {
	c.events = append(c.events, event)
	c.data = append(c.data, data)
}

func (c *fakeClient) last() string {
	if len(c.events) == 0 {
		return ""
	}
	return c.events[len(c.events)-1]
}

type memPositions struct {
	rows    map[string]persist.PositionRow
	loadErr error
}

func (m *memPositions) Load(_ context.Context, name string) (*persist.PositionRow, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	row, ok := m.rows[name]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memPositions) SaveBatch(_ context.Context, rows []persist.PositionRow) error {
	for _, r := range rows {
		m.rows[r.Name] = r
	}
	return nil
}

// newTestDeps builds a 5x5 all-walkable town with its only entrance at (2,2)
// and a wall at (2,3).
func newTestDeps(t *testing.T) (*Deps, *packet.Registry) {
	t.Helper()
	tiles := [][]byte{
		{1, 1, 1, 1, 1},
		{1, 1, 1, 1, 1},
		{1, 1, 3, 0, 1},
		{1, 1, 1, 1, 1},
		{1, 1, 1, 1, 1},
	}
	table, err := data.NewMapDataTable(data.NewMapData(data.MapInfo{Name: "town", ViewRange: 2}, tiles))
	if err != nil {
		t.Fatal(err)
	}
	st, err := world.NewState(table, "town", space.NewCounter(0), space.NewCounter(0), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	deps := &Deps{
		Config: &config.Config{},
		Log:    zap.NewNop(),
		World:  st,
		Bus:    event.NewBus(),
	}
	reg := packet.NewRegistry(zap.NewNop())
	RegisterAll(reg, deps)
	return deps, reg
}

func dispatch(t *testing.T, reg *packet.Registry, c *fakeClient, ev string, payload any) error {
	t.Helper()
	msg, err := packet.NewMessage(ev, payload)
	if err != nil {
		t.Fatal(err)
	}
	return reg.Dispatch(c, c.State(), msg)
}

func TestJoinPlacesPlayerOnEntrance(t *testing.T) {
	deps, reg := newTestDeps(t)
	var joined []event.PlayerJoined
	event.Subscribe(deps.Bus, func(e event.PlayerJoined) { joined = append(joined, e) })

	c := &fakeClient{id: 1}
	if err := dispatch(t, reg, c, "join", map[string]any{"name": "  Ann "}); err != nil {
		t.Fatal(err)
	}
	if c.State() != packet.StateInWorld {
		t.Fatalf("state = %v, events = %v", c.State(), c.events)
	}
	if c.last() != world.EvJoinWorld {
		t.Errorf("events = %v", c.events)
	}
	p := deps.World.GetBySession(1)
	if p == nil || p.Name != "Ann" || p.Row != 2 || p.Col != 2 {
		t.Fatalf("player = %+v", p)
	}

	deps.Bus.SwapBuffers()
	deps.Bus.DispatchAll()
	if len(joined) != 1 || joined[0].Name != "Ann" || joined[0].Board != "town" {
		t.Errorf("joined events = %+v", joined)
	}

	// Already in world: join is no longer accepted.
	if err := dispatch(t, reg, c, "join", map[string]any{"name": "Ann"}); err == nil {
		t.Error("second join accepted")
	}
}

func TestJoinRestoresSavedPosition(t *testing.T) {
	deps, reg := newTestDeps(t)
	deps.Positions = &memPositions{rows: map[string]persist.PositionRow{
		"bo":  {Name: "bo", Board: "town", Row: 4, Col: 4},
		"cy":  {Name: "cy", Board: "town", Row: 2, Col: 3}, // wall
		"dee": {Name: "dee", Board: "gone", Row: 0, Col: 0},
	}}

	cases := []struct {
		name     string
		row, col int
	}{
		{"Bo", 4, 4},
		{"cy", 2, 2},
		{"dee", 2, 2},
		{"eve", 2, 2},
	}
	for i, tc := range cases {
		c := &fakeClient{id: uint64(i + 1)}
		if err := dispatch(t, reg, c, "join", map[string]any{"name": tc.name}); err != nil {
			t.Fatal(err)
		}
		p := deps.World.GetBySession(c.id)
		if p == nil || p.Row != tc.row || p.Col != tc.col {
			t.Errorf("%s placed at %+v, want (%d,%d)", tc.name, p, tc.row, tc.col)
		}
	}
}

func TestJoinLoadErrorFallsBackToEntrance(t *testing.T) {
	deps, reg := newTestDeps(t)
	deps.Positions = &memPositions{loadErr: errors.New("db down")}
	c := &fakeClient{id: 1}
	if err := dispatch(t, reg, c, "join", map[string]any{"name": "zed"}); err != nil {
		t.Fatal(err)
	}
	if p := deps.World.GetBySession(1); p == nil || p.Row != 2 || p.Col != 2 {
		t.Errorf("player = %+v", p)
	}
}

func TestJoinRejectsBadNames(t *testing.T) {
	_, reg := newTestDeps(t)
	for i, name := range []string{"", "   ", "has space", "waytoolongname12345", "semi;colon"} {
		c := &fakeClient{id: uint64(i + 1)}
		if err := dispatch(t, reg, c, "join", map[string]any{"name": name}); err != nil {
			t.Fatal(err)
		}
		if c.State() != packet.StateConnected || c.last() != EvError {
			t.Errorf("name %q: state = %v events = %v", name, c.State(), c.events)
		}
	}

	// Missing payload.
	c := &fakeClient{id: 99}
	if err := dispatch(t, reg, c, "join", nil); err != nil {
		t.Fatal(err)
	}
	if c.last() != EvError {
		t.Errorf("events = %v", c.events)
	}
}

func TestJoinDuplicateName(t *testing.T) {
	_, reg := newTestDeps(t)
	a := &fakeClient{id: 1}
	b := &fakeClient{id: 2}
	dispatch(t, reg, a, "join", map[string]any{"name": "same"})
	dispatch(t, reg, b, "join", map[string]any{"name": "SAME"})
	if b.State() != packet.StateConnected || b.last() != EvError {
		t.Errorf("duplicate name joined: state = %v events = %v", b.State(), b.events)
	}
}

func TestMove(t *testing.T) {
	deps, reg := newTestDeps(t)
	c := &fakeClient{id: 1}
	dispatch(t, reg, c, "join", map[string]any{"name": "mover"})
	p := deps.World.GetBySession(1)

	// Wall to the right: dropped without an error event.
	c.events = nil
	if err := dispatch(t, reg, c, "move", map[string]any{"direction": "r"}); err != nil {
		t.Fatal(err)
	}
	if p.Col != 2 || len(c.events) != 0 {
		t.Errorf("blocked move: col = %d events = %v", p.Col, c.events)
	}

	if err := dispatch(t, reg, c, "move", map[string]any{"direction": "UP"}); err != nil {
		t.Fatal(err)
	}
	if p.Row != 1 || p.Col != 2 {
		t.Errorf("position = (%d,%d), want (1,2)", p.Row, p.Col)
	}
	tile, _ := deps.World.ZoneOf(p).Board().GetTileAt(1, 2)
	if tile.Players()[p.ID] == nil {
		t.Error("player not indexed at (1,2)")
	}

	c.events = nil
	dispatch(t, reg, c, "move", map[string]any{"direction": "northwest"})
	if c.last() != EvError || p.Row != 1 {
		t.Errorf("invalid direction: events = %v pos = (%d,%d)", c.events, p.Row, p.Col)
	}
}

func TestMoveRequiresInWorld(t *testing.T) {
	_, reg := newTestDeps(t)
	c := &fakeClient{id: 1}
	if err := dispatch(t, reg, c, "move", map[string]any{"direction": "u"}); err == nil {
		t.Error("move before join accepted")
	}
}

func TestChatReachesNearbyPlayers(t *testing.T) {
	_, reg := newTestDeps(t)
	a := &fakeClient{id: 1}
	b := &fakeClient{id: 2}
	dispatch(t, reg, a, "join", map[string]any{"name": "a"})
	dispatch(t, reg, b, "join", map[string]any{"name": "b"})
	a.events, b.events = nil, nil

	if err := dispatch(t, reg, a, "chat", map[string]any{"text": "hi"}); err != nil {
		t.Fatal(err)
	}
	if a.last() != world.EvChat || b.last() != world.EvChat {
		t.Errorf("a = %v, b = %v", a.events, b.events)
	}
	got := b.data[len(b.data)-1].(map[string]any)
	if got["text"] != "hi" {
		t.Errorf("chat payload = %v", got)
	}
}

func TestQuitClosesSession(t *testing.T) {
	_, reg := newTestDeps(t)
	c := &fakeClient{id: 1}
	if err := dispatch(t, reg, c, "quit", nil); err != nil {
		t.Fatal(err)
	}
	if !c.closed {
		t.Error("session not closed")
	}
}

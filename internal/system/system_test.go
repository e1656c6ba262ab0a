package system

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/entity"
	"github.com/dungeonz/server/internal/handler"
	"github.com/dungeonz/server/internal/net"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/persist"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/world"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type nopConn struct{}

func (nopConn) IsOpen() bool          { return true }
func (nopConn) SendEvent(string, any) {}

type memPositions struct {
	rows  map[string]persist.PositionRow
	saves int
	fail  bool
}

func newMemPositions() *memPositions {
	return &memPositions{rows: make(map[string]persist.PositionRow)}
}

func (m *memPositions) Load(_ context.Context, name string) (*persist.PositionRow, error) {
	row, ok := m.rows[name]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memPositions) SaveBatch(_ context.Context, rows []persist.PositionRow) error {
	if m.fail {
		return errors.New("db down")
	}
	m.saves++
	for _, r := range rows {
		m.rows[r.Name] = r
	}
	return nil
}

type fixedCalc struct{ phase int }

func (c *fixedCalc) CalcDayPhase(time.Duration, time.Duration) int { return c.phase }

func newTestWorld(t *testing.T) *world.State {
	t.Helper()
	tiles := make([][]byte, 6)
	for r := range tiles {
		tiles[r] = []byte{1, 1, 1, 1, 1, 1}
	}
	tiles[3][3] = 3
	night := data.NewMapData(data.MapInfo{Name: "crypt", AlwaysNight: true}, [][]byte{{3}})
	table, err := data.NewMapDataTable(data.NewMapData(data.MapInfo{Name: "town", ViewRange: 2}, tiles), night)
	if err != nil {
		t.Fatal(err)
	}
	ws, err := world.NewState(table, "town", space.NewCounter(0), space.NewCounter(0), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestClockSystem(t *testing.T) {
	ws := newTestWorld(t)
	bus := event.NewBus()
	var changes []int
	event.Subscribe(bus, func(e event.DayPhaseChanged) { changes = append(changes, e.Phase) })

	calc := &fixedCalc{phase: 1}
	clock := NewClockSystem(ws, calc, bus, time.Minute, zap.NewNop())

	clock.Update(100 * time.Millisecond) // first tick evaluates, no change
	calc.phase = 4
	clock.Update(100 * time.Millisecond) // inside the interval, not evaluated
	if ws.DayPhase() != space.Dawn {
		t.Fatalf("phase changed early: %v", ws.DayPhase())
	}
	for i := 0; i < 10; i++ {
		clock.Update(100 * time.Millisecond)
	}
	if ws.DayPhase() != space.Night || ws.Zone("town").Board().DayPhase() != space.Night {
		t.Errorf("world phase = %v", ws.DayPhase())
	}

	calc.phase = 7 // ignored
	clock.Update(time.Second)
	if ws.DayPhase() != space.Night {
		t.Errorf("invalid phase applied: %v", ws.DayPhase())
	}

	bus.SwapBuffers()
	bus.DispatchAll()
	if len(changes) != 1 || changes[0] != 4 {
		t.Errorf("changes = %v", changes)
	}
}

func TestPersistenceSavesDirtyPlayers(t *testing.T) {
	ws := newTestWorld(t)
	bus := event.NewBus()
	store := newMemPositions()
	ps := NewPersistenceSystem(ws, store, bus, 2, zap.NewNop())

	p, err := ws.Join(1, "Walker", nopConn{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ps.Update(0)
	if store.saves != 0 {
		t.Fatal("saved before interval")
	}
	ps.Update(0)
	if got := store.rows["walker"]; got.Board != "town" || got.Row != 3 || got.Col != 3 {
		t.Fatalf("saved row = %+v", got)
	}
	if p.Dirty {
		t.Error("player still dirty after save")
	}

	// Clean players are not saved again.
	ps.Update(0)
	ps.Update(0)
	if store.saves != 1 {
		t.Errorf("saves = %d, want 1", store.saves)
	}

	// A failed save keeps the player dirty.
	ws.ZoneOf(p).MovePlayer(p, space.DirUp)
	store.fail = true
	ps.Update(0)
	ps.Update(0)
	if !p.Dirty {
		t.Error("player marked clean after failed save")
	}
	store.fail = false
	ps.SaveAllPlayers()
	if got := store.rows["walker"]; got.Row != 2 {
		t.Errorf("after SaveAllPlayers row = %+v", got)
	}
}

func TestPersistenceSavesDepartures(t *testing.T) {
	ws := newTestWorld(t)
	bus := event.NewBus()
	store := newMemPositions()
	ps := NewPersistenceSystem(ws, store, bus, 1000, zap.NewNop())

	event.Emit(bus, event.PlayerLeft{Name: "Gone", Board: "town", Row: 1, Col: 5})
	event.Emit(bus, event.PlayerLeft{Name: "Never", Board: ""})
	bus.SwapBuffers()
	bus.DispatchAll()
	ps.Update(0)

	if got, ok := store.rows["gone"]; !ok || got.Row != 1 || got.Col != 5 {
		t.Errorf("departure row = %+v", got)
	}
	if _, ok := store.rows["never"]; ok {
		t.Error("player without a board was saved")
	}
}

// TestGameLoopEndToEnd runs a real websocket client through join, move and
// disconnect with the full system pipeline.
func TestGameLoopEndToEnd(t *testing.T) {
	log := zap.NewNop()
	ws := newTestWorld(t)
	bus := event.NewBus()
	positions := newMemPositions()
	positions.rows["hero"] = persist.PositionRow{Name: "hero", Board: "town", Row: 1, Col: 1}

	srv, err := net.NewServer("127.0.0.1:0", "/ws", net.SessionOptions{
		InQueueSize:  16,
		OutQueueSize: 64,
		WriteTimeout: time.Second,
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	go srv.AcceptLoop()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	reg := packet.NewRegistry(log)
	handler.RegisterAll(reg, &handler.Deps{Log: log, World: ws, Bus: bus, Positions: positions})

	store := net.NewSessionStore()
	runner := coresys.NewRunner(0, log)
	runner.Register(NewOutputSystem(store))
	runner.Register(NewInputSystem(srv, reg, store, ws, bus, 8, log))
	runner.Register(NewEventDispatchSystem(bus))
	runner.Register(NewZoneSystem(ws, log))
	runner.Register(NewClockSystem(ws, &fixedCalc{phase: 1}, bus, time.Minute, log))
	runner.Register(NewPersistenceSystem(ws, positions, bus, 1000, log))
	presence := NewPresenceSystem(bus, log)
	runner.Register(presence)

	tickUntil := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			runner.Tick(10 * time.Millisecond)
			time.Sleep(5 * time.Millisecond)
		}
	}

	client, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	send := func(ev string, payload any) {
		t.Helper()
		frame, err := packet.Encode(ev, payload)
		if err != nil {
			t.Fatal(err)
		}
		if err := client.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			t.Fatal(err)
		}
	}
	readEvent := func(want string) packet.Message {
		t.Helper()
		client.SetReadDeadline(time.Now().Add(3 * time.Second))
		for {
			_, frame, err := client.ReadMessage()
			if err != nil {
				t.Fatalf("waiting for %s: %v", want, err)
			}
			msg, err := packet.Decode(frame)
			if err != nil {
				t.Fatal(err)
			}
			if msg.Event == want {
				return msg
			}
		}
	}

	tickUntil("session accepted", func() bool { return store.Count() == 1 })
	send("join", map[string]any{"name": "Hero"})
	tickUntil("join", func() bool { return ws.PlayerCount() == 1 })
	tickUntil("presence", func() bool { return presence.Online("Town") == 1 })

	var joined struct {
		BoardName string         `msgpack:"boardName"`
		Player    map[string]any `msgpack:"player"`
	}
	if err := readEvent(world.EvJoinWorld).Bind(&joined); err != nil {
		t.Fatal(err)
	}
	if joined.BoardName != "town" {
		t.Errorf("join_world = %+v", joined)
	}

	var p *entity.Player
	ws.AllPlayers(func(pl *entity.Player) { p = pl })
	if p.Row != 1 || p.Col != 1 {
		t.Fatalf("saved position not restored: (%d,%d)", p.Row, p.Col)
	}

	send("move", map[string]any{"direction": "d"})
	tickUntil("move", func() bool { return p.Row == 2 })
	readEvent(world.EvMoved)

	client.Close()
	tickUntil("disconnect", func() bool { return ws.PlayerCount() == 0 && store.Count() == 0 })
	tickUntil("departure saved", func() bool { return positions.rows["hero"].Row == 2 })
	tickUntil("presence cleared", func() bool { return presence.Total() == 0 })
	if presence.Peak() != 1 {
		t.Errorf("peak = %d, want 1", presence.Peak())
	}
	if tile, _ := ws.Zone("town").Board().GetTileAt(2, 1); len(tile.Players()) != 0 {
		t.Error("player still indexed after disconnect")
	}
}

func TestPresenceSystem(t *testing.T) {
	bus := event.NewBus()
	s := NewPresenceSystem(bus, zap.NewNop())
	tick := func() {
		bus.SwapBuffers()
		bus.DispatchAll()
		s.Update(0)
	}

	event.Emit(bus, event.PlayerJoined{SessionID: 1, Name: "a", Board: "Town"})
	event.Emit(bus, event.PlayerJoined{SessionID: 2, Name: "b", Board: "town"})
	event.Emit(bus, event.PlayerJoined{SessionID: 3, Name: "c", Board: "crypt"})
	tick()
	if s.Online("town") != 2 || s.Online("CRYPT") != 1 || s.Total() != 3 {
		t.Fatalf("online town=%d crypt=%d total=%d", s.Online("town"), s.Online("crypt"), s.Total())
	}

	event.Emit(bus, event.PlayerLeft{SessionID: 1, Name: "a", Board: "town"})
	event.Emit(bus, event.PlayerLeft{SessionID: 9}) // never joined
	event.Emit(bus, event.DayPhaseChanged{Phase: int(space.Night)})
	tick()
	if s.Online("town") != 1 || s.Total() != 2 || s.Peak() != 3 {
		t.Errorf("after leave: town=%d total=%d peak=%d", s.Online("town"), s.Total(), s.Peak())
	}

	// Nothing pending: counts hold.
	tick()
	if s.Total() != 2 {
		t.Errorf("total drifted to %d", s.Total())
	}
}

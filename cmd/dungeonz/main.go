package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dungeonz/server/internal/config"
	"github.com/dungeonz/server/internal/core/event"
	coresys "github.com/dungeonz/server/internal/core/system"
	"github.com/dungeonz/server/internal/data"
	"github.com/dungeonz/server/internal/handler"
	gonet "github.com/dungeonz/server/internal/net"
	"github.com/dungeonz/server/internal/net/packet"
	"github.com/dungeonz/server/internal/persist"
	"github.com/dungeonz/server/internal/scripting"
	"github.com/dungeonz/server/internal/space"
	"github.com/dungeonz/server/internal/system"
	"github.com/dungeonz/server/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              dungeonz  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m        multiplayer dungeon server         \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printSkip(msg string) {
	fmt.Printf("  \033[90m–\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("DUNGEONZ_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Database (optional)
	printSection("Database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var positions handler.PositionStore
	db, err := persist.NewDB(ctx, cfg.Database, log)
	switch {
	case errors.Is(err, persist.ErrDisabled):
		printSkip("no dsn configured, positions will not be saved")
	case err != nil:
		return fmt.Errorf("database: %w", err)
	default:
		defer db.Close()
		printOK("PostgreSQL connected")
		version, err := db.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("schema at version %d", version))
		positions = persist.NewPositionRepo(db)
	}
	fmt.Println()

	// 4. Load maps and build the world
	printSection("World")

	mapTable, err := data.LoadMapData(cfg.World.MapsYAML, cfg.World.TileDir)
	if err != nil {
		return fmt.Errorf("load map data: %w", err)
	}
	printStat("Maps", mapTable.Count())

	boardIDs := space.NewCounter(0)
	objectIDs := space.NewCounter(0)
	worldState, err := world.NewState(mapTable, cfg.World.DefaultBoard, boardIDs, objectIDs, log)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	entities, pickups := 0, 0
	for _, z := range worldState.Zones() {
		entities += z.EntityCount()
		pickups += z.PickupCount()
	}
	printStat("Entities", entities)
	printStat("Pickups", pickups)

	luaEngine, err := scripting.NewEngine(cfg.World.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua scripts loaded")
	fmt.Println()

	// 5. Handlers
	bus := event.NewBus()
	registry := packet.NewRegistry(log)
	handler.RegisterAll(registry, &handler.Deps{
		Config:    cfg,
		Log:       log,
		World:     worldState,
		Bus:       bus,
		Positions: positions,
	})

	// 6. Network
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, cfg.Network.Path, gonet.SessionOptions{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		PktPerSec:    cfg.PacketsPerSecond(),
		WriteTimeout: cfg.Network.WriteTimeout,
		ReadLimit:    cfg.Network.ReadLimit,
	}, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	// 7. Systems
	store := gonet.NewSessionStore()
	runner := coresys.NewRunner(cfg.Network.TickRate, log)
	runner.Register(system.NewInputSystem(netServer, registry, store, worldState, bus, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewZoneSystem(worldState, log))
	runner.Register(system.NewClockSystem(worldState, luaEngine, bus, cfg.World.DayCycle, log))
	runner.Register(system.NewPresenceSystem(bus, log))
	runner.Register(system.NewOutputSystem(store))

	var persistSys *system.PersistenceSystem
	if positions != nil {
		saveTicks := int(cfg.Database.SaveInterval / cfg.Network.TickRate)
		persistSys = system.NewPersistenceSystem(worldState, positions, bus, saveTicks, log)
		runner.Register(persistSys)
	}

	// 8. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	// Input is polled between full ticks so handler latency stays low.
	pollInterval := cfg.Network.TickRate / 10
	if pollInterval < time.Millisecond {
		pollInterval = time.Millisecond
	}
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("listening on ws://%s%s", netServer.Addr().String(), cfg.Network.Path))
	printReady(fmt.Sprintf("game loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case <-poll.C:
			runner.TickPhase(coresys.PhaseInput, 0)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			shutdown(netServer, runner, bus, persistSys, log)
			return nil
		}
	}
}

// shutdown closes every session, lets one last tick take their players out
// of the world, then saves everyone still online.
func shutdown(srv *gonet.Server, runner *coresys.Runner, bus *event.Bus, persistSys *system.PersistenceSystem, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	runner.TickPhase(coresys.PhaseInput, 0)
	bus.SwapBuffers()
	if n := bus.Pending(); n > 0 {
		log.Info("delivering pending events", zap.Int("events", n))
		bus.DispatchAll()
	}
	if persistSys != nil {
		persistSys.SaveAllPlayers()
	}
	log.Info("server stopped")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

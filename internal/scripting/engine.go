package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for world formulas.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script under scriptsDir.
// Core scripts load first so feature scripts can call into them.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	for _, sub := range []string{"core", "world"} {
		if err := e.loadDir(filepath.Join(scriptsDir, sub)); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory. A missing directory is not an error.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// CalcDayPhase maps time since server start onto a day phase number
// (1 dawn, 2 day, 3 dusk, 4 night) by calling calc_day_phase(elapsed_ms, cycle_ms).
// Falls back to equal quarters when the script is missing, fails or
// returns something out of range.
func (e *Engine) CalcDayPhase(elapsed, cycle time.Duration) int {
	if cycle <= 0 {
		return 1
	}
	fn := e.vm.GetGlobal("calc_day_phase")
	if fn == lua.LNil {
		return defaultDayPhase(elapsed, cycle)
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(elapsed.Milliseconds()), lua.LNumber(cycle.Milliseconds())); err != nil {
		e.log.Error("lua calc_day_phase error", zap.Error(err))
		return defaultDayPhase(elapsed, cycle)
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := ret.(lua.LNumber)
	if !ok || n < 1 || n > 4 {
		e.log.Warn("lua calc_day_phase returned invalid phase", zap.String("value", ret.String()))
		return defaultDayPhase(elapsed, cycle)
	}
	return int(n)
}

func defaultDayPhase(elapsed, cycle time.Duration) int {
	pos := elapsed % cycle
	return int(pos*4/cycle) + 1
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

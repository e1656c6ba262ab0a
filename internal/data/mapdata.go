package data

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// MapInfo holds metadata for a single map, loaded from map_list.yaml.
type MapInfo struct {
	Name        string        `yaml:"name"`
	AlwaysNight bool          `yaml:"always_night"`
	ViewRange   int           `yaml:"view_range"` // 0 = server default
	Entities    []EntitySpawn `yaml:"entities"`
	Pickups     []PickupSpawn `yaml:"pickups"`
}

// EntitySpawn places a mob or other non-player dynamic at load time.
type EntitySpawn struct {
	TypeName string         `yaml:"type"`
	Row      int            `yaml:"row"`
	Col      int            `yaml:"col"`
	Props    map[string]any `yaml:"props"`
}

// PickupSpawn places an item on the ground at load time.
type PickupSpawn struct {
	ItemType string `yaml:"item"`
	Quantity int    `yaml:"quantity"`
	Row      int    `yaml:"row"`
	Col      int    `yaml:"col"`
	TTL      int    `yaml:"ttl"`
}

// Tile flag bits in the CSV tile files.
const (
	tileWalkable byte = 0x01 // bit 0
	tileEntrance byte = 0x02 // bit 1
)

// MapData is the loaded layout of one map. Rows may differ in length.
type MapData struct {
	Info  MapInfo
	tiles [][]byte // tiles[row][col]
}

// NewMapData builds a map from in-memory rows of tile flags.
func NewMapData(info MapInfo, tiles [][]byte) *MapData {
	return &MapData{Info: info, tiles: tiles}
}

func (m *MapData) Rows() int { return len(m.tiles) }

func (m *MapData) Cols(row int) int {
	if row < 0 || row >= len(m.tiles) {
		return 0
	}
	return len(m.tiles[row])
}

// accessTile returns the tile flags at (row, col), or 0 if out of bounds.
func (m *MapData) accessTile(row, col int) byte {
	if row < 0 || row >= len(m.tiles) || col < 0 || col >= len(m.tiles[row]) {
		return 0
	}
	return m.tiles[row][col]
}

// InBounds reports whether (row, col) is a tile of this map.
func (m *MapData) InBounds(row, col int) bool {
	return row >= 0 && row < len(m.tiles) && col >= 0 && col < len(m.tiles[row])
}

func (m *MapData) IsWalkable(row, col int) bool {
	return m.accessTile(row, col)&tileWalkable != 0
}

func (m *MapData) IsEntrance(row, col int) bool {
	return m.accessTile(row, col)&tileEntrance != 0
}

// MapDataTable provides map lookups by case-insensitive name.
type MapDataTable struct {
	maps  map[string]*MapData
	order []string
}

type mapListFile struct {
	Maps []MapInfo `yaml:"maps"`
}

// FoldName normalizes a map or board name for lookups.
// A Caser is stateful, so each call gets its own.
func FoldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// LoadMapData loads map metadata from YAML and tile data from text files.
// yamlPath: path to map_list.yaml
// tileDir: directory containing {name}.txt tile files
func LoadMapData(yamlPath, tileDir string) (*MapDataTable, error) {
	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil, fmt.Errorf("read map list %s: %w", yamlPath, err)
	}
	var file mapListFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse map list: %w", err)
	}

	maps := make([]*MapData, 0, len(file.Maps))
	for _, info := range file.Maps {
		if info.Name == "" {
			return nil, fmt.Errorf("map list %s: entry without name", yamlPath)
		}
		tiles, err := loadTileFile(tileDir, info.Name)
		if err != nil {
			return nil, fmt.Errorf("load tiles for %s: %w", info.Name, err)
		}
		maps = append(maps, NewMapData(info, tiles))
	}
	table, err := NewMapDataTable(maps...)
	if err != nil {
		return nil, fmt.Errorf("map list %s: %w", yamlPath, err)
	}
	return table, nil
}

// NewMapDataTable indexes already-built maps by folded name, keeping order.
func NewMapDataTable(maps ...*MapData) (*MapDataTable, error) {
	table := &MapDataTable{maps: make(map[string]*MapData, len(maps))}
	for _, m := range maps {
		key := FoldName(m.Info.Name)
		if _, dup := table.maps[key]; dup {
			return nil, fmt.Errorf("duplicate map %q", m.Info.Name)
		}
		if err := m.validateSpawns(); err != nil {
			return nil, err
		}
		table.maps[key] = m
		table.order = append(table.order, key)
	}
	return table, nil
}

// loadTileFile reads a CSV tile file: each line is a row of comma-separated
// byte flags. Blank lines and lines starting with '#' are skipped.
func loadTileFile(dir, name string) ([][]byte, error) {
	f, err := os.Open(filepath.Join(dir, name+".txt"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		toks := strings.Split(line, ",")
		row := make([]byte, 0, len(toks))
		for _, tok := range toks {
			val, err := strconv.ParseUint(strings.TrimSpace(tok), 10, 8)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad tile %q", len(rows), tok)
			}
			row = append(row, byte(val))
		}
		rows = append(rows, row)
	}
	return rows, scanner.Err()
}

func (m *MapData) validateSpawns() error {
	for _, s := range m.Info.Entities {
		if !m.InBounds(s.Row, s.Col) {
			return fmt.Errorf("map %s: entity %s spawn (%d,%d) out of bounds", m.Info.Name, s.TypeName, s.Row, s.Col)
		}
	}
	for _, s := range m.Info.Pickups {
		if !m.InBounds(s.Row, s.Col) {
			return fmt.Errorf("map %s: pickup %s spawn (%d,%d) out of bounds", m.Info.Name, s.ItemType, s.Row, s.Col)
		}
	}
	return nil
}

// Count returns the number of maps loaded.
func (t *MapDataTable) Count() int {
	return len(t.maps)
}

// Get returns a map by name, or nil if not found.
func (t *MapDataTable) Get(name string) *MapData {
	return t.maps[FoldName(name)]
}

// All returns the maps in file order.
func (t *MapDataTable) All() []*MapData {
	out := make([]*MapData, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.maps[k])
	}
	return out
}

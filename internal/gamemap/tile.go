package gamemap

import "dungeon/internal/grid"

// TileKind identifies the type of a map tile. The numeric values match the
// cells of a generator grid.
type TileKind uint8

const (
	TileBlocked TileKind = iota
	TileFloor
)

// Tile is one authoritative map cell.
type Tile struct {
	Pos  grid.Position
	Kind TileKind
}

// Walkable reports whether players may stand on the tile.
func (t Tile) Walkable() bool { return t.Kind == TileFloor }

// Opaque reports whether the tile blocks line of sight.
func (t Tile) Opaque() bool { return !t.Walkable() }

// MakeFloor returns a walkable tile at p.
func MakeFloor(p grid.Position) Tile { return Tile{Pos: p, Kind: TileFloor} }

// MakeBlocked returns an unwalkable tile at p.
func MakeBlocked(p grid.Position) Tile { return Tile{Pos: p, Kind: TileBlocked} }

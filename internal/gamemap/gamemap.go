// Package gamemap is the tile store: an immutable mapping from grid
// coordinate to tile, built once from a generator grid.
package gamemap

import (
	"dungeon/internal/grid"
	"fmt"
	"sort"
)

// Store holds every tile of one world. It has no mutation API after Build,
// so it may be shared freely between goroutines.
type Store struct {
	Width, Height int
	tiles         map[grid.Position]Tile
}

// Build creates a Store from a row-major generator grid (cells[y][x]). A 1 is
// floor, anything else is blocked. Ragged rows are allowed.
func Build(cells [][]int) *Store {
	s := &Store{tiles: make(map[grid.Position]Tile)}
	s.Height = len(cells)
	for y, row := range cells {
		if len(row) > s.Width {
			s.Width = len(row)
		}
		for x, c := range row {
			p := grid.Position{X: x, Y: y}
			if c == int(TileFloor) {
				s.tiles[p] = MakeFloor(p)
			} else {
				s.tiles[p] = MakeBlocked(p)
			}
		}
	}
	return s
}

// Len returns the number of tiles.
func (s *Store) Len() int { return len(s.tiles) }

// Get returns the tile at (x, y), or false if none was generated there.
func (s *Store) Get(x, y int) (Tile, bool) {
	return s.At(grid.Position{X: x, Y: y})
}

// At returns the tile at p, or false if none was generated there.
func (s *Store) At(p grid.Position) (Tile, bool) {
	if s == nil {
		return Tile{}, false
	}
	t, ok := s.tiles[p]
	return t, ok
}

// IsWalkable returns true when a tile exists at p and it is floor. A
// coordinate with no tile is never walkable.
func (s *Store) IsWalkable(p grid.Position) bool {
	t, ok := s.At(p)
	return ok && t.Walkable()
}

// IsOpaque returns true when p blocks line of sight. Missing tiles are opaque.
func (s *Store) IsOpaque(p grid.Position) bool {
	return !s.IsWalkable(p)
}

// FloorTiles returns every floor position in row-major order.
func (s *Store) FloorTiles() []grid.Position {
	out := make([]grid.Position, 0, len(s.tiles))
	for p, t := range s.tiles {
		if t.Walkable() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Y != out[j].Y {
			return out[i].Y < out[j].Y
		}
		return out[i].X < out[j].X
	})
	return out
}

// Encode serializes the store as canonical key -> kind.
func (s *Store) Encode() map[string]TileKind {
	out := make(map[string]TileKind, len(s.tiles))
	for p, t := range s.tiles {
		out[p.Key()] = t.Kind
	}
	return out
}

// Decode rebuilds a Store from Encode output.
func Decode(encoded map[string]TileKind) (*Store, error) {
	s := &Store{tiles: make(map[grid.Position]Tile, len(encoded))}
	for key, kind := range encoded {
		p, err := grid.ParseKey(key)
		if err != nil {
			return nil, fmt.Errorf("decode tiles: %w", err)
		}
		s.tiles[p] = Tile{Pos: p, Kind: kind}
		if p.X+1 > s.Width {
			s.Width = p.X + 1
		}
		if p.Y+1 > s.Height {
			s.Height = p.Y + 1
		}
	}
	return s, nil
}

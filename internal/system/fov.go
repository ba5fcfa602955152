package system

import "dungeon/internal/grid"

// octant transform matrices.
// For each octant, a (dx, dy) sweep pair maps to a world offset via:
//   worldX = cx + dx*xx + dy*xy
//   worldY = cy + dx*yx + dy*yy
// where dx sweeps horizontally within the row and dy is the fixed row index.
// These match the standard RogueBasin recursive shadowcasting multipliers.
var octants = [8][4]int{
	{1, 0, 0, 1},
	{0, 1, 1, 0},
	{0, -1, 1, 0},
	{-1, 0, 0, 1},
	{-1, 0, 0, -1},
	{0, -1, -1, 0},
	{0, 1, -1, 0},
	{1, 0, 0, -1},
}

// Opacity reports whether a cell blocks line of sight.
type Opacity interface {
	IsOpaque(p grid.Position) bool
}

// Window returns the square of cells tracked around center: one ring wider
// than the sight radius so remembered tiles at the edge stay on screen.
func Window(center grid.Position, radius int) grid.Rect {
	return grid.Rect{
		X1: center.X - radius - 1,
		Y1: center.Y - radius - 1,
		X2: center.X + radius + 1,
		Y2: center.Y + radius + 1,
	}
}

// ComputeFOV runs recursive shadowcasting from origin and returns the set of
// lit cells. The origin is always lit. Opaque cells on the edge of a shadow
// are lit themselves; cells behind them are not. A nil opacity treats every
// cell as opaque.
func ComputeFOV(origin grid.Position, radius int, opaque Opacity) map[grid.Position]bool {
	lit := map[grid.Position]bool{origin: true}
	if radius <= 0 {
		return lit
	}
	fc := &fovCast{
		cx:     origin.X,
		cy:     origin.Y,
		radius: radius,
		// Half a cell of slack so radius 1 lights the diagonal neighbours.
		radiusSq: (float64(radius) + 0.5) * (float64(radius) + 0.5),
		window:   Window(origin, radius),
		opaque:   opaque,
		lit:      lit,
	}
	for _, m := range octants {
		fc.castLight(1, 1.0, 0.0, m[0], m[1], m[2], m[3])
	}
	return lit
}

type fovCast struct {
	cx, cy   int
	radius   int
	radiusSq float64
	window   grid.Rect
	opaque   Opacity
	lit      map[grid.Position]bool
}

func (fc *fovCast) isOpaque(p grid.Position) bool {
	return fc.opaque == nil || fc.opaque.IsOpaque(p)
}

// castLight casts light for one octant using recursive shadowcasting.
//
//   - j is the current row (distance from origin along the main axis)
//   - dy = -j is fixed for the entire inner sweep (the row coordinate)
//   - dx sweeps from -j to 0 (the column coordinate within the row)
//   - lSlope = (dx - 0.5) / (dy + 0.5)   rSlope = (dx + 0.5) / (dy - 0.5)
func (fc *fovCast) castLight(row int, start, end float64, xx, xy, yx, yy int) {
	if start < end {
		return
	}
	newStart := start

	for j := row; j <= fc.radius; j++ {
		dy := -j
		blocked := false

		for dx := -j; dx <= 0; dx++ {
			p := grid.Position{
				X: fc.cx + dx*xx + dy*xy,
				Y: fc.cy + dx*yx + dy*yy,
			}
			lSlope := (float64(dx) - 0.5) / (float64(dy) + 0.5)
			rSlope := (float64(dx) + 0.5) / (float64(dy) - 0.5)

			if start < rSlope {
				continue
			}
			if end > lSlope {
				break
			}

			if float64(dx*dx+dy*dy) <= fc.radiusSq && fc.window.Contains(p) {
				fc.lit[p] = true
			}

			opaque := fc.isOpaque(p)
			if blocked {
				if opaque {
					newStart = rSlope
				} else {
					blocked = false
					start = newStart
				}
			} else if opaque && j < fc.radius {
				blocked = true
				fc.castLight(j+1, start, lSlope, xx, xy, yx, yy)
				newStart = rSlope
			}
		}
		if blocked {
			break
		}
	}
}

// Locatable is anything with a grid cell, such as a player view.
type Locatable interface {
	Cell() grid.Position
}

// FilterPlayers keeps the players whose cell lies inside window. It is a plain
// bounding-box test; players are not shadowcast.
func FilterPlayers[T Locatable](window grid.Rect, players []T) []T {
	out := make([]T, 0, len(players))
	for _, p := range players {
		if window.Contains(p.Cell()) {
			out = append(out, p)
		}
	}
	return out
}

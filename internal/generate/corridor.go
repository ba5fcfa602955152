package generate

import "dungeon/internal/grid"

// carveCorridor digs a tunnel between a and b in the configured style.
func carveCorridor(c *canvas, a, b grid.Position, cfg *Config) {
	switch cfg.CorridorStyle {
	case CorridorZShaped:
		carveZShaped(c, a.X, a.Y, b.X, b.Y)
	case CorridorStraight:
		carveH(c, a.X, b.X, a.Y)
		carveV(c, a.Y, b.Y, b.X)
	default: // LShaped
		if cfg.Rand.Intn(2) == 0 {
			carveH(c, a.X, b.X, a.Y)
			carveV(c, a.Y, b.Y, b.X)
		} else {
			carveV(c, a.Y, b.Y, a.X)
			carveH(c, a.X, b.X, b.Y)
		}
	}
}

func carveH(c *canvas, x1, x2, y int) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	for x := x1; x <= x2; x++ {
		c.carve(x, y)
	}
}

func carveV(c *canvas, y1, y2, x int) {
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	for y := y1; y <= y2; y++ {
		c.carve(x, y)
	}
}

func carveZShaped(c *canvas, x1, y1, x2, y2 int) {
	midY := (y1 + y2) / 2
	carveV(c, y1, midY, x1)
	carveH(c, x1, x2, midY)
	carveV(c, midY, y2, x2)
}

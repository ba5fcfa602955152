// Package generate produces dungeon layouts as plain {0,1} grids. It knows
// nothing about tiles or players; the tile store consumes its output.
package generate

import (
	"dungeon/internal/grid"
	"math/rand"
)

// Cell values written into the output grid.
const (
	Blocked = 0
	Floor   = 1
)

// CorridorStyle selects the shape of connecting tunnels.
type CorridorStyle uint8

const (
	CorridorLShaped CorridorStyle = iota
	CorridorZShaped
	CorridorStraight
)

// Config drives procedural generation for one map.
type Config struct {
	MapWidth, MapHeight int
	MinLeafSize         int
	MaxLeafSize         int
	MinRoomSize         int
	RoomPadding         int
	CorridorStyle       CorridorStyle
	Rand                *rand.Rand
}

// DefaultConfig returns the layout used by the server when no overrides are
// given.
func DefaultConfig(width, height int, rng *rand.Rand) *Config {
	return &Config{
		MapWidth:    width,
		MapHeight:   height,
		MinLeafSize: 8,
		MaxLeafSize: 20,
		MinRoomSize: 4,
		RoomPadding: 1,
		Rand:        rng,
	}
}

// Layout is the generator output: cells[y][x] plus the carved rooms.
type Layout struct {
	Cells [][]int
	Rooms []grid.Rect
}

type canvas struct {
	w, h  int
	cells [][]int
}

func newCanvas(w, h int) *canvas {
	cells := make([][]int, h)
	for y := range cells {
		cells[y] = make([]int, w)
	}
	return &canvas{w: w, h: h, cells: cells}
}

func (c *canvas) inBounds(x, y int) bool {
	return x >= 0 && x < c.w && y >= 0 && y < c.h
}

func (c *canvas) carve(x, y int) {
	if c.inBounds(x, y) {
		c.cells[y][x] = Floor
	}
}

func (c *canvas) isFloor(x, y int) bool {
	return c.inBounds(x, y) && c.cells[y][x] == Floor
}

// bspLeaf is a node in the BSP tree.
type bspLeaf struct {
	X, Y, W, H  int
	left, right *bspLeaf
	room        *grid.Rect
}

// split divides the leaf into two children, returning false when leaf is too small.
func (l *bspLeaf) split(cfg *Config) bool {
	if l.left != nil || l.right != nil {
		return false
	}
	// Split across the long axis when the leaf is clearly elongated.
	splitH := cfg.Rand.Intn(2) == 0
	if l.W > l.H && float64(l.W)/float64(l.H) >= 1.25 {
		splitH = false
	} else if l.H > l.W && float64(l.H)/float64(l.W) >= 1.25 {
		splitH = true
	}

	maxSize := l.H
	if !splitH {
		maxSize = l.W
	}
	if maxSize <= cfg.MinLeafSize*2 {
		return false
	}

	lo := cfg.MinLeafSize
	hi := maxSize - cfg.MinLeafSize
	if lo >= hi {
		return false
	}
	at := lo + cfg.Rand.Intn(hi-lo+1)

	if splitH {
		l.left = &bspLeaf{X: l.X, Y: l.Y, W: l.W, H: at}
		l.right = &bspLeaf{X: l.X, Y: l.Y + at, W: l.W, H: l.H - at}
	} else {
		l.left = &bspLeaf{X: l.X, Y: l.Y, W: at, H: l.H}
		l.right = &bspLeaf{X: l.X + at, Y: l.Y, W: l.W - at, H: l.H}
	}
	return true
}

// createRooms recursively carves rooms inside terminal leaves.
func (l *bspLeaf) createRooms(c *canvas, cfg *Config, rooms *[]grid.Rect) {
	if l.left != nil || l.right != nil {
		if l.left != nil {
			l.left.createRooms(c, cfg, rooms)
		}
		if l.right != nil {
			l.right.createRooms(c, cfg, rooms)
		}
		return
	}
	pad := cfg.RoomPadding
	minSize := cfg.MinRoomSize

	availW := max(l.W-2*pad, minSize)
	availH := max(l.H-2*pad, minSize)

	rw := minSize + cfg.Rand.Intn(max(1, availW-minSize+1))
	rh := minSize + cfg.Rand.Intn(max(1, availH-minSize+1))
	rw = max(min(rw, l.W-2*pad), 3)
	rh = max(min(rh, l.H-2*pad), 3)

	rx := l.X + pad + cfg.Rand.Intn(max(1, l.W-rw-2*pad+1))
	ry := l.Y + pad + cfg.Rand.Intn(max(1, l.H-rh-2*pad+1))

	// Keep a one-cell blocked border around the map.
	rx = max(rx, 1)
	ry = max(ry, 1)
	if rx+rw >= c.w {
		rw = c.w - rx - 1
	}
	if ry+rh >= c.h {
		rh = c.h - ry - 1
	}
	if rw < 3 || rh < 3 {
		return
	}

	room := grid.Rect{X1: rx, Y1: ry, X2: rx + rw - 1, Y2: ry + rh - 1}
	l.room = &room
	for y := room.Y1; y <= room.Y2; y++ {
		for x := room.X1; x <= room.X2; x++ {
			c.carve(x, y)
		}
	}
	*rooms = append(*rooms, room)
}

// getRoom returns a room from this subtree, preferring the left side.
func (l *bspLeaf) getRoom() *grid.Rect {
	if l.room != nil {
		return l.room
	}
	var lRoom, rRoom *grid.Rect
	if l.left != nil {
		lRoom = l.left.getRoom()
	}
	if l.right != nil {
		rRoom = l.right.getRoom()
	}
	if lRoom == nil {
		return rRoom
	}
	return lRoom
}

// connectChildren carves corridors between the two children of a split leaf.
func (l *bspLeaf) connectChildren(c *canvas, cfg *Config) {
	if l.left == nil || l.right == nil {
		return
	}
	l.left.connectChildren(c, cfg)
	l.right.connectChildren(c, cfg)

	lRoom := l.left.getRoom()
	rRoom := l.right.getRoom()
	if lRoom == nil || rRoom == nil {
		return
	}
	carveCorridor(c, lRoom.Center(), rRoom.Center(), cfg)
}

// Generate runs BSP generation and returns the carved layout.
func Generate(cfg *Config) Layout {
	c := newCanvas(cfg.MapWidth, cfg.MapHeight)
	root := &bspLeaf{X: 0, Y: 0, W: cfg.MapWidth, H: cfg.MapHeight}

	leaves := []*bspLeaf{root}
	splitAny := true
	for splitAny {
		splitAny = false
		var next []*bspLeaf
		for _, leaf := range leaves {
			if leaf.left != nil || leaf.right != nil {
				next = append(next, leaf.left, leaf.right)
				continue
			}
			if leaf.W > cfg.MaxLeafSize || leaf.H > cfg.MaxLeafSize ||
				cfg.Rand.Float64() > 0.25 {
				if leaf.split(cfg) {
					next = append(next, leaf.left, leaf.right)
					splitAny = true
					continue
				}
			}
			next = append(next, leaf)
		}
		leaves = next
	}

	var rooms []grid.Rect
	root.createRooms(c, cfg, &rooms)
	root.connectChildren(c, cfg)
	return Layout{Cells: c.cells, Rooms: rooms}
}

package client

import (
	"dungeon/internal/grid"
	"dungeon/internal/system"
)

// DefaultRadius is the sight radius when none is configured.
const DefaultRadius = 5

// Camera holds the client-local visibility annotations: which tiles are in
// the window, which are in view, and which have ever been seen. None of it
// is authoritative.
type Camera struct {
	Radius int

	window   grid.Rect
	origin   grid.Position
	visible  map[grid.Position]bool
	explored map[grid.Position]bool

	lo, hi grid.Position
	valid  bool
}

// NewCamera returns a camera with the given sight radius.
func NewCamera(radius int) *Camera {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Camera{
		Radius:   radius,
		visible:  map[grid.Position]bool{},
		explored: map[grid.Position]bool{},
	}
}

// Invalidate forces the next Update to recompute, for example after the
// tile map was replaced.
func (c *Camera) Invalidate() { c.valid = false }

// Forget clears the explored memory.
func (c *Camera) Forget() { clear(c.explored) }

// Update recomputes visibility for a viewer at the animated position v. The
// window spans the floor and ceiling cells of v so both ends of a move in
// flight stay covered; shadowcasting starts from the nearest cell. It
// reports whether anything was recomputed.
func (c *Camera) Update(v grid.Vec, tiles system.Opacity) bool {
	lo, hi, origin := v.Floor(), v.Ceil(), v.Nearest()
	if c.valid && lo == c.lo && hi == c.hi && origin == c.origin {
		return false
	}
	c.lo, c.hi, c.origin = lo, hi, origin
	c.valid = true

	r := c.Radius
	c.window = grid.Rect{X1: lo.X - r - 1, Y1: lo.Y - r - 1, X2: hi.X + r + 1, Y2: hi.Y + r + 1}
	clear(c.visible)
	for p := range system.ComputeFOV(origin, r, tiles) {
		if c.window.Contains(p) {
			c.visible[p] = true
			c.explored[p] = true
		}
	}
	return true
}

// Window returns the current bounding window.
func (c *Camera) Window() grid.Rect { return c.window }

// Origin returns the cell shadowcasting started from.
func (c *Camera) Origin() grid.Position { return c.origin }

// InFOV reports whether p is currently in view.
func (c *Camera) InFOV(p grid.Position) bool { return c.visible[p] }

// InWindow reports whether p is inside the window.
func (c *Camera) InWindow(p grid.Position) bool { return c.window.Contains(p) }

// Explored reports whether p has ever been in view.
func (c *Camera) Explored(p grid.Position) bool { return c.explored[p] }

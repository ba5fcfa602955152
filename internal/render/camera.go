package render

import (
	"dungeon/internal/grid"
	"math"
)

// Camera translates between world coordinates and screen coordinates.
// World X is multiplied by 2 because emoji occupy 2 terminal columns, which
// also lets a sprite half way through a step land on a whole column.
type Camera struct {
	Center     grid.Vec
	ViewWidth  int // in terminal columns
	ViewHeight int // in terminal rows
}

// NewCamera creates a camera for a viewport of the given size.
func NewCamera(viewW, viewH int) *Camera {
	return &Camera{ViewWidth: viewW, ViewHeight: viewH}
}

// CenterOn keeps v in the middle of the viewport.
func (c *Camera) CenterOn(v grid.Vec) { c.Center = v }

// VecToScreen converts a possibly fractional world position to screen
// coordinates. visible is false when the glyph would not fit.
func (c *Camera) VecToScreen(v grid.Vec) (sx, sy int, visible bool) {
	sx = c.ViewWidth/2 - 1 + int(math.Round((v.X-c.Center.X)*2))
	sy = c.ViewHeight/2 + int(math.Round(v.Y-c.Center.Y))
	visible = sx >= 0 && sx+1 < c.ViewWidth && sy >= 0 && sy < c.ViewHeight
	return
}

// WorldToScreen converts a cell to screen coordinates.
func (c *Camera) WorldToScreen(p grid.Position) (sx, sy int, visible bool) {
	return c.VecToScreen(p.Vec())
}

package client

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"time"
)

// Frame is everything a renderer needs for one refresh.
type Frame struct {
	Now      time.Time
	Ready    bool
	Refused  bool
	Waiting  bool
	Window   grid.Rect
	Origin   grid.Position
	Tiles    []FrameTile
	Me       Sprite
	Players  []Sprite // others inside the window, sorted by identity
	Messages []string
}

// FrameTile is one cell of the window with its visibility annotations.
type FrameTile struct {
	Pos      grid.Position
	Kind     gamemap.TileKind
	Present  bool
	InFOV    bool
	Explored bool
}

// Sprite is a player as drawn: animated position plus cosmetic state.
type Sprite struct {
	Identity    string
	Cell        grid.Position
	At          grid.Vec
	Direction   grid.Direction
	PressingKey bool
	Animating   bool
	Avatar      string
	Connected   bool
	Self        bool
}

func spriteOf(e *Entity, now time.Time, self bool) Sprite {
	return Sprite{
		Identity:    e.Identity,
		Cell:        e.Position,
		At:          e.Animated(now),
		Direction:   e.Direction,
		PressingKey: e.PressingKey,
		Animating:   e.Animating,
		Avatar:      e.Avatar,
		Connected:   e.Connected,
		Self:        self,
	}
}

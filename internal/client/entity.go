package client

import (
	"dungeon/internal/grid"
	"dungeon/internal/protocol"
	"time"
)

// AnimationDuration is how long one step takes on screen. It matches the
// local move interval so animations never queue.
const AnimationDuration = 200 * time.Millisecond

// Entity is the client projection of one player plus its animation state.
type Entity struct {
	Identity     string
	Position     grid.Position
	LastPosition grid.Position
	Direction    grid.Direction
	PressingKey  bool
	Avatar       string
	Connected    bool

	Animating   bool
	ActionStart time.Time
}

func entityFromDTO(p protocol.Player) *Entity {
	return &Entity{
		Identity:     p.Identity,
		Position:     p.Position.Clone(),
		LastPosition: p.Position.Clone(),
		Direction:    p.Direction,
		PressingKey:  p.PressingKey,
		Avatar:       p.Avatar,
		Connected:    p.Connected,
	}
}

// Cell returns the authoritative cell of the entity.
func (e *Entity) Cell() grid.Position { return e.Position }

// Progress returns the animation fraction at now, clamped to [0, 1].
func (e *Entity) Progress(now time.Time) float64 {
	if !e.Animating {
		return 1
	}
	t := float64(now.Sub(e.ActionStart)) / float64(AnimationDuration)
	return min(max(t, 0), 1)
}

// Animated returns the interpolated position at now.
func (e *Entity) Animated(now time.Time) grid.Vec {
	if !e.Animating {
		return e.Position.Vec()
	}
	return grid.Lerp(e.LastPosition, e.Position, e.Progress(now))
}

// Advance ends the animation once it has run its full duration.
func (e *Entity) Advance(now time.Time) {
	if e.Animating && e.Progress(now) >= 1 {
		e.Animating = false
		e.LastPosition = e.Position
	}
}

// StartMove begins an interpolation from the current cell to `to`.
func (e *Entity) StartMove(to grid.Position, now time.Time) {
	e.LastPosition = e.Position
	e.Position = to
	e.ActionStart = now
	e.Animating = true
}

// retarget restarts the interpolation from `from` toward the authoritative
// cell `to`. No animation runs when the two match.
func (e *Entity) retarget(from, to grid.Position, now time.Time) {
	e.LastPosition = from
	e.Position = to
	e.ActionStart = now
	e.Animating = from != to
}

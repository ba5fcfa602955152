// Package system holds the rules shared by the server and the client: the
// move predicate and the visibility engine. Everything here is pure.
package system

import "dungeon/internal/grid"

// MoveResult describes the outcome of a CheckMove call.
type MoveResult uint8

const (
	MoveOK      MoveResult = iota // candidate is free floor
	MoveBlocked                   // occupied, blocked or missing tile
)

func (r MoveResult) String() string {
	if r == MoveOK {
		return "ok"
	}
	return "blocked"
}

// Occupancy reports whether another player stands on p.
type Occupancy interface {
	Occupied(p grid.Position) bool
}

// Walkability reports whether p may be stood on.
type Walkability interface {
	IsWalkable(p grid.Position) bool
}

// CheckMove computes the step from one cell in dir and validates it. The
// candidate is always returned so callers can report where the player tried
// to go. Occupied must not include the mover itself.
func CheckMove(from grid.Position, dir grid.Direction, occupied Occupancy, tiles Walkability) (grid.Position, MoveResult) {
	if !dir.Valid() {
		return from, MoveBlocked
	}
	to := from.Move(dir)
	if occupied != nil && occupied.Occupied(to) {
		return to, MoveBlocked
	}
	if tiles == nil || !tiles.IsWalkable(to) {
		return to, MoveBlocked
	}
	return to, MoveOK
}

// OccupancySet is a map-backed Occupancy.
type OccupancySet map[grid.Position]struct{}

// Add marks p as occupied.
func (s OccupancySet) Add(p grid.Position) { s[p] = struct{}{} }

// Occupied implements Occupancy.
func (s OccupancySet) Occupied(p grid.Position) bool {
	_, ok := s[p]
	return ok
}

// Package grid holds the integer coordinate primitives shared by the server,
// the client, and the wire protocol.
package grid

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrBadKey is returned by ParseKey for strings that are not "x,y".
var ErrBadKey = errors.New("grid: malformed coordinate key")

// Position is an authoritative grid cell. It is a value type: assigning or
// passing a Position copies it, so two entities can never share one.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Equals reports whether p and o name the same cell.
func (p Position) Equals(o Position) bool { return p.X == o.X && p.Y == o.Y }

// Clone returns a copy of p. Use it where a position crosses an ownership
// boundary so the copy is visible at the call site.
func (p Position) Clone() Position { return Position{X: p.X, Y: p.Y} }

// Move returns the neighbouring cell one step in dir. None returns p.
func (p Position) Move(dir Direction) Position {
	dx, dy := dir.Delta()
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Key returns the canonical "x,y" map key for p.
func (p Position) Key() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

// String implements fmt.Stringer.
func (p Position) String() string { return "(" + p.Key() + ")" }

// Vec returns p as a float vector.
func (p Position) Vec() Vec { return Vec{X: float64(p.X), Y: float64(p.Y)} }

// ParseKey reverses Key.
func ParseKey(key string) (Position, error) {
	xs, ys, ok := strings.Cut(key, ",")
	if !ok {
		return Position{}, fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %q", ErrBadKey, key)
	}
	return Position{X: x, Y: y}, nil
}

// Vec is a float position used for animation. It is always derived from two
// Positions and never stored as authoritative state.
type Vec struct {
	X, Y float64
}

// Lerp returns a + (b-a)*t.
func Lerp(a, b Position, t float64) Vec {
	return Vec{
		X: float64(a.X) + float64(b.X-a.X)*t,
		Y: float64(a.Y) + float64(b.Y-a.Y)*t,
	}
}

// Nearest rounds v to the closest cell.
func (v Vec) Nearest() Position {
	return Position{X: int(math.Round(v.X)), Y: int(math.Round(v.Y))}
}

// Floor returns the cell containing the lower corner of v.
func (v Vec) Floor() Position {
	return Position{X: int(math.Floor(v.X)), Y: int(math.Floor(v.Y))}
}

// Ceil returns the cell containing the upper corner of v.
func (v Vec) Ceil() Position {
	return Position{X: int(math.Ceil(v.X)), Y: int(math.Ceil(v.Y))}
}

package client

import (
	"dungeon/internal/grid"
	"math/rand"
	"time"
)

// Key is a movement key as reported by the host.
type Key uint8

const (
	KeyUp Key = iota
	KeyDown
	KeyLeft
	KeyRight
	KeyW
	KeyA
	KeyS
	KeyD
)

// keyOrder resolves simultaneous presses: right, left, down, up.
var keyOrder = []struct {
	keys [2]Key
	dir  grid.Direction
}{
	{[2]Key{KeyD, KeyRight}, grid.Right},
	{[2]Key{KeyA, KeyLeft}, grid.Left},
	{[2]Key{KeyS, KeyDown}, grid.Down},
	{[2]Key{KeyW, KeyUp}, grid.Up},
}

// Input tracks which movement keys are down and turns them into at most one
// direction per tick.
type Input struct {
	pressed map[Key]time.Time
	// hold, when set, releases a key that has not been pressed again within
	// the window. Terminals report presses and repeats but never releases.
	hold time.Duration
}

// NewInput returns an Input. Pass hold=0 for hosts with real key-up events.
func NewInput(hold time.Duration) *Input {
	return &Input{pressed: make(map[Key]time.Time), hold: hold}
}

// Press marks k down at now. Repeats refresh the hold window.
func (in *Input) Press(k Key, now time.Time) { in.pressed[k] = now }

// Release marks k up.
func (in *Input) Release(k Key) { delete(in.pressed, k) }

// ReleaseAll clears every key, for example when the window loses focus.
func (in *Input) ReleaseAll() { clear(in.pressed) }

func (in *Input) expire(now time.Time) {
	if in.hold <= 0 {
		return
	}
	for k, at := range in.pressed {
		if now.Sub(at) >= in.hold {
			delete(in.pressed, k)
		}
	}
}

// Intent returns the highest-priority direction currently held.
func (in *Input) Intent(now time.Time) (grid.Direction, bool) {
	in.expire(now)
	for _, o := range keyOrder {
		for _, k := range o.keys {
			if _, ok := in.pressed[k]; ok {
				return o.dir, true
			}
		}
	}
	return grid.None, false
}

// KeyFor maps a direction to its arrow key.
func KeyFor(d grid.Direction) (Key, bool) {
	switch d {
	case grid.Up:
		return KeyUp, true
	case grid.Down:
		return KeyDown, true
	case grid.Left:
		return KeyLeft, true
	case grid.Right:
		return KeyRight, true
	}
	return 0, false
}

// WanderInterval is how often a wandering client picks a new direction.
const WanderInterval = 500 * time.Millisecond

// Wanderer presses a random arrow key every WanderInterval. It drives
// unattended clients for load and soak testing.
type Wanderer struct {
	rng  *rand.Rand
	next time.Time
	key  Key
}

// NewWanderer returns a Wanderer using rng.
func NewWanderer(rng *rand.Rand) *Wanderer { return &Wanderer{rng: rng} }

// Step presses the current key and picks a new one when the interval ends.
func (w *Wanderer) Step(now time.Time, in *Input) {
	if !now.Before(w.next) {
		in.Release(w.key)
		w.key, _ = KeyFor(grid.Directions[w.rng.Intn(len(grid.Directions))])
		w.next = now.Add(WanderInterval)
	}
	in.Press(w.key, now)
}

package grid

import "fmt"

// Direction is one of the four cardinal facings.
type Direction uint8

const (
	None Direction = iota
	Up
	Down
	Left
	Right
)

// Directions lists the cardinal directions in wire order.
var Directions = [4]Direction{Up, Down, Left, Right}

// Delta converts the direction to a (dx, dy) step. Up is -y.
func (d Direction) Delta() (int, int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	case Right:
		return 1, 0
	}
	return 0, 0
}

// String returns the wire name.
func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return ""
}

// Valid reports whether d is a cardinal direction.
func (d Direction) Valid() bool { return d >= Up && d <= Right }

// ParseDirection maps a wire name to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return None, fmt.Errorf("grid: unknown direction %q", s)
}

// MarshalText implements encoding.TextMarshaler. None encodes as "".
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler. "" decodes to None.
func (d *Direction) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = None
		return nil
	}
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

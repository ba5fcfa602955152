package system

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"testing"
)

// openRoom returns a w x h map whose border is blocked and interior is floor.
func openRoom(w, h int) *gamemap.Store {
	cells := make([][]int, h)
	for y := range cells {
		cells[y] = make([]int, w)
		for x := range cells[y] {
			if x > 0 && y > 0 && x < w-1 && y < h-1 {
				cells[y][x] = 1
			}
		}
	}
	return gamemap.Build(cells)
}

func TestCheckMove(t *testing.T) {
	tiles := openRoom(10, 10)
	others := OccupancySet{}
	others.Add(grid.Position{X: 6, Y: 5})

	cases := []struct {
		name string
		from grid.Position
		dir  grid.Direction
		want grid.Position
		res  MoveResult
	}{
		{"free floor", grid.Position{X: 5, Y: 4}, grid.Right, grid.Position{X: 6, Y: 4}, MoveOK},
		{"occupied by other", grid.Position{X: 5, Y: 5}, grid.Right, grid.Position{X: 6, Y: 5}, MoveBlocked},
		{"into wall", grid.Position{X: 1, Y: 1}, grid.Up, grid.Position{X: 1, Y: 0}, MoveBlocked},
		{"off the map", grid.Position{X: 0, Y: 5}, grid.Left, grid.Position{X: -1, Y: 5}, MoveBlocked},
		{"no direction", grid.Position{X: 5, Y: 4}, grid.None, grid.Position{X: 5, Y: 4}, MoveBlocked},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, res := CheckMove(tc.from, tc.dir, others, tiles)
			if res != tc.res {
				t.Fatalf("result = %v, want %v", res, tc.res)
			}
			if got != tc.want {
				t.Errorf("candidate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckMoveNilTilesFailsClosed(t *testing.T) {
	if _, res := CheckMove(grid.Position{X: 1, Y: 1}, grid.Down, nil, nil); res != MoveBlocked {
		t.Fatalf("expected MoveBlocked without a tile store, got %v", res)
	}
}

func TestCheckMoveDoesNotMutateOrigin(t *testing.T) {
	tiles := openRoom(5, 5)
	from := grid.Position{X: 2, Y: 2}
	to, _ := CheckMove(from, grid.Down, OccupancySet{}, tiles)
	if from != (grid.Position{X: 2, Y: 2}) {
		t.Fatalf("origin changed to %v", from)
	}
	if to != (grid.Position{X: 2, Y: 3}) {
		t.Fatalf("candidate = %v", to)
	}
}

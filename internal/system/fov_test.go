package system

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"testing"
)

// openMapFOV creates a fully-open (all floor) map for FOV tests.
func openMapFOV(width, height int) *gamemap.Store {
	cells := make([][]int, height)
	for y := range cells {
		cells[y] = make([]int, width)
		for x := range cells[y] {
			cells[y][x] = 1
		}
	}
	return gamemap.Build(cells)
}

// withWalls builds an open map and blocks the given cells.
func withWalls(width, height int, walls ...grid.Position) *gamemap.Store {
	cells := make([][]int, height)
	for y := range cells {
		cells[y] = make([]int, width)
		for x := range cells[y] {
			cells[y][x] = 1
		}
	}
	for _, w := range walls {
		cells[w.Y][w.X] = 0
	}
	return gamemap.Build(cells)
}

func TestWindowBounds(t *testing.T) {
	got := Window(grid.Position{X: 10, Y: 4}, 5)
	want := grid.Rect{X1: 4, Y1: -2, X2: 16, Y2: 10}
	if got != want {
		t.Fatalf("Window = %+v, want %+v", got, want)
	}
}

func TestFOVOriginAlwaysVisible(t *testing.T) {
	lit := ComputeFOV(grid.Position{X: 5, Y: 5}, 5, openMapFOV(20, 20))
	if !lit[grid.Position{X: 5, Y: 5}] {
		t.Error("viewer's own tile must always be visible")
	}
}

func TestFOVZeroRadiusOnlyOrigin(t *testing.T) {
	lit := ComputeFOV(grid.Position{X: 5, Y: 5}, 0, openMapFOV(20, 20))
	if len(lit) != 1 {
		t.Fatalf("radius 0 lit %d cells, want 1", len(lit))
	}
}

func TestFOVOpenThreeByThree(t *testing.T) {
	tiles := openMapFOV(3, 3)
	lit := ComputeFOV(grid.Position{X: 1, Y: 1}, 1, tiles)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			if !lit[grid.Position{X: x, Y: y}] {
				t.Errorf("tile (%d,%d) should be in view with radius 1", x, y)
			}
		}
	}
	if len(lit) != 9 {
		t.Errorf("lit %d cells, want 9", len(lit))
	}
}

func TestFOVNearbyTilesVisible(t *testing.T) {
	lit := ComputeFOV(grid.Position{X: 10, Y: 10}, 5, openMapFOV(20, 20))
	for _, p := range []grid.Position{{X: 10, Y: 7}, {X: 10, Y: 13}, {X: 7, Y: 10}, {X: 13, Y: 10}} {
		if !lit[p] {
			t.Errorf("tile %v at distance 3 should be visible (radius=5)", p)
		}
	}
}

func TestFOVRadiusLimitsVisibility(t *testing.T) {
	lit := ComputeFOV(grid.Position{X: 10, Y: 10}, 4, openMapFOV(20, 20))
	for _, p := range []grid.Position{{X: 10, Y: 15}, {X: 10, Y: 5}, {X: 15, Y: 10}, {X: 5, Y: 10}} {
		if lit[p] {
			t.Errorf("tile %v at distance 5 should not be visible with radius=4", p)
		}
	}
}

func TestFOVStaysInsideWindow(t *testing.T) {
	origin := grid.Position{X: 10, Y: 10}
	win := Window(origin, 6)
	for p := range ComputeFOV(origin, 6, openMapFOV(20, 20)) {
		if !win.Contains(p) {
			t.Errorf("lit cell %v outside window %+v", p, win)
		}
	}
}

func TestFOVWallBlocksLight(t *testing.T) {
	tiles := withWalls(20, 20, grid.Position{X: 10, Y: 8})
	lit := ComputeFOV(grid.Position{X: 10, Y: 10}, 8, tiles)

	if !lit[grid.Position{X: 10, Y: 8}] {
		t.Error("the wall tile at (10,8) should be visible")
	}
	if lit[grid.Position{X: 10, Y: 7}] {
		t.Error("tile (10,7) behind the wall at (10,8) should not be visible")
	}
}

func TestFOVAdjacentOccluder(t *testing.T) {
	tiles := withWalls(5, 5, grid.Position{X: 3, Y: 2})
	lit := ComputeFOV(grid.Position{X: 2, Y: 2}, 2, tiles)

	if !lit[grid.Position{X: 3, Y: 2}] {
		t.Error("adjacent wall should be visible")
	}
	if lit[grid.Position{X: 4, Y: 2}] {
		t.Error("tile strictly behind the adjacent wall should be hidden")
	}
	if !lit[grid.Position{X: 0, Y: 2}] {
		t.Error("open side should still be visible")
	}
}

type marker grid.Position

func (m marker) Cell() grid.Position { return grid.Position(m) }

func TestFilterPlayers(t *testing.T) {
	win := Window(grid.Position{X: 5, Y: 5}, 1)
	in := []marker{{X: 5, Y: 5}, {X: 3, Y: 3}, {X: 7, Y: 7}, {X: 8, Y: 5}, {X: 5, Y: 2}}
	got := FilterPlayers(win, in)
	if len(got) != 3 {
		t.Fatalf("kept %d players, want 3: %v", len(got), got)
	}
	for _, m := range got {
		if !win.Contains(m.Cell()) {
			t.Errorf("kept %v outside window", m)
		}
	}
}

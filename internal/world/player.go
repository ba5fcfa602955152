package world

import (
	"dungeon/internal/grid"
	"dungeon/internal/store"
	"time"
)

// DefaultAvatars is the palette handed out round-robin to new players.
var DefaultAvatars = []string{"knight", "wizard", "rogue", "cleric", "ranger", "bard"}

// Player is the authoritative server record of one identity. Only the
// Registry mutates it; everything that leaves the registry is a PlayerView.
type Player struct {
	Identity    string
	Position    grid.Position
	Direction   grid.Direction
	PressingKey bool
	Avatar      string
	Connected   bool
	// ConnID names the live connection. It changes on every reconnect and is
	// never persisted or used as a key.
	ConnID string

	lastMoveAt time.Time
}

// View returns a deep copy of p safe to hand across goroutines.
func (p *Player) View() PlayerView {
	return PlayerView{
		Identity:    p.Identity,
		Position:    p.Position.Clone(),
		Direction:   p.Direction,
		PressingKey: p.PressingKey,
		Avatar:      p.Avatar,
		Connected:   p.Connected,
	}
}

func (p *Player) record() store.PlayerRecord {
	return store.PlayerRecord{
		Identity:  p.Identity,
		Position:  p.Position.Clone(),
		Direction: p.Direction,
		Avatar:    p.Avatar,
	}
}

func playerFromRecord(r store.PlayerRecord) *Player {
	return &Player{
		Identity:  r.Identity,
		Position:  r.Position.Clone(),
		Direction: r.Direction,
		Avatar:    r.Avatar,
	}
}

// PlayerView is an immutable snapshot of a Player.
type PlayerView struct {
	Identity    string
	Position    grid.Position
	Direction   grid.Direction
	PressingKey bool
	Avatar      string
	Connected   bool
}

// Cell returns the view's grid cell.
func (v PlayerView) Cell() grid.Position { return v.Position }

// Package world is the authoritative player registry. It enforces the
// occupancy and walkability rules and persists a full snapshot after every
// committed mutation.
package world

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"dungeon/internal/store"
	"dungeon/internal/system"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrWorldFull means no free floor tile is left for placement.
	ErrWorldFull = errors.New("world: no free floor tile")
	// ErrUnknownPlayer is returned for identities not in the registry.
	ErrUnknownPlayer = errors.New("world: unknown player")
	// ErrPlayerExists is returned by Create for a known identity.
	ErrPlayerExists = errors.New("world: player already exists")
	// ErrPersist wraps a player store failure. The mutation that triggered it
	// has been rolled back.
	ErrPersist = errors.New("world: persist players")
)

// MoveOutcome is the result of AttemptMove.
type MoveOutcome uint8

const (
	Moved     MoveOutcome = iota // position committed
	Blocked                      // facing updated, position unchanged
	Throttled                    // too soon after the previous move, nothing changed
)

func (o MoveOutcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case Blocked:
		return "blocked"
	case Throttled:
		return "throttled"
	}
	return "unknown"
}

// Config wires a Registry.
type Config struct {
	Tiles *gamemap.Store
	Store store.PlayerStore
	Rand  *rand.Rand
	// MinMoveInterval is the shortest gap between two accepted moves of one
	// player. Zero disables throttling.
	MinMoveInterval time.Duration
	Now             func() time.Time
	Avatars         []string
	Logger          *zap.Logger
}

// Registry owns every known player. It is not safe for concurrent use; the
// session hub serializes all calls.
type Registry struct {
	tiles       *gamemap.Store
	store       store.PlayerStore
	rng         *rand.Rand
	minInterval time.Duration
	now         func() time.Time
	avatars     []string
	log         *zap.Logger

	players map[string]*Player
	created int
}

// New loads every persisted player (all disconnected) and returns the
// registry. Players whose stored cell is no longer free floor, for example
// after the map was regenerated, are placed again.
func New(cfg Config) (*Registry, error) {
	if cfg.Tiles == nil {
		return nil, errors.New("world: nil tile store")
	}
	r := &Registry{
		tiles:       cfg.Tiles,
		store:       cfg.Store,
		rng:         cfg.Rand,
		minInterval: cfg.MinMoveInterval,
		now:         cfg.Now,
		avatars:     cfg.Avatars,
		log:         cfg.Logger,
		players:     make(map[string]*Player),
	}
	if r.store == nil {
		r.store = &store.Memory[store.PlayerRecord]{}
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if r.now == nil {
		r.now = time.Now
	}
	if len(r.avatars) == 0 {
		r.avatars = DefaultAvatars
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}

	records, err := r.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	taken := system.OccupancySet{}
	var misplaced []*Player
	for _, rec := range records {
		if rec.Identity == "" {
			continue
		}
		p := playerFromRecord(rec)
		r.players[p.Identity] = p
		if !r.tiles.IsWalkable(p.Position) || taken.Occupied(p.Position) {
			misplaced = append(misplaced, p)
			continue
		}
		taken.Add(p.Position)
	}
	r.created = len(r.players)
	if len(misplaced) == 0 {
		return r, nil
	}
	sort.Slice(misplaced, func(i, j int) bool { return misplaced[i].Identity < misplaced[j].Identity })
	for _, p := range misplaced {
		r.log.Info("relocating player", zap.String("identity", p.Identity), zap.Stringer("from", p.Position))
		// Park the player off-map so it does not block its own placement.
		p.Position = grid.Position{X: -1, Y: -1}
		pos, err := r.pickFreeTile(p.Identity)
		if err != nil {
			return nil, err
		}
		p.Position = pos
	}
	if err := r.save(); err != nil {
		return nil, err
	}
	return r, nil
}

// Tiles returns the tile store the registry validates against.
func (r *Registry) Tiles() *gamemap.Store { return r.tiles }

// Len returns the number of known players.
func (r *Registry) Len() int { return len(r.players) }

// FindByIdentity returns the registry's own player. Callers must not keep or
// mutate it; use View or Snapshot to copy state out.
func (r *Registry) FindByIdentity(identity string) (*Player, bool) {
	p, ok := r.players[identity]
	return p, ok
}

// View returns a copy of one player.
func (r *Registry) View(identity string) (PlayerView, bool) {
	p, ok := r.players[identity]
	if !ok {
		return PlayerView{}, false
	}
	return p.View(), true
}

// Snapshot returns copies of every player sorted by identity.
func (r *Registry) Snapshot() []PlayerView {
	out := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Create adds a new player, assigns an avatar and places it on a random free
// floor tile. The new player starts detached.
func (r *Registry) Create(identity string) (*Player, error) {
	if _, ok := r.players[identity]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPlayerExists, identity)
	}
	pos, err := r.pickFreeTile(identity)
	if err != nil {
		return nil, err
	}
	p := &Player{
		Identity:  identity,
		Position:  pos,
		Direction: grid.Down,
		Avatar:    r.avatars[r.created%len(r.avatars)],
	}
	r.players[identity] = p
	if err := r.save(); err != nil {
		delete(r.players, identity)
		return nil, err
	}
	r.created++
	return p, nil
}

// PlaceOnRandomFreeTile moves p to a floor tile chosen uniformly among those
// not held by any other player.
func (r *Registry) PlaceOnRandomFreeTile(p *Player) error {
	pos, err := r.pickFreeTile(p.Identity)
	if err != nil {
		return err
	}
	prev := p.Position
	p.Position = pos
	if err := r.save(); err != nil {
		p.Position = prev
		return err
	}
	return nil
}

// AttemptMove validates one step for identity. Moved commits the new cell;
// Blocked turns the player to face dir in place. Either way the key is held.
func (r *Registry) AttemptMove(identity string, dir grid.Direction) (MoveOutcome, error) {
	p, ok := r.players[identity]
	if !ok {
		return Blocked, fmt.Errorf("%w: %s", ErrUnknownPlayer, identity)
	}
	now := r.now()
	if r.minInterval > 0 && !p.lastMoveAt.IsZero() && now.Sub(p.lastMoveAt) < r.minInterval {
		return Throttled, nil
	}

	prev := *p
	to, res := system.CheckMove(p.Position, dir, r.occupancyExcept(identity), r.tiles)
	outcome := Blocked
	if res == system.MoveOK {
		p.Position = to
		outcome = Moved
	}
	if dir.Valid() {
		p.Direction = dir
	}
	p.PressingKey = true
	p.lastMoveAt = now

	if err := r.save(); err != nil {
		*p = prev
		return outcome, err
	}
	return outcome, nil
}

// ChangeFacing turns identity to face dir without moving and marks the key
// as released. Facing is not collision checked.
func (r *Registry) ChangeFacing(identity string, dir grid.Direction) error {
	p, ok := r.players[identity]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, identity)
	}
	prev := *p
	if dir.Valid() {
		p.Direction = dir
	}
	p.PressingKey = false
	if err := r.save(); err != nil {
		*p = prev
		return err
	}
	return nil
}

// Attach binds identity to a live connection.
func (r *Registry) Attach(identity, connID string) error {
	p, ok := r.players[identity]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, identity)
	}
	p.Connected = true
	p.ConnID = connID
	return nil
}

// Detach marks identity disconnected. Its position and facing are kept.
func (r *Registry) Detach(identity string) error {
	p, ok := r.players[identity]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, identity)
	}
	p.Connected = false
	p.ConnID = ""
	p.PressingKey = false
	return nil
}

func (r *Registry) occupancyExcept(identity string) system.OccupancySet {
	occ := make(system.OccupancySet, len(r.players))
	for id, p := range r.players {
		if id != identity {
			occ.Add(p.Position)
		}
	}
	return occ
}

func (r *Registry) pickFreeTile(identity string) (grid.Position, error) {
	occ := r.occupancyExcept(identity)
	var free []grid.Position
	for _, pos := range r.tiles.FloorTiles() {
		if !occ.Occupied(pos) {
			free = append(free, pos)
		}
	}
	if len(free) == 0 {
		return grid.Position{}, ErrWorldFull
	}
	return free[r.rng.Intn(len(free))], nil
}

func (r *Registry) save() error {
	records := make([]store.PlayerRecord, 0, len(r.players))
	for _, p := range r.players {
		records = append(records, p.record())
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Identity < records[j].Identity })
	if err := r.store.SaveAll(records); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}

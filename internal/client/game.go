// Package client is the local projection of the world: optimistic movement,
// reconciliation against server echoes, interpolation and visibility. It is
// single threaded; network goroutines only feed the inbox drained by Tick.
package client

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"dungeon/internal/protocol"
	"dungeon/internal/system"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	// MoveInterval is the shortest gap between two local moves.
	MoveInterval = 200 * time.Millisecond
	// ServerTimeout gives up on an echo that never came.
	ServerTimeout = 2 * time.Second
	// DefaultHold is the auto-release window for hosts without key-up events.
	DefaultHold = 150 * time.Millisecond

	maxMessages = 5
)

// Sender carries intents to the server without blocking.
type Sender interface {
	Send(t protocol.Type, payload any) error
}

// Config wires a Game.
type Config struct {
	Radius int
	// Hold is the Input auto-release window; zero means keys have real
	// release events.
	Hold   time.Duration
	Inbox  <-chan protocol.Envelope
	Now    func() time.Time
	Logger *zap.Logger
}

// Game is one client's view of the world.
type Game struct {
	self   string
	me     *Entity
	others map[string]*Entity
	tiles  *gamemap.Store

	camera *Camera
	bus    *Bus
	input  *Input
	out    Sender
	inbox  <-chan protocol.Envelope
	now    func() time.Time
	log    *zap.Logger

	waitingForServer bool
	waitingSince     time.Time
	nextMoveAt       time.Time
	// pendingFacing counts ChangeDirection intents whose echo has not come
	// back. Those echoes carry an idle key and never acknowledge a move.
	pendingFacing int
	ready         bool
	// resyncing is set between a reconnect and its Hello.
	resyncing bool
	refused   bool
	messages         []string
}

// NewGame returns a Game that sends intents through out.
func NewGame(out Sender, cfg Config) *Game {
	g := &Game{
		others: make(map[string]*Entity),
		camera: NewCamera(cfg.Radius),
		bus:    &Bus{},
		input:  NewInput(cfg.Hold),
		out:    out,
		inbox:  cfg.Inbox,
		now:    cfg.Now,
		log:    cfg.Logger,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.log == nil {
		g.log = zap.NewNop()
	}
	g.bus.Subscribe(ServerSaidHello, func(Message) { g.camera.Invalidate() })
	g.bus.Subscribe(ServerAddedPlayer, func(m Message) { g.note("%s joined", m.Identity) })
	g.bus.Subscribe(ServerRemovedPlayer, func(m Message) { g.note("%s left", m.Identity) })
	return g
}

// Bus returns the game's event bus.
func (g *Game) Bus() *Bus { return g.bus }

// Input returns the key state fed by the host.
func (g *Game) Input() *Input { return g.input }

// Camera returns the visibility state.
func (g *Game) Camera() *Camera { return g.camera }

// Me returns the local player, or nil before Hello.
func (g *Game) Me() *Entity { return g.me }

// Other returns a remote player.
func (g *Game) Other(identity string) (*Entity, bool) {
	e, ok := g.others[identity]
	return e, ok
}

// Ready reports whether the first Hello has been applied.
func (g *Game) Ready() bool { return g.ready }

// Refused reports whether the server turned the session away.
func (g *Game) Refused() bool { return g.refused }

// Resyncing reports whether a reconnect is still waiting for its Hello.
func (g *Game) Resyncing() bool { return g.resyncing }

// WaitingForServer reports whether a move echo is outstanding.
func (g *Game) WaitingForServer() bool { return g.waitingForServer }

// SetOutput replaces the sender and inbox after a reconnect. The projection
// is still drawn but no intents are sent until the next Hello replaces it.
func (g *Game) SetOutput(out Sender, inbox <-chan protocol.Envelope) {
	g.out = out
	g.inbox = inbox
	g.waitingForServer = false
	g.pendingFacing = 0
	g.resyncing = g.ready
}

// Apply handles one server event at the game clock's current time.
func (g *Game) Apply(env protocol.Envelope) error {
	return g.apply(env, g.now())
}

func (g *Game) apply(env protocol.Envelope, now time.Time) error {
	switch env.Type {
	case protocol.Hello:
		var hello protocol.HelloPayload
		if err := env.Into(&hello); err != nil {
			return err
		}
		return g.applyHello(hello)

	case protocol.PlayerJoined:
		var p protocol.Player
		if err := env.Into(&p); err != nil {
			return err
		}
		if p.Identity == g.self {
			return nil
		}
		if _, ok := g.others[p.Identity]; !ok {
			g.others[p.Identity] = entityFromDTO(p)
			g.bus.Publish(Message{Topic: ServerAddedPlayer, Identity: p.Identity})
		}

	case protocol.PlayerUpdated:
		var p protocol.Player
		if err := env.Into(&p); err != nil {
			return err
		}
		if p.Identity == g.self {
			g.reconcileMe(p, now)
		} else {
			g.updateOther(p, now)
		}

	case protocol.PlayerLeft:
		var p protocol.LeftPayload
		if err := env.Into(&p); err != nil {
			return err
		}
		if _, ok := g.others[p.Identity]; ok {
			delete(g.others, p.Identity)
			g.bus.Publish(Message{Topic: ServerRemovedPlayer, Identity: p.Identity})
		}

	case protocol.AlreadyConnected:
		// On a reconnect the server may still hold our dropped socket, so
		// the refusal is only final before the first Hello.
		if g.resyncing {
			g.note("previous connection still open, retrying")
			return nil
		}
		g.refused = true
		g.note("already connected elsewhere")

	case protocol.Error:
		var e protocol.ErrorPayload
		_ = env.Into(&e)
		g.log.Debug("server error", zap.String("code", e.Code), zap.String("detail", e.Detail))
		g.waitingForServer = false

	default:
		g.log.Debug("ignoring event", zap.String("event", string(env.Type)))
	}
	return nil
}

func (g *Game) applyHello(hello protocol.HelloPayload) error {
	tiles, err := gamemap.Decode(hello.Tiles)
	if err != nil {
		return err
	}
	var me *Entity
	others := make(map[string]*Entity, len(hello.Players))
	for _, p := range hello.Players {
		e := entityFromDTO(p)
		if p.Identity == hello.Self {
			me = e
			continue
		}
		others[p.Identity] = e
	}
	if me == nil {
		return fmt.Errorf("hello without own player %q", hello.Self)
	}
	// The previous local PressingKey is stale after a reconnect.
	me.PressingKey = false
	g.self = hello.Self
	g.me = me
	g.others = others
	g.tiles = tiles
	g.ready = true
	g.resyncing = false
	g.waitingForServer = false
	g.pendingFacing = 0
	g.bus.Publish(Message{Topic: ServerSaidHello, Identity: hello.Self})
	return nil
}

// reconcileMe overwrites the local prediction with the server's state. A
// divergent position restarts interpolation from wherever the sprite is now.
// The echo of a ChangeDirection sent before the outstanding move is not its
// acknowledgment and leaves the prediction alone.
func (g *Game) reconcileMe(p protocol.Player, now time.Time) {
	facingEcho := g.pendingFacing > 0 && !p.PressingKey
	if facingEcho {
		g.pendingFacing--
	}
	if g.me == nil {
		g.waitingForServer = false
		return
	}
	if facingEcho && g.waitingForServer {
		g.me.Avatar = p.Avatar
		g.me.Connected = p.Connected
		return
	}
	g.waitingForServer = false
	moved := false
	if p.Position != g.me.Position {
		from := g.me.Animated(now).Nearest()
		g.me.retarget(from, p.Position.Clone(), now)
		moved = true
	}
	g.me.Direction = p.Direction
	g.me.Avatar = p.Avatar
	g.me.Connected = p.Connected
	g.bus.Publish(Message{Topic: ServerUpdatedMe, Identity: p.Identity, Moved: moved})
}

func (g *Game) updateOther(p protocol.Player, now time.Time) {
	e, ok := g.others[p.Identity]
	if !ok {
		g.others[p.Identity] = entityFromDTO(p)
		g.bus.Publish(Message{Topic: ServerAddedPlayer, Identity: p.Identity})
		return
	}
	wasConnected := e.Connected
	moved := e.Position != p.Position
	e.retarget(e.Position, p.Position.Clone(), now)
	e.Direction = p.Direction
	e.PressingKey = p.PressingKey
	e.Avatar = p.Avatar
	e.Connected = p.Connected
	switch {
	case !wasConnected && e.Connected:
		g.note("%s reconnected", p.Identity)
	case wasConnected && !e.Connected:
		g.note("%s disconnected", p.Identity)
	}
	g.bus.Publish(Message{Topic: ServerUpdatedPlayer, Identity: p.Identity, Moved: moved})
}

// move applies one local intent. The prediction is advisory: the intent is
// sent even when the local check fails, and the echo decides.
func (g *Game) move(dir grid.Direction, now time.Time) {
	if g.waitingForServer || now.Before(g.nextMoveAt) {
		return
	}
	occupied := make(system.OccupancySet, len(g.others))
	for _, e := range g.others {
		occupied.Add(e.Position)
	}
	to, res := system.CheckMove(g.me.Position, dir, occupied, g.tiles)
	if res == system.MoveOK {
		g.me.StartMove(to, now)
		g.bus.Publish(Message{Topic: ClientMovedMe, Identity: g.self, Moved: true})
	}
	g.me.Direction = dir
	g.me.PressingKey = true
	g.nextMoveAt = now.Add(MoveInterval)
	if err := g.send(protocol.Move, protocol.DirectionPayload{Direction: dir}); err != nil {
		return
	}
	g.waitingForServer = true
	g.waitingSince = now
}

// release tells the server the key went up so others see an idle facing.
func (g *Game) release() {
	g.me.PressingKey = false
	g.bus.Publish(Message{Topic: ClientUpdatedPlayer, Identity: g.self})
	if g.send(protocol.ChangeDirection, protocol.DirectionPayload{Direction: g.me.Direction}) == nil {
		g.pendingFacing++
	}
}

func (g *Game) send(t protocol.Type, payload any) error {
	if g.out == nil {
		return fmt.Errorf("no connection")
	}
	if err := g.out.Send(t, payload); err != nil {
		g.log.Debug("send failed", zap.String("event", string(t)), zap.Error(err))
		return err
	}
	return nil
}

func (g *Game) note(format string, args ...any) {
	g.messages = append(g.messages, fmt.Sprintf(format, args...))
	if len(g.messages) > maxMessages {
		g.messages = g.messages[len(g.messages)-maxMessages:]
	}
}

func (g *Game) drain(now time.Time) {
	if g.inbox == nil {
		return
	}
	for n := len(g.inbox); n > 0; n-- {
		select {
		case env, ok := <-g.inbox:
			if !ok {
				g.inbox = nil
				return
			}
			if err := g.apply(env, now); err != nil {
				g.log.Warn("bad server event", zap.String("event", string(env.Type)), zap.Error(err))
			}
		default:
			return
		}
	}
}

// Tick advances the simulation to now and returns what to draw: it drains
// the inbox, turns held keys into at most one move, advances animations and
// recomputes visibility when the viewer moved.
func (g *Game) Tick(now time.Time) Frame {
	g.drain(now)
	if !g.ready {
		return Frame{Now: now, Refused: g.refused, Messages: g.copyMessages()}
	}

	if g.waitingForServer && now.Sub(g.waitingSince) > ServerTimeout {
		g.log.Debug("move echo timed out")
		g.waitingForServer = false
	}
	// The pre-drop projection is stale until Hello replaces it.
	if !g.resyncing {
		if dir, ok := g.input.Intent(now); ok {
			g.move(dir, now)
		} else if g.me.PressingKey {
			g.release()
		}
	}

	g.me.Advance(now)
	for _, e := range g.others {
		e.Advance(now)
	}
	g.camera.Update(g.me.Animated(now), g.tiles)
	return g.frame(now)
}

func (g *Game) copyMessages() []string {
	return append([]string(nil), g.messages...)
}

func (g *Game) frame(now time.Time) Frame {
	win := g.camera.Window()
	f := Frame{
		Now:      now,
		Ready:    true,
		Refused:  g.refused,
		Window:   win,
		Origin:   g.camera.Origin(),
		Me:       spriteOf(g.me, now, true),
		Messages: g.copyMessages(),
		Waiting:  g.waitingForServer || g.resyncing,
	}
	for y := win.Y1; y <= win.Y2; y++ {
		for x := win.X1; x <= win.X2; x++ {
			p := grid.Position{X: x, Y: y}
			tile, ok := g.tiles.At(p)
			f.Tiles = append(f.Tiles, FrameTile{
				Pos:      p,
				Kind:     tile.Kind,
				Present:  ok,
				InFOV:    g.camera.InFOV(p),
				Explored: g.camera.Explored(p),
			})
		}
	}
	others := make([]*Entity, 0, len(g.others))
	for _, e := range g.others {
		others = append(others, e)
	}
	sort.Slice(others, func(i, j int) bool { return others[i].Identity < others[j].Identity })
	for _, e := range system.FilterPlayers(win, others) {
		f.Players = append(f.Players, spriteOf(e, now, false))
	}
	return f
}

package client

import (
	"dungeon/internal/grid"
	"dungeon/internal/protocol"
	"errors"
	"testing"
	"time"
)

type sent struct {
	typ protocol.Type
	dir grid.Direction
}

// fakeSender records every intent.
type fakeSender struct {
	sent []sent
	fail error
}

func (s *fakeSender) Send(t protocol.Type, payload any) error {
	if s.fail != nil {
		return s.fail
	}
	var d grid.Direction
	if p, ok := payload.(protocol.DirectionPayload); ok {
		d = p.Direction
	}
	s.sent = append(s.sent, sent{typ: t, dir: d})
	return nil
}

func (s *fakeSender) count(t protocol.Type) int {
	n := 0
	for _, m := range s.sent {
		if m.typ == t {
			n++
		}
	}
	return n
}

var t0 = time.Unix(5000, 0)

func player(identity string, x, y int) protocol.Player {
	return protocol.Player{
		Identity:  identity,
		Position:  grid.Position{X: x, Y: y},
		Direction: grid.Down,
		Avatar:    "knight",
		Connected: true,
	}
}

func helloEnv(self string, players ...protocol.Player) protocol.Envelope {
	return env(protocol.Hello, protocol.HelloPayload{
		Players: players,
		Tiles:   openTiles(12, 12).Encode(),
		Self:    self,
	})
}

func env(t protocol.Type, payload any) protocol.Envelope {
	e, err := protocol.Decode(protocol.MustEncode(t, payload))
	if err != nil {
		panic(err)
	}
	return e
}

// newTestGame returns a game that has received Hello with ann at (5,5) and
// bob at (7,5).
func newTestGame(t *testing.T) (*Game, *fakeSender) {
	t.Helper()
	out := &fakeSender{}
	g := NewGame(out, Config{Radius: 3, Now: func() time.Time { return t0 }})
	if err := g.Apply(helloEnv("ann", player("ann", 5, 5), player("bob", 7, 5))); err != nil {
		t.Fatal(err)
	}
	return g, out
}

func TestTickBeforeHelloIsIdle(t *testing.T) {
	out := &fakeSender{}
	g := NewGame(out, Config{})
	g.Input().Press(KeyRight, t0)
	f := g.Tick(t0)
	if f.Ready || len(out.sent) != 0 {
		t.Fatalf("frame ready=%v sent=%v before Hello", f.Ready, out.sent)
	}
}

func TestHelloBuildsProjection(t *testing.T) {
	g, _ := newTestGame(t)
	if !g.Ready() {
		t.Fatal("not ready after Hello")
	}
	if g.Me().Position != (grid.Position{X: 5, Y: 5}) {
		t.Fatalf("me at %v", g.Me().Position)
	}
	if _, ok := g.Other("bob"); !ok {
		t.Fatal("bob missing")
	}
	if _, ok := g.Other("ann"); ok {
		t.Fatal("self listed among others")
	}
}

func TestHelloReplacesProjection(t *testing.T) {
	g, _ := newTestGame(t)
	g.Tick(t0)
	if err := g.Apply(helloEnv("ann", player("ann", 2, 2))); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Other("bob"); ok {
		t.Fatal("bob survived a fresh Hello")
	}
	f := g.Tick(t0.Add(time.Millisecond))
	if f.Origin != (grid.Position{X: 2, Y: 2}) {
		t.Fatalf("camera not recomputed, origin %v", f.Origin)
	}
}

func TestHelloWithoutSelfFails(t *testing.T) {
	g := NewGame(&fakeSender{}, Config{})
	if err := g.Apply(helloEnv("ann", player("bob", 1, 1))); err == nil {
		t.Fatal("expected error")
	}
	if g.Ready() {
		t.Fatal("half-applied Hello")
	}
}

func TestMovePredictsAndWaits(t *testing.T) {
	g, out := newTestGame(t)
	var moved int
	g.Bus().Subscribe(ClientMovedMe, func(Message) { moved++ })

	g.Input().Press(KeyDown, t0)
	g.Tick(t0)
	if g.Me().Position != (grid.Position{X: 5, Y: 6}) || !g.Me().Animating {
		t.Fatalf("prediction not applied: %+v", g.Me())
	}
	if out.count(protocol.Move) != 1 || out.sent[0].dir != grid.Down {
		t.Fatalf("sent = %+v", out.sent)
	}
	if !g.WaitingForServer() || moved != 1 {
		t.Fatalf("waiting=%v moved=%d", g.WaitingForServer(), moved)
	}

	// Held key while waiting sends nothing more.
	g.Tick(t0.Add(250 * time.Millisecond))
	if out.count(protocol.Move) != 1 {
		t.Fatalf("sent while waiting: %+v", out.sent)
	}
}

func TestMoveRespectsInterval(t *testing.T) {
	g, out := newTestGame(t)
	g.Input().Press(KeyDown, t0)
	g.Tick(t0)
	echo := player("ann", 5, 6)
	if err := g.Apply(env(protocol.PlayerUpdated, echo)); err != nil {
		t.Fatal(err)
	}
	g.Tick(t0.Add(100 * time.Millisecond))
	if out.count(protocol.Move) != 1 {
		t.Fatal("moved again inside the interval")
	}
	g.Tick(t0.Add(MoveInterval))
	if out.count(protocol.Move) != 2 {
		t.Fatal("no move after the interval")
	}
}

func TestBlockedMoveIsStillSent(t *testing.T) {
	g, out := newTestGame(t)
	g.Me().Position = grid.Position{X: 6, Y: 5} // bob is at (7,5)
	g.Input().Press(KeyRight, t0)
	g.Tick(t0)
	if g.Me().Position != (grid.Position{X: 6, Y: 5}) || g.Me().Animating {
		t.Fatalf("blocked move animated: %+v", g.Me())
	}
	if g.Me().Direction != grid.Right || !g.Me().PressingKey {
		t.Fatalf("facing not updated: %+v", g.Me())
	}
	if out.count(protocol.Move) != 1 || !g.WaitingForServer() {
		t.Fatal("blocked intent not sent")
	}
}

func TestReconcileRestartsFromAnimatedCell(t *testing.T) {
	g, _ := newTestGame(t)
	g.Input().Press(KeyDown, t0)
	g.Tick(t0) // (5,5) -> (5,6)

	rejected := player("ann", 5, 5)
	if err := g.apply(env(protocol.PlayerUpdated, rejected), t0.Add(150*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	me := g.Me()
	if me.Position != (grid.Position{X: 5, Y: 5}) {
		t.Fatalf("server position not adopted: %v", me.Position)
	}
	if me.LastPosition != (grid.Position{X: 5, Y: 6}) || !me.Animating {
		t.Fatalf("should animate back from (5,6), got last=%v animating=%v", me.LastPosition, me.Animating)
	}
	if g.WaitingForServer() {
		t.Fatal("echo should clear waiting")
	}
}

func TestEchoMatchingPredictionKeepsAnimation(t *testing.T) {
	g, _ := newTestGame(t)
	g.Input().Press(KeyDown, t0)
	g.Tick(t0)
	if err := g.apply(env(protocol.PlayerUpdated, player("ann", 5, 6)), t0.Add(50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if g.Me().LastPosition != (grid.Position{X: 5, Y: 5}) {
		t.Fatalf("animation restarted: %+v", g.Me())
	}
}

func TestReleaseSendsChangeDirection(t *testing.T) {
	g, out := newTestGame(t)
	g.Input().Press(KeyLeft, t0)
	g.Tick(t0)
	g.Input().Release(KeyLeft)
	g.Tick(t0.Add(20 * time.Millisecond))
	if out.count(protocol.ChangeDirection) != 1 {
		t.Fatalf("sent = %+v", out.sent)
	}
	last := out.sent[len(out.sent)-1]
	if last.dir != grid.Left || g.Me().PressingKey {
		t.Fatalf("release = %+v pressing=%v", last, g.Me().PressingKey)
	}
	g.Tick(t0.Add(40 * time.Millisecond))
	if out.count(protocol.ChangeDirection) != 1 {
		t.Fatal("release sent twice")
	}
}

func TestWaitingTimesOut(t *testing.T) {
	g, _ := newTestGame(t)
	g.Input().Press(KeyUp, t0)
	g.Tick(t0)
	g.Input().ReleaseAll()
	g.Tick(t0.Add(ServerTimeout))
	if !g.WaitingForServer() {
		t.Fatal("cleared too early")
	}
	g.Tick(t0.Add(ServerTimeout + time.Millisecond))
	if g.WaitingForServer() {
		t.Fatal("waiting never timed out")
	}
}

func TestErrorClearsWaiting(t *testing.T) {
	g, _ := newTestGame(t)
	g.Input().Press(KeyUp, t0)
	g.Tick(t0)
	if err := g.Apply(env(protocol.Error, protocol.ErrorPayload{Code: protocol.CodeInternal})); err != nil {
		t.Fatal(err)
	}
	if g.WaitingForServer() {
		t.Fatal("Error reply should clear waiting")
	}
}

func TestSendFailureDoesNotWait(t *testing.T) {
	g, out := newTestGame(t)
	out.fail = errors.New("queue full")
	g.Input().Press(KeyUp, t0)
	g.Tick(t0)
	if g.WaitingForServer() {
		t.Fatal("waiting on an intent that was never sent")
	}
}

func TestOtherPlayersFollowServer(t *testing.T) {
	g, _ := newTestGame(t)
	var updates []Message
	g.Bus().Subscribe(ServerUpdatedPlayer, func(m Message) { updates = append(updates, m) })

	bob := player("bob", 8, 5)
	if err := g.apply(env(protocol.PlayerUpdated, bob), t0); err != nil {
		t.Fatal(err)
	}
	e, _ := g.Other("bob")
	if e.Position != (grid.Position{X: 8, Y: 5}) || e.LastPosition != (grid.Position{X: 7, Y: 5}) || !e.Animating {
		t.Fatalf("bob = %+v", e)
	}
	if len(updates) != 1 || !updates[0].Moved {
		t.Fatalf("updates = %+v", updates)
	}

	bob.Connected = false
	if err := g.apply(env(protocol.PlayerUpdated, bob), t0); err != nil {
		t.Fatal(err)
	}
	if e.Connected {
		t.Fatal("disconnect not applied")
	}

	if err := g.Apply(env(protocol.PlayerJoined, player("cat", 2, 2))); err != nil {
		t.Fatal(err)
	}
	if err := g.Apply(env(protocol.PlayerLeft, protocol.LeftPayload{Identity: "bob"})); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Other("bob"); ok {
		t.Fatal("bob not removed")
	}
	if _, ok := g.Other("cat"); !ok {
		t.Fatal("cat not added")
	}
	f := g.Tick(t0)
	want := []string{"bob disconnected", "cat joined", "bob left"}
	if len(f.Messages) != len(want) {
		t.Fatalf("messages = %v", f.Messages)
	}
	for i := range want {
		if f.Messages[i] != want[i] {
			t.Fatalf("messages = %v, want %v", f.Messages, want)
		}
	}
}

func TestAlreadyConnectedRefuses(t *testing.T) {
	g := NewGame(&fakeSender{}, Config{})
	if err := g.Apply(env(protocol.AlreadyConnected, nil)); err != nil {
		t.Fatal(err)
	}
	if f := g.Tick(t0); !f.Refused {
		t.Fatal("frame not marked refused")
	}
}

func TestTickDrainsInbox(t *testing.T) {
	inbox := make(chan protocol.Envelope, 4)
	g := NewGame(&fakeSender{}, Config{Radius: 3, Inbox: inbox})
	inbox <- helloEnv("ann", player("ann", 5, 5), player("bob", 7, 5))
	f := g.Tick(t0)
	if !f.Ready {
		t.Fatal("Hello in inbox not applied")
	}
	if len(f.Players) != 1 || f.Players[0].Identity != "bob" {
		t.Fatalf("players = %+v", f.Players)
	}
	if !f.Me.Self || f.Me.Cell != (grid.Position{X: 5, Y: 5}) {
		t.Fatalf("me = %+v", f.Me)
	}
	w := f.Window
	if len(f.Tiles) != w.Width()*w.Height() {
		t.Fatalf("%d tiles for window %+v", len(f.Tiles), w)
	}
}

func TestFacingEchoDoesNotAcknowledgeMove(t *testing.T) {
	g, out := newTestGame(t)
	g.Input().Press(KeyRight, t0)
	g.Tick(t0) // (5,5) -> (6,5)
	moved := player("ann", 6, 5)
	moved.Direction = grid.Right
	moved.PressingKey = true
	if err := g.apply(env(protocol.PlayerUpdated, moved), t0.Add(50*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	g.Input().Release(KeyRight)
	g.Tick(t0.Add(250 * time.Millisecond)) // ChangeDirection
	g.Input().Press(KeyDown, t0.Add(266*time.Millisecond))
	g.Tick(t0.Add(266 * time.Millisecond)) // (6,5) -> (6,6)
	if !g.WaitingForServer() {
		t.Fatal("second move not outstanding")
	}

	facing := player("ann", 6, 5)
	facing.Direction = grid.Right
	if err := g.apply(env(protocol.PlayerUpdated, facing), t0.Add(280*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	me := g.Me()
	if me.Position != (grid.Position{X: 6, Y: 6}) || me.Direction != grid.Down {
		t.Fatalf("prediction rolled back: pos=%v dir=%v", me.Position, me.Direction)
	}
	if !g.WaitingForServer() {
		t.Fatal("facing echo acknowledged the move")
	}
	g.Tick(t0.Add(500 * time.Millisecond))
	if out.count(protocol.Move) != 2 {
		t.Fatalf("sent = %+v", out.sent)
	}

	ack := player("ann", 6, 6)
	ack.PressingKey = true
	if err := g.apply(env(protocol.PlayerUpdated, ack), t0.Add(510*time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if g.WaitingForServer() {
		t.Fatal("move echo should clear waiting")
	}
}

func TestReconnectWaitsForHello(t *testing.T) {
	g, _ := newTestGame(t)
	out := &fakeSender{}
	g.SetOutput(out, nil)
	if !g.Resyncing() {
		t.Fatal("not resyncing after reconnect")
	}
	g.Input().Press(KeyUp, t0)
	if f := g.Tick(t0); !f.Waiting {
		t.Fatal("frame should show waiting while resyncing")
	}
	if len(out.sent) != 0 {
		t.Fatalf("sent from stale projection: %+v", out.sent)
	}

	if err := g.Apply(helloEnv("ann", player("ann", 2, 2))); err != nil {
		t.Fatal(err)
	}
	if g.Resyncing() {
		t.Fatal("Hello should end resync")
	}
	g.Tick(t0)
	if out.count(protocol.Move) != 1 {
		t.Fatalf("sent = %+v", out.sent)
	}
	if g.Me().Position != (grid.Position{X: 2, Y: 1}) {
		t.Fatalf("move not predicted from the new Hello: %v", g.Me().Position)
	}
}

func TestAlreadyConnectedOnReconnectIsNotFinal(t *testing.T) {
	g, _ := newTestGame(t)
	g.SetOutput(&fakeSender{}, nil)
	if err := g.Apply(env(protocol.AlreadyConnected, nil)); err != nil {
		t.Fatal(err)
	}
	if g.Refused() {
		t.Fatal("reconnect refusal treated as final")
	}
	if f := g.Tick(t0); f.Refused {
		t.Fatal("frame marked refused")
	}
	if !g.Resyncing() {
		t.Fatal("should still wait for a Hello")
	}
}

package term

import (
	"context"
	"dungeon/internal/client"
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"dungeon/internal/protocol"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
)

type nopSender struct{ sent []protocol.Type }

func (s *nopSender) Send(t protocol.Type, _ any) error {
	s.sent = append(s.sent, t)
	return nil
}

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	ss := tcell.NewSimulationScreen("UTF-8")
	if err := ss.Init(); err != nil {
		t.Fatalf("SimulationScreen.Init: %v", err)
	}
	ss.SetSize(60, 20)
	t.Cleanup(ss.Fini)
	return ss
}

func TestKeyOf(t *testing.T) {
	tests := []struct {
		ev   *tcell.EventKey
		want client.Key
		ok   bool
	}{
		{tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone), client.KeyUp, true},
		{tcell.NewEventKey(tcell.KeyLeft, 0, tcell.ModNone), client.KeyLeft, true},
		{tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone), client.KeyD, true},
		{tcell.NewEventKey(tcell.KeyRune, 'S', tcell.ModNone), client.KeyS, true},
		{tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone), 0, false},
		{tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone), 0, false},
	}
	for _, tc := range tests {
		got, ok := KeyOf(tc.ev)
		if ok != tc.ok || got != tc.want {
			t.Errorf("KeyOf(%v) = %v %v, want %v %v", tc.ev.Name(), got, ok, tc.want, tc.ok)
		}
	}
}

func TestHandleEventPressesKeysAndQuits(t *testing.T) {
	ss := newSimScreen(t)
	g := client.NewGame(&nopSender{}, client.Config{})
	l := NewLoop(ss, g, Config{})
	now := time.Unix(10, 0)

	if l.HandleEvent(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModNone), now) {
		t.Fatal("arrow key quit the loop")
	}
	if d, ok := g.Input().Intent(now); !ok || d != grid.Right {
		t.Fatalf("intent = %v %v", d, ok)
	}
	l.HandleEvent(tcell.NewEventFocus(false), now)
	if _, ok := g.Input().Intent(now); ok {
		t.Fatal("focus loss should release keys")
	}
	if !l.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), now) {
		t.Fatal("q should quit")
	}
	if !l.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), now) {
		t.Fatal("Esc should quit")
	}
}

func TestRunStopsOnContextAndDone(t *testing.T) {
	ss := newSimScreen(t)
	g := client.NewGame(&nopSender{}, client.Config{})
	l := NewLoop(ss, g, Config{FrameInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}

	done := make(chan struct{})
	close(done)
	if err := l.Run(context.Background(), done); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("err = %v", err)
	}
}

func helloEnv() protocol.Envelope {
	cells := make([][]int, 8)
	for y := range cells {
		cells[y] = make([]int, 8)
		for x := range cells[y] {
			if x > 0 && y > 0 && x < 7 && y < 7 {
				cells[y][x] = 1
			}
		}
	}
	b := protocol.MustEncode(protocol.Hello, protocol.HelloPayload{
		Players: []protocol.Player{{Identity: "ann", Position: grid.Position{X: 3, Y: 3}, Connected: true}},
		Tiles:   gamemap.Build(cells).Encode(),
		Self:    "ann",
	})
	env, err := protocol.Decode(b)
	if err != nil {
		panic(err)
	}
	return env
}

func TestWandererSendsMoves(t *testing.T) {
	ss := newSimScreen(t)
	out := &nopSender{}
	g := client.NewGame(out, client.Config{})
	if err := g.Apply(helloEnv()); err != nil {
		t.Fatal(err)
	}
	l := NewLoop(ss, g, Config{Wander: client.NewWanderer(rand.New(rand.NewSource(1)))})
	l.Step(time.Unix(100, 0))
	if len(out.sent) != 1 || out.sent[0] != protocol.Move {
		t.Fatalf("sent = %v", out.sent)
	}
}

func TestNextBackoff(t *testing.T) {
	tests := []struct {
		prev      time.Duration
		resyncing bool
		want      time.Duration
	}{
		{minBackoff, false, minBackoff},
		{4 * time.Second, false, minBackoff},
		{minBackoff, true, time.Second},
		{0, true, minBackoff},
		{6 * time.Second, true, maxBackoff},
		{maxBackoff, true, maxBackoff},
	}
	for _, tc := range tests {
		if got := nextBackoff(tc.prev, tc.resyncing); got != tc.want {
			t.Errorf("nextBackoff(%v, %v) = %v, want %v", tc.prev, tc.resyncing, got, tc.want)
		}
	}
}

func TestRefusedReconnectKeepsPlaying(t *testing.T) {
	ss := newSimScreen(t)
	g := client.NewGame(&nopSender{}, client.Config{})
	if err := g.Apply(helloEnv()); err != nil {
		t.Fatal(err)
	}
	inbox := make(chan protocol.Envelope, 1)
	inbox <- protocol.Envelope{Type: protocol.AlreadyConnected}
	g.SetOutput(&nopSender{}, inbox)
	l := NewLoop(ss, g, Config{})
	l.Step(time.Unix(100, 0))
	if g.Refused() || !g.Resyncing() {
		t.Fatalf("refused=%v resyncing=%v", g.Refused(), g.Resyncing())
	}
	if got := nextBackoff(minBackoff, g.Resyncing()); got != 2*minBackoff {
		t.Fatalf("backoff = %v", got)
	}
}

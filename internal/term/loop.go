// Package term runs a client game on a tcell screen: key handling, the
// frame ticker, and reconnecting when the server goes away.
package term

import (
	"context"
	"dungeon/internal/client"
	"dungeon/internal/render"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

var (
	// ErrQuit means the player asked to leave.
	ErrQuit = errors.New("term: quit")
	// ErrDisconnected means the connection's done channel fired.
	ErrDisconnected = errors.New("term: disconnected")
	// ErrScreenClosed means the screen stopped delivering events.
	ErrScreenClosed = errors.New("term: screen closed")
)

// FrameInterval is the redraw period.
const FrameInterval = 33 * time.Millisecond

// Config tunes a Loop.
type Config struct {
	FrameInterval time.Duration
	// Wander, when set, drives the player with random keys.
	Wander *client.Wanderer
	Now    func() time.Time
	Logger *zap.Logger
}

// Loop owns the screen's event stream and draws the game every frame.
type Loop struct {
	screen   tcell.Screen
	renderer *render.Renderer
	game     *client.Game
	events   chan tcell.Event
	interval time.Duration
	wander   *client.Wanderer
	now      func() time.Time
	log      *zap.Logger
}

// NewLoop starts reading events from screen.
func NewLoop(screen tcell.Screen, game *client.Game, cfg Config) *Loop {
	l := &Loop{
		screen:   screen,
		renderer: render.NewRenderer(screen),
		game:     game,
		events:   make(chan tcell.Event, 32),
		interval: cfg.FrameInterval,
		wander:   cfg.Wander,
		now:      cfg.Now,
		log:      cfg.Logger,
	}
	if l.interval <= 0 {
		l.interval = FrameInterval
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(l.events)
				return
			}
			l.events <- ev
		}
	}()
	return l
}

// Run draws frames until the player quits, ctx ends, the screen closes or
// done fires. A nil done never fires.
func (l *Loop) Run(ctx context.Context, done <-chan struct{}) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	l.Step(l.now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			l.Step(l.now())
			return ErrDisconnected
		case ev, ok := <-l.events:
			if !ok {
				return ErrScreenClosed
			}
			if l.HandleEvent(ev, l.now()) {
				return ErrQuit
			}
		case <-ticker.C:
			l.Step(l.now())
		}
	}
}

// Step advances the game to now and redraws.
func (l *Loop) Step(now time.Time) {
	if l.wander != nil && l.game.Ready() {
		l.wander.Step(now, l.game.Input())
	}
	l.renderer.Draw(l.game.Tick(now))
}

// HandleEvent applies one screen event and reports whether to quit.
func (l *Loop) HandleEvent(ev tcell.Event, now time.Time) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		l.screen.Sync()
		l.renderer.Resize()
	case *tcell.EventKey:
		if isQuit(ev) {
			return true
		}
		if k, ok := KeyOf(ev); ok {
			l.game.Input().Press(k, now)
		}
	case *tcell.EventFocus:
		if !ev.Focused {
			l.game.Input().ReleaseAll()
		}
	}
	return false
}

func isQuit(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' || ev.Rune() == 'Q'
	}
	return false
}

// KeyOf maps a tcell key event to a movement key.
func KeyOf(ev *tcell.EventKey) (client.Key, bool) {
	switch ev.Key() {
	case tcell.KeyUp:
		return client.KeyUp, true
	case tcell.KeyDown:
		return client.KeyDown, true
	case tcell.KeyLeft:
		return client.KeyLeft, true
	case tcell.KeyRight:
		return client.KeyRight, true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'w', 'W':
			return client.KeyW, true
		case 'a', 'A':
			return client.KeyA, true
		case 's', 'S':
			return client.KeyS, true
		case 'd', 'D':
			return client.KeyD, true
		}
	}
	return 0, false
}

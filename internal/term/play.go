package term

import (
	"context"
	"dungeon/internal/client"
	"dungeon/internal/protocol"
	"errors"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 8 * time.Second
)

// PlayConfig wires Play.
type PlayConfig struct {
	Loop   Config
	Radius int
	// Hold is the auto-release window for key presses. Terminals report no
	// key-up events, so zero means client.DefaultHold.
	Hold time.Duration
}

// Play connects sess, runs the game on screen and reconnects whenever the
// connection drops, until the player quits or ctx ends. A session refused
// as already connected on its first connect stays on screen until the player
// quits; a refused reconnect keeps backing off.
func Play(ctx context.Context, screen tcell.Screen, sess *client.Session, cfg PlayConfig) error {
	log := cfg.Loop.Logger
	if log == nil {
		log = zap.NewNop()
	}
	hold := cfg.Hold
	if hold <= 0 {
		hold = client.DefaultHold
	}

	remote, err := sess.Connect(ctx)
	if err != nil {
		return err
	}
	game := client.NewGame(remote, client.Config{
		Radius: cfg.Radius,
		Hold:   hold,
		Inbox:  remote.Inbox(),
		Now:    cfg.Loop.Now,
		Logger: log,
	})
	loop := NewLoop(screen, game, cfg.Loop)
	defer func() { _ = remote.Close() }()

	backoff := minBackoff
	for {
		_ = remote.Send(protocol.Hello, nil)
		err := loop.Run(ctx, remote.Done())
		if !errors.Is(err, ErrDisconnected) {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			return err
		}
		if game.Refused() {
			err := loop.Run(ctx, nil)
			if errors.Is(err, ErrQuit) {
				return nil
			}
			return err
		}
		log.Info("connection lost", zap.Error(remote.Err()))

		backoff = nextBackoff(backoff, game.Resyncing())
		next, used, err := reconnect(ctx, sess, loop, backoff, log)
		backoff = used
		if err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			return err
		}
		remote = next
		game.SetOutput(remote, remote.Inbox())
	}
}

// nextBackoff picks the first wait before reconnecting. A drop before the
// last reconnect's Hello arrived continues the previous backoff.
func nextBackoff(prev time.Duration, resyncing bool) time.Duration {
	if !resyncing {
		return minBackoff
	}
	return min(max(prev*2, minBackoff), maxBackoff)
}

// reconnect retries with exponential backoff starting at backoff, still
// drawing frames and honoring quit while it waits. It returns the last wait.
func reconnect(ctx context.Context, sess *client.Session, loop *Loop, backoff time.Duration, log *zap.Logger) (*client.Remote, time.Duration, error) {
	for {
		wait := make(chan struct{})
		timer := time.AfterFunc(backoff, func() { close(wait) })
		err := loop.Run(ctx, wait)
		timer.Stop()
		if !errors.Is(err, ErrDisconnected) {
			return nil, backoff, err
		}
		r, err := sess.Connect(ctx)
		if err == nil {
			log.Info("reconnected")
			return r, backoff, nil
		}
		if errors.Is(err, client.ErrLoginFailed) || errors.Is(err, client.ErrIdentityTaken) {
			return nil, backoff, err
		}
		log.Debug("reconnect failed", zap.Duration("backoff", backoff), zap.Error(err))
		backoff = min(backoff*2, maxBackoff)
	}
}

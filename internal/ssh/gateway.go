package ssh

import (
	"context"
	"dungeon/internal/client"
	"dungeon/internal/term"
	"errors"
	"fmt"
	"time"

	gossh "github.com/gliderlabs/ssh"
	"go.uber.org/zap"
)

type ctxKey int

const sessionKey ctxKey = iota

const authTimeout = 10 * time.Second

// Gateway lets plain SSH clients play. The SSH password is the game
// secret: an unknown identity is registered on first login.
type Gateway struct {
	// Base is the game server the sessions connect to.
	Base   string
	Play   term.PlayConfig
	Logger *zap.Logger

	// Authenticate defaults to client.Authenticate.
	Authenticate func(ctx context.Context, base, identity, secret string, register bool) (string, error)
}

// Server returns an SSH server for addr using signer as its host key.
func (g *Gateway) Server(addr string, signer gossh.Signer) *gossh.Server {
	return &gossh.Server{
		Addr:            addr,
		Handler:         g.handleSession,
		PasswordHandler: g.checkPassword,
		PtyCallback:     func(gossh.Context, gossh.Pty) bool { return true },
		HostSigners:     []gossh.Signer{signer},
	}
}

func (g *Gateway) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// checkPassword logs in, registering the identity if it is new, and keeps
// the resulting session on the connection context.
func (g *Gateway) checkPassword(ctx gossh.Context, password string) bool {
	authenticate := g.Authenticate
	if authenticate == nil {
		authenticate = client.Authenticate
	}
	actx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	identity := ctx.User()
	tok, err := authenticate(actx, g.Base, identity, password, false)
	if errors.Is(err, client.ErrLoginFailed) {
		tok, err = authenticate(actx, g.Base, identity, password, true)
	}
	if err != nil {
		g.log().Info("ssh login refused", zap.String("identity", identity), zap.Error(err))
		return false
	}
	sess := &client.Session{Base: g.Base, Identity: identity, Secret: password, Logger: g.log()}
	sess.SetToken(tok)
	ctx.SetValue(sessionKey, sess)
	return true
}

func (g *Gateway) handleSession(s gossh.Session) {
	sess, ok := s.Context().Value(sessionKey).(*client.Session)
	if !ok {
		fmt.Fprintln(s, "authentication required")
		return
	}
	log := g.log().With(zap.String("identity", sess.Identity), zap.String("remote", s.RemoteAddr().String()))

	screen, err := NewScreen(s)
	if err != nil {
		fmt.Fprintf(s, "This game requires a PTY. Connect with: ssh -t %s@<host> (%v)\n", sess.Identity, err)
		return
	}
	defer screen.Fini()

	log.Info("ssh session started")
	cfg := g.Play
	cfg.Loop.Logger = log
	if err := term.Play(s.Context(), screen, sess, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Info("ssh session ended", zap.Error(err))
		return
	}
	log.Info("ssh session ended")
}

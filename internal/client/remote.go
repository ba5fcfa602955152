package client

import (
	"context"
	"dungeon/internal/protocol"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the server refused the token; log in again.
	ErrUnauthorized  = errors.New("client: unauthorized")
	ErrIdentityTaken = errors.New("client: identity taken")
	ErrLoginFailed   = errors.New("client: login failed")
	ErrClosed        = errors.New("client: connection closed")
	ErrQueueFull     = errors.New("client: send queue full")
)

const (
	inboxSize   = 256
	outboxSize  = 64
	dialTimeout = 10 * time.Second
	writeWait   = 5 * time.Second
)

// WebsocketURL turns an http(s) or ws(s) base URL and a path into a
// websocket URL.
func WebsocketURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case !strings.HasPrefix(base, "ws://") && !strings.HasPrefix(base, "wss://"):
		base = "ws://" + base
	}
	return base + path
}

// Authenticate registers or logs in over the anonymous channel and returns
// the bearer token.
func Authenticate(ctx context.Context, base, identity, secret string, register bool) (string, error) {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, _, err := dialer.DialContext(ctx, WebsocketURL(base, "/anonymous"), nil)
	if err != nil {
		return "", fmt.Errorf("dial anonymous: %w", err)
	}
	defer ws.Close()

	typ := protocol.Login
	if register {
		typ = protocol.Register
	}
	msg, err := protocol.Encode(typ, protocol.Credentials{Identity: identity, Secret: secret})
	if err != nil {
		return "", err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(deadline)
		_ = ws.SetWriteDeadline(deadline)
	}
	if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return "", fmt.Errorf("send %s: %w", typ, err)
	}
	_, b, err := ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read %s reply: %w", typ, err)
	}
	env, err := protocol.Decode(b)
	if err != nil {
		return "", err
	}
	switch env.Type {
	case protocol.Registered, protocol.LoginSuccessful:
		var tok protocol.TokenPayload
		if err := env.Into(&tok); err != nil {
			return "", err
		}
		return tok.Token, nil
	case protocol.IdentityTaken:
		return "", ErrIdentityTaken
	case protocol.LoginFailed:
		return "", ErrLoginFailed
	case protocol.Error:
		var e protocol.ErrorPayload
		_ = env.Into(&e)
		return "", fmt.Errorf("server error %s: %s", e.Code, e.Detail)
	}
	return "", fmt.Errorf("unexpected reply %s", env.Type)
}

// Remote is an authenticated connection. Inbound events are queued on Inbox
// for the game loop; Send never blocks.
type Remote struct {
	ws    *websocket.Conn
	inbox chan protocol.Envelope
	out   chan []byte
	done  chan struct{}
	once  sync.Once
	log   *zap.Logger

	mu  sync.Mutex
	err error
}

// Dial opens the authenticated channel. A refused token yields
// ErrUnauthorized so the caller can fall back to Authenticate.
func Dial(ctx context.Context, base, token string, log *zap.Logger) (*Remote, error) {
	if log == nil {
		log = zap.NewNop()
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	ws, resp, err := dialer.DialContext(ctx, WebsocketURL(base, "/authenticated"), h)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial authenticated: %w", err)
	}
	r := &Remote{
		ws:    ws,
		inbox: make(chan protocol.Envelope, inboxSize),
		out:   make(chan []byte, outboxSize),
		done:  make(chan struct{}),
		log:   log,
	}
	go r.readLoop()
	go r.writeLoop()
	return r, nil
}

// Inbox returns the queue of server events.
func (r *Remote) Inbox() <-chan protocol.Envelope { return r.inbox }

// Done is closed when the connection ends.
func (r *Remote) Done() <-chan struct{} { return r.done }

// Err returns why the connection ended.
func (r *Remote) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Send implements Sender.
func (r *Remote) Send(t protocol.Type, payload any) error {
	msg, err := protocol.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	select {
	case r.out <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close sends a normal close frame and tears the connection down.
func (r *Remote) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = r.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	r.shutdown(ErrClosed)
	return nil
}

func (r *Remote) shutdown(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
		_ = r.ws.Close()
	})
}

func (r *Remote) readLoop() {
	for {
		_, b, err := r.ws.ReadMessage()
		if err != nil {
			r.shutdown(err)
			return
		}
		env, err := protocol.Decode(b)
		if err != nil {
			r.log.Debug("dropping bad frame", zap.Error(err))
			continue
		}
		select {
		case r.inbox <- env:
		case <-r.done:
			return
		}
	}
}

func (r *Remote) writeLoop() {
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.out:
			_ = r.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				r.shutdown(err)
				return
			}
		}
	}
}

// Session remembers credentials and the last token so reconnects skip the
// anonymous channel until the token stops working.
type Session struct {
	Base     string
	Identity string
	Secret   string
	// Register creates the identity when logging in fails.
	Register bool
	Logger   *zap.Logger

	token string
}

// Token returns the cached bearer token.
func (s *Session) Token() string { return s.token }

// SetToken seeds the cache with a token obtained elsewhere.
func (s *Session) SetToken(tok string) { s.token = tok }

// Login authenticates over the anonymous channel, registering the identity
// when allowed and logging in fails, and caches the token.
func (s *Session) Login(ctx context.Context) error {
	tok, err := Authenticate(ctx, s.Base, s.Identity, s.Secret, false)
	if errors.Is(err, ErrLoginFailed) && s.Register {
		tok, err = Authenticate(ctx, s.Base, s.Identity, s.Secret, true)
	}
	if err != nil {
		return err
	}
	s.token = tok
	return nil
}

// Connect dials with the cached token, logging in again when the server
// refuses it.
func (s *Session) Connect(ctx context.Context) (*Remote, error) {
	if s.token != "" {
		r, err := Dial(ctx, s.Base, s.token, s.Logger)
		if !errors.Is(err, ErrUnauthorized) {
			return r, err
		}
		s.token = ""
	}
	if err := s.Login(ctx); err != nil {
		return nil, err
	}
	return Dial(ctx, s.Base, s.token, s.Logger)
}

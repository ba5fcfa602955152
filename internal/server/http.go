package server

import (
	"dungeon/internal/auth"
	"dungeon/internal/protocol"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server exposes the two websocket channels plus health and metrics.
type Server struct {
	hub      *Hub
	auth     auth.Authenticator
	verifier auth.TokenVerifier
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// New returns a Server. The authenticator backs /anonymous and the verifier
// gates /authenticated.
func New(hub *Hub, authn auth.Authenticator, verifier auth.TokenVerifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:      hub,
		auth:     authn,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Terminal and SSH clients send no Origin; browsers are not served.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/anonymous", s.handleAnonymous)
	mux.HandleFunc("/authenticated", s.handleAuthenticated)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.hub.Metrics().Snapshot())
	})
	return mux
}

// BearerToken extracts the token from the Authorization header or, for
// clients that cannot set headers, the token query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleAuthenticated(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(BearerToken(r))
	if err != nil {
		s.hub.Metrics().Refused.Add(1)
		s.log.Debug("token rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, s.log, s.hub.Metrics())
	go c.writePump()
	if err := s.hub.Join(c, identity); err != nil {
		// Join already queued the refusal and the close frame.
		return
	}
	go func() {
		defer s.hub.Leave(c)
		c.readPump(func(env protocol.Envelope) { s.hub.Handle(c, env) })
	}()
}

func (s *Server) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	c := newConn(ws, s.log, s.hub.Metrics())
	s.hub.Metrics().Anonymous.Add(1)
	go c.writePump()
	go func() {
		defer s.hub.Metrics().Anonymous.Add(-1)
		c.readPump(func(env protocol.Envelope) { s.anonymous(c, env) })
	}()
}

// anonymous handles one Register or Login. Hashing is slow, so this runs on
// the connection's own goroutine and never under the hub lock.
func (s *Server) anonymous(peer Peer, env protocol.Envelope) {
	var creds protocol.Credentials
	switch env.Type {
	case protocol.Register, protocol.Login:
		if err := env.Into(&creds); err != nil {
			peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{Code: protocol.CodeMalformed, Detail: err.Error()}))
			return
		}
	default:
		peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{Code: protocol.CodeUnknownEvent, Detail: string(env.Type)}))
		return
	}

	if env.Type == protocol.Register {
		tok, err := s.auth.Register(creds.Identity, creds.Secret)
		switch {
		case err == nil:
			peer.Send(protocol.MustEncode(protocol.Registered, protocol.TokenPayload{Token: tok}))
		case errors.Is(err, auth.ErrIdentityTaken):
			peer.Send(protocol.MustEncode(protocol.IdentityTaken, nil))
		case errors.Is(err, auth.ErrInvalidIdentity):
			peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{Code: protocol.CodeInvalidIdentity}))
		default:
			s.log.Error("register", zap.String("identity", creds.Identity), zap.Error(err))
			peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{Code: protocol.CodeInternal}))
		}
		return
	}

	tok, err := s.auth.Login(creds.Identity, creds.Secret)
	if err != nil {
		s.log.Debug("login failed", zap.String("identity", creds.Identity))
		peer.Send(protocol.MustEncode(protocol.LoginFailed, nil))
		return
	}
	peer.Send(protocol.MustEncode(protocol.LoginSuccessful, protocol.TokenPayload{Token: tok}))
}

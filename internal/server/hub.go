// Package server is the session protocol handler: it authenticates
// connections, maps inbound intents onto the player registry and fans the
// resulting state out to every authenticated client.
package server

import (
	"dungeon/internal/gamemap"
	"dungeon/internal/grid"
	"dungeon/internal/protocol"
	"dungeon/internal/world"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrAlreadyConnected is returned by Join when the identity already has a
// live session.
var ErrAlreadyConnected = errors.New("server: identity already connected")

type session struct {
	peer     Peer
	identity string
}

// Hub serializes every registry mutation and the broadcast that follows it
// under one mutex, so arrival order decides contested tiles.
type Hub struct {
	mu         sync.Mutex
	reg        *world.Registry
	tiles      map[string]gamemap.TileKind
	sessions   map[string]*session // by peer ID
	byIdentity map[string]*session

	log     *zap.Logger
	metrics *Metrics
}

// NewHub returns a hub over reg. Metrics may be nil.
func NewHub(reg *world.Registry, log *zap.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	return &Hub{
		reg:        reg,
		tiles:      reg.Tiles().Encode(),
		sessions:   make(map[string]*session),
		byIdentity: make(map[string]*session),
		log:        log,
		metrics:    metrics,
	}
}

// Metrics returns the hub's counters.
func (h *Hub) Metrics() *Metrics { return h.metrics }

// Join binds peer to identity. A live identity is refused with
// AlreadyConnected and a policy-violation close; a known identity is
// reattached; a new one is created and placed.
func (h *Hub) Join(peer Peer, identity string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, live := h.byIdentity[identity]; live {
		h.metrics.Refused.Add(1)
		h.log.Debug("refusing second session", zap.String("identity", identity), zap.String("conn", peer.ID()))
		peer.Send(protocol.MustEncode(protocol.AlreadyConnected, nil))
		peer.Close(websocket.ClosePolicyViolation, "already connected")
		return ErrAlreadyConnected
	}

	event := protocol.PlayerUpdated
	if _, known := h.reg.FindByIdentity(identity); !known {
		if _, err := h.reg.Create(identity); err != nil {
			h.log.Error("create player", zap.String("identity", identity), zap.Error(err))
			if errors.Is(err, world.ErrPersist) {
				h.metrics.PersistFailures.Add(1)
			}
			peer.Close(websocket.CloseInternalServerErr, "cannot create player")
			return err
		}
		event = protocol.PlayerJoined
	}
	if err := h.reg.Attach(identity, peer.ID()); err != nil {
		peer.Close(websocket.CloseInternalServerErr, "cannot attach player")
		return err
	}

	s := &session{peer: peer, identity: identity}
	h.sessions[peer.ID()] = s
	h.byIdentity[identity] = s
	h.metrics.Connections.Add(1)
	h.log.Info("player joined", zap.String("identity", identity), zap.String("conn", peer.ID()), zap.String("event", string(event)))

	h.broadcastPlayerLocked(event, identity, peer.ID())
	return nil
}

// Leave detaches the peer's player and tells everyone else it is
// disconnected. The player stays in the registry.
func (h *Hub) Leave(peer Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[peer.ID()]
	if !ok {
		return
	}
	delete(h.sessions, peer.ID())
	if h.byIdentity[s.identity] == s {
		delete(h.byIdentity, s.identity)
	}
	h.metrics.Connections.Add(-1)
	if err := h.reg.Detach(s.identity); err != nil {
		h.log.Warn("detach", zap.String("identity", s.identity), zap.Error(err))
		return
	}
	h.log.Info("player left", zap.String("identity", s.identity), zap.String("conn", peer.ID()))
	h.broadcastPlayerLocked(protocol.PlayerUpdated, s.identity, peer.ID())
}

// Handle applies one inbound event from an authenticated peer.
func (h *Hub) Handle(peer Peer, env protocol.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[peer.ID()]
	if !ok {
		return
	}
	log := h.log.With(zap.String("identity", s.identity), zap.String("event", string(env.Type)))

	switch env.Type {
	case protocol.Hello:
		peer.Send(protocol.MustEncode(protocol.Hello, h.helloLocked(s.identity)))

	case protocol.Move:
		dir, ok := h.directionLocked(peer, env)
		if !ok {
			return
		}
		outcome, err := h.reg.AttemptMove(s.identity, dir)
		if err != nil {
			h.failLocked(s, log, err)
			return
		}
		log.Debug("move", zap.Stringer("direction", dir), zap.Stringer("outcome", outcome))
		switch outcome {
		case world.Moved:
			h.metrics.MovesAccepted.Add(1)
			h.broadcastPlayerLocked(protocol.PlayerUpdated, s.identity, "")
		case world.Blocked:
			h.metrics.MovesBlocked.Add(1)
			h.broadcastPlayerLocked(protocol.PlayerUpdated, s.identity, "")
		case world.Throttled:
			h.metrics.MovesThrottled.Add(1)
			h.sendPlayerLocked(peer, s.identity)
		}

	case protocol.ChangeDirection:
		dir, ok := h.directionLocked(peer, env)
		if !ok {
			return
		}
		if err := h.reg.ChangeFacing(s.identity, dir); err != nil {
			h.failLocked(s, log, err)
			return
		}
		h.metrics.FacingChanges.Add(1)
		h.broadcastPlayerLocked(protocol.PlayerUpdated, s.identity, "")

	default:
		log.Debug("unknown event")
		peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{
			Code:   protocol.CodeUnknownEvent,
			Detail: string(env.Type),
		}))
	}
}

// CloseAll hangs up every authenticated session.
func (h *Hub) CloseAll(code int, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.peer.Close(code, reason)
	}
}

// Hello returns the full snapshot for identity. Two calls with no mutation
// in between return equal payloads.
func (h *Hub) Hello(identity string) protocol.HelloPayload {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.helloLocked(identity)
}

func (h *Hub) helloLocked(identity string) protocol.HelloPayload {
	views := h.reg.Snapshot()
	players := make([]protocol.Player, 0, len(views))
	for _, v := range views {
		players = append(players, playerDTO(v))
	}
	return protocol.HelloPayload{Players: players, Tiles: h.tiles, Self: identity}
}

func (h *Hub) directionLocked(peer Peer, env protocol.Envelope) (grid.Direction, bool) {
	var p protocol.DirectionPayload
	if err := env.Into(&p); err != nil {
		peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{
			Code:   protocol.CodeMalformed,
			Detail: err.Error(),
		}))
		return grid.None, false
	}
	if !p.Direction.Valid() {
		peer.Send(protocol.MustEncode(protocol.Error, protocol.ErrorPayload{
			Code: protocol.CodeInvalidDirection,
		}))
		return grid.None, false
	}
	return p.Direction, true
}

// failLocked disconnects a session whose mutation could not be persisted.
// The registry has already rolled the mutation back.
func (h *Hub) failLocked(s *session, log *zap.Logger, err error) {
	if errors.Is(err, world.ErrPersist) {
		h.metrics.PersistFailures.Add(1)
	}
	log.Error("mutation failed, disconnecting", zap.Error(err))
	s.peer.Close(websocket.CloseInternalServerErr, "state not saved")
}

func (h *Hub) sendPlayerLocked(peer Peer, identity string) {
	v, ok := h.reg.View(identity)
	if !ok {
		return
	}
	peer.Send(protocol.MustEncode(protocol.PlayerUpdated, playerDTO(v)))
}

// broadcastPlayerLocked sends identity's current state to every session
// except the one with peer ID skip.
func (h *Hub) broadcastPlayerLocked(event protocol.Type, identity, skip string) {
	v, ok := h.reg.View(identity)
	if !ok {
		return
	}
	msg := protocol.MustEncode(event, playerDTO(v))
	for id, s := range h.sessions {
		if id == skip {
			continue
		}
		s.peer.Send(msg)
	}
}

func playerDTO(v world.PlayerView) protocol.Player {
	return protocol.Player{
		Identity:    v.Identity,
		Position:    v.Position.Clone(),
		Direction:   v.Direction,
		PressingKey: v.PressingKey,
		Avatar:      v.Avatar,
		Connected:   v.Connected,
	}
}

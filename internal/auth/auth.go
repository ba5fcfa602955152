// Package auth stores salted credential hashes and issues the bearer tokens
// that gate the authenticated channel. The rest of the server only sees the
// identity string a verified token carries.
package auth

import (
	"dungeon/internal/store"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrIdentityTaken   = errors.New("auth: identity taken")
	ErrLoginFailed     = errors.New("auth: login failed")
	ErrInvalidToken    = errors.New("auth: invalid token")
	ErrInvalidIdentity = errors.New("auth: invalid identity or secret")
)

// MaxIdentityLen bounds identities after normalization.
const MaxIdentityLen = 64

// Authenticator is what the anonymous channel needs.
type Authenticator interface {
	Register(identity, secret string) (string, error)
	Login(identity, secret string) (string, error)
}

// TokenVerifier is what the authenticated channel needs.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Config wires a Service.
type Config struct {
	Store  store.CredentialStore
	Secret []byte
	// TokenTTL limits token lifetime. Zero issues tokens that never expire.
	TokenTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost   int
	Now    func() time.Time
	Logger *zap.Logger
}

// Service implements Authenticator and TokenVerifier. It is safe for
// concurrent use.
type Service struct {
	mu     sync.Mutex
	store  store.CredentialStore
	hashes map[string]string

	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	log    *zap.Logger
}

// New loads the credential snapshot and returns a ready Service.
func New(cfg Config) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("auth: empty token secret")
	}
	s := &Service{
		store:  cfg.Store,
		hashes: make(map[string]string),
		secret: cfg.Secret,
		ttl:    cfg.TokenTTL,
		cost:   cfg.Cost,
		now:    cfg.Now,
		log:    cfg.Logger,
	}
	if s.store == nil {
		s.store = &store.Memory[store.Credential]{}
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	creds, err := s.store.Load()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	for _, c := range creds {
		s.hashes[Normalize(c.Identity)] = c.Hash
	}
	return s, nil
}

// Normalize folds an identity to its canonical form.
func Normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func validate(identity, secret string) error {
	if identity == "" || len(identity) > MaxIdentityLen || secret == "" {
		return ErrInvalidIdentity
	}
	// Identities end up in terminals and log lines.
	if strings.IndexFunc(identity, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return ErrInvalidIdentity
	}
	return nil
}

// Register stores a new credential and returns a token for it.
func (s *Service) Register(identity, secret string) (string, error) {
	identity = Normalize(identity)
	if err := validate(identity, secret); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hashes[identity]; ok {
		return "", ErrIdentityTaken
	}
	s.hashes[identity] = string(hash)
	if err := s.saveLocked(); err != nil {
		delete(s.hashes, identity)
		return "", err
	}
	s.log.Info("registered", zap.String("identity", identity))
	return s.issue(identity)
}

// Login checks secret against the stored hash and returns a token.
func (s *Service) Login(identity, secret string) (string, error) {
	identity = Normalize(identity)
	s.mu.Lock()
	hash, ok := s.hashes[identity]
	s.mu.Unlock()
	if !ok {
		return "", ErrLoginFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return "", ErrLoginFailed
	}
	return s.issue(identity)
}

// Exists reports whether identity has a credential.
func (s *Service) Exists(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hashes[Normalize(identity)]
	return ok
}

func (s *Service) saveLocked() error {
	creds := make([]store.Credential, 0, len(s.hashes))
	for id, h := range s.hashes {
		creds = append(creds, store.Credential{Identity: id, Hash: h})
	}
	sortCredentials(creds)
	if err := s.store.SaveAll(creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

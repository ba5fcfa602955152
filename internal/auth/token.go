package auth

import (
	"dungeon/internal/store"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload: the identity and when it was issued.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

func (s *Service) issue(identity string) (string, error) {
	now := s.now()
	claims := Claims{
		Identity:         identity,
		RegisteredClaims: jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and returns the identity it carries.
// Tokens for identities without a credential are rejected.
func (s *Service) Verify(token string) (string, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	identity := Normalize(claims.Identity)
	if identity == "" || !s.Exists(identity) {
		return "", fmt.Errorf("%w: unknown identity", ErrInvalidToken)
	}
	return identity, nil
}

func sortCredentials(creds []store.Credential) {
	sort.Slice(creds, func(i, j int) bool { return creds[i].Identity < creds[j].Identity })
}

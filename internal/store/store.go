// Package store persists full-collection snapshots of players and
// credentials. Every implementation has read-all/write-all semantics: the
// most recent SaveAll wins and nothing is incremental.
package store

import (
	"dungeon/internal/grid"
	"errors"
	"fmt"
	"path/filepath"
)

// Record is anything keyed by a stable identity.
type Record interface {
	RecordKey() string
}

// Collection loads and rewrites one snapshot of records.
type Collection[T Record] interface {
	Load() ([]T, error)
	SaveAll(records []T) error
}

// PlayerRecord is the persisted form of a player. Liveness is not stored:
// every loaded player starts disconnected.
type PlayerRecord struct {
	Identity  string         `json:"identity"`
	Position  grid.Position  `json:"position"`
	Direction grid.Direction `json:"direction"`
	Avatar    string         `json:"avatar"`
}

func (r PlayerRecord) RecordKey() string { return r.Identity }

// Credential is an identity and its salted secret hash.
type Credential struct {
	Identity string `json:"identity"`
	Hash     string `json:"hash"`
}

func (c Credential) RecordKey() string { return c.Identity }

type (
	PlayerStore     = Collection[PlayerRecord]
	CredentialStore = Collection[Credential]
)

// Backend names accepted by Open.
const (
	BackendJSON = "json"
	BackendBolt = "bolt"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("store: unknown backend")

// Stores bundles the two collections opened from one data directory.
type Stores struct {
	Players     PlayerStore
	Credentials CredentialStore
	close       func() error
}

// Close releases any file handles held by the backend.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open creates the stores for backend rooted at dir.
func Open(backend, dir string) (*Stores, error) {
	switch backend {
	case BackendJSON, "":
		return &Stores{
			Players:     NewJSONFile[PlayerRecord](filepath.Join(dir, "players.json")),
			Credentials: NewJSONFile[Credential](filepath.Join(dir, "credentials.json")),
		}, nil
	case BackendBolt:
		db, err := OpenBolt(filepath.Join(dir, "dungeon.db"))
		if err != nil {
			return nil, err
		}
		return &Stores{
			Players:     NewBoltBucket[PlayerRecord](db, "players"),
			Credentials: NewBoltBucket[Credential](db, "credentials"),
			close:       db.Close,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}

// Memory is an in-process Collection used by tests and ephemeral servers.
// Fail, when set, is returned by SaveAll without touching the snapshot.
type Memory[T Record] struct {
	records []T
	Saves   int
	Fail    error
}

func (m *Memory[T]) Load() ([]T, error) {
	return append([]T(nil), m.records...), nil
}

func (m *Memory[T]) SaveAll(records []T) error {
	if m.Fail != nil {
		return m.Fail
	}
	m.Saves++
	m.records = append([]T(nil), records...)
	return nil
}

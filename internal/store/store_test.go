package store

import (
	"dungeon/internal/grid"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

var samplePlayers = []PlayerRecord{
	{Identity: "alice", Position: grid.Position{X: 3, Y: 4}, Direction: grid.Right, Avatar: "knight"},
	{Identity: "bob", Position: grid.Position{X: 7, Y: 1}, Direction: grid.Up, Avatar: "wizard"},
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	f := NewJSONFile[PlayerRecord](filepath.Join(t.TempDir(), "players.json"))
	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}
}

func TestJSONFileSaveLoad(t *testing.T) {
	f := NewJSONFile[PlayerRecord](filepath.Join(t.TempDir(), "players.json"))
	if err := f.SaveAll(samplePlayers); err != nil {
		t.Fatal(err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, samplePlayers) {
		t.Fatalf("Load = %+v, want %+v", got, samplePlayers)
	}
}

func TestJSONFileLastSaveWins(t *testing.T) {
	dir := t.TempDir()
	f := NewJSONFile[Credential](filepath.Join(dir, "credentials.json"))
	if err := f.SaveAll([]Credential{{Identity: "a", Hash: "1"}, {Identity: "b", Hash: "2"}}); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveAll([]Credential{{Identity: "c", Hash: "3"}}); err != nil {
		t.Fatal(err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Identity != "c" {
		t.Fatalf("Load = %+v, want only c", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestJSONFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "players.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONFile[PlayerRecord](path).Load(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBoltSaveLoad(t *testing.T) {
	db, err := OpenBolt(filepath.Join(t.TempDir(), "dungeon.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	b := NewBoltBucket[PlayerRecord](db, "players")
	if got, err := b.Load(); err != nil || len(got) != 0 {
		t.Fatalf("empty Load = %v, %v", got, err)
	}
	if err := b.SaveAll(samplePlayers); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveAll(samplePlayers[1:]); err != nil {
		t.Fatal(err)
	}
	got, err := b.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, samplePlayers[1:]) {
		t.Fatalf("Load = %+v, want %+v", got, samplePlayers[1:])
	}
}

func TestOpenBackends(t *testing.T) {
	for _, backend := range []string{BackendJSON, BackendBolt} {
		t.Run(backend, func(t *testing.T) {
			s, err := Open(backend, t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer s.Close()
			if err := s.Credentials.SaveAll([]Credential{{Identity: "x", Hash: "h"}}); err != nil {
				t.Fatal(err)
			}
			creds, err := s.Credentials.Load()
			if err != nil || len(creds) != 1 {
				t.Fatalf("credentials = %v, %v", creds, err)
			}
			players, err := s.Players.Load()
			if err != nil || len(players) != 0 {
				t.Fatalf("players = %v, %v", players, err)
			}
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", t.TempDir()); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v, want ErrUnknownBackend", err)
	}
}

func TestMemoryFail(t *testing.T) {
	m := &Memory[PlayerRecord]{}
	if err := m.SaveAll(samplePlayers); err != nil {
		t.Fatal(err)
	}
	m.Fail = errors.New("disk full")
	if err := m.SaveAll(nil); err == nil {
		t.Fatal("expected failure")
	}
	got, _ := m.Load()
	if len(got) != 2 || m.Saves != 1 {
		t.Fatalf("failed save changed snapshot: %v (saves=%d)", got, m.Saves)
	}
}

// dungeon-server hosts the shared dungeon: the websocket game server and,
// optionally, an SSH gateway that runs the terminal client for plain ssh
// users. Build:
//
//	go build -o dungeon-server ./cmd/server
//
// Usage:
//
//	DUNGEON_TOKEN_SECRET=... ./dungeon-server [-addr :8080] [-store json|bolt] [-ssh-addr :2222]
//
// Play over SSH:
//
//	ssh -p 2222 alice@localhost
package main

import (
	"context"
	"dungeon/internal/auth"
	"dungeon/internal/gamemap"
	"dungeon/internal/generate"
	"dungeon/internal/logging"
	"dungeon/internal/server"
	internalssh "dungeon/internal/ssh"
	"dungeon/internal/store"
	"dungeon/internal/term"
	"dungeon/internal/world"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gossh "github.com/gliderlabs/ssh"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type config struct {
	addr         string
	dataDir      string
	backend      string
	tokenSecret  string
	tokenTTL     time.Duration
	mapWidth     int
	mapHeight    int
	seed         int64
	moveInterval time.Duration
	sshAddr      string
	sshKey       string
	logFile      string
	logLevel     string
}

func parseFlags(args []string, getenv func(string) string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("dungeon-server", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", ":8080", "HTTP listen address")
	fs.StringVar(&cfg.dataDir, "data", "data", "directory for persisted players and credentials")
	fs.StringVar(&cfg.backend, "store", store.BackendJSON, "store backend: json or bolt")
	fs.StringVar(&cfg.tokenSecret, "token-secret", getenv("DUNGEON_TOKEN_SECRET"), "HMAC key for bearer tokens (default $DUNGEON_TOKEN_SECRET)")
	fs.DurationVar(&cfg.tokenTTL, "token-ttl", 0, "token lifetime; 0 never expires")
	fs.IntVar(&cfg.mapWidth, "map-width", 80, "map width in cells")
	fs.IntVar(&cfg.mapHeight, "map-height", 40, "map height in cells")
	fs.Int64Var(&cfg.seed, "seed", 1, "map generator seed; keep it stable so saved positions stay valid")
	fs.DurationVar(&cfg.moveInterval, "move-interval", 150*time.Millisecond, "shortest gap between two accepted moves of one player")
	fs.StringVar(&cfg.sshAddr, "ssh-addr", "", "SSH gateway listen address; empty disables it")
	fs.StringVar(&cfg.sshKey, "ssh-key", "server_host_key", "PEM host key for the SSH gateway (generated if absent)")
	fs.StringVar(&cfg.logFile, "log", "", "rotated log file in addition to stderr")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if cfg.tokenSecret == "" {
		return config{}, errors.New("a token secret is required: set -token-secret or DUNGEON_TOKEN_SECRET")
	}
	if cfg.mapWidth < 10 || cfg.mapHeight < 10 {
		return config{}, fmt.Errorf("map %dx%d is too small", cfg.mapWidth, cfg.mapHeight)
	}
	return cfg, nil
}

// localBase turns a listen address into a URL the SSH gateway can dial.
func localBase(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func buildMap(cfg config) *gamemap.Store {
	rng := rand.New(rand.NewSource(cfg.seed))
	layout := generate.Generate(generate.DefaultConfig(cfg.mapWidth, cfg.mapHeight, rng))
	return gamemap.Build(layout.Cells)
}

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(logging.Config{File: cfg.logFile, Stderr: true, Level: cfg.logLevel})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config, log *zap.Logger) error {
	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	stores, err := store.Open(cfg.backend, cfg.dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = stores.Close() }()

	tiles := buildMap(cfg)
	reg, err := world.New(world.Config{
		Tiles:           tiles,
		Store:           stores.Players,
		Rand:            rand.New(rand.NewSource(time.Now().UnixNano())),
		MinMoveInterval: cfg.moveInterval,
		Logger:          log.Named("world"),
	})
	if err != nil {
		return fmt.Errorf("load players: %w", err)
	}
	authSvc, err := auth.New(auth.Config{
		Store:    stores.Credentials,
		Secret:   []byte(cfg.tokenSecret),
		TokenTTL: cfg.tokenTTL,
		Logger:   log.Named("auth"),
	})
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	log.Info("world ready",
		zap.Int("width", tiles.Width), zap.Int("height", tiles.Height),
		zap.Int("floor", len(tiles.FloorTiles())), zap.Int("players", reg.Len()),
		zap.String("store", cfg.backend))

	hub := server.NewHub(reg, log.Named("hub"), nil)
	httpSrv := &http.Server{
		Addr:              cfg.addr,
		Handler:           server.New(hub, authSvc, authSvc, log.Named("http")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		log.Info("listening", zap.String("addr", cfg.addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var sshClose func() error
	if cfg.sshAddr != "" {
		signer, err := internalssh.LoadOrCreateHostKey(cfg.sshKey, log.Named("ssh"))
		if err != nil {
			return err
		}
		gw := &internalssh.Gateway{
			Base:   localBase(cfg.addr),
			Play:   term.PlayConfig{Radius: 5},
			Logger: log.Named("ssh"),
		}
		sshSrv := gw.Server(cfg.sshAddr, signer)
		sshClose = sshSrv.Close
		go func() {
			log.Info("ssh gateway listening", zap.String("addr", cfg.sshAddr))
			if err := sshSrv.ListenAndServe(); err != nil && !errors.Is(err, gossh.ErrServerClosed) {
				errCh <- fmt.Errorf("ssh: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return err
	}

	if sshClose != nil {
		_ = sshClose()
	}
	hub.CloseAll(websocket.CloseGoingAway, "server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

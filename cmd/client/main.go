// dungeon is the terminal client. It logs in (or registers) over the
// anonymous websocket channel, then plays on the authenticated one.
//
//	go build -o dungeon ./cmd/client
//	./dungeon -server http://localhost:8080 -user alice -register
//
// Move with the arrow keys or WASD; q or Esc quits.
package main

import (
	"context"
	"dungeon/internal/client"
	"dungeon/internal/logging"
	"dungeon/internal/term"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
	xterm "golang.org/x/term"
)

type config struct {
	server   string
	user     string
	password string
	register bool
	radius   int
	logFile  string
	wander   bool
}

func parseFlags(args []string, getenv func(string) string) (config, error) {
	var cfg config
	fs := flag.NewFlagSet("dungeon", flag.ContinueOnError)
	fs.StringVar(&cfg.server, "server", "http://localhost:8080", "game server URL")
	fs.StringVar(&cfg.user, "user", getenv("USER"), "identity to play as")
	fs.StringVar(&cfg.password, "password", getenv("DUNGEON_PASSWORD"), "secret (default $DUNGEON_PASSWORD, prompted if empty)")
	fs.BoolVar(&cfg.register, "register", false, "register the identity if logging in fails")
	fs.IntVar(&cfg.radius, "radius", client.DefaultRadius, "sight radius")
	fs.StringVar(&cfg.logFile, "log", "", "log file (the screen is not usable for logs)")
	fs.BoolVar(&cfg.wander, "wander", false, "walk randomly, for soak testing")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	cfg.user = strings.TrimSpace(cfg.user)
	if cfg.user == "" {
		return config{}, errors.New("-user is required")
	}
	if cfg.radius <= 0 {
		return config{}, fmt.Errorf("radius must be positive, got %d", cfg.radius)
	}
	return cfg, nil
}

// readPassword prompts on the controlling terminal, or reads one line when
// stdin is not a terminal.
func readPassword(in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, "password: ")
	defer fmt.Fprintln(out)
	if xterm.IsTerminal(int(in.Fd())) {
		b, err := xterm.ReadPassword(int(in.Fd()))
		return string(b), err
	}
	var line string
	if _, err := fmt.Fscanln(in, &line); err != nil {
		return "", err
	}
	return line, nil
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
	if cfg.password == "" {
		if cfg.password, err = readPassword(os.Stdin, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "read password: %v\n", err)
			os.Exit(1)
		}
	}
	log, err := logging.New(logging.Config{File: cfg.logFile, Level: "debug"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *zap.Logger) error {
	sess := &client.Session{
		Base:     cfg.server,
		Identity: cfg.user,
		Secret:   cfg.password,
		Register: cfg.register,
		Logger:   log,
	}
	// Authenticate before taking over the terminal so errors stay readable.
	actx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := sess.Login(actx)
	cancel()
	if err != nil {
		return fmt.Errorf("login to %s: %w", cfg.server, err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init screen: %w", err)
	}
	defer screen.Fini()

	pc := term.PlayConfig{Radius: cfg.radius, Loop: term.Config{Logger: log}}
	if cfg.wander {
		pc.Loop.Wander = client.NewWanderer(rand.New(rand.NewSource(time.Now().UnixNano())))
	}
	err = term.Play(ctx, screen, sess, pc)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

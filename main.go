// Command sprint-planning joins a planning poker room as one player.
//
// It supports two modes:
//  1. "join" (default) – connects to the room and prints room updates to stdout
//  2. "mcp" – connects to the room and serves MCP tools over stdio so an agent
//     can watch the room and leave it
//
// The room and player come from the page URL query (room, player, fallback),
// the way a reload carries them, or from the -room and -player flags. Without a
// page URL the client dials the local test server.
//
// Transport tuning is read from POKER_* environment variables, see package
// config. A .env file in the working directory is loaded first.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/sprint-planning-client/config"
	"github.com/wricardo/sprint-planning-client/identity"
	"github.com/wricardo/sprint-planning-client/protocol"
	"github.com/wricardo/sprint-planning-client/room"
	"github.com/wricardo/sprint-planning-client/session"
	"github.com/wricardo/sprint-planning-client/telemetry"
	"github.com/wricardo/sprint-planning-client/transport/mcp"
	"github.com/wricardo/sprint-planning-client/transport/polling"
	"github.com/wricardo/sprint-planning-client/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Sprint Planning Client"
)

// settings are the identity inputs taken from flags.
type settings struct {
	PageURL      string
	Room         string
	Player       string
	Port         int
	FallbackPort int
	Protocol     string
	Debug        bool
	MCPAddr      string
}

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	} else {
		log.Println("Loaded environment variables from .env file")
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatalf("%s: %v", AppName, err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "sprint-planning",
		Usage:   "join a planning poker room",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "url",
				Usage:   "page URL the room was opened from, its query carries room, player and fallback",
				Sources: cli.EnvVars("POKER_PAGE_URL"),
			},
			&cli.StringFlag{
				Name:    "room",
				Usage:   "room ID when the page URL has none",
				Sources: cli.EnvVars("POKER_ROOM"),
			},
			&cli.StringFlag{
				Name:    "player",
				Usage:   "player ID when the page URL has none",
				Sources: cli.EnvVars("POKER_PLAYER"),
			},
			&cli.IntFlag{
				Name:    "port",
				Usage:   "WebSocket port of the planning server",
				Value:   8080,
				Sources: cli.EnvVars("POKER_PORT"),
			},
			&cli.IntFlag{
				Name:    "fallback-port",
				Usage:   "port the page is served from, used by the legacy reconnect policy",
				Value:   80,
				Sources: cli.EnvVars("POKER_FALLBACK_PORT"),
			},
			&cli.StringFlag{
				Name:    "protocol",
				Usage:   "protocol generation: sprint-planning (v2) or planning-poker (v1)",
				Value:   protocol.V2.String(),
				Sources: cli.EnvVars("POKER_PROTOCOL"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "enable debug logging",
				Sources: cli.EnvVars("POKER_DEBUG"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runJoin(ctx, readSettings(cmd))
		},
		Commands: []*cli.Command{
			{
				Name:  "join",
				Usage: "join the room and print updates (default)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runJoin(ctx, readSettings(cmd))
				},
			},
			{
				Name:  "mcp",
				Usage: "join the room and serve MCP tools over stdio",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "http",
						Usage:   "also serve the MCP tools over HTTP on this address (POST /mcp)",
						Sources: cli.EnvVars("POKER_MCP_HTTP"),
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					s := readSettings(cmd)
					s.MCPAddr = cmd.String("http")
					return runMCP(ctx, s)
				},
			},
		},
	}
}

func readSettings(cmd *cli.Command) settings {
	return settings{
		PageURL:      cmd.String("url"),
		Room:         cmd.String("room"),
		Player:       cmd.String("player"),
		Port:         int(cmd.Int("port")),
		FallbackPort: int(cmd.Int("fallback-port")),
		Protocol:     cmd.String("protocol"),
		Debug:        cmd.Bool("debug"),
	}
}

func setupLogging(debug bool) {
	if debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
	// stdout carries room updates or the MCP channel.
	log.SetOutput(os.Stderr)
}

// parsePage returns the page URL, nil when none was given, which resolves
// like a page opened from disk.
func parsePage(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	page, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}
	return page, nil
}

// newTab builds the reload loop from the environment config and the flags.
func newTab(cfg config.Config, s settings, presenter protocol.Presenter, board *room.Board) (*session.Tab, error) {
	version, err := protocol.ParseVersion(s.Protocol)
	if err != nil {
		return nil, err
	}

	return &session.Tab{
		Embedded: identity.Embedded{
			Room:         s.Room,
			Player:       s.Player,
			Port:         s.Port,
			FallbackPort: s.FallbackPort,
		},
		Options: session.Options{
			Version:   version,
			Policy:    session.PolicyFor(version, s.Port, s.FallbackPort),
			Presenter: presenter,
			Selector: session.SelectorOptions{
				WebSocket: websocket.Options{HandshakeTimeout: cfg.HandshakeTimeout},
				Polling: polling.Options{
					OpenDelay:    cfg.OpenDelay,
					PollInterval: cfg.PollInterval,
					MaxFailures:  cfg.MaxPollFailures,
				},
			},
		},
		ReloadDelay: cfg.ReloadDelay,
		MaxLoads:    cfg.MaxLoads,
		OnLoad: func(info session.LoadInfo) {
			board.Begin(info.Identity, info.LoadID)
			log.Printf("Page load %d (%s): room %s, player %s, %s",
				info.Load, info.LoadID, info.Identity.RoomID, info.Identity.PlayerID, info.Endpoint.URL)
		},
	}, nil
}

// prepare does the setup shared by both modes. The returned cleanup flushes
// telemetry.
func prepare(ctx context.Context, s settings) (config.Config, *url.URL, func(), error) {
	setupLogging(s.Debug)

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	page, err := parsePage(s.PageURL)
	if err != nil {
		return config.Config{}, nil, nil, err
	}

	shutdown, err := telemetry.Setup(ctx, cfg, AppName, Version)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
	}
	cleanup := func() {
		if shutdown == nil {
			return
		}
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("Warning: flushing traces: %v", err)
		}
	}
	return cfg, page, cleanup, nil
}

// runTab runs the page loads until teardown. A close message from the
// server is a normal end of the session.
func runTab(ctx context.Context, tab *session.Tab, page *url.URL) error {
	err := tab.Run(ctx, page)
	if errors.Is(err, session.ErrServerClosed) {
		log.Println("Server closed the session")
		return nil
	}
	return err
}

func runJoin(ctx context.Context, s settings) error {
	cfg, page, cleanup, err := prepare(ctx, s)
	if err != nil {
		return err
	}
	defer cleanup()

	board := room.NewBoard()
	tab, err := newTab(cfg, s, room.Fanout{board, room.NewConsole(os.Stdout)}, board)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM tear the page down, which logs the player out.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting %s v%s", AppName, Version)
	if err := runTab(ctx, tab, page); err != nil {
		return err
	}
	fmt.Print(board.Snapshot().String())
	return nil
}

func runMCP(ctx context.Context, s settings) error {
	cfg, page, cleanup, err := prepare(ctx, s)
	if err != nil {
		return err
	}
	defer cleanup()

	board := room.NewBoard()
	tab, err := newTab(cfg, s, board, board)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(board, tab, stop)

	if s.MCPAddr != "" {
		router := mux.NewRouter()
		router.Handle("/mcp", srv.Handler()).Methods(http.MethodPost)
		httpServer := &http.Server{
			Addr:         s.MCPAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Printf("MCP endpoint: http://%s/mcp", s.MCPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("MCP HTTP server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	// The agent going away is the same as leaving the room.
	go func() {
		log.Println("MCP stdio server ready")
		if err := server.ServeStdio(srv.MCPServer()); err != nil {
			log.Printf("MCP stdio server error: %v", err)
		}
		stop()
	}()

	return runTab(ctx, tab, page)
}

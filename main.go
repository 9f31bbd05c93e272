package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pacroyale/viewer/internal/config"
	"github.com/pacroyale/viewer/logging"
	"github.com/pacroyale/viewer/pkg/game"
	"github.com/pacroyale/viewer/pkg/network"
	"github.com/pacroyale/viewer/pkg/outcome"
	"github.com/pacroyale/viewer/pkg/poller"
	"github.com/pacroyale/viewer/pkg/session"
	"github.com/pacroyale/viewer/pkg/sim"
	"github.com/pacroyale/viewer/pkg/starknet"
	"github.com/pacroyale/viewer/pkg/terminal"
)

func main() {
	// Command line flags
	var (
		envFile    = flag.String("env", ".env", "Optional .env file with PACROYALE_* settings")
		viewerID   = flag.String("id", "viewer-1", "ID of this viewer in logs")
		nodeURL    = flag.String("node", "", "JSON-RPC endpoint of the node")
		contract   = flag.String("contract", "", "Game contract address")
		relayURL   = flag.String("relay", "", "Command relay URL")
		player     = flag.String("player", "", "Address of the local player")
		gridSize   = flag.Int("grid", 23, "Board side length")
		positionMs = flag.Int("positions-ms", 500, "Positions poll interval in milliseconds")
		boardMs    = flag.Int("board-ms", 1000, "Board poll interval in milliseconds")
		topMs      = flag.Int("top-ms", 2000, "Top session poll interval in milliseconds")
		winnerMs   = flag.Int("winner-ms", 2000, "Winner poll interval in milliseconds")
		debounceMs = flag.Int("debounce-ms", 350, "Minimum gap between moves in milliseconds")
		httpPort   = flag.Int("http-port", 8090, "Local HTTP port (0 disables)")
		bindAddr   = flag.String("bind", "0.0.0.0", "Bind address")
		simulate   = flag.Bool("simulate", false, "Use the in-memory game instead of a node")
		bots       = flag.Int("bots", 3, "Bots joined to the first simulated session")
		headless   = flag.Bool("headless", false, "Run without the terminal UI")
		logLevel   = flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
		logFile    = flag.String("log-file", "", "Write logs to this file (default: stderr when headless, pacroyale.log otherwise)")
		showUsage  = flag.Bool("help", false, "Show usage help")
	)
	flag.Parse()

	if *showUsage {
		printUsage()
		return
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Flags given explicitly win over the environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.ViewerID = *viewerID
		case "node":
			cfg.NodeURL = *nodeURL
		case "contract":
			cfg.ContractAddress = *contract
		case "relay":
			cfg.RelayURL = *relayURL
		case "player":
			cfg.PlayerAddress = *player
		case "grid":
			cfg.GridSize = *gridSize
		case "positions-ms":
			cfg.PositionsInterval = time.Duration(*positionMs) * time.Millisecond
		case "board-ms":
			cfg.BoardInterval = time.Duration(*boardMs) * time.Millisecond
		case "top-ms":
			cfg.TopSessionInterval = time.Duration(*topMs) * time.Millisecond
		case "winner-ms":
			cfg.WinnerInterval = time.Duration(*winnerMs) * time.Millisecond
		case "debounce-ms":
			cfg.MoveDebounce = time.Duration(*debounceMs) * time.Millisecond
		case "http-port":
			cfg.HTTPPort = *httpPort
		case "bind":
			cfg.BindAddr = *bindAddr
		case "simulate":
			cfg.Simulate = *simulate
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logOut, closeLog, err := openLog(*logFile, *headless)
	if err != nil {
		log.Fatalf("Error opening log file: %v", err)
	}
	defer closeLog()

	logger := logging.NewViewerLogger(cfg.ViewerID, logOut, cfg.LogLevel)
	mainLog := logger.Subsystem(logging.TagView)

	// Read and write paths
	var (
		reader  poller.GameReader
		sender  session.CommandSender
		service *sim.Service
	)
	if cfg.Simulate {
		service = sim.NewService(cfg.GridSize, cfg.PlayerAddress, time.Now().UnixNano(), logger.Subsystem(logging.TagSim))
		first := service.InitSession()
		if _, err := service.AddBots(first, *bots); err != nil {
			mainLog.Warnf("Could not add bots: %v", err)
		}
		if cfg.PlayerAddress == "" {
			cfg.PlayerAddress = service.Caller()
		}
		reader, sender = service, service
	} else {
		client := starknet.NewClient(cfg.NodeURL, cfg.ContractAddress, cfg.RequestTimeout, logger.Subsystem(logging.TagRPC))
		reader = starknet.NewGameClient(client)
		sender = starknet.NewRelay(cfg.RelayURL, cfg.RequestTimeout)
	}

	view := game.NewView(cfg, reader, sender, logger)

	var httpServer *network.HTTPServer
	if cfg.HTTPPort > 0 {
		httpServer = network.NewHTTPServer(cfg.ViewerID, cfg.BindAddr, cfg.HTTPPort, logger.Subsystem(logging.TagHTTP))
		httpServer.Bind(view)
		view.OnRender(httpServer.Hub.Broadcast)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup info
	mainLog.Infof("=== Viewer %s ===", cfg.ViewerID)
	if cfg.Simulate {
		mainLog.Infof("Source: simulated game (%d bots)", *bots)
	} else {
		mainLog.Infof("Source: %s contract %s", cfg.NodeURL, cfg.ContractAddress)
		mainLog.Infof("Relay: %s", cfg.RelayURL)
	}
	mainLog.Infof("Polling: board=%v positions=%v top=%v winner=%v",
		cfg.BoardInterval, cfg.PositionsInterval, cfg.TopSessionInterval, cfg.WinnerInterval)

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}
	if service != nil {
		service.StartBots(cfg.PositionsInterval)
	}
	view.Mount()

	if *headless {
		view.OnDeath(func(sessionID int64, slot int) {
			mainLog.Infof("Slot %d died in session %d", slot, sessionID)
		})
		view.OnOutcome(func(sessionID int64, o outcome.Outcome) {
			mainLog.Infof("Session %d won by %s", sessionID, o.Winner)
		})
		<-ctx.Done()
	} else if err := runTerminal(ctx, view, logger); err != nil {
		mainLog.Errorf("Terminal failed: %v", err)
	}

	mainLog.Infof("Shutting down...")
	view.Close()
	if service != nil {
		service.StopBots()
	}
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			mainLog.Warnf("Error stopping HTTP server: %v", err)
		}
	}
}

// runTerminal draws the view on the terminal until quit or ctx is done
func runTerminal(ctx context.Context, view *game.View, logger *logging.ViewerLogger) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initialising screen: %w", err)
	}
	defer screen.Fini()

	term := terminal.New(screen, view, logger.Subsystem(logging.TagView))
	view.OnRender(term.Draw)
	view.OnDeath(func(sessionID int64, slot int) {
		term.Notify("slot %d died", slot+1)
	})
	view.OnOutcome(func(sessionID int64, o outcome.Outcome) {
		term.Notify("session %d is over", sessionID)
	})
	term.Draw(view.Render())

	return term.Run(ctx)
}

// openLog picks the log destination. The terminal UI owns stdout, so logs
// go to a file unless running headless.
func openLog(path string, headless bool) (io.Writer, func(), error) {
	if path == "" {
		if headless {
			return os.Stderr, func() {}, nil
		}
		path = "pacroyale.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

// printUsage shows available options and endpoints
func printUsage() {
	fmt.Fprintf(os.Stderr, `
=== PacRoyale Viewer ===

USAGE:
  %s [options]

EXAMPLES:
  %s -simulate -bots=3
  %s -node=http://127.0.0.1:5050 -relay=http://127.0.0.1:5051 -player=0xabc
  %s -simulate -headless -http-port=8090 -log-level=debug

OPTIONS:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])

	flag.PrintDefaults()

	fmt.Fprintf(os.Stderr, `
KEYS:
  arrows  move            n / p   next / previous session
  c       create session  j       join session
  q, Esc  quit

ENDPOINTS (HTTP):
  GET  /health    - Health check
  GET  /state     - Current render state
  GET  /stats     - Viewer statistics
  POST /move      - Move {"direction": "up|down|left|right"}
  POST /session   - {"action": "next|previous|select|create|join", "id": n}
  GET  /ws        - WebSocket stream of render states
`)
}

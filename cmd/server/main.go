// Reality Warpers anchor server - Main Entry Point
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stestefe/reality-warpers/internal/config"
	"github.com/stestefe/reality-warpers/internal/engine"
	"github.com/stestefe/reality-warpers/internal/game"
	"github.com/stestefe/reality-warpers/internal/mailbox"
	"github.com/stestefe/reality-warpers/internal/monitor"
	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/internal/server"
	"github.com/stestefe/reality-warpers/internal/tracker"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

var (
	version      = "1.0.0"
	buildTime    = "dev"
	port         = flag.String("port", "13456", "Server port")
	host         = flag.String("host", "0.0.0.0", "Server host")
	profileName  = flag.String("profile", "basket", "Profile name or path to a profile JSON file")
	profileDir   = flag.String("profile-dir", "profiles", "Directory searched for <name>.json profiles")
	framing      = flag.String("framing", "", "Override framing (length, line, stream)")
	schema       = flag.String("schema", "", "Override inbound schema (auto, flat, split)")
	sendInterval = flag.Duration("send-interval", 0, "Override the snapshot interval")
	monitorAddr  = flag.String("monitor", "", "Serve status on this address, e.g. :8090 (optional)")
	logLevel     = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	logFile      = flag.String("log-file", "", "Log file path (optional)")
	listProfiles = flag.Bool("profiles", false, "List available profiles")
	help         = flag.Bool("help", false, "Show help information")
	ver          = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	// Show help
	if *help {
		showHelp()
		return
	}

	// Show version
	if *ver {
		showVersion()
		return
	}

	// Initialize logging
	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	profiles := config.NewManager(*profileDir)
	if *listProfiles {
		names, err := profiles.List()
		if err != nil {
			logger.Server.Fatal("Failed to list profiles: %v", err)
		}
		fmt.Println(strings.Join(names, "\n"))
		return
	}

	logger.Server.Info("Starting Reality Warpers server v%s", version)

	prof, err := loadProfile(profiles)
	if err != nil {
		logger.Server.Fatal("Failed to load profile: %v", err)
	}
	logger.Server.Info("Profile %s: %s", prof.Name, prof.Description)

	mb := mailbox.New(prof.MailboxSize)
	scene := game.NewScene(prof.SceneSettings())
	markers := tracker.New(prof.TrackerPolicy(), scene)

	address := fmt.Sprintf("%s:%s", *host, *port)
	srv := server.NewServer(server.Config{
		Address:       address,
		Framing:       network.Framing(prof.Framing),
		Schema:        network.Schema(prof.Schema),
		MaxFrameBytes: prof.MaxFrameBytes,
		WriteTimeout:  prof.WriteTimeout.Std(),
	}, mb)
	if err := srv.Listen(); err != nil {
		logger.Server.Fatal("Server failed to start: %v", err)
	}

	loop := engine.NewLoop(engine.Config{
		TickRate:     prof.TickRate,
		SendInterval: prof.SendInterval.Std(),
	}, mb, markers, srv)
	for id, source := range scene.Sources() {
		loop.RegisterPositionSource(id, source)
	}
	loop.AddBodyConsumer(scene)
	loop.AddUpdater(scene)

	ctx, stop := setupGracefulShutdown()
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	g.Go(func() error { return loop.Run(gctx) })

	if *monitorAddr != "" {
		mon := monitor.New(monitor.Config{
			Address:  *monitorAddr,
			Interval: prof.MonitorInterval.Std(),
		}, monitor.Sources{
			Profile: prof.Name,
			Server:  srv.Status,
			Loop:    loop.Status,
			Scene:   scene.Snapshot,
		})
		g.Go(func() error {
			if err := mon.Run(gctx); err != nil {
				return fmt.Errorf("monitor: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var bindErr *server.BindError
		if errors.As(err, &bindErr) {
			logger.Server.Fatal("%v", err)
		}
		logger.Server.Error("Server stopped with error: %v", err)
		os.Exit(1)
	}

	created, removed := markers.Totals()
	logger.Server.Info("Shutdown complete: %d messages processed, %d markers created, %d removed",
		markers.Counter(), created, removed)
}

// loadProfile resolves the profile and applies flag overrides
func loadProfile(profiles *config.Manager) (*config.Profile, error) {
	prof, err := profiles.Load(*profileName)
	if err != nil {
		return nil, err
	}
	if *framing != "" {
		prof.Framing = *framing
	}
	if *schema != "" {
		prof.Schema = *schema
	}
	if *sendInterval > 0 {
		prof.SendInterval = config.Duration(*sendInterval)
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	return prof, nil
}

// initLogging sets up the logging system
func initLogging() error {
	logger.SetGlobalLogLevel(logger.ParseLevel(*logLevel))

	// Set up file logging if specified
	if *logFile != "" {
		if err := logger.Server.SetFile(*logFile); err != nil {
			return fmt.Errorf("failed to set log file: %w", err)
		}
		logger.Server.Info("Logging to file: %s", *logFile)
	} else {
		// Initialize default file logging
		if err := logger.InitializeFileLogging("./logs"); err != nil {
			// Don't fail if we can't create log directory, just log to console
			logger.Server.Warn("Could not initialize file logging: %v", err)
		}
	}

	return nil
}

// setupGracefulShutdown cancels the returned context on interrupt signals
func setupGracefulShutdown() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Server.Info("Received shutdown signal, stopping server...")
	}()
	return ctx, stop
}

// showHelp displays help information
func showHelp() {
	fmt.Printf(`Reality Warpers anchor server v%s

USAGE:
    %s [OPTIONS]

OPTIONS:
    -port string           Server port (default "13456")
    -host string           Server host (default "0.0.0.0")
    -profile string        Profile name or JSON file (default "basket")
    -profile-dir string    Directory searched for profiles (default "profiles")
    -framing string        Override framing: length, line, stream
    -schema string         Override inbound schema: auto, flat, split
    -send-interval dur     Override the snapshot interval, e.g. 250ms
    -monitor string        Serve /status and /ws on this address (optional)
    -log-level string      Set log level (DEBUG, INFO, WARN, ERROR) (default "INFO")
    -log-file string       Set log file path (optional)
    -profiles              List available profiles
    -help                  Show this help message
    -version               Show version information

EXAMPLES:
    # Start the flower basket game with default settings
    %s

    # Body tracking with newline-delimited JSON
    %s -profile body -framing line

    # Talk to clients that write back-to-back JSON documents
    %s -profile basic -framing stream

    # Watch the live state in a browser or with websocat
    %s -monitor :8090 -log-level DEBUG

PROFILES:
    basic    flat schema, no local sources, snapshot every 2s
    body     flat schema, head/hands/feet out and in, snapshot every 500ms
    basket   split schema, markers drive the cart, marker 2 toggles basket mode

NETWORK PROTOCOL:
    - One TCP client at a time, the next is accepted when it disconnects
    - Outbound:  {"listOfAnchors":[{"id":1,"position":{"x":0,"y":0,"z":0}}]}
    - Inbound:   {"transformedAnchors":[...]} or
                 {"transformedSkeletonAnchors":[...],"transformedArcuoAnchors":[...]}
    - length framing prefixes each document with a 4-byte big-endian size
`, version, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

// showVersion displays version information
func showVersion() {
	fmt.Printf(`Reality Warpers anchor server
Version: %s
Build Time: %s

Server Features:
- Single-client TCP anchor exchange
- Length, line and stream framing
- Marker lifecycle keyed by message count
- Headless scene with flower spawner
- HTTP and websocket status monitor
`, version, buildTime)
}

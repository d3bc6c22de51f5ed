// Reality Warpers tracking client simulator - Main Entry Point
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/stestefe/reality-warpers/internal/client"
	"github.com/stestefe/reality-warpers/internal/network"
	"github.com/stestefe/reality-warpers/pkg/logger"
)

var (
	version    = "1.0.0"
	serverAddr = flag.String("server", "localhost:13456", "Server address (host:port)")
	framing    = flag.String("framing", "length", "Framing (length, line, stream)")
	schema     = flag.String("schema", "flat", "Reply schema (flat, split)")
	offset     = flag.String("offset", "0,0,0", "Transform offset added to every anchor (x,y,z)")
	markers    = flag.String("markers", "", "Comma separated fiducial marker ids to report")
	radius     = flag.Float64("radius", 1, "Radius of the marker circle")
	window     = flag.Int("window", 5, "Averaging window per anchor")
	replyRate  = flag.Float64("rate", 0, "Maximum replies per second (0 = unlimited)")
	count      = flag.Int("count", 0, "Stop after this many replies (0 = run until interrupted)")
	verbose    = flag.Bool("verbose", false, "Print every snapshot and reply")
	logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	logFile    = flag.String("log-file", "", "Log file path (optional)")
)

func main() {
	flag.Parse()

	// Initialize logging
	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid options: %v\n", err)
		os.Exit(2)
	}

	logger.Client.Info("Starting Reality Warpers tracking client v%s", version)
	logger.Client.Info("Connecting to server: %s", cfg.Address)

	display := client.NewDisplay(nil)
	display.PrintBanner()
	sim := client.NewClient(cfg, display)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sim.Run(gctx) })
	if err := g.Wait(); err != nil {
		display.PrintError(err.Error())
		logger.Client.Error("Client failed: %v", err)
		os.Exit(1)
	}

	logger.Client.Info("Client shutting down gracefully")
}

func buildConfig() (client.Config, error) {
	fr, err := network.ParseFraming(*framing)
	if err != nil {
		return client.Config{}, err
	}
	sc, err := network.ParseSchema(*schema)
	if err != nil {
		return client.Config{}, err
	}
	off, err := parseVector(*offset)
	if err != nil {
		return client.Config{}, fmt.Errorf("offset: %w", err)
	}
	ids, err := parseIDs(*markers)
	if err != nil {
		return client.Config{}, fmt.Errorf("markers: %w", err)
	}
	return client.Config{
		Address:      *serverAddr,
		Framing:      fr,
		Schema:       sc,
		Offset:       off,
		Markers:      ids,
		MarkerRadius: *radius,
		Window:       *window,
		Rate:         *replyRate,
		MaxReplies:   *count,
		Verbose:      *verbose,
	}, nil
}

func parseVector(s string) (network.Vector3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return network.Vector3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return network.Vector3{}, err
		}
		v[i] = f
	}
	return network.Vector3{X: v[0], Y: v[1], Z: v[2]}, nil
}

func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int
	for _, p := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// initLogging sets up the logging system
func initLogging() error {
	logger.SetGlobalLogLevel(logger.ParseLevel(*logLevel))

	if *logFile != "" {
		if err := logger.Client.SetFile(*logFile); err != nil {
			return fmt.Errorf("failed to set log file: %w", err)
		}
		logger.Client.Info("Logging to file: %s", *logFile)
	}
	return nil
}

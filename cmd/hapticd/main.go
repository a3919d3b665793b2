// Hapticd is the haptic notification daemon.
//
// It resolves notification events against stored per-app and per-sender
// vibration rules and dispatches the winning waveform. Events arrive over
// NATS or the REST API; waveforms leave over NATS and are kept for
// /api/v1/status.
//
// Configuration is loaded from ~/.config/hapticd/config.yaml and HAPTICD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon
//	hapticd
//
//	# Use another config file
//	hapticd -config /etc/hapticd/config.yaml
//
//	# Configure via environment
//	HAPTICD_SERVER_HTTP_PORT=9471 HAPTICD_STORE_BACKEND=memory hapticd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/hapticd/internal/config"
	"github.com/fyrsmithlabs/hapticd/internal/logging"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/hapticd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  hapticd [-config path]   Start the hapticd daemon\n")
			fmt.Fprintf(os.Stderr, "  hapticd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Daemon error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("hapticd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until ctx is cancelled.
//
//  1. Initializes telemetry and the logger
//  2. Opens the rule store and actuators
//  3. Applies the rule bundle, if configured
//  4. Starts NATS ingestion and the HTTP server
//  5. Shuts everything down in reverse order on cancellation
func run(ctx context.Context, cfg *config.Config) error {
	d, err := newDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(ctx)
}

// newLogger builds the configured logger, bridged to OTel when telemetry
// provides a log provider.
func newLogger(cfg *config.Config, d *daemon) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	return logging.NewLogger(logCfg, d.telemetry.LoggerProvider())
}

// serveErr drops the expected error from a graceful shutdown.
func serveErr(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

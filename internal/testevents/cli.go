package testevents

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/okian/blueskyer/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging routes the global logger to both stdout and a log file. If
// logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "firehose_sim_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger.Set(logger.New(io.MultiWriter(os.Stdout, file), level))
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Firehose Simulator
==================

Serves synthetic #commit frames over a websocket so blueskyer can be run
without a relay.

Usage:
  go run ./cmd/firehose-sim [options]

Options:
  -addr string
        Listen address (default ":9090")
  -commits int
        Number of commits to broadcast (default 10000)
  -actors int
        Number of synthetic repositories (default 50)
  -rate int
        Commits per second, 0 for unthrottled (default 500)
  -start-seq int
        Sequence number before the first commit (default 0)
  -error-every int
        Emit an error frame every N commits, 0 disables (default 0)
  -wait duration
        How long to wait for a subscriber (default 1m)
  -service string
        blueskyer HTTP API to verify against (e.g. http://localhost:9080)
  -timeout duration
        HTTP request timeout for verification (default 30s)
  -log string
        Log file (default: firehose_sim_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Serve 10k commits and point blueskyer at it
  go run ./cmd/firehose-sim
  BLUESKYER_FIREHOSE_URL=ws://localhost:9090/xrpc/com.atproto.sync.subscribeRepos go run ./cmd

  # Unthrottled, verifying against a running service
  go run ./cmd/firehose-sim -rate 0 -service http://localhost:9080
`)
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/blueskyer/internal/testevents"
)

// Default configuration constants.
const (
	defaultAddr       = ":9090"
	defaultCommits    = 10000
	defaultActors     = 50
	defaultRate       = 500
	defaultWait       = time.Minute
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 30 * time.Minute
)

func main() {
	var (
		addr       = flag.String("addr", defaultAddr, "Listen address of the websocket endpoint")
		commits    = flag.Int("commits", defaultCommits, "Number of commits to broadcast")
		actors     = flag.Int("actors", defaultActors, "Number of synthetic repositories")
		rate       = flag.Int("rate", defaultRate, "Commits per second, 0 for unthrottled")
		startSeq   = flag.Int64("start-seq", 0, "Sequence number before the first commit")
		errorEvery = flag.Int("error-every", 0, "Emit an error frame every N commits, 0 disables")
		wait       = flag.Duration("wait", defaultWait, "How long to wait for a subscriber")
		serviceURL = flag.String("service", "", "blueskyer HTTP API to verify against")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		logFile    = flag.String("log", "", "Log file (default: firehose_sim_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testevents.ShowHelp()
		return
	}

	closer, err := testevents.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := &testevents.Config{
		Addr:        *addr,
		NumCommits:  *commits,
		Actors:      *actors,
		Rate:        *rate,
		StartSeq:    *startSeq,
		ErrorEvery:  *errorEvery,
		WaitTimeout: *wait,
		ServiceURL:  *serviceURL,
		Timeout:     *timeout,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if err := testevents.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		closer.Close()
		os.Exit(1)
	}
}

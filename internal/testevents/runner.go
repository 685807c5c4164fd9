package testevents

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/okian/blueskyer/pkg/logger"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Run serves the simulator on cfg.Addr and broadcasts cfg.NumCommits commits
// once a subscriber has joined.
func Run(ctx context.Context, cfg *Config) error {
	srv := NewServer()
	mux := http.NewServeMux()
	mux.Handle("/xrpc/com.atproto.sync.subscribeRepos", srv)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Error(ctx, "simulator server failed", logger.Error(err))
		}
	}()
	defer func() {
		srv.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Get().Info(ctx, "firehose simulator listening",
		logger.String("addr", ln.Addr().String()),
		logger.Int("commits", cfg.NumCommits),
		logger.Int("actors", cfg.Actors),
		logger.Int("rate", cfg.Rate))

	waitCtx, cancel := context.WithTimeout(ctx, cfg.WaitTimeout)
	defer cancel()
	if err := srv.WaitForSubscriber(waitCtx); err != nil {
		return fmt.Errorf("no subscriber joined: %w", err)
	}

	stats, err := Stream(ctx, srv, cfg)
	if err != nil {
		return err
	}
	displayFinalStats(stats)

	if cfg.ServiceURL != "" {
		time.Sleep(SettleDelay)
		if err := verifyService(ctx, cfg, stats); err != nil {
			return fmt.Errorf("service verification failed: %w", err)
		}
	}

	logger.Get().Info(ctx, "simulation completed")
	return nil
}

// Stream broadcasts cfg.NumCommits generated commits through srv, pacing
// them at cfg.Rate per second.
func Stream(ctx context.Context, srv *Server, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	gen := NewGenerator(cfg.Actors, cfg.StartSeq)

	var tick <-chan time.Time
	if cfg.Rate > 0 {
		t := time.NewTicker(time.Second / time.Duration(cfg.Rate))
		defer t.Stop()
		tick = t.C
	}

	for i := 1; i <= cfg.NumCommits; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return stats, err
		}

		frame, err := CommitFrame(gen.Next())
		if err != nil {
			return stats, fmt.Errorf("encode commit %d: %w", i, err)
		}
		stats.CommitsGenerated++
		if srv.Broadcast(frame) > 0 {
			stats.FramesSent++
		}

		if cfg.ErrorEvery > 0 && i%cfg.ErrorEvery == 0 {
			ef, err := ErrorFrame("FutureCursor", "synthetic error frame")
			if err != nil {
				return stats, err
			}
			srv.Broadcast(ef)
			stats.ErrorFrames++
		}
		if i%textFrameEvery == 0 {
			srv.BroadcastText(`{"note":"text frames are ignored"}`)
			stats.TextFrames++
		}
		if cfg.Verbose && i%ProgressInterval == 0 {
			logger.Get().Debug(ctx, "progress", logger.Int("sent", i), logger.Int("subscribers", srv.Subscribers()))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	return stats, nil
}

func displayFinalStats(stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.FramesSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("commitsGenerated", stats.CommitsGenerated),
		logger.Int("framesSent", stats.FramesSent),
		logger.Int("errorFrames", stats.ErrorFrames),
		logger.Int("textFrames", stats.TextFrames),
		logger.Duration("duration", stats.Duration),
		logger.Float64("framesPerSecond", perSecond))
}

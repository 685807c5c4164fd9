package testevents

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/blueskyer/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FetchServiceStats reads the service's /stats endpoint.
func FetchServiceStats(ctx context.Context, baseURL string, timeout time.Duration) (*ServiceStats, error) {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != StatusOK {
		return nil, fmt.Errorf("stats request failed with status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}

	var stats ServiceStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	return &stats, nil
}

// verifyService checks the service saw every frame the simulator sent.
func verifyService(ctx context.Context, cfg *Config, sent *Stats) error {
	got, err := FetchServiceStats(ctx, cfg.ServiceURL, cfg.Timeout)
	if err != nil {
		return err
	}

	logger.Get().Info(ctx, "service statistics",
		logger.String("state", got.State),
		logger.Int64("cursor", got.Cursor),
		logger.Uint64("framesReceived", got.FramesReceived),
		logger.Uint64("framesDropped", got.FramesDropped),
		logger.Uint64("recordsDispatched", got.RecordsDispatched))

	expected := uint64(sent.FramesSent + sent.ErrorFrames)
	if got.FramesReceived < expected {
		return fmt.Errorf("service received %d binary frames, simulator sent %d", got.FramesReceived, expected)
	}
	if last := cfg.StartSeq + int64(sent.CommitsGenerated); got.FramesDropped == 0 && got.Cursor != last {
		logger.Get().Warn(ctx, "cursor does not match last commit",
			logger.Int64("cursor", got.Cursor), logger.Int64("lastSeq", last))
	}
	return nil
}

package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/blueskyer/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.FirehoseQueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.ScoreReply, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("BLUESKYER_ADDR", ":8080")
			_ = os.Setenv("BLUESKYER_FIREHOSE_WORKERS", "16")
			_ = os.Setenv("BLUESKYER_FIREHOSE_URL", "ws://localhost:7777/xrpc/com.atproto.sync.subscribeRepos")
			_ = os.Setenv("BLUESKYER_SCORE_REPLY", "5")
			_ = os.Setenv("BLUESKYER_THRESHOLD_NODES", "10")
			_ = os.Setenv("BLUESKYER_IDENTIFIER", "alice.bsky.social")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.FirehoseWorkers, convey.ShouldEqual, 16)
				convey.So(cfg.FirehoseURL, convey.ShouldEqual, "ws://localhost:7777/xrpc/com.atproto.sync.subscribeRepos")
				convey.So(cfg.ScoreReply, convey.ShouldEqual, 5)
				convey.So(cfg.ThresholdNodes, convey.ShouldEqual, 10)
				convey.So(cfg.Identifier, convey.ShouldEqual, "alice.bsky.social")
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
firehose_queue_size: 500
firehose_workers: 4
score_like: 2
threshold_feed: 200
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLUESKYER_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.FirehoseQueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.FirehoseWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.ScoreLike, convey.ShouldEqual, 2)
				convey.So(cfg.ThresholdFeed, convey.ShouldEqual, 200)
				convey.So(cfg.ThresholdLike, convey.ShouldEqual, 100) // From defaults
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
firehose_workers: 4
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLUESKYER_CONFIG", tmpFile)
			_ = os.Setenv("BLUESKYER_FIREHOSE_WORKERS", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.FirehoseWorkers, convey.ShouldEqual, 32)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("BLUESKYER_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("BLUESKYER_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("BLUESKYER_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a non-numeric worker count", func() {
			_ = os.Setenv("BLUESKYER_FIREHOSE_WORKERS", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail to unmarshal", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func clearConfigEnvVars() {
	envVars := []string{
		"BLUESKYER_CONFIG",
		"BLUESKYER_ADDR",
		"BLUESKYER_FIREHOSE_URL",
		"BLUESKYER_FIREHOSE_WORKERS",
		"BLUESKYER_SCORE_REPLY",
		"BLUESKYER_THRESHOLD_NODES",
		"BLUESKYER_IDENTIFIER",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "blueskyer-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}

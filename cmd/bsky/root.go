package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/okian/blueskyer/internal/adapters/xrpc"
	"github.com/okian/blueskyer/internal/config"
	"github.com/okian/blueskyer/internal/domain/scoring"
	"github.com/okian/blueskyer/internal/domain/social"
	"github.com/okian/blueskyer/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errCredentialsRequired = errors.New("--identifier and --password are required")

// cli holds the configuration shared by every subcommand. Flags override the
// values loaded from BLUESKYER_* variables.
type cli struct {
	cfg     *config.Config
	verbose bool
}

// NewRootCmd creates the `bsky` command tree.
func NewRootCmd() *cobra.Command {
	c := &cli{cfg: config.New()}

	root := &cobra.Command{
		Use:   "bsky",
		Short: "Inspect the Bluesky firehose and social graph",
		Long: `bsky reads the live repository firehose and ranks the accounts a user
engages with most. Settings default to the BLUESKYER_* environment variables
used by the server.

Examples:
  # Stream every typed record
  bsky firehose

  # Top 10 accounts alice replies to and likes
  bsky engagement alice.bsky.social --nodes 10

  # Who alice follows back
  bsky follows alice.bsky.social --mutual
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	pf.String("service", config.DefaultServiceURL, "PDS for sessions and repo listings")
	pf.String("appview", config.DefaultAppViewURL, "App view for app.bsky.* reads")
	pf.String("identifier", "", "Handle or DID to log in as")
	pf.String("password", "", "App password")
	pf.Duration("timeout", config.New().HTTPTimeout(), "Per-request XRPC timeout")

	root.AddCommand(
		newFirehoseCmd(c),
		newEngagementCmd(c),
		newFollowersCmd(c),
		newFollowsCmd(c),
		newNotificationsCmd(c),
	)
	return root
}

// load reads the environment configuration and applies explicit flags on top.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("service") {
		cfg.ServiceURL, _ = flags.GetString("service")
	}
	if flags.Changed("appview") {
		cfg.AppViewURL, _ = flags.GetString("appview")
	}
	if flags.Changed("identifier") {
		cfg.Identifier, _ = flags.GetString("identifier")
	}
	if flags.Changed("password") {
		cfg.AppPassword, _ = flags.GetString("password")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.HTTPTimeoutMS = int(d.Milliseconds())
	}
	c.cfg = cfg

	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	logger.Set(logger.New(cmd.ErrOrStderr(), level))
	return nil
}

func (c *cli) xrpcClient() *xrpc.Client {
	return xrpc.NewClient(
		xrpc.WithServiceURL(c.cfg.ServiceURL),
		xrpc.WithAppViewURL(c.cfg.AppViewURL),
		xrpc.WithHTTPClient(&http.Client{Timeout: c.cfg.HTTPTimeout()}),
		xrpc.WithCredentials(c.cfg.Identifier, c.cfg.AppPassword),
		xrpc.WithLogger(logger.Named("xrpc")),
	)
}

// collector logs in when credentials are configured and returns a collector
// over the session.
func (c *cli) collector(cmd *cobra.Command) (*social.Collector, error) {
	client := c.xrpcClient()
	if c.cfg.Identifier != "" {
		if err := client.EnsureSession(cmd.Context()); err != nil {
			return nil, err
		}
	}
	col := social.NewCollector(client,
		social.WithProfileBatchSize(c.cfg.ProfileBatchSize),
		social.WithLogger(logger.Named("social")),
		social.WithScoringOptions(
			scoring.WithReplyScore(c.cfg.ScoreReply),
			scoring.WithLikeScore(c.cfg.ScoreLike),
			scoring.WithTopNodes(c.cfg.ThresholdNodes),
			scoring.WithBatchSize(c.cfg.ProfileBatchSize),
		),
	)
	return col, nil
}

// printJSON writes v as one indented JSON document.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/blueskyer/internal/domain/social"
)

func newEngagementCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engagement <actor>",
		Short: "Rank the accounts an actor replies to and likes most",
		Long: `Reads the actor's author feed and like records, scores every replied-to and
liked account, and prints the top profiles with their engagement score.

Like records are listed from the actor's own repository, so the PDS given by
--service must host it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("reply") {
				c.cfg.ScoreReply, _ = flags.GetFloat64("reply")
			}
			if flags.Changed("like") {
				c.cfg.ScoreLike, _ = flags.GetFloat64("like")
			}
			if flags.Changed("nodes") {
				c.cfg.ThresholdNodes, _ = flags.GetInt("nodes")
			}
			if flags.Changed("feed") {
				c.cfg.ThresholdFeed, _ = flags.GetInt("feed")
			}
			if flags.Changed("likes") {
				c.cfg.ThresholdLike, _ = flags.GetInt("likes")
			}

			col, err := c.collector(cmd)
			if err != nil {
				return err
			}
			ranked, err := col.Engagements(cmd.Context(), args[0], social.Limits{
				Feed:  c.cfg.ThresholdFeed,
				Likes: c.cfg.ThresholdLike,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ranked)
		},
	}

	defaults := c.cfg
	cmd.Flags().Float64("reply", defaults.ScoreReply, "Score per reply")
	cmd.Flags().Float64("like", defaults.ScoreLike, "Score per like")
	cmd.Flags().Int("nodes", defaults.ThresholdNodes, "Number of profiles to print")
	cmd.Flags().Int("feed", defaults.ThresholdFeed, "Author feed entries to read")
	cmd.Flags().Int("likes", defaults.ThresholdLike, "Like records to read")
	return cmd
}

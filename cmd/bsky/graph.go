package main

import (
	"github.com/spf13/cobra"
)

const defaultGraphThreshold = 1000

func newFollowersCmd(c *cli) *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "followers <actor>",
		Short: "List accounts following an actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := c.collector(cmd)
			if err != nil {
				return err
			}
			followers, err := col.Followers(cmd.Context(), args[0], threshold)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), followers)
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", defaultGraphThreshold, "Stop paging once this many are listed")
	return cmd
}

func newFollowsCmd(c *cli) *cobra.Command {
	var (
		threshold int
		mutual    bool
	)
	cmd := &cobra.Command{
		Use:   "follows <actor>",
		Short: "List accounts an actor follows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col, err := c.collector(cmd)
			if err != nil {
				return err
			}
			follows, err := col.Follows(cmd.Context(), args[0], threshold)
			if err != nil {
				return err
			}
			if mutual {
				if err := col.SetMutual(cmd.Context(), args[0], follows); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), follows)
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", defaultGraphThreshold, "Stop paging once this many are listed")
	cmd.Flags().BoolVar(&mutual, "mutual", false, "Mark accounts that follow the actor back")
	return cmd
}

func newNotificationsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "List the session account's unread notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Identifier == "" {
				return errCredentialsRequired
			}
			col, err := c.collector(cmd)
			if err != nil {
				return err
			}
			unread, err := col.UnreadNotifications(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), unread)
		},
	}
}

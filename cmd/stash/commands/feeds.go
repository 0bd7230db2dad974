package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/stash/internal/app"
)

func feedsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage RSS/Atom subscriptions",
	}
	cmd.AddCommand(feedsAddCmd(c), feedsListCmd(c), feedsRefreshCmd(c), feedsRemoveCmd(c))
	return cmd
}

func feedsAddCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Subscribe to a feed and ingest its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				feed, added, created, err := core.Items.AddFeed(cmd.Context(), args[0])
				if feed.ID == "" {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s (%d items)\n  id: %s\n", feed.Title, added, feed.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Already subscribed to %s (%s)\n", feed.Title, feed.ID)
				}
				return err
			})
		},
	}
}

func feedsListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				feeds := core.Items.Feeds()
				if len(feeds) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No feeds.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tURL\tERRORS\tFETCHED")
				for _, f := range feeds {
					fetched := "never"
					if !f.LastFetchedAt.IsZero() {
						fetched = humanize.Time(f.LastFetchedAt)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", shortID(f.ID), truncate(f.Title, 40), f.URL, f.ErrorCount, fetched)
				}
				return tw.Flush()
			})
		},
	}
}

func feedsRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [id]",
		Short: "Fetch new items of one feed, or of every feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					id, err := resolveFeedID(core, args[0])
					if err != nil {
						return err
					}
					n, err := core.Items.RefreshFeed(cmd.Context(), id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%d new items\n", n)
					return nil
				}
				sum, err := core.Items.RefreshAllFeeds(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d feeds refreshed, %d failed, %d new items\n", sum.Feeds, sum.Failed, sum.Added)
				return nil
			})
		},
	}
}

func feedsRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Unsubscribe and delete the items of a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				id, err := resolveFeedID(core, args[0])
				if err != nil {
					return err
				}
				undo, err := core.Items.RemoveFeed(cmd.Context(), id)
				if undo != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s (%d items removed)\n", undo.Label, len(undo.Restore))
				}
				return err
			})
		},
	}
}

// resolveFeedID accepts a full id or the short prefix shown by `feeds list`.
func resolveFeedID(core *app.Core, prefix string) (string, error) {
	var match string
	for _, f := range core.Items.Feeds() {
		if f.ID == prefix {
			return f.ID, nil
		}
		if len(prefix) >= 4 && len(f.ID) >= len(prefix) && f.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("feed id %q is ambiguous", prefix)
			}
			match = f.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("feed %q not found", prefix)
	}
	return match, nil
}

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/stash/internal/app"
	"github.com/MrSnakeDoc/stash/internal/domain"
)

func addCmd(c *cli) *cobra.Command {
	var (
		title       string
		description string
		tags        []string
		notes       string
	)
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Save a bookmark and wait for its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				id, created, err := core.Items.Add(cmd.Context(), domain.NewBookmark{
					URL:         args[0],
					Title:       title,
					Description: description,
					Tags:        tags,
					Notes:       notes,
				})
				if id == "" {
					return err
				}
				core.Items.Wait()

				b, _ := core.Items.Get(id)
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n  %s\n  id: %s\n", b.Title, b.URL, b.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Already saved as %s (%s)\n", b.Title, b.ID)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title (fetched from the page when empty)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag, repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "personal notes")
	return cmd
}

func listCmd(c *cli) *cobra.Command {
	var (
		search string
		sortBy string
	)
	cmd := &cobra.Command{
		Use:   "list [view]",
		Short: "List bookmarks (inbox, all, favorites, archive, tag:<name>, collection:<id>, feed:<id>)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			if search != "" && raw == "" {
				raw = string(domain.ViewSearch)
			}
			view, err := domain.ParseView(raw)
			if err != nil {
				return err
			}
			mode, err := domain.ParseSortMode(sortBy)
			if err != nil {
				return err
			}
			return c.withCore(cmd, func(core *app.Core) error {
				core.Items.SetSortMode(mode)
				list := core.Items.Filter(view, search)
				printBookmarks(cmd, list)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "fuzzy search query")
	cmd.Flags().StringVar(&sortBy, "sort", string(domain.DefaultSortMode), "newest, oldest, title-asc, title-desc, domain, manual")
	return cmd
}

func printBookmarks(cmd *cobra.Command, list []domain.Bookmark) {
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "Nothing here.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDOMAIN\tTAGS\tSAVED")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(b.ID), truncate(b.Title, 48), b.Hostname(), strings.Join(b.Tags, ","), humanize.Time(b.CreatedAt))
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%s bookmarks\n", humanize.Comma(int64(len(list))))
}

func dupesCmd(c *cli) *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Show bookmarks saved more than once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				out := cmd.OutOrStdout()
				groups := core.Items.FindDuplicates()
				if len(groups) == 0 {
					fmt.Fprintln(out, "No duplicates.")
					return nil
				}
				for _, g := range groups {
					fmt.Fprintf(out, "%s (%d copies)\n", g.Key, len(g.Bookmarks))
					for _, b := range g.Bookmarks {
						fmt.Fprintf(out, "  %s  %s  saved %s\n", shortID(b.ID), truncate(b.Title, 60), humanize.Time(b.CreatedAt))
					}
				}
				if !merge {
					return nil
				}

				merged := 0
				for _, g := range groups {
					keep := g.Bookmarks[0]
					remove := make([]string, 0, len(g.Bookmarks)-1)
					for _, b := range g.Bookmarks[1:] {
						remove = append(remove, b.ID)
					}
					if _, _, err := core.Items.MergeDuplicates(cmd.Context(), keep.ID, remove); err != nil {
						return fmt.Errorf("merge %s: %w", g.Key, err)
					}
					merged += len(remove)
				}
				fmt.Fprintf(out, "Merged %d duplicates into %d bookmarks.\n", merged, len(groups))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "merge every group into its first bookmark")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

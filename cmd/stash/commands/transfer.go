package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/stash/internal/app"
	"github.com/MrSnakeDoc/stash/internal/transfer"
	"github.com/MrSnakeDoc/stash/internal/utils"
)

func importCmd(c *cli) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import bookmarks (json, Netscape html, homepage yaml) or feeds (opml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, err := pickFormat(format, args[0], data)
			if err != nil {
				return err
			}
			batch, err := transfer.Parse(f, bytes.NewReader(data))
			if err != nil {
				return err
			}

			return c.withCore(cmd, func(core *app.Core) error {
				out := cmd.OutOrStdout()
				if len(batch.Bookmarks) > 0 {
					res, err := core.Items.Import(cmd.Context(), batch.Bookmarks)
					fmt.Fprintf(out, "Bookmarks: %d added, %d already saved, %d invalid\n", res.Added, res.Skipped, res.Invalid)
					if err != nil {
						return err
					}
				}
				if len(batch.Feeds) > 0 {
					res, err := core.Items.ImportFeeds(cmd.Context(), batch.Feeds)
					fmt.Fprintf(out, "Feeds: %d added, %d already subscribed, %d failed\n", res.Added, res.Skipped, res.Invalid)
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "force the format instead of detecting it")
	return cmd
}

func pickFormat(flag, name string, data []byte) (transfer.Format, error) {
	if flag != "" {
		return transfer.ParseFormat(flag)
	}
	return transfer.Detect(filepath.Base(name), data)
}

func exportCmd(c *cli) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export bookmarks (json, html) or feeds (opml)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := transfer.ParseFormat(format)
			if err != nil {
				return err
			}
			return c.withCore(cmd, func(core *app.Core) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					file, err := os.Create(output)
					if err != nil {
						return err
					}
					defer utils.Close(file)
					w = file
				}
				if err := transfer.Export(w, f, core.Items.Bookmarks(), core.Items.Feeds()); err != nil {
					return err
				}
				if output != "" && output != "-" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(transfer.FormatJSON), "json, html or opml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/MrSnakeDoc/stash/internal/app"
	"github.com/MrSnakeDoc/stash/internal/utils"
	"github.com/MrSnakeDoc/stash/internal/vault"
	"github.com/MrSnakeDoc/stash/internal/vaultcrypto"
)

var errPasswordMismatch = errors.New("passwords do not match")

func vaultCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Manage the password-protected vault",
	}
	cmd.AddCommand(
		vaultStatusCmd(c),
		vaultSetupCmd(c),
		vaultListCmd(c),
		vaultAddCmd(c),
		vaultPasswdCmd(c),
		vaultLockCmd(c),
		vaultRemoveCmd(c),
	)
	return cmd
}

func vaultStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the vault is set up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withCore(cmd, func(core *app.Core) error {
				st := core.Vault.Status()
				if !st.Enabled {
					fmt.Fprintln(cmd.OutOrStdout(), "Vault: not set up (run `stash vault setup`)")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Vault: set up, %s\n", st.State)
				return nil
			})
		},
	}
}

func vaultSetupCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the vault with a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.newPassword(cmd, "New vault password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(pw)
			return c.withCore(cmd, func(core *app.Core) error {
				if _, err := core.Vault.Setup(cmd.Context(), pw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Vault created.")
				return nil
			})
		},
	}
}

func vaultListCmd(c *cli) *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Unlock the vault and list its bookmarks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withUnlocked(cmd, func(s *vault.Session) error {
				list, err := s.Search(search)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "The vault is empty.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tURL\tTAGS\tSAVED")
				for _, b := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						shortID(b.ID), truncate(b.Title, 40), b.URL, strings.Join(b.Tags, ","), humanize.Time(b.CreatedAt))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by title, url, description, notes or tags")
	return cmd
}

func vaultAddCmd(c *cli) *cobra.Command {
	var (
		title string
		tags  []string
		notes string
	)
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a bookmark to the vault",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withUnlocked(cmd, func(s *vault.Session) error {
				b, err := s.Add(cmd.Context(), vault.NewVaultBookmark{URL: args[0], Title: title, Tags: tags, Notes: notes})
				if b.ID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Added %s to the vault.\n", b.Title)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title (the host name when empty)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "tag, repeatable")
	cmd.Flags().StringVar(&notes, "notes", "", "personal notes")
	return cmd
}

func vaultPasswdCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the vault password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			old, err := c.readPassword(cmd, "Current password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(old)
			pw, err := c.newPassword(cmd, "New password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(pw)
			return c.withCore(cmd, func(core *app.Core) error {
				// A fresh process always starts locked.
				if _, err := core.Vault.Unlock(cmd.Context(), old); err != nil {
					return err
				}
				defer core.Vault.Lock()
				if err := core.Vault.ChangePassword(cmd.Context(), old, pw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
				return nil
			})
		},
	}
}

func vaultRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Delete the vault and everything in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := c.readPassword(cmd, "Vault password: ")
			if err != nil {
				return err
			}
			defer vaultcrypto.Wipe(pw)
			return c.withCore(cmd, func(core *app.Core) error {
				if err := core.Vault.Remove(cmd.Context(), pw); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Vault removed.")
				return nil
			})
		},
	}
}

// vaultLockCmd locks the vault held by the running service.
func vaultLockCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the vault of the running service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			url := "http://" + c.cfg.ListenAddr + "/api/vault/lock"
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("service not reachable at %s: %w", c.cfg.ListenAddr, err)
			}
			defer utils.Close(resp.Body)
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("lock failed: %s: %s", resp.Status, bytes.TrimSpace(body))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Vault locked.")
			return nil
		},
	}
}

// withUnlocked prompts for the password and runs fn on an unlocked session.
func (c *cli) withUnlocked(cmd *cobra.Command, fn func(*vault.Session) error) error {
	pw, err := c.readPassword(cmd, "Vault password: ")
	if err != nil {
		return err
	}
	defer vaultcrypto.Wipe(pw)
	return c.withCore(cmd, func(core *app.Core) error {
		s, err := core.Vault.Unlock(cmd.Context(), pw)
		if err != nil {
			return err
		}
		defer core.Vault.Lock()
		return fn(s)
	})
}

func (c *cli) newPassword(cmd *cobra.Command, prompt string) ([]byte, error) {
	pw, err := c.readPassword(cmd, prompt)
	if err != nil {
		return nil, err
	}
	again, err := c.readPassword(cmd, "Repeat: ")
	if err != nil {
		vaultcrypto.Wipe(pw)
		return nil, err
	}
	defer vaultcrypto.Wipe(again)
	if !bytes.Equal(pw, again) {
		vaultcrypto.Wipe(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

// readPassword reads without echo from a terminal, or one line from a
// pipe (scripts and tests).
func (c *cli) readPassword(cmd *cobra.Command, prompt string) ([]byte, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return pw, err
	}
	line, err := c.in.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

package commands

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/stash/internal/app"
	"github.com/MrSnakeDoc/stash/internal/config"
	"github.com/MrSnakeDoc/stash/internal/logger"
)

// cli is the state shared by every command of one invocation.
type cli struct {
	cfg *config.Config
	log logger.Logger
	in  *bufio.Reader

	// flag overrides
	dataDir string
	storage string
	verbose bool
}

func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "stash",
		Short:        "Bookmark and reading-list manager",
		Long:         "Stash keeps bookmarks, feeds and an encrypted vault. Run without a subcommand to start the service.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.dataDir, "data-dir", "", "data directory (default $STASH_DATA_DIR or ~/.stash)")
	root.PersistentFlags().StringVar(&c.storage, "storage", "", "storage backend: file, sqlite, pebble, redis, memory")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log at the configured level instead of warnings only")

	root.AddCommand(
		serveCmd(c),
		addCmd(c),
		listCmd(c),
		dupesCmd(c),
		importCmd(c),
		exportCmd(c),
		feedsCmd(c),
		vaultCmd(c),
		versionCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	c.cfg = config.Load()
	if c.dataDir != "" {
		c.cfg.DataDir = c.dataDir
	}
	if c.storage != "" {
		c.cfg.Storage = strings.ToLower(c.storage)
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	level := c.cfg.LogLevel
	if !c.verbose && !isServe(cmd) {
		level = "warn"
	}
	c.log = logger.New(level, c.cfg.PrettyLog)
	c.in = bufio.NewReader(cmd.InOrStdin())
	return nil
}

func isServe(cmd *cobra.Command) bool {
	return cmd.Name() == "serve" || !cmd.HasParent()
}

// withCore opens the stores for the duration of fn.
func (c *cli) withCore(cmd *cobra.Command, fn func(*app.Core) error) (err error) {
	ctx := cmd.Context()
	core, err := app.Open(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := core.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("save changes: %w", cerr)
		}
	}()
	return fn(core)
}

func serveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the service and the extension bridge (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd)
		},
	}
}

func (c *cli) serve(cmd *cobra.Command) error {
	a, err := app.New(cmd.Context(), c.cfg, c.log)
	if err != nil {
		c.log.Error("failed to start", logger.Error(err))
		return err
	}
	return a.Run()
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/trctl/internal/buildinfo"
	"github.com/autobrr/trctl/internal/config"
	"github.com/autobrr/trctl/internal/console"
	"github.com/autobrr/trctl/internal/database"
	"github.com/autobrr/trctl/internal/dbinterface"
	"github.com/autobrr/trctl/internal/dedup"
	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/metrics"
	"github.com/autobrr/trctl/internal/services/admission"
	"github.com/autobrr/trctl/internal/services/control"
	"github.com/autobrr/trctl/internal/space"
	"github.com/autobrr/trctl/internal/transmission"
)

const skipSetupAnnotation = "trctl/skip-setup"

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	a := &app{}

	var rootCmd = &cobra.Command{
		Use:   "trctl",
		Short: "Manage the torrents of a Transmission daemon",
		Long: `trctl - add, query, move and clean up torrents of a Transmission daemon.

Without a subcommand trctl runs query.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.PersistentFlags().StringVarP(&a.configDir, "config-dir", "c", "", "config directory or file path (default is OS-specific: ~/.config/trctl/)")
	rootCmd.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "increase verbosity (-v debug, -vv trace)")
	rootCmd.PersistentFlags().BoolVar(&a.mock, "mock", false, "run against an in-memory mock daemon")
	rootCmd.PersistentFlags().BoolVarP(&a.yes, "yes", "y", false, "don't ask for confirmation")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if skipSetup(cmd) {
			return nil
		}
		return a.setup(cmd.Context())
	}

	// query is the default command
	var rootQuery queryFlags
	rootQuery.register(rootCmd)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return a.runQuery(cmd.Context(), &rootQuery, args)
	}

	rootCmd.AddCommand(RunAddCommand(a))
	rootCmd.AddCommand(RunAddURLCommand(a))
	rootCmd.AddCommand(RunQueryCommand(a))
	rootCmd.AddCommand(RunEraseCommand(a, "rm", "Remove torrent and its data", true))
	rootCmd.AddCommand(RunEraseCommand(a, "erase", "Remove torrent but leave downloaded data in place", false))
	rootCmd.AddCommand(RunCleanCommand(a))
	rootCmd.AddCommand(RunSetLocationCommand(a))
	rootCmd.AddCommand(RunMoveCommand(a))
	rootCmd.AddCommand(RunActionCommand(a, transmission.ActionStart, "Queue torrents"))
	rootCmd.AddCommand(RunActionCommand(a, transmission.ActionStop, "Stop torrents"))
	rootCmd.AddCommand(RunActionCommand(a, transmission.ActionStartNow, "Start torrents without queuing"))
	rootCmd.AddCommand(RunActionCommand(a, transmission.ActionVerify, "Verify torrents"))
	rootCmd.AddCommand(RunActionCommand(a, transmission.ActionReannounce, "Reannounce torrents"))
	rootCmd.AddCommand(RunListTrackersCommand(a))
	rootCmd.AddCommand(RunInfoCommand(a))
	rootCmd.AddCommand(RunSpaceCommand(a))
	rootCmd.AddCommand(RunWatchCommand(a))
	rootCmd.AddCommand(RunDedupCommand(a))
	rootCmd.AddCommand(RunGenTorrentsCommand(a))
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunVersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	os.Exit(a.finish(err))
}

// skipSetup reports whether cmd runs without configuration and daemon.
func skipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipSetupAnnotation] == "true" {
			return true
		}
		if c.Name() == "completion" || c.Name() == cobra.ShellCompRequestCmd {
			return true
		}
	}
	return false
}

// app holds what every command shares once the configuration is loaded.
type app struct {
	configDir string
	verbose   int
	mock      bool
	yes       bool

	cfg       *config.AppConfig
	client    transmission.Client
	db        *sql.DB
	dedup     *dedup.Store
	console   *console.Console
	metrics   *metrics.Metrics
	admission *admission.Service
	control   *control.Service

	// exitCode overrides the code derived from the command error when set.
	exitCode *int
}

func (a *app) setup(ctx context.Context) error {
	cfg, err := config.New(a.configDir, buildinfo.Version)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	a.cfg = cfg

	cfg.ApplyLogConfig()
	config.SetVerbosity(a.verbose)

	c := cfg.Config
	log.Debug().Str("config", cfg.GetConfigPath()).Str("rpcUrl", c.RPCURL).Bool("mock", a.mock).Msg("Configuration loaded")

	if a.mock {
		a.client = transmission.NewMock(c.DlDirs)
	} else {
		a.client = transmission.NewHTTPClient(transmission.Options{
			URL:      c.RPCURL,
			Username: c.RPCUser,
			Password: c.RPCPass,
			Timeout:  time.Duration(c.RPCTimeout) * time.Second,
		})
	}

	// an untyped nil disables the sqlite backend
	var querier dbinterface.Querier
	if c.SqliteDB {
		path := cfg.GetDatabasePath()
		if a.mock {
			path = ":memory:"
		}
		db, err := database.Open(ctx, path)
		if err != nil {
			return err
		}
		a.db = db
		querier = db
	}
	a.dedup = dedup.New(c.CopyDir, querier)

	a.console = console.New(os.Stdin, os.Stdout, os.Stderr, console.Options{
		BaseDir:     c.BaseDir,
		Interactive: !a.yes && term.IsTerminal(int(os.Stdin.Fd())),
		AskExisting: c.AskExisting,
	})
	a.metrics = metrics.New()

	a.admission = admission.NewService(a.client, a.dedup, a.console, admissionConfig(c), a.metrics)
	a.control = control.NewService(a.client, a.console, control.Config{
		BaseDir:             c.BaseDir,
		DlDirs:              c.DlDirs,
		Remote:              cfg.IsRemote() && !a.mock,
		MoveCommand:         c.MoveCommand,
		DstFreeSpaceToLeave: c.Limits.DstFreeSpaceToLeave,
		Verify:              c.Verify,
		ConfigPath:          cfg.GetConfigPath(),
	})

	return nil
}

func admissionConfig(c *domain.Config) admission.Config {
	return admission.Config{
		BaseDir: c.BaseDir,
		Params: space.Params{
			SafeMargin:     c.Limits.FreeSpacePerDlDir,
			Quota:          c.Limits.QuotaPerDlDir,
			MagnetEstimate: c.Limits.MagnetSizeEstimate,
		},
	}
}

// finish reports err, flushes metrics and releases resources. It returns the
// process exit code.
func (a *app) finish(err error) int {
	if a.console != nil {
		a.console.PrintResult(err)
	} else if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	if a.cfg != nil && a.metrics != nil {
		if werr := a.metrics.WriteTextfile(a.cfg.Config.MetricsTextfile); werr != nil {
			log.Error().Err(werr).Msg("Failed to write metrics textfile")
		}
	}

	if a.db != nil {
		if cerr := a.db.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close database")
		}
	}

	if a.exitCode != nil {
		return *a.exitCode
	}
	return console.ExitCode(err)
}

// refreshCapabilities asks a real daemon for its version so unsupported
// methods fail early.
func (a *app) refreshCapabilities(ctx context.Context) error {
	r, ok := a.client.(interface {
		RefreshCapabilities(ctx context.Context) error
	})
	if !ok {
		return nil
	}
	return r.RefreshCapabilities(ctx)
}

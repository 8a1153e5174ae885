// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/services/admission"
)

type addFlags struct {
	dlDir    string
	existing bool
}

func (f *addFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.dlDir, "dldir", "", "download directory, relative to the base directory")
	cmd.Flags().BoolVar(&f.existing, "existing", false, "the torrent already has files in the download directory")
}

// runAdd admits every source and reports each outcome as it completes.
func (a *app) runAdd(ctx context.Context, args []string, f *addFlags) error {
	sources := make([]admission.Source, 0, len(args))
	for _, arg := range args {
		sources = append(sources, admission.ParseSource(arg))
	}

	opts := admission.Options{
		DownloadDir:  f.dlDir,
		UseExisting:  f.existing,
		RemoveSource: true,
	}

	single := len(sources) == 1
	_, err := a.admission.AddBatch(ctx, sources, opts, func(o admission.Outcome) {
		switch {
		case o.Err == nil:
			a.console.AddResult(o.Result)
		case single:
			// reported once as the command result
		default:
			a.console.PrintResult(fmt.Errorf("%s: %w", o.Source.Location, o.Err))
		}
	})
	return err
}

func RunAddCommand(a *app) *cobra.Command {
	var f addFlags

	command := &cobra.Command{
		Use:   "add <torrent files...>",
		Short: "Add torrent file",
		Long: `Add torrent files to the daemon.

Each torrent downloads into its own <dldir>/<info hash> directory unless
--existing is given, and starts paused when the download directory would run
short on space. Added files are deleted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAdd(cmd.Context(), args, &f)
		},
	}

	f.register(command)

	return command
}

func RunAddURLCommand(a *app) *cobra.Command {
	var f addFlags

	command := &cobra.Command{
		Use:   "add-url <urls...>",
		Short: "Add magnet link or a torrent file from url",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if src := admission.ParseSource(arg); src.Kind == admission.SourceFile {
					return fmt.Errorf("not a url or magnet link: %s", arg)
				}
			}
			return a.runAdd(cmd.Context(), args, &f)
		},
	}

	f.register(command)

	return command
}

func RunWatchCommand(a *app) *cobra.Command {
	var f addFlags

	command := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Add torrent files dropped into a directory",
		Long: `Watch a directory and add every .torrent file that appears in it.

Torrents fetched before are skipped without asking. The configuration file is
reloaded when it changes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Config.WatchDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no watch directory given and watchDir is not configured")
			}

			svc := admission.NewService(a.client, a.dedup, admission.SkipExisting{}, admissionConfig(a.cfg.Config), a.metrics)

			a.cfg.WatchConfig()
			a.cfg.RegisterReloadListener(func(c *domain.Config) {
				svc.SetConfig(admissionConfig(c))
				log.Info().Str("baseDir", c.BaseDir).Msg("Admission limits reloaded")
			})

			opts := admission.Options{DownloadDir: f.dlDir, UseExisting: f.existing}
			watcher := svc.NewWatcher(dir, opts, func(o admission.Outcome) {
				if o.Err == nil {
					a.console.AddResult(o.Result)
				}
				if err := a.metrics.WriteTextfile(a.cfg.Config.MetricsTextfile); err != nil {
					log.Error().Err(err).Msg("Failed to write metrics textfile")
				}
			})

			log.Info().Str("dir", dir).Msg("Watching for torrent files")
			return watcher.Run(cmd.Context())
		},
	}

	f.register(command)

	return command
}

func RunDedupCommand(a *app) *cobra.Command {
	command := &cobra.Command{
		Use:   "dedup",
		Short: "Manage the record of fetched torrents",
	}

	importCmd := &cobra.Command{
		Use:   "import [dir]",
		Short: "Record the <hash>.torrent files of a directory as fetched",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Config.CopyDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				return errors.New("no directory given and copyDir is not configured")
			}

			res, err := a.dedup.Import(cmd.Context(), dir)
			if err != nil {
				return err
			}
			a.console.Infof("Imported %d of %d hashes from %s", res.Inserted, res.Scanned, dir)
			return nil
		},
	}

	command.AddCommand(importCmd)

	return command
}

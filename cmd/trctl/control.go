// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/autobrr/trctl/internal/console"
	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/services/control"
	"github.com/autobrr/trctl/internal/transmission"
)

type outputFlags struct {
	json bool
	yaml bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.json, "json", false, "print JSON")
	cmd.Flags().BoolVar(&o.yaml, "yaml", false, "print YAML")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
}

func (a *app) runQuery(ctx context.Context, q *queryFlags, args []string) error {
	spec, err := q.spec(args)
	if err != nil {
		return err
	}

	torrents, err := a.control.Query(ctx, spec)
	if err != nil {
		return err
	}

	a.metrics.ObserveTorrents(torrents)
	a.console.PrintTorrents(torrents)
	return nil
}

func RunQueryCommand(a *app) *cobra.Command {
	var (
		q   queryFlags
		out outputFlags
	)

	command := &cobra.Command{
		Use:     "query [patterns...]",
		Short:   "Query torrents",
		Aliases: []string{"q", "qu", "que", "quer"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !out.json && !out.yaml {
				return a.runQuery(cmd.Context(), &q, args)
			}

			spec, err := q.spec(args)
			if err != nil {
				return err
			}
			torrents, err := a.control.Query(cmd.Context(), spec)
			if err != nil {
				return err
			}
			a.metrics.ObserveTorrents(torrents)

			if out.json {
				return a.console.PrintJSON(torrents)
			}
			return a.console.PrintYAML(torrents)
		},
	}

	q.register(command)
	out.register(command)

	return command
}

func RunEraseCommand(a *app, use, short string, deleteData bool) *cobra.Command {
	var q queryFlags

	command := &cobra.Command{
		Use:   use + " [patterns...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}
			return a.control.Erase(cmd.Context(), spec, deleteData)
		},
	}

	q.register(command)

	return command
}

func RunCleanCommand(a *app) *cobra.Command {
	var q queryFlags

	command := &cobra.Command{
		Use:   "clean [patterns...]",
		Short: "Clean finished torrents",
		Long: `Erase finished torrents that were moved out of the download directories.
The downloaded data is left in place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}
			return a.control.Clean(cmd.Context(), spec)
		},
	}

	q.register(command)

	return command
}

func RunSetLocationCommand(a *app) *cobra.Command {
	var (
		q        queryFlags
		move     bool
		location string
	)

	command := &cobra.Command{
		Use:   "set-location [patterns...]",
		Short: "Move torrents with the transmission rpc call",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}
			return a.control.SetLocation(cmd.Context(), spec, location, move)
		},
	}

	q.register(command)
	command.Flags().BoolVar(&move, "mv", false, "move files (or find them in the new location)")
	command.Flags().StringVar(&location, "location", "", "new location")
	_ = command.MarkFlagRequired("location")

	return command
}

func RunMoveCommand(a *app) *cobra.Command {
	var (
		q           queryFlags
		destination string
		force       bool
		verify      bool
	)

	command := &cobra.Command{
		Use:   "mv [patterns...]",
		Short: "Move torrents",
		Long: `Move the data of the selected torrents with the configured move command.

The command receives the torrent and destination through TR_* environment
variables and exits with 3 when the destination is short on space.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}

			opts := control.MoveOptions{
				Destination: destination,
				Force:       force,
			}
			if opts.Destination == "" {
				opts.Destination = a.cfg.Config.DefaultDestination
			}
			if cmd.Flags().Changed("verify") {
				opts.Verify = &verify
			}

			return a.control.Move(cmd.Context(), spec, opts)
		},
	}

	q.register(command)
	command.Flags().StringVarP(&destination, "destination", "d", "", "destination directory (default from config)")
	command.Flags().BoolVarP(&force, "force", "f", false, "move even if the destination directory is low on disk space")
	command.Flags().BoolVar(&verify, "verify", false, "verify the files after move (default from config)")

	return command
}

func RunActionCommand(a *app, action transmission.Action, short string) *cobra.Command {
	var q queryFlags

	command := &cobra.Command{
		Use:   string(action) + " [patterns...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}
			if err := a.refreshCapabilities(cmd.Context()); err != nil {
				return err
			}
			return a.control.Act(cmd.Context(), spec, action)
		},
	}

	q.register(command)

	return command
}

func RunListTrackersCommand(a *app) *cobra.Command {
	var (
		q        queryFlags
		out      outputFlags
		byDomain bool
	)

	command := &cobra.Command{
		Use:   "list-trackers [patterns...]",
		Short: "List all trackers used by the torrents",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}

			trackers, err := a.control.ListTrackers(cmd.Context(), spec, byDomain)
			if err != nil {
				return err
			}

			switch {
			case out.json:
				return printJSON(cmd, trackers)
			case out.yaml:
				return printYAML(cmd, trackers)
			}
			for _, t := range trackers {
				a.console.Println(fmt.Sprintf("%4d: %s", t.Count, t.Tracker))
			}
			return nil
		},
	}

	q.register(command)
	out.register(command)
	command.Flags().BoolVar(&byDomain, "by-domain", false, "group announce urls by registrable domain")

	return command
}

func RunInfoCommand(a *app) *cobra.Command {
	var (
		q   queryFlags
		out outputFlags
	)

	command := &cobra.Command{
		Use:   "info [patterns...]",
		Short: "Show what the torrent names say about their releases",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}

			infos, err := a.control.Info(cmd.Context(), spec)
			if err != nil {
				return err
			}

			switch {
			case out.json:
				return printJSON(cmd, infos)
			case out.yaml:
				return printYAML(cmd, infos)
			}
			for _, info := range infos {
				a.console.Println(formatReleaseInfo(info))
			}
			return nil
		},
	}

	q.register(command)
	out.register(command)

	return command
}

func formatReleaseInfo(info control.ReleaseInfo) string {
	s := fmt.Sprintf("%4d: %s\n      %s", info.ID, info.Name, info.Type)
	if info.Title != "" {
		s += " " + info.Title
	}
	if info.Year != 0 {
		s += fmt.Sprintf(" (%d)", info.Year)
	}
	if info.Series != 0 || info.Episode != 0 {
		s += fmt.Sprintf(" S%02dE%02d", info.Series, info.Episode)
	}
	for _, part := range []string{info.Resolution, info.Source, info.Group} {
		if part != "" {
			s += " " + part
		}
	}
	return s
}

func RunGenTorrentsCommand(a *app) *cobra.Command {
	var q queryFlags

	command := &cobra.Command{
		Use:    "gen-torrents [patterns...]",
		Short:  "Print torrents as shell completion entries",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := q.spec(args)
			if err != nil {
				return err
			}

			torrents, err := a.control.CompletionEntries(cmd.Context(), spec)
			if errors.Is(err, domain.ErrNoMatches) {
				// completion scripts only check the status
				code := 1
				a.exitCode = &code
				return nil
			}
			if err != nil {
				return err
			}

			for i := range torrents {
				if torrents[i].Name == nil {
					continue
				}
				a.console.Println(console.CompletionLine(&torrents[i], a.cfg.Config.BaseDir))
			}
			return nil
		},
	}

	q.register(command)

	return command
}

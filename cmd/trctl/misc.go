// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/trctl/internal/buildinfo"
	"github.com/autobrr/trctl/internal/config"
	"github.com/autobrr/trctl/internal/console"
	"github.com/autobrr/trctl/internal/space"
)

func RunSpaceCommand(a *app) *cobra.Command {
	command := &cobra.Command{
		Use:   "space [dirs...]",
		Short: "Show the space budget of the download directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			dirs := args
			if len(dirs) == 0 {
				dirs = a.cfg.Config.DlDirs
			}
			if len(dirs) == 0 {
				return errors.New("no directories given and dlDirs is not configured")
			}

			budgets := make([]space.Budget, len(dirs))
			g, gctx := errgroup.WithContext(cmd.Context())
			for i, dir := range dirs {
				g.Go(func() error {
					b, err := a.admission.Budget(gctx, dir)
					if err != nil {
						return err
					}
					budgets[i] = b
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			a.console.Println(fmt.Sprintf("%6s  %6s  %6s  %4s  %s", "Free", "Safe", "Total", "Nr", "Directory"))
			for _, b := range budgets {
				a.console.Println(fmt.Sprintf("%s  %s  %s  %4d  %s",
					console.ByteSize(b.FreeSpace, 6, 1),
					console.ByteSize(b.SafeSpace, 6, 1),
					console.ByteSize(b.TotalSize, 6, 1),
					b.Torrents, b.Dir))
			}

			limits := a.cfg.Config.Limits
			if limits.QuotaPerDlDir > 0 {
				a.console.Println("Quota per directory: " + humanize.IBytes(limits.QuotaPerDlDir))
			}
			a.console.Println("Space to keep free: " + humanize.IBytes(limits.FreeSpacePerDlDir))
			return nil
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/trctl/config.toml
- Windows: %APPDATA%\trctl\config.toml

You can specify either a directory path or a direct file path:
- Directory: trctl generate-config --config-dir /path/to/config/
- File: trctl generate-config --config-dir /path/to/myconfig.toml`,
		Annotations: map[string]string{skipSetupAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				configPath = filepath.Join(config.GetDefaultConfigDir(), "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	return command
}

func RunVersionCommand() *cobra.Command {
	command := &cobra.Command{
		Use:         "version",
		Short:       "Print the version of trctl",
		Annotations: map[string]string{skipSetupAnnotation: "true"},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Print())
		},
	}

	return command
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func printYAML(cmd *cobra.Command, v any) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

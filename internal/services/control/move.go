// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	shellquote "github.com/Hellseher/go-shellquote"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

// DefaultMoveCommand is the helper script shipped with the package.
const DefaultMoveCommand = "/usr/lib/trctl/move.sh"

// exitNotEnoughSpace is the helper's exit code for a full destination.
const exitNotEnoughSpace = 3

type MoveOptions struct {
	Destination string
	Force       bool
	// Verify overrides the configured verify setting when set.
	Verify *bool
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// moveEnv builds the helper environment for t. Every torrent field the helper
// relies on must be known.
func (s *Service) moveEnv(t *transmission.Torrent, opts MoveOptions) ([]string, error) {
	switch {
	case t.TorrentFile == nil:
		return nil, errors.New("torrent_file missing")
	case t.Name == nil:
		return nil, errors.New("name missing")
	case t.DownloadDir == nil:
		return nil, errors.New("download dir missing")
	case t.HashString == nil:
		return nil, errors.New("torrent hash missing")
	}

	verify := s.cfg.Verify
	if opts.Verify != nil {
		verify = *opts.Verify
	}

	return []string{
		"TR_FREE_SPACE_TO_LEAVE=" + strconv.FormatUint(s.cfg.DstFreeSpaceToLeave, 10),
		"TR_FORCE=" + boolEnv(opts.Force),
		"TR_CONFIG_PATH=" + s.cfg.ConfigPath,
		"TR_VERIFY=" + boolEnv(verify),
		"TR_TORRENT_ROOT=" + s.cfg.BaseDir,
		"TR_TORRENT_FILE=" + *t.TorrentFile,
		"TR_TORRENT_NAME=" + *t.Name,
		"TR_TORRENT_DIR=" + *t.DownloadDir,
		"TR_TORRENT_HASH=" + *t.HashString,
		"TR_TORRENT_DESTINATION=" + opts.Destination,
	}, nil
}

// Move hands each selected torrent to the move helper. A failing helper does
// not stop the others. Several failures are a MultipleError, a single one
// that reported a full destination is ErrNotEnoughSpace.
func (s *Service) Move(ctx context.Context, spec query.Spec, opts MoveOptions) error {
	if s.cfg.Remote {
		return errors.New("Cannot mv files in a remote host")
	}

	command := s.cfg.MoveCommand
	if command == "" {
		command = DefaultMoveCommand
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return fmt.Errorf("invalid move command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return errors.New("empty move command")
	}

	selected, err := s.selectMatching(ctx, spec)
	if err != nil {
		return err
	}

	var lastErr error
	lastCode := 0
	failed := 0
	for i := range selected {
		t := &selected[i]
		s.presenter.Infof("mv %s", displayName(t))

		env, err := s.moveEnv(t, opts)
		if err != nil {
			return err
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = s.stdout
		cmd.Stderr = s.stderr

		log.Debug().Strs("argv", argv).Str("hash", *t.HashString).Msg("Running move command")

		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				lastCode = exitErr.ExitCode()
			} else {
				lastCode = -1
			}
			lastErr = err
			failed++
			s.presenter.Warnf("move: %v", err)
		}
	}

	switch {
	case failed > 1:
		return &domain.MultipleError{Count: failed}
	case failed == 1 && lastCode == exitNotEnoughSpace:
		return domain.ErrNotEnoughSpace
	case failed == 1:
		return fmt.Errorf("move failed: %w", lastErr)
	}
	return nil
}

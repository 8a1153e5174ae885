// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package control runs the commands that act on torrents already known to the
// daemon: queries, removal, actions, relocation and the external move.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

// Presenter shows selections to the operator and reports progress.
type Presenter interface {
	// Select shows torrents and returns the ones the operator picked. An empty
	// choice is a NothingToDoError.
	Select(torrents []transmission.Torrent) ([]transmission.Torrent, error)
	ActionResult(heading string, torrents []transmission.Torrent)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type Config struct {
	BaseDir string
	DlDirs  []string
	// Remote disables local file operations on torrent data.
	Remote bool

	MoveCommand         string
	DstFreeSpaceToLeave uint64
	Verify              bool
	ConfigPath          string
}

type Service struct {
	client    transmission.Client
	presenter Presenter
	cfg       Config

	// stdout and stderr receive the output of the move command.
	stdout io.Writer
	stderr io.Writer
}

func NewService(client transmission.Client, presenter Presenter, cfg Config) *Service {
	return &Service{
		client:    client,
		presenter: presenter,
		cfg:       cfg,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

func (s *Service) fetch(ctx context.Context, spec *query.Spec) ([]transmission.Torrent, error) {
	if spec.HasIDs() {
		return s.client.Get(ctx, transmission.ListFields, spec.TransmissionIDs()...)
	}
	return s.client.Get(ctx, transmission.ListFields)
}

func (s *Service) filter(spec query.Spec, torrents []transmission.Torrent) ([]transmission.Torrent, error) {
	f, err := query.Compile(spec, s.cfg.DlDirs)
	if err != nil {
		return nil, err
	}

	filtered, err := f.Apply(torrents)
	if err != nil {
		return nil, err
	}

	query.Sort(filtered, spec.Sort, spec.Reverse)
	return filtered, nil
}

// Query fetches, filters and sorts.
func (s *Service) Query(ctx context.Context, spec query.Spec) ([]transmission.Torrent, error) {
	torrents, err := s.fetch(ctx, &spec)
	if err != nil {
		return nil, err
	}

	log.Trace().Int("fetched", len(torrents)).Msg("Fetched torrents")
	return s.filter(spec, torrents)
}

// Erase removes the selected torrents. With deleteData the daemon deletes the
// data and the emptied per-hash directory is removed too.
func (s *Service) Erase(ctx context.Context, spec query.Spec, deleteData bool) error {
	if !spec.Files {
		torrents, err := s.Query(ctx, spec)
		if err != nil {
			return err
		}
		selected, err := s.presenter.Select(torrents)
		if err != nil {
			return err
		}
		return s.eraseSelected(ctx, selected, deleteData)
	}

	// Files mode matches every pattern on its own, so one missing file does
	// not abort the others.
	torrents, err := s.fetch(ctx, &spec)
	if err != nil {
		return err
	}

	patterns := spec.Patterns
	for _, p := range patterns {
		s.presenter.Infof("%s:", p)

		one := spec
		one.Patterns = []string{p}
		filtered, err := s.filter(one, torrents)
		if err != nil {
			if errors.Is(err, domain.ErrNoMatches) {
				s.presenter.Warnf("%v", err)
				continue
			}
			return err
		}

		selected, err := s.presenter.Select(filtered)
		if err != nil {
			return err
		}
		if err := s.eraseSelected(ctx, selected, deleteData); err != nil {
			return err
		}
	}

	return nil
}

// Clean erases finished torrents that were moved out of the staging dirs,
// keeping their data.
func (s *Service) Clean(ctx context.Context, spec query.Spec) error {
	spec.Cleanable = true
	return s.Erase(ctx, spec, false)
}

func hashIDs(torrents []transmission.Torrent) ([]transmission.ID, error) {
	ids := make([]transmission.ID, 0, len(torrents))
	for i := range torrents {
		if torrents[i].HashString == nil {
			return nil, fmt.Errorf("undefined hash for torrent %s", displayName(&torrents[i]))
		}
		ids = append(ids, transmission.HashID(*torrents[i].HashString))
	}
	return ids, nil
}

func displayName(t *transmission.Torrent) string {
	if t.Name == nil {
		return "<unknown>"
	}
	return *t.Name
}

func (s *Service) eraseSelected(ctx context.Context, selected []transmission.Torrent, deleteData bool) error {
	if len(selected) == 0 {
		return nil
	}

	verb := "erase"
	if deleteData {
		verb = "rm"
	}
	for i := range selected {
		s.presenter.Infof("%s: %s", verb, displayName(&selected[i]))
	}

	ids, err := hashIDs(selected)
	if err != nil {
		return err
	}
	if err := s.client.Remove(ctx, ids, deleteData); err != nil {
		return err
	}

	if !deleteData {
		return nil
	}

	var lastErr error
	for i := range selected {
		if err := s.removeHashDir(&selected[i]); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// removeHashDir removes the per-hash directory the daemon left behind.
func (s *Service) removeHashDir(t *transmission.Torrent) error {
	if t.DownloadDir == nil {
		return errors.New("no download dir")
	}
	if t.HashString == nil {
		return errors.New("no hash")
	}

	dir := *t.DownloadDir
	if filepath.Base(dir) != *t.HashString {
		return nil
	}

	if s.cfg.Remote {
		s.presenter.Infof("not removing the hash dir of a remote torrent %s", dir)
		return nil
	}

	s.presenter.Infof("rmdir %s", dir)
	if err := os.Remove(dir); err != nil {
		s.presenter.Errorf("%v", err)
		return err
	}
	return nil
}

// ActionHeading is the line printed before the torrents an action was sent to.
func ActionHeading(action transmission.Action) string {
	switch action {
	case transmission.ActionReannounce:
		return "Reannouncing:"
	case transmission.ActionStart:
		return "Started:"
	case transmission.ActionStartNow:
		return "Started immediately:"
	case transmission.ActionVerify:
		return "Verifying:"
	case transmission.ActionStop:
		return "Stopped:"
	default:
		return string(action) + ":"
	}
}

// PresetStatuses narrows spec to the torrents an action can change.
func PresetStatuses(spec *query.Spec, action transmission.Action) {
	notFinished := false
	switch action {
	case transmission.ActionStartNow:
		spec.AddStatuses(
			transmission.StatusQueuedToDownload,
			transmission.StatusQueuedToSeed,
			transmission.StatusQueuedToVerify,
			transmission.StatusStopped,
		)
		spec.Finished = &notFinished
	case transmission.ActionStart:
		spec.AddStatuses(transmission.StatusStopped)
		spec.Finished = &notFinished
	case transmission.ActionStop:
		spec.AddStatuses(
			transmission.StatusQueuedToDownload,
			transmission.StatusQueuedToSeed,
			transmission.StatusQueuedToVerify,
			transmission.StatusSeeding,
			transmission.StatusDownloading,
		)
	}
}

// Act sends action to the selected torrents.
func (s *Service) Act(ctx context.Context, spec query.Spec, action transmission.Action) error {
	PresetStatuses(&spec, action)

	selected, err := s.selectMatching(ctx, spec)
	if err != nil {
		return err
	}

	ids, err := hashIDs(selected)
	if err != nil {
		return err
	}
	if err := s.client.Action(ctx, action, ids...); err != nil {
		return err
	}

	s.presenter.ActionResult(ActionHeading(action), selected)
	return nil
}

// SetLocation points the selected torrents at location. With move the daemon
// moves the data, otherwise it looks for the data there.
func (s *Service) SetLocation(ctx context.Context, spec query.Spec, location string, move bool) error {
	selected, err := s.selectMatching(ctx, spec)
	if err != nil {
		return err
	}

	ids, err := hashIDs(selected)
	if err != nil {
		return err
	}
	if err := s.client.SetLocation(ctx, location, move, ids...); err != nil {
		return err
	}

	heading := "Location set"
	if move {
		heading = "Torrent moved"
	}
	s.presenter.ActionResult(heading, selected)
	return nil
}

func (s *Service) selectMatching(ctx context.Context, spec query.Spec) ([]transmission.Torrent, error) {
	torrents, err := s.Query(ctx, spec)
	if err != nil {
		return nil, err
	}
	return s.presenter.Select(torrents)
}

// CompletionEntries returns the matching torrents newest first, for shell
// completion.
func (s *Service) CompletionEntries(ctx context.Context, spec query.Spec) ([]transmission.Torrent, error) {
	spec.Sort = query.SortID
	spec.Reverse = true
	return s.Query(ctx, spec)
}

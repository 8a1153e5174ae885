// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package admission adds torrents to the daemon: it identifies the torrent,
// consults the dedup store, picks the download directory and decides from the
// space budget whether the torrent starts paused.
package admission

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/metrics"
	"github.com/autobrr/trctl/internal/space"
	"github.com/autobrr/trctl/internal/torrentfile"
	"github.com/autobrr/trctl/internal/transmission"
)

type SourceKind int

const (
	SourceFile SourceKind = iota
	SourceURL
	SourceMagnet
)

func (k SourceKind) String() string {
	switch k {
	case SourceURL:
		return "url"
	case SourceMagnet:
		return "magnet"
	default:
		return "file"
	}
}

// Source is where a torrent comes from.
type Source struct {
	Kind     SourceKind
	Location string
}

// ParseSource classifies a command line argument.
func ParseSource(s string) Source {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case torrentfile.IsMagnet(s):
		return Source{Kind: SourceMagnet, Location: s}
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return Source{Kind: SourceURL, Location: s}
	default:
		return Source{Kind: SourceFile, Location: s}
	}
}

type Options struct {
	// DownloadDir is relative to the base dir. Empty uses the daemon's default.
	DownloadDir string
	// UseExisting downloads into DownloadDir itself instead of a per-hash subdirectory.
	UseExisting bool
	// RemoveSource deletes a local .torrent file once the daemon has it.
	RemoveSource bool
}

// ExistingConfirmer decides whether a torrent fetched before is added again.
type ExistingConfirmer interface {
	ConfirmExisting(name string, at time.Time) (bool, error)
}

// DedupStore remembers fetched hashes.
type DedupStore interface {
	Has(ctx context.Context, hash string) (*time.Time, error)
	Store(ctx context.Context, hash string) error
}

type Config struct {
	BaseDir string
	Params  space.Params
}

// Result describes one admission.
type Result struct {
	Source   Source
	Hash     string
	Name     string
	Response transmission.AddResponse
	// ExistedAt is when the hash was fetched before, nil if never.
	ExistedAt *time.Time
	// WouldBeFull is set when the torrent was added paused.
	WouldBeFull    bool
	OverQuota      bool
	ProjectedLeft  int64
	ProjectedTotal int64
	DownloadDir    string
	Budget         space.Budget
}

type Service struct {
	client     transmission.Client
	dedup      DedupStore
	confirmer  ExistingConfirmer
	cfgMu      sync.RWMutex
	cfg        Config
	metrics    *metrics.Metrics
	httpClient *http.Client
}

func NewService(client transmission.Client, dedup DedupStore, confirmer ExistingConfirmer, cfg Config, m *metrics.Metrics) *Service {
	return &Service{
		client:     client,
		dedup:      dedup,
		confirmer:  confirmer,
		cfg:        cfg,
		metrics:    m,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetConfig replaces the base dir and limits, for configuration reloads.
func (s *Service) SetConfig(cfg Config) {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg = cfg
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// identity is what a source resolves to before anything is sent to the daemon.
type identity struct {
	hash     string
	name     string
	length   uint64
	metainfo []byte
	uri      string
}

func (s *Service) resolve(ctx context.Context, src Source) (*identity, error) {
	switch src.Kind {
	case SourceMagnet:
		m, err := torrentfile.ParseMagnet(src.Location)
		if err != nil {
			return nil, err
		}
		return &identity{hash: m.InfoHash, name: m.Name, length: s.config().Params.MagnetLength(), uri: m.URI}, nil
	case SourceURL:
		data, err := s.download(ctx, src.Location)
		if err != nil {
			return nil, err
		}
		meta, err := torrentfile.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.Location, err)
		}
		return &identity{hash: meta.InfoHash, name: meta.DisplayName(), length: meta.Length, metainfo: data}, nil
	default:
		meta, data, err := torrentfile.ReadFile(src.Location)
		if err != nil {
			return nil, err
		}
		return &identity{hash: meta.InfoHash, name: meta.DisplayName(), length: meta.Length, metainfo: data}, nil
	}
}

// Add admits one torrent.
func (s *Service) Add(ctx context.Context, src Source, opts Options) (*Result, error) {
	if s.metrics != nil {
		timer := prometheus.NewTimer(s.metrics.AddDuration)
		defer timer.ObserveDuration()
	}

	res, err := s.add(ctx, src, opts)
	s.count(res, err)
	return res, err
}

func (s *Service) count(res *Result, err error) {
	if s.metrics == nil {
		return
	}

	outcome := metrics.OutcomeAdded
	switch {
	case domain.IsNothingToDo(err):
		outcome = metrics.OutcomeSkipped
	case err != nil:
		outcome = metrics.OutcomeFailed
	case res.Response.Duplicate:
		outcome = metrics.OutcomeDuplicate
	}
	s.metrics.AddTotal.WithLabelValues(outcome).Inc()

	if err == nil && res.WouldBeFull {
		s.metrics.PausedOnSpace.Inc()
	}
}

func (s *Service) add(ctx context.Context, src Source, opts Options) (*Result, error) {
	id, err := s.resolve(ctx, src)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("hash", id.hash).Str("source", src.Kind.String()).Uint64("length", id.length).Msg("Resolved torrent")

	existedAt, err := s.dedup.Has(ctx, id.hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing: %w", err)
	}
	if existedAt != nil {
		ok, err := s.confirmer.ConfirmExisting(id.name, *existedAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NothingToDo("Nothing to do")
		}
	}

	base, err := s.baseDir(ctx, opts.DownloadDir)
	if err != nil {
		return nil, err
	}

	budget, err := s.budget(ctx, base)
	if err != nil {
		return nil, err
	}

	decision, err := space.Admit(budget, id.length, s.config().Params)
	if err != nil {
		return nil, err
	}

	target := base
	if !opts.UseExisting {
		target = filepath.Join(base, id.hash)
	}
	log.Debug().Str("downloadDir", target).Bool("paused", decision.Paused).Msg("Adding torrent")

	req := transmission.AddRequest{
		DownloadDir: target,
		Paused:      decision.Paused,
	}
	if id.metainfo != nil {
		req.Metainfo = base64.StdEncoding.EncodeToString(id.metainfo)
	} else {
		req.Filename = id.uri
	}

	resp, err := s.client.Add(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.dedup.Store(ctx, id.hash); err != nil {
		return nil, fmt.Errorf("failed to remember %s: %w", id.hash, err)
	}

	if opts.RemoveSource && src.Kind == SourceFile {
		if err := os.Remove(src.Location); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to remove torrent file: %w", err)
		}
	}

	return &Result{
		Source:         src,
		Hash:           id.hash,
		Name:           id.name,
		Response:       resp,
		ExistedAt:      existedAt,
		WouldBeFull:    decision.Paused,
		OverQuota:      decision.OverQuota,
		ProjectedLeft:  decision.WouldBeLeft,
		ProjectedTotal: decision.WouldBeTotal,
		DownloadDir:    target,
		Budget:         budget,
	}, nil
}

func (s *Service) baseDir(ctx context.Context, dir string) (string, error) {
	if dir != "" {
		return filepath.Join(s.config().BaseDir, dir), nil
	}

	session, err := s.client.Session(ctx)
	if err != nil {
		return "", err
	}
	return session.DownloadDir, nil
}

// Budget computes the space budget of dir.
func (s *Service) Budget(ctx context.Context, dir string) (space.Budget, error) {
	return s.budget(ctx, dir)
}

func (s *Service) budget(ctx context.Context, dir string) (space.Budget, error) {
	free, err := s.client.FreeSpace(ctx, dir)
	if err != nil {
		return space.Budget{}, fmt.Errorf("could not query free space for %s: %w", dir, err)
	}

	torrents, err := s.client.Get(ctx, transmission.SpaceFields)
	if err != nil {
		return space.Budget{}, err
	}

	budget, err := space.Compute(dir, torrents, free)
	if err != nil {
		return space.Budget{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveSpace(dir, budget.FreeSpace, budget.SafeSpace, budget.TotalSize)
	}
	return budget, nil
}

// Outcome is the per-source result of a batch.
type Outcome struct {
	Source Source
	Result *Result
	Err    error
}

// AddBatch admits every source, isolating failures. Declined torrents are
// skips, other failures are counted into a MultipleError. A batch of one
// returns that item's own error. report, when set, sees each outcome as it
// completes.
func (s *Service) AddBatch(ctx context.Context, sources []Source, opts Options, report func(Outcome)) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(sources))
	failed := 0

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		res, err := s.Add(ctx, src, opts)
		o := Outcome{Source: src, Result: res, Err: err}
		outcomes = append(outcomes, o)

		switch {
		case err == nil:
		case domain.IsNothingToDo(err):
			log.Debug().Str("source", src.Location).Msg("Skipped torrent")
		default:
			failed++
			log.Error().Err(err).Str("source", src.Location).Msg("Failed to add torrent")
		}

		if report != nil {
			report(o)
		}
	}

	if len(sources) == 1 {
		return outcomes, outcomes[0].Err
	}
	if failed > 0 {
		return outcomes, &domain.MultipleError{Count: failed}
	}
	return outcomes, nil
}

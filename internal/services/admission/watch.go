// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package admission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/domain"
)

const (
	defaultWatchDebounce = 2 * time.Second
	handledTTL           = 5 * time.Minute
)

// SkipExisting declines every torrent fetched before. Unattended adds use it.
type SkipExisting struct{}

func (SkipExisting) ConfirmExisting(name string, at time.Time) (bool, error) {
	log.Info().Str("name", name).Time("fetched", at).Msg("Skipping torrent fetched before")
	return false, nil
}

// Watcher admits .torrent files dropped into a directory. Events for a path
// are debounced until it has been quiet for a while, and a path handled
// recently is not admitted twice.
type Watcher struct {
	svc      *Service
	dir      string
	opts     Options
	debounce time.Duration
	report   func(Outcome)

	pending map[string]time.Time
	handled *ttlcache.Cache[string, struct{}]
}

// NewWatcher watches dir. Files are always removed after a successful add.
func (s *Service) NewWatcher(dir string, opts Options, report func(Outcome)) *Watcher {
	opts.RemoveSource = true
	return &Watcher{
		svc:      s,
		dir:      dir,
		opts:     opts,
		debounce: defaultWatchDebounce,
		report:   report,
		pending:  make(map[string]time.Time),
		handled:  ttlcache.New(ttlcache.Options[string, struct{}]{}.SetDefaultTTL(handledTTL)),
	}
}

func isTorrentFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".torrent")
}

// Run admits the files already present, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch path %s: %w", w.dir, err)
	}
	log.Info().Str("dir", w.dir).Msg("Watching for torrent files")

	if err := w.scanExisting(); err != nil {
		return err
	}

	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("dir", w.dir).Msg("Watcher stopped")
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Str("dir", w.dir).Msg("Watcher error")

		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read watch dir: %w", err)
	}

	// backdated so the first tick admits them
	at := time.Now().Add(-w.debounce)
	for _, e := range entries {
		if e.IsDir() || !isTorrentFile(e.Name()) {
			continue
		}
		w.pending[filepath.Join(w.dir, e.Name())] = at
	}
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isTorrentFile(event.Name) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		delete(w.pending, event.Name)
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if _, ok := w.handled.Get(event.Name); ok {
		log.Trace().Str("path", event.Name).Msg("Ignoring event for recently handled file")
		return
	}

	log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Detected torrent file")
	w.pending[event.Name] = time.Now()
}

// flush admits the paths that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}

	for _, path := range ready {
		w.handled.Set(path, struct{}{}, ttlcache.DefaultTTL)

		src := Source{Kind: SourceFile, Location: path}
		res, err := w.svc.Add(ctx, src, w.opts)
		switch {
		case err == nil:
		case domain.IsNothingToDo(err):
			log.Debug().Str("path", path).Msg("Nothing to do for watched torrent")
		default:
			log.Error().Err(err).Str("path", path).Msg("Failed to add watched torrent")
		}
		if w.report != nil {
			w.report(Outcome{Source: src, Result: res, Err: err})
		}
	}
}

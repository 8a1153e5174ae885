// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package admission

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/space"
)

func TestWatcherAdmitsDroppedFiles(t *testing.T) {
	watchDir := t.TempDir()
	srcDir := t.TempDir()

	// present before the watcher starts
	_, preHash, _ := writeTorrent(t, watchDir, "before", 10)

	f := newFixture(t, space.Params{})

	var mu sync.Mutex
	var outcomes []Outcome
	w := f.svc.NewWatcher(watchDir, Options{DownloadDir: "dl"}, func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, o)
	})
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes)
	}

	require.Eventually(t, func() bool { return count() == 1 }, 5*time.Second, 20*time.Millisecond)

	src, dropHash, _ := writeTorrent(t, srcDir, "dropped", 20)
	require.NoError(t, os.Rename(src, filepath.Join(watchDir, "dropped.torrent")))
	require.NoError(t, os.WriteFile(filepath.Join(watchDir, "notes.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return count() == 2 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	for _, o := range outcomes {
		require.NoError(t, o.Err)
	}
	assert.Equal(t, preHash, outcomes[0].Result.Hash)
	assert.Equal(t, dropHash, outcomes[1].Result.Hash)

	// admitted files are removed, other files are left alone
	entries, err := os.ReadDir(watchDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.txt", entries[0].Name())
}

func TestWatcherIgnoresRecentlyHandled(t *testing.T) {
	f := newFixture(t, space.Params{})
	w := f.svc.NewWatcher(t.TempDir(), Options{}, nil)

	path := filepath.Join(w.dir, "a.torrent")
	w.handled.Set(path, struct{}{}, time.Minute)

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	assert.Empty(t, w.pending)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(w.dir, "b.torrent"), Op: fsnotify.Write})
	assert.Len(t, w.pending, 1)

	w.handleEvent(fsnotify.Event{Name: filepath.Join(w.dir, "b.torrent"), Op: fsnotify.Remove})
	assert.Empty(t, w.pending)
}

func TestSkipExisting(t *testing.T) {
	f := newFixture(t, space.Params{})
	f.svc.confirmer = SkipExisting{}
	path, hash, _ := writeTorrent(t, t.TempDir(), "x", 10)
	f.dedup.seen[hash] = time.Now()

	_, err := f.svc.Add(context.Background(), ParseSource(path), Options{})
	assert.True(t, domain.IsNothingToDo(err))
}

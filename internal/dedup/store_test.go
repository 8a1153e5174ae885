// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trctl/internal/database"
)

const hash = "abed48adeb5e396f54a7089cbe6c1f2bc1b0dbc8"

func newStore(t *testing.T, copyDir string) *Store {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(copyDir, db)
}

func TestStoreAndHas(t *testing.T) {
	s := newStore(t, "")
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	ctx := context.Background()

	at, err := s.Has(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, at)

	require.NoError(t, s.Store(ctx, hash))
	// a second store keeps the first timestamp
	s.now = func() time.Time { return time.Unix(1800000000, 0) }
	require.NoError(t, s.Store(ctx, hash))

	at, err = s.Has(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, int64(1700000000), at.Unix())

	at, err = s.Has(ctx, "ABED48ADEB5E396F54A7089CBE6C1F2BC1B0DBC8")
	require.NoError(t, err)
	assert.NotNil(t, at)
}

func TestCopyDirWinsOverDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, hash+".torrent")
	require.NoError(t, os.WriteFile(path, []byte("d4:infodee"), 0o644))
	mtime := time.Unix(1600000000, 0)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	s := newStore(t, dir)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	require.NoError(t, s.Store(context.Background(), hash))

	at, err := s.Has(context.Background(), hash)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, mtime.Unix(), at.Unix())
}

func TestDisabledBackends(t *testing.T) {
	s := New("", nil)
	ctx := context.Background()

	require.NoError(t, s.Store(ctx, hash))
	at, err := s.Has(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, at)

	_, err = s.Import(ctx, t.TempDir())
	require.Error(t, err)
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		hash + ".torrent",
		"03A4F88ADEE883A3A135F10042442894AF4167F7.torrent",
		"notahash.torrent",
		hash + ".txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0000000000000000000000000000000000000000.torrent"), 0o755))

	s := newStore(t, "")
	ctx := context.Background()
	require.NoError(t, s.Store(ctx, hash))

	res, err := s.Import(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, int64(1), res.Inserted)

	at, err := s.Has(ctx, "03a4f88adee883a3a135f10042442894af4167f7")
	require.NoError(t, err)
	assert.NotNil(t, at)
}

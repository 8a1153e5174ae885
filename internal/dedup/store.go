// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dedup answers whether a torrent was fetched before.
//
// Two backends are consulted in order: a directory of archived .torrent files
// named after their info hash, then the torrents table of the sqlite database.
// The first hit wins. Either backend may be disabled.
package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/dbinterface"
)

var hashFileName = regexp.MustCompile(`^[0-9a-fA-F]{40}\.torrent$`)

type Store struct {
	copyDir string
	db      dbinterface.Querier
	now     func() time.Time
}

// New builds a store. An empty copyDir or a nil db disables that backend.
func New(copyDir string, db dbinterface.Querier) *Store {
	return &Store{
		copyDir: copyDir,
		db:      db,
		now:     time.Now,
	}
}

// Has returns when hash was first seen, or nil when it never was.
func (s *Store) Has(ctx context.Context, hash string) (*time.Time, error) {
	hash = strings.ToLower(hash)

	if s.copyDir != "" {
		info, err := os.Stat(filepath.Join(s.copyDir, hash+".torrent"))
		switch {
		case err == nil:
			at := info.ModTime()
			return &at, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("copydir: %w", err)
		}
	}

	if s.db == nil {
		return nil, nil
	}

	var ts int64
	err := s.db.QueryRowContext(ctx, "SELECT timestamp FROM torrents WHERE hash = ?", hash).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up hash: %w", err)
	}

	at := time.Unix(ts, 0)
	return &at, nil
}

// Store records hash as fetched now. Storing a known hash is a no-op.
func (s *Store) Store(ctx context.Context, hash string) error {
	if s.db == nil {
		return nil
	}

	_, err := dbinterface.InsertHashes(ctx, s.db, dbinterface.HashEntry{
		Hash:      strings.ToLower(hash),
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to store hash: %w", err)
	}
	return nil
}

type ImportResult struct {
	Scanned  int
	Inserted int64
}

// Import records every <hash>.torrent file in dir, dated by its modification time.
func (s *Store) Import(ctx context.Context, dir string) (ImportResult, error) {
	var result ImportResult
	if s.db == nil {
		return result, errors.New("no database configured")
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	entries := make([]dbinterface.HashEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !hashFileName.MatchString(de.Name()) {
			continue
		}

		info, err := de.Info()
		if err != nil {
			log.Warn().Err(err).Str("file", de.Name()).Msg("Skipping unreadable file")
			continue
		}

		entries = append(entries, dbinterface.HashEntry{
			Hash:      strings.ToLower(strings.TrimSuffix(de.Name(), ".torrent")),
			Timestamp: info.ModTime().Unix(),
		})
	}
	result.Scanned = len(entries)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted, err := dbinterface.InsertHashes(ctx, tx, entries...)
	if err != nil {
		return result, err
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit import: %w", err)
	}
	result.Inserted = inserted

	log.Info().Str("dir", dir).Int("scanned", result.Scanned).Int64("inserted", inserted).Msg("Imported hashes")

	return result, nil
}

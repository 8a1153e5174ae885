// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dbinterface

import (
	"context"
	"fmt"
)

// SQLite has SQLITE_MAX_VARIABLE_NUMBER limit (default 999), stay below it.
const maxParams = 900

// HashEntry is one fetched info hash and when it was first seen, in unix seconds.
type HashEntry struct {
	Hash      string
	Timestamp int64
}

// InsertHashes records entries in the torrents table, keeping the existing
// timestamp for hashes already present. It returns the number of new rows.
// Designed for use within transactions.
func InsertHashes(ctx context.Context, tx TxQuerier, entries ...HashEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	for i, e := range entries {
		if e.Hash == "" {
			return 0, fmt.Errorf("hash at index %d is empty", i)
		}
	}

	const cols = 2
	const perChunk = maxParams / cols
	const queryTemplate = "INSERT OR IGNORE INTO torrents (hash, timestamp) VALUES %s"
	fullQuery := BuildQueryWithPlaceholders(queryTemplate, cols, perChunk)

	var inserted int64
	for i := 0; i < len(entries); i += perChunk {
		end := min(i+perChunk, len(entries))
		chunk := entries[i:end]

		args := make([]any, 0, len(chunk)*cols)
		for _, e := range chunk {
			args = append(args, e.Hash, e.Timestamp)
		}

		query := fullQuery
		if len(chunk) < perChunk {
			query = BuildQueryWithPlaceholders(queryTemplate, cols, len(chunk))
		}

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("failed to batch insert hashes: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	return inserted, nil
}

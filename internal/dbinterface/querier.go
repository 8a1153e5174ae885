// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dbinterface holds the database access surface shared by *sql.DB
// and *sql.Tx, plus batched helpers built on it.
package dbinterface

import (
	"context"
	"database/sql"
	"strings"
)

// TxQuerier is satisfied by both *sql.DB and *sql.Tx.
type TxQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier can additionally open transactions.
type Querier interface {
	TxQuerier
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// BuildQueryWithPlaceholders expands the single %s in queryTemplate into rows
// groups of cols placeholders: "(?,?),(?,?)".
func BuildQueryWithPlaceholders(queryTemplate string, cols, rows int) string {
	var group strings.Builder
	group.WriteByte('(')
	for i := 0; i < cols; i++ {
		if i > 0 {
			group.WriteByte(',')
		}
		group.WriteByte('?')
	}
	group.WriteByte(')')
	g := group.String()

	var sb strings.Builder
	sb.Grow(rows * (len(g) + 1))
	for i := 0; i < rows; i++ {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(g)
	}

	return strings.Replace(queryTemplate, "%s", sb.String(), 1)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

// queryFlags are the selection flags shared by every command that acts on
// torrents already in the daemon.
type queryFlags struct {
	flags *pflag.FlagSet

	useCase     bool
	exact       bool
	finished    bool
	errored     bool
	complete    bool
	incomplete  bool
	moveAborted bool
	moved       bool
	cleanable   bool
	and         bool
	files       bool
	sort        string
	reverse     bool
	ids         []int64
	hashes      []string
	trackers    []string
	statuses    []string
	expr        string
	fuzzy       bool
}

func (q *queryFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	q.flags = f

	f.BoolVarP(&q.useCase, "use-case", "u", false, "case sensitive patterns")
	f.BoolVarP(&q.exact, "exact", "e", false, "patterns match whole names")
	f.BoolVar(&q.finished, "finished", false, "only finished (--finished) or unfinished (--finished=false) torrents")
	f.BoolVar(&q.errored, "error", false, "only torrents with an error")
	f.BoolVar(&q.complete, "complete", false, "only completely downloaded torrents")
	f.BoolVar(&q.incomplete, "incomplete", false, "only partially downloaded torrents")
	f.BoolVar(&q.moveAborted, "move-aborted", false, "complete torrents still in a download directory")
	f.BoolVar(&q.moved, "moved", false, "complete torrents outside the download directories")
	f.BoolVar(&q.cleanable, "cleanable", false, "finished torrents that were moved")
	f.BoolVar(&q.and, "and", false, "every pattern must match")
	f.BoolVar(&q.files, "files", false, "patterns are file names: exact and case sensitive, each handled on its own")
	f.StringVarP(&q.sort, "sort", "s", "", "sort by id, name, urate, drate or size")
	f.BoolVarP(&q.reverse, "reverse", "r", false, "reverse the sort order")
	f.Int64SliceVar(&q.ids, "ids", nil, "torrent ids")
	f.StringSliceVar(&q.hashes, "hsh", nil, "torrent hashes")
	f.StringSliceVar(&q.trackers, "trackers", nil, "tracker url patterns")
	f.StringSliceVar(&q.statuses, "status", nil, "statuses: "+strings.Join(transmission.StatusNames(), ", "))
	f.StringVar(&q.expr, "expr", "", "boolean expression over torrent fields, e.g. 'UploadRatio > 2'")
	f.BoolVar(&q.fuzzy, "fuzzy", false, "fuzzy name matching")
}

// spec builds the query from the parsed flags and the positional patterns.
func (q *queryFlags) spec(patterns []string) (query.Spec, error) {
	sortKey, err := query.ParseSortKey(q.sort)
	if err != nil {
		return query.Spec{}, err
	}

	spec := query.Spec{
		Patterns:    patterns,
		Trackers:    q.trackers,
		UseCase:     q.useCase,
		Exact:       q.exact,
		Files:       q.files,
		And:         q.and,
		Error:       q.errored,
		Complete:    q.complete,
		Incomplete:  q.incomplete,
		MoveAborted: q.moveAborted,
		Moved:       q.moved,
		Cleanable:   q.cleanable,
		IDs:         q.ids,
		Hashes:      q.hashes,
		Sort:        sortKey,
		Reverse:     q.reverse,
		Expr:        q.expr,
		Fuzzy:       q.fuzzy,
	}

	if q.flags != nil && q.flags.Changed("finished") {
		finished := q.finished
		spec.Finished = &finished
	}

	for _, s := range q.statuses {
		status, err := transmission.ParseStatus(s)
		if err != nil {
			return query.Spec{}, err
		}
		spec.AddStatuses(status)
	}

	return spec, nil
}

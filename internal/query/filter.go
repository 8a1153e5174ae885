// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package query selects and orders torrent records.
package query

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/transmission"
)

// Spec describes which records a command acts on.
type Spec struct {
	Patterns []string
	Trackers []string
	// UseCase forces case-sensitive matching. Patterns containing an uppercase
	// letter are case-sensitive regardless.
	UseCase bool
	// Exact anchors name and tracker patterns to the whole string.
	Exact bool
	// Files anchors name patterns and makes them case-sensitive, for patterns
	// that are file names taken from disk.
	Files bool
	// And requires every name pattern to match instead of one.
	And bool

	Statuses    []transmission.Status
	Finished    *bool
	Error       bool
	Complete    bool
	Incomplete  bool
	MoveAborted bool
	Moved       bool
	Cleanable   bool

	IDs    []int64
	Hashes []string

	Sort    SortKey
	Reverse bool

	// Expr is an expr-lang boolean expression evaluated against each record.
	Expr string
	// Fuzzy matches name patterns as ordered subsequences, ignoring case and accents.
	Fuzzy bool
}

// HasIDs reports whether the spec addresses records directly.
func (s *Spec) HasIDs() bool {
	return len(s.IDs) > 0 || len(s.Hashes) > 0
}

// TransmissionIDs converts the id and hash selectors for the daemon.
func (s *Spec) TransmissionIDs() []transmission.ID {
	ids := make([]transmission.ID, 0, len(s.IDs)+len(s.Hashes))
	for _, id := range s.IDs {
		ids = append(ids, transmission.NumericID(id))
	}
	for _, h := range s.Hashes {
		ids = append(ids, transmission.HashID(h))
	}
	return ids
}

// AddStatuses appends statuses not already requested.
func (s *Spec) AddStatuses(statuses ...transmission.Status) {
	for _, st := range statuses {
		found := false
		for _, have := range s.Statuses {
			if have == st {
				found = true
				break
			}
		}
		if !found {
			s.Statuses = append(s.Statuses, st)
		}
	}
}

// Filter is a compiled Spec.
type Filter struct {
	spec     Spec
	dlDirs   []string
	names    []*regexp.Regexp
	trackers []*regexp.Regexp
	program  *vm.Program
}

// Compile prepares spec for evaluation. dlDirs are the staging directories
// used by the move-aborted, moved and cleanable predicates.
func Compile(spec Spec, dlDirs []string) (*Filter, error) {
	f := &Filter{
		spec:   spec,
		dlDirs: cleanDirs(dlDirs),
	}

	if !spec.Fuzzy {
		for _, p := range spec.Patterns {
			re, err := compilePattern(p, spec.Exact || spec.Files, !spec.UseCase && !spec.Files)
			if err != nil {
				return nil, err
			}
			f.names = append(f.names, re)
		}
	}

	for _, p := range spec.Trackers {
		re, err := compilePattern(p, spec.Exact, !spec.UseCase)
		if err != nil {
			return nil, err
		}
		f.trackers = append(f.trackers, re)
	}

	if spec.Expr != "" {
		program, err := expr.Compile(spec.Expr, expr.Env(transmission.Torrent{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression: %w", err)
		}
		f.program = program
	}

	return f, nil
}

func compilePattern(p string, anchored, foldCase bool) (*regexp.Regexp, error) {
	src := regexp.QuoteMeta(p)
	if anchored {
		src = "^" + src + "$"
	}
	if foldCase && !hasUpper(p) {
		src = "(?i)" + src
	}

	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", p, err)
	}
	return re, nil
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func cleanDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d == "" {
			continue
		}
		out = append(out, filepath.Clean(d))
	}
	return out
}

// Apply keeps the records passing every predicate. An empty result is
// domain.ErrNoMatches.
func (f *Filter) Apply(torrents []transmission.Torrent) ([]transmission.Torrent, error) {
	var out []transmission.Torrent
	for i := range torrents {
		if f.Match(&torrents[i]) {
			out = append(out, torrents[i])
		}
	}

	if len(out) == 0 {
		return nil, domain.ErrNoMatches
	}
	return out, nil
}

// Match reports whether t passes. A predicate needing a field the record does
// not carry excludes it.
func (f *Filter) Match(t *transmission.Torrent) bool {
	ok, known := f.match(t)
	return ok && known
}

// match returns (passes, known). known is false when a needed field is nil.
func (f *Filter) match(t *transmission.Torrent) (bool, bool) {
	s := &f.spec

	if len(s.Patterns) > 0 {
		if t.Name == nil {
			return false, false
		}
		if !f.matchName(*t.Name) {
			return false, true
		}
	}

	if len(f.trackers) > 0 {
		if t.Trackers == nil {
			return false, false
		}
		if !f.matchTrackers(t.Trackers) {
			return false, true
		}
	}

	if len(s.Statuses) > 0 {
		if t.Status == nil {
			return false, false
		}
		found := false
		for _, st := range s.Statuses {
			if st == *t.Status {
				found = true
				break
			}
		}
		if !found {
			return false, true
		}
	}

	if s.Finished != nil {
		if t.IsFinished == nil {
			return false, false
		}
		if *s.Finished != *t.IsFinished {
			return false, true
		}
	}

	if s.Complete || s.Incomplete {
		if t.LeftUntilDone == nil || t.SizeWhenDone == nil {
			return false, false
		}
		left, size := *t.LeftUntilDone, *t.SizeWhenDone
		if s.Complete && (left != 0 || size == 0) {
			return false, true
		}
		// size zero is a magnet without metadata, neither complete nor incomplete
		if s.Incomplete && (left == 0 || size == 0) {
			return false, true
		}
	}

	if s.Error {
		if t.Error == nil {
			return false, false
		}
		if *t.Error == transmission.ErrorOk {
			return false, true
		}
	}

	if s.MoveAborted || s.Moved {
		// size zero catches magnets whose metadata has not arrived
		if t.LeftUntilDone == nil || t.SizeWhenDone == nil {
			return false, false
		}
		inDl, known := f.inDlDir(t)
		if !known {
			return false, false
		}
		done := *t.LeftUntilDone == 0 && *t.SizeWhenDone != 0
		if s.MoveAborted && !(done && inDl) {
			return false, true
		}
		if s.Moved && !(done && !inDl) {
			return false, true
		}
	}

	if s.Cleanable {
		ok, known := f.isCleanable(t)
		if !known {
			return false, false
		}
		if !ok {
			return false, true
		}
	}

	if f.program != nil {
		result, err := expr.Run(f.program, *t)
		if err != nil {
			log.Debug().Err(err).Str("expr", s.Expr).Msg("Expression evaluation failed, excluding torrent")
			return false, false
		}
		if matched, ok := result.(bool); !ok || !matched {
			return false, true
		}
	}

	return true, true
}

func (f *Filter) matchName(name string) bool {
	s := &f.spec

	match := func(i int) bool {
		if s.Fuzzy {
			return fuzzy.MatchNormalizedFold(s.Patterns[i], name)
		}
		return f.names[i].MatchString(name)
	}

	if s.And {
		for i := range s.Patterns {
			if !match(i) {
				return false
			}
		}
		return true
	}

	for i := range s.Patterns {
		if match(i) {
			return true
		}
	}
	return false
}

func (f *Filter) matchTrackers(trackers []transmission.Tracker) bool {
	if f.spec.Exact {
		for _, re := range f.trackers {
			for _, tr := range trackers {
				if re.MatchString(tr.Announce) {
					return true
				}
			}
		}
		return false
	}

	for _, tr := range trackers {
		all := true
		for _, re := range f.trackers {
			if !re.MatchString(tr.Announce) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// IsCleanable reports whether t is finished, already moved out of the staging
// directories and not being verified. Unknown fields give false.
func (f *Filter) IsCleanable(t *transmission.Torrent) bool {
	ok, known := f.isCleanable(t)
	return ok && known
}

func (f *Filter) isCleanable(t *transmission.Torrent) (bool, bool) {
	if t.IsFinished == nil || t.Status == nil {
		return false, false
	}
	inDl, known := f.inDlDir(t)
	if !known {
		return false, false
	}

	status := *t.Status
	return *t.IsFinished &&
		!inDl &&
		status != transmission.StatusQueuedToVerify &&
		status != transmission.StatusVerifying, true
}

// InDlDir reports whether the record lives under a staging directory.
func (f *Filter) InDlDir(t *transmission.Torrent) (bool, bool) {
	return f.inDlDir(t)
}

func (f *Filter) inDlDir(t *transmission.Torrent) (bool, bool) {
	if t.DownloadDir == nil {
		return false, false
	}
	for _, d := range f.dlDirs {
		if IsRooted(*t.DownloadDir, d) {
			return true, true
		}
	}
	return false, true
}

// IsRooted reports whether path equals root or lies below it, comparing whole
// path components.
func IsRooted(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	if root == string(filepath.Separator) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

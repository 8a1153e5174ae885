// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/autobrr/trctl/internal/transmission"
)

type SortKey string

const (
	SortNone  SortKey = ""
	SortID    SortKey = "id"
	SortName  SortKey = "name"
	SortURate SortKey = "urate"
	SortDRate SortKey = "drate"
	SortSize  SortKey = "size"
)

var sortKeys = []SortKey{SortID, SortName, SortURate, SortDRate, SortSize}

// ParseSortKey accepts the key names used on the command line.
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if key == SortNone || slices.Contains(sortKeys, key) {
		return key, nil
	}
	return SortNone, fmt.Errorf("unknown sort key %q, expected one of %v", s, sortKeys)
}

// Sort orders torrents in place by key. The sort is stable, and reverse
// flips the comparison rather than the result so equal keys keep their
// input order. Records missing the key sort first. No key sorts by id.
func Sort(torrents []transmission.Torrent, key SortKey, reverse bool) {
	if key == SortNone {
		key = SortID
	}

	compare := comparator(key)
	slices.SortStableFunc(torrents, func(a, b transmission.Torrent) int {
		c := compare(&a, &b)
		if reverse {
			return -c
		}
		return c
	})
}

func comparator(key SortKey) func(a, b *transmission.Torrent) int {
	switch key {
	case SortID:
		return func(a, b *transmission.Torrent) int { return comparePtr(a.ID, b.ID) }
	case SortName:
		return func(a, b *transmission.Torrent) int { return comparePtr(a.Name, b.Name) }
	case SortURate:
		return func(a, b *transmission.Torrent) int { return comparePtr(a.RateUpload, b.RateUpload) }
	case SortDRate:
		return func(a, b *transmission.Torrent) int { return comparePtr(a.RateDownload, b.RateDownload) }
	case SortSize:
		return func(a, b *transmission.Torrent) int { return comparePtr(a.SizeWhenDone, b.SizeWhenDone) }
	default:
		return func(a, b *transmission.Torrent) int { return 0 }
	}
}

func comparePtr[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	default:
		return cmp.Compare(*a, *b)
	}
}

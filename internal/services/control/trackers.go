// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package control

import (
	"cmp"
	"context"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/autobrr/trctl/internal/query"
)

type TrackerCount struct {
	Tracker string `json:"tracker" yaml:"tracker"`
	Count   int    `json:"count" yaml:"count"`
}

// ListTrackers counts the announce URLs of the matching torrents, most used
// first. With byDomain announce URLs are grouped by registrable domain.
func (s *Service) ListTrackers(ctx context.Context, spec query.Spec, byDomain bool) ([]TrackerCount, error) {
	torrents, err := s.Query(ctx, spec)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i := range torrents {
		for _, tr := range torrents[i].Trackers {
			key := tr.Announce
			if byDomain {
				key = trackerDomain(tr.Announce)
			}
			counts[key]++
		}
	}

	result := make([]TrackerCount, 0, len(counts))
	for tracker, n := range counts {
		result = append(result, TrackerCount{Tracker: tracker, Count: n})
	}
	slices.SortFunc(result, func(a, b TrackerCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Tracker, b.Tracker)
	})
	return result, nil
}

// trackerDomain returns the registrable domain of an announce URL, falling
// back to the host and then to the URL itself.
func trackerDomain(announce string) string {
	u, err := url.Parse(announce)
	if err != nil || u.Hostname() == "" {
		return announce
	}

	host := strings.ToLower(u.Hostname())
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return host
}

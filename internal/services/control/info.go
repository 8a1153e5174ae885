// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package control

import (
	"context"

	"github.com/moistari/rls"

	"github.com/autobrr/trctl/internal/query"
)

// ReleaseInfo is what a torrent name says about its content.
type ReleaseInfo struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Title      string `json:"title,omitempty" yaml:"title,omitempty"`
	Year       int    `json:"year,omitempty" yaml:"year,omitempty"`
	Series     int    `json:"series,omitempty" yaml:"series,omitempty"`
	Episode    int    `json:"episode,omitempty" yaml:"episode,omitempty"`
	Resolution string `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	Source     string `json:"source,omitempty" yaml:"source,omitempty"`
	Group      string `json:"group,omitempty" yaml:"group,omitempty"`
}

func parseRelease(id int64, name string) ReleaseInfo {
	r := rls.ParseString(name)
	return ReleaseInfo{
		ID:         id,
		Name:       name,
		Type:       r.Type.String(),
		Title:      r.Title,
		Year:       r.Year,
		Series:     r.Series,
		Episode:    r.Episode,
		Resolution: r.Resolution,
		Source:     r.Source,
		Group:      r.Group,
	}
}

// Info parses the names of the matching torrents as scene release names.
// Records without a name are skipped.
func (s *Service) Info(ctx context.Context, spec query.Spec) ([]ReleaseInfo, error) {
	torrents, err := s.Query(ctx, spec)
	if err != nil {
		return nil, err
	}

	infos := make([]ReleaseInfo, 0, len(torrents))
	for i := range torrents {
		t := &torrents[i]
		if t.Name == nil {
			continue
		}
		var id int64
		if t.ID != nil {
			id = *t.ID
		}
		infos = append(infos, parseRelease(id, *t.Name))
	}
	return infos, nil
}

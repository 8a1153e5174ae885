// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torrentfile

import (
	"fmt"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// Magnet is the identity of a magnet link. Its size is unknown until the
// daemon has fetched the metadata.
type Magnet struct {
	InfoHash string
	Name     string
	URI      string
}

// IsMagnet reports whether s looks like a magnet link.
func IsMagnet(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "magnet:")
}

// ParseMagnet extracts the v1 info hash and display name of a magnet link.
// Base32 hashes are converted to lowercase hex.
func ParseMagnet(uri string) (*Magnet, error) {
	uri = strings.TrimSpace(uri)
	if !IsMagnet(uri) {
		return nil, fmt.Errorf("not a magnet link: %q", uri)
	}

	m, err := metainfo.ParseMagnetUri(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid magnet link: %w", err)
	}

	name := m.DisplayName
	if name == "" {
		name = "magnet"
	}

	return &Magnet{
		InfoHash: strings.ToLower(m.InfoHash.HexString()),
		Name:     name,
		URI:      uri,
	}, nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torrentfile extracts the identity of a torrent (info hash, total
// length and name) from untrusted .torrent bytes and magnet links.
package torrentfile

import (
	"bytes"
	"fmt"
	"math/bits"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/autobrr/trctl/internal/domain"
)

// Metadata is the parsed identity of a .torrent file.
type Metadata struct {
	// InfoHash is the SHA-1 of the info dictionary exactly as it appears in the
	// input, as 40 lowercase hex characters.
	InfoHash string
	// Length is the total content size in bytes.
	Length uint64
	// Name is kept as raw bytes, it is not guaranteed to be UTF-8.
	Name []byte
}

// DisplayName returns Name with invalid UTF-8 sequences replaced.
func (m *Metadata) DisplayName() string {
	return strings.ToValidUTF8(string(m.Name), "\uFFFD")
}

type document struct {
	Info bencode.Bytes `bencode:"info"`
}

type infoDict struct {
	Name   bencode.Bytes `bencode:"name"`
	Length bencode.Bytes `bencode:"length"`
	Files  bencode.Bytes `bencode:"files"`
}

type fileEntry struct {
	Length bencode.Bytes `bencode:"length"`
	Path   []string      `bencode:"path"`
}

// Parse decodes a bencoded torrent file.
func Parse(data []byte) (*Metadata, error) {
	if len(data) == 0 {
		return nil, parseError("eof", nil)
	}
	if data[0] != 'd' {
		return nil, parseError("torrent is not a dictionary", nil)
	}

	var doc document
	if err := bencode.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, parseError("bencode", err)
	}
	if len(doc.Info) == 0 {
		return nil, parseError("missing info dictionary", nil)
	}
	if doc.Info[0] != 'd' {
		return nil, parseError("info is not a dictionary", nil)
	}

	var info infoDict
	if err := bencode.Unmarshal(doc.Info, &info); err != nil {
		return nil, parseError("info dictionary", err)
	}

	meta := &Metadata{
		InfoHash: metainfo.HashBytes(doc.Info).HexString(),
	}

	var files []fileEntry
	if info.Files != nil {
		if err := bencode.Unmarshal(info.Files, &files); err != nil {
			return nil, parseError("files", err)
		}
	}

	switch {
	case info.Length != nil:
		if err := bencode.Unmarshal(info.Length, &meta.Length); err != nil {
			return nil, parseError("length", err)
		}
	case info.Files != nil:
		total, err := sumLengths(files)
		if err != nil {
			return nil, err
		}
		meta.Length = total
	default:
		return nil, parseError("length could not be calculated", nil)
	}

	switch {
	case info.Name != nil:
		var name string
		if err := bencode.Unmarshal(info.Name, &name); err != nil {
			return nil, parseError("name", err)
		}
		meta.Name = []byte(name)
	default:
		name, ok := nameFromFiles(files)
		if !ok {
			return nil, parseError("name could not be found", nil)
		}
		meta.Name = []byte(name)
	}

	return meta, nil
}

// ReadFile reads and parses the torrent at path. The raw bytes are returned
// alongside so callers can forward the file unchanged.
func ReadFile(path string) (*Metadata, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read torrent file: %w", err)
	}

	meta, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	return meta, data, nil
}

func sumLengths(files []fileEntry) (uint64, error) {
	var total uint64
	for i, f := range files {
		if f.Length == nil {
			continue
		}

		var n uint64
		if err := bencode.Unmarshal(f.Length, &n); err != nil {
			return 0, parseError(fmt.Sprintf("files[%d].length", i), err)
		}

		sum, carry := bits.Add64(total, n, 0)
		if carry != 0 {
			return 0, parseError("length overflowed", nil)
		}
		total = sum
	}
	return total, nil
}

// nameFromFiles joins the path of the first file that has one.
func nameFromFiles(files []fileEntry) (string, bool) {
	for _, f := range files {
		if len(f.Path) == 0 {
			continue
		}
		return filepath.Join(f.Path...), true
	}
	return "", false
}

func parseError(reason string, err error) error {
	return &domain.ParseError{Reason: reason, Err: err}
}

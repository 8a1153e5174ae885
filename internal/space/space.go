// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package space accounts for the disk space promised to torrents in a
// directory and decides whether a new torrent may start right away.
package space

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

// DefaultMagnetEstimate stands in for the size of a magnet link until its
// metadata has been fetched.
const DefaultMagnetEstimate = uint64(5) << 30

// Budget is the space situation of one directory.
type Budget struct {
	Dir string
	// FreeSpace is what the daemon reports as free on disk.
	FreeSpace int64
	// SafeSpace is FreeSpace minus what in-flight torrents will still write.
	SafeSpace int64
	// TotalSize is the projected final size of every torrent in Dir.
	TotalSize int64
	Torrents  int
}

// Params are the configured limits.
type Params struct {
	// SafeMargin is the space a directory should keep free.
	SafeMargin uint64
	// Quota caps the projected total size of a directory, zero disables it.
	Quota          uint64
	MagnetEstimate uint64
}

type Decision struct {
	WouldBeLeft  int64
	WouldBeTotal int64
	// Paused is set when admitting the torrent would eat into the safe margin.
	Paused    bool
	OverQuota bool
}

// Compute sums the torrents whose download directory lies under dir.
func Compute(dir string, torrents []transmission.Torrent, freeSpace int64) (Budget, error) {
	budget := Budget{
		Dir:       dir,
		FreeSpace: freeSpace,
		SafeSpace: freeSpace,
	}

	for i := range torrents {
		t := &torrents[i]

		if t.DownloadDir == nil {
			return Budget{}, fmt.Errorf("torrent %s without download dir", label(t))
		}
		if !query.IsRooted(*t.DownloadDir, dir) {
			continue
		}

		final, left, err := projectedSizes(t)
		if err != nil {
			return Budget{}, err
		}
		budget.Torrents++

		if final < 0 {
			log.Warn().Str("torrent", label(t)).Int64("finalSize", final).Msg("Negative final size, ignoring torrent in total")
		} else {
			budget.TotalSize += final
		}

		if left < 0 {
			log.Warn().Str("torrent", label(t)).Int64("left", left).Msg("Negative left until done, ignoring torrent in safe space")
		} else {
			budget.SafeSpace -= left
		}
	}

	log.Debug().
		Str("dir", dir).
		Int64("free", budget.FreeSpace).
		Int64("safe", budget.SafeSpace).
		Int64("total", budget.TotalSize).
		Int("torrents", budget.Torrents).
		Msg("Computed space budget")

	return budget, nil
}

// projectedSizes returns the size t will occupy once done and how much of it
// is still to be written. Stopped torrents do not grow.
func projectedSizes(t *transmission.Torrent) (int64, int64, error) {
	if t.Status == nil {
		return 0, 0, fmt.Errorf("torrent %s: undefined status", label(t))
	}
	if t.Files == nil {
		return 0, 0, fmt.Errorf("torrent %s: undefined files", label(t))
	}

	var allocated int64
	for _, f := range t.Files {
		if f.BytesCompleted > 0 {
			allocated += f.Length
		}
	}

	if *t.Status == transmission.StatusStopped {
		return allocated, 0, nil
	}

	if t.Wanted == nil {
		return 0, 0, fmt.Errorf("torrent %s: undefined wanted", label(t))
	}
	if len(t.Wanted) != len(t.Files) {
		return 0, 0, fmt.Errorf("torrent %s: %d wanted flags for %d files", label(t), len(t.Wanted), len(t.Files))
	}

	var final int64
	for i, f := range t.Files {
		if bool(t.Wanted[i]) || f.BytesCompleted > 0 {
			final += f.Length
		}
	}

	return final, final - allocated, nil
}

// Admit decides how a torrent of the given length enters the budget.
func Admit(budget Budget, length uint64, params Params) (Decision, error) {
	if length > math.MaxInt64 {
		return Decision{}, fmt.Errorf("torrent length %d overflows", length)
	}
	n := int64(length)

	d := Decision{
		WouldBeLeft:  budget.SafeSpace - n,
		WouldBeTotal: budget.TotalSize + n,
	}
	d.Paused = d.WouldBeLeft < 0 || uint64(d.WouldBeLeft) < params.SafeMargin
	d.OverQuota = params.Quota > 0 && d.WouldBeTotal > 0 && uint64(d.WouldBeTotal) > params.Quota

	return d, nil
}

// MagnetLength is the placeholder length for a torrent whose size is unknown.
func (p Params) MagnetLength() uint64 {
	if p.MagnetEstimate == 0 {
		return DefaultMagnetEstimate
	}
	return p.MagnetEstimate
}

func label(t *transmission.Torrent) string {
	switch {
	case t.Name != nil:
		return *t.Name
	case t.HashString != nil:
		return *t.HashString
	case t.ID != nil:
		return fmt.Sprint(*t.ID)
	default:
		return "unknown"
	}
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package console

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

// Header is the first line of every torrent table.
const Header = "ID     Done     Have     Size       ETA       Up     Down  Ratio  Status     Name"

const na = "NA"

var byteUnits = []string{"K", "M", "G", "T", "P", "E", "Z"}

// ByteSize renders n with 1024-based units right-aligned to width. Values
// below 1 KiB print as plain integers.
func ByteSize(n int64, width, prec int) string {
	if n > -1024 && n < 1024 {
		return fmt.Sprintf("%*d", width, n)
	}

	num := float64(n) / 1024
	for _, unit := range byteUnits {
		if math.Abs(num) < 1024 {
			return fmt.Sprintf("%*.*f%s", max(width-1, 0), prec, num, unit)
		}
		num /= 1024
	}
	return fmt.Sprintf("%*.*f YiB", max(width-4, 0), prec, num)
}

func padRight(s string, width int) string {
	return fmt.Sprintf("%*s", width, s)
}

func padLeft(s string, width int) string {
	return fmt.Sprintf("%-*s", width, s)
}

func intOrNA(v *int64, width int) string {
	if v == nil {
		return padRight(na, width)
	}
	return fmt.Sprintf("%*d", width, *v)
}

func floatOrNA(v *float64, width, prec int) string {
	if v == nil {
		return padRight(na, width)
	}
	return fmt.Sprintf("%*.*f", width, prec, *v)
}

func sizeOrNA(v *int64, width int) string {
	if v == nil {
		return padRight(na, width)
	}
	return ByteSize(*v, width, 1)
}

// have is sizeWhenDone - leftUntilDone, unknown when either is unknown or negative.
func have(t *transmission.Torrent) *int64 {
	if t.SizeWhenDone == nil || t.LeftUntilDone == nil {
		return nil
	}
	size, left := *t.SizeWhenDone, *t.LeftUntilDone
	if size < 0 || left < 0 {
		return nil
	}
	n := size - left
	return &n
}

func percent(t *transmission.Torrent) *float64 {
	if t.PercentDone == nil {
		return nil
	}
	p := *t.PercentDone * 100
	return &p
}

func etaText(t *transmission.Torrent, width int) string {
	if t.Eta == nil {
		return padRight(na, width)
	}

	eta := *t.Eta
	switch {
	case eta >= 86400:
		return fmt.Sprintf("%*d days", max(width-5, 0), eta/86400)
	case eta >= 3600:
		return fmt.Sprintf("%*d hrs", max(width-4, 0), eta/3600)
	case eta >= 60:
		return fmt.Sprintf("%*d min", max(width-4, 0), eta/60)
	case eta >= 0:
		return fmt.Sprintf("%*d sec", max(width-4, 0), eta)
	}

	var s string
	switch eta {
	case -2:
		s = "Unknown"
	case -1:
		if t.LeftUntilDone != nil && *t.LeftUntilDone == 0 {
			s = "Done"
		} else {
			s = na
		}
	default:
		s = "Err"
	}
	return padRight(s, width)
}

func statusText(t *transmission.Torrent, width int) string {
	if t.Status == nil {
		return padLeft(na, width)
	}

	var s string
	switch *t.Status {
	case transmission.StatusStopped:
		switch {
		case t.IsFinished == nil:
			s = na
		case *t.IsFinished:
			s = "Finished"
		default:
			s = "Stopped"
		}
	case transmission.StatusQueuedToVerify, transmission.StatusVerifying:
		label := "Verifying"
		if *t.Status == transmission.StatusQueuedToVerify {
			label = "Will Verify"
		}
		progress := " NA"
		if t.RecheckProgress != nil {
			progress = fmt.Sprintf("%3.0f", *t.RecheckProgress*100)
		}
		s = fmt.Sprintf("%-*s (%s%%)", max(width-7, 0), label, progress)
	case transmission.StatusQueuedToDownload:
		s = "Queued"
	case transmission.StatusQueuedToSeed:
		s = "Queued Sd"
	case transmission.StatusDownloading, transmission.StatusSeeding:
		s = peerActivity(t)
	default:
		s = na
	}
	return padLeft(s, width)
}

func peerActivity(t *transmission.Torrent) string {
	if t.PeersGettingFromUs == nil || t.PeersSendingToUs == nil {
		return "ERROR"
	}

	getting, sending := *t.PeersGettingFromUs, *t.PeersSendingToUs
	switch {
	case getting != 0 && sending != 0:
		return "Up & Down"
	case sending != 0:
		return "Downloading"
	case getting != 0:
		switch {
		case t.LeftUntilDone == nil:
			return "ERROR"
		case *t.LeftUntilDone > 0:
			return "Uploading"
		default:
			return "Seeding"
		}
	default:
		return "Idle"
	}
}

// dirText shows the download dir relative to baseDir. A trailing component
// equal to the hash is dropped, leaving the parent with a trailing slash.
func dirText(t *transmission.Torrent, baseDir string) string {
	if t.DownloadDir == nil {
		return na
	}

	dir := *t.DownloadDir
	if baseDir != "" && query.IsRooted(dir, baseDir) {
		if rel, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(dir)); err == nil {
			dir = rel
		}
	}

	if t.HashString != nil && filepath.Base(dir) == *t.HashString {
		parent := filepath.Dir(dir)
		if parent == "." {
			return ""
		}
		return strings.TrimSuffix(parent, "/") + "/"
	}
	return dir
}

func errorMark(t *transmission.Torrent) string {
	if t.Error != nil && *t.Error == transmission.ErrorOk {
		return " "
	}
	return "*"
}

// Row renders one table line for t, plus an error continuation line when the
// daemon reported an error message.
func Row(t *transmission.Torrent, baseDir string) string {
	name := na
	if t.Name != nil {
		name = *t.Name
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s%s  %s%%  %s  %s  %s  %s  %s  %s  %s  %s/%s",
		intOrNA(t.ID, 4),
		errorMark(t),
		floatOrNA(percent(t), 3, 0),
		sizeOrNA(have(t), 7),
		sizeOrNA(t.SizeWhenDone, 7),
		etaText(t, 8),
		sizeOrNA(t.RateUpload, 7),
		sizeOrNA(t.RateDownload, 7),
		floatOrNA(t.UploadRatio, 5, 1),
		statusText(t, 9),
		dirText(t, baseDir),
		name,
	)

	if t.ErrorString != nil && *t.ErrorString != "" {
		fmt.Fprintf(&b, "\n       error: %s", *t.ErrorString)
	}
	return b.String()
}

// Footer sums what is on disk and the transfer rates. Unknown and negative
// values count as zero.
func Footer(torrents []transmission.Torrent) string {
	var totalHave, totalUp, totalDown int64
	for i := range torrents {
		t := &torrents[i]
		if h := have(t); h != nil {
			totalHave += *h
		}
		if t.RateUpload != nil && *t.RateUpload > 0 {
			totalUp += *t.RateUpload
		}
		if t.RateDownload != nil && *t.RateDownload > 0 {
			totalDown += *t.RateDownload
		}
	}

	return fmt.Sprintf("Sum:  %s  %s  %s",
		ByteSize(totalHave, 14, 1),
		ByteSize(totalUp, 26, 1),
		ByteSize(totalDown, 7, 1),
	)
}

// CompletionLine renders t as a zsh completion entry: the escaped name as the
// value and a short summary as the description.
func CompletionLine(t *transmission.Torrent, baseDir string) string {
	return fmt.Sprintf("%s:%s %s%s (%s%%) %s/",
		EscapeZsh(*t.Name),
		intOrNA(t.ID, 4),
		sizeOrNA(have(t), 7),
		errorMark(t),
		floatOrNA(percent(t), 3, 0),
		dirText(t, baseDir),
	)
}

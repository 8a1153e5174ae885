// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the daemon's torrent activity state.
type Status int

const (
	StatusStopped Status = iota
	StatusQueuedToVerify
	StatusVerifying
	StatusQueuedToDownload
	StatusDownloading
	StatusQueuedToSeed
	StatusSeeding
)

var statusNames = map[Status]string{
	StatusStopped:          "stopped",
	StatusQueuedToVerify:   "queued-to-verify",
	StatusVerifying:        "verifying",
	StatusQueuedToDownload: "queued-to-download",
	StatusDownloading:      "downloading",
	StatusQueuedToSeed:     "queued-to-seed",
	StatusSeeding:          "seeding",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

// ParseStatus accepts the names printed by Status.String.
func ParseStatus(s string) (Status, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for status, name := range statusNames {
		if name == want {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", s)
}

// StatusNames lists every status name in enum order.
func StatusNames() []string {
	names := make([]string, 0, len(statusNames))
	for s := StatusStopped; s <= StatusSeeding; s++ {
		names = append(names, statusNames[s])
	}
	return names
}

// ErrorType is the daemon's error classification, 0 means no error.
type ErrorType int

const (
	ErrorOk ErrorType = iota
	ErrorTrackerWarning
	ErrorTrackerError
	ErrorLocalError
)

// Flag decodes the per-file "wanted" entries, which daemons send either as
// booleans or as 0/1 integers.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true", "1":
		*f = true
	case "false", "0":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}

type File struct {
	BytesCompleted int64  `json:"bytesCompleted"`
	Length         int64  `json:"length"`
	Name           string `json:"name"`
}

type Tracker struct {
	ID       int    `json:"id"`
	Announce string `json:"announce"`
	Tier     int    `json:"tier"`
}

// Torrent is a snapshot of one torrent as returned by torrent-get. Every
// field is optional: nil means the field was not requested or not sent.
type Torrent struct {
	ID                 *int64     `json:"id,omitempty" yaml:"id,omitempty"`
	HashString         *string    `json:"hashString,omitempty" yaml:"hashString,omitempty"`
	Name               *string    `json:"name,omitempty" yaml:"name,omitempty"`
	Status             *Status    `json:"status,omitempty" yaml:"status,omitempty"`
	IsFinished         *bool      `json:"isFinished,omitempty" yaml:"isFinished,omitempty"`
	LeftUntilDone      *int64     `json:"leftUntilDone,omitempty" yaml:"leftUntilDone,omitempty"`
	SizeWhenDone       *int64     `json:"sizeWhenDone,omitempty" yaml:"sizeWhenDone,omitempty"`
	Error              *ErrorType `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorString        *string    `json:"errorString,omitempty" yaml:"errorString,omitempty"`
	DownloadDir        *string    `json:"downloadDir,omitempty" yaml:"downloadDir,omitempty"`
	RateUpload         *int64     `json:"rateUpload,omitempty" yaml:"rateUpload,omitempty"`
	RateDownload       *int64     `json:"rateDownload,omitempty" yaml:"rateDownload,omitempty"`
	UploadRatio        *float64   `json:"uploadRatio,omitempty" yaml:"uploadRatio,omitempty"`
	PercentDone        *float64   `json:"percentDone,omitempty" yaml:"percentDone,omitempty"`
	Eta                *int64     `json:"eta,omitempty" yaml:"eta,omitempty"`
	RecheckProgress    *float64   `json:"recheckProgress,omitempty" yaml:"recheckProgress,omitempty"`
	PeersGettingFromUs *int64     `json:"peersGettingFromUs,omitempty" yaml:"peersGettingFromUs,omitempty"`
	PeersSendingToUs   *int64     `json:"peersSendingToUs,omitempty" yaml:"peersSendingToUs,omitempty"`
	TorrentFile        *string    `json:"torrentFile,omitempty" yaml:"torrentFile,omitempty"`
	Files              []File     `json:"files,omitempty" yaml:"files,omitempty"`
	Wanted             []Flag     `json:"wanted,omitempty" yaml:"wanted,omitempty"`
	Priorities         []int      `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Trackers           []Tracker  `json:"trackers,omitempty" yaml:"trackers,omitempty"`
}

// Fields requested by torrent-get.
var (
	// ListFields covers filtering, sorting and display.
	ListFields = []string{
		"id", "hashString", "name", "status", "isFinished", "leftUntilDone", "sizeWhenDone",
		"error", "errorString", "downloadDir", "rateUpload", "rateDownload", "uploadRatio",
		"percentDone", "eta", "recheckProgress", "peersGettingFromUs", "peersSendingToUs",
		"torrentFile", "trackers",
	}

	// SpaceFields covers space accounting.
	SpaceFields = []string{"id", "hashString", "name", "status", "downloadDir", "files", "wanted"}
)

// ID addresses a torrent either by its numeric id or by its hash.
type ID struct {
	num  int64
	hash string
}

func NumericID(id int64) ID {
	return ID{num: id}
}

func HashID(hash string) ID {
	return ID{hash: strings.ToLower(hash)}
}

func (id ID) String() string {
	if id.hash != "" {
		return id.hash
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.hash != "" {
		return json.Marshal(id.hash)
	}
	return json.Marshal(id.num)
}

// matches reports whether t is addressed by id.
func (id ID) matches(t *Torrent) bool {
	if id.hash != "" {
		return t.HashString != nil && strings.EqualFold(*t.HashString, id.hash)
	}
	return t.ID != nil && *t.ID == id.num
}

// HashIDs addresses torrents by hash, skipping records without one.
func HashIDs(torrents []Torrent) []ID {
	ids := make([]ID, 0, len(torrents))
	for _, t := range torrents {
		if t.HashString != nil {
			ids = append(ids, HashID(*t.HashString))
		}
	}
	return ids
}

// Action is a torrent-level RPC method without arguments beyond ids.
type Action string

const (
	ActionStart      Action = "start"
	ActionStop       Action = "stop"
	ActionStartNow   Action = "start-now"
	ActionVerify     Action = "verify"
	ActionReannounce Action = "reannounce"
)

func (a Action) method() string {
	return "torrent-" + string(a)
}

// AddRequest is the torrent-add argument set. Exactly one of Metainfo and
// Filename is used.
type AddRequest struct {
	Metainfo    string `json:"metainfo,omitempty"`
	Filename    string `json:"filename,omitempty"`
	DownloadDir string `json:"download-dir,omitempty"`
	Paused      bool   `json:"paused"`
}

// AddResponse reports the torrent the daemon created, or the one it already had.
type AddResponse struct {
	Duplicate  bool
	ID         int64
	Name       string
	HashString string
}

type addedTorrent struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	HashString string `json:"hashString"`
}

type addResult struct {
	Added     *addedTorrent `json:"torrent-added"`
	Duplicate *addedTorrent `json:"torrent-duplicate"`
}

// Session is the subset of session-get used here.
type Session struct {
	DownloadDir       string `json:"download-dir"`
	Version           string `json:"version"`
	RPCVersion        int    `json:"rpc-version"`
	RPCVersionMinimum int    `json:"rpc-version-minimum"`
}

type freeSpace struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size-bytes"`
}

type request struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
	Tag       int    `json:"tag,omitempty"`
}

type response struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
	Tag       int             `json:"tag,omitempty"`
}

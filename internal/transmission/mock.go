// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package transmission

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"

	"github.com/autobrr/trctl/internal/domain"
)

const (
	MockHash        = "abed48adeb5e396f54a7089cbe6c1f2bc1b0dbc8"
	MockAddedHash   = "03a4f88adee883a3a135f10042442894af4167f7"
	MockFreeSpace   = int64(50) << 30
	MockDownloadDir = "/mydldir"
	mockSize        = int64(2541190084)
	mockAddedID     = int64(6)
	mockAddedName   = "added.pdf"
)

var errMockFailure = errors.New("mock rpc failure")

// Call is one recorded Mock invocation.
type Call struct {
	Method   string
	IDs      []ID
	Location string
	Move     bool
	Delete   bool
	Add      *AddRequest
}

// Mock is an in-memory daemon. It answers every call from its seeded records
// and remembers what it was asked to do.
type Mock struct {
	// FailRPC makes every call fail with a transport error.
	FailRPC bool

	mu        sync.Mutex
	torrents  []Torrent
	calls     []Call
	freeSpace int64
	session   Session
}

var _ Client = (*Mock)(nil)

// NewMock seeds three records living under the first staging directory.
func NewMock(dlDirs []string) *Mock {
	dir := "/dl"
	if len(dlDirs) > 0 {
		dir = dlDirs[0]
	}

	return &Mock{
		torrents: []Torrent{
			MockTorrent(1, "testing.pdf", dir),
			withError(MockTorrent(2, "testing2.pdf", dir), "error!!!"),
			MockTorrent(3, "testing3.pdf", dir),
		},
		freeSpace: MockFreeSpace,
		session: Session{
			DownloadDir: MockDownloadDir,
			Version:     "4.0.6 (38c164933e)",
			RPCVersion:  18,
		},
	}
}

// MockTorrent builds a fully populated, finished record.
func MockTorrent(id int64, name, dlDir string) Torrent {
	return Torrent{
		ID:                 ptr(id),
		HashString:         ptr(MockHash),
		Name:               ptr(name),
		Status:             ptr(StatusDownloading),
		IsFinished:         ptr(false),
		LeftUntilDone:      ptr(int64(0)),
		SizeWhenDone:       ptr(mockSize),
		Error:              ptr(ErrorOk),
		ErrorString:        ptr(""),
		DownloadDir:        ptr(filepath.Join(dlDir, MockHash)),
		RateUpload:         ptr(int64(0)),
		RateDownload:       ptr(int64(0)),
		UploadRatio:        ptr(0.8031),
		PercentDone:        ptr(1.0),
		Eta:                ptr(int64(-2)),
		RecheckProgress:    ptr(0.0),
		PeersGettingFromUs: ptr(int64(0)),
		PeersSendingToUs:   ptr(int64(0)),
		TorrentFile:        ptr(filepath.Join("/var/lib/transmission/torrents", MockHash+".torrent")),
		Files:              []File{{BytesCompleted: mockSize, Length: mockSize, Name: name}},
		Wanted:             []Flag{true},
		Priorities:         []int{0},
		Trackers:           []Tracker{{ID: 0, Announce: "http://tracker.example.org/announce", Tier: 0}},
	}
}

// withError sets only the message, the error code stays Ok.
func withError(t Torrent, msg string) Torrent {
	t.ErrorString = ptr(msg)
	return t
}

func ptr[T any](v T) *T {
	return &v
}

// SetTorrents replaces the seeded records.
func (m *Mock) SetTorrents(torrents []Torrent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.torrents = slices.Clone(torrents)
}

func (m *Mock) SetFreeSpace(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeSpace = n
}

// Calls returns a copy of the recorded invocations.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

func (m *Mock) record(call Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	if m.FailRPC {
		return &domain.TransportError{Op: call.Method, Err: errMockFailure}
	}
	return nil
}

func (m *Mock) Get(_ context.Context, _ []string, ids ...ID) ([]Torrent, error) {
	if err := m.record(Call{Method: "torrent-get", IDs: ids}); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ids) == 0 {
		return slices.Clone(m.torrents), nil
	}

	var out []Torrent
	for i := range m.torrents {
		for _, id := range ids {
			if id.matches(&m.torrents[i]) {
				out = append(out, m.torrents[i])
				break
			}
		}
	}
	return out, nil
}

func (m *Mock) Add(_ context.Context, req AddRequest) (AddResponse, error) {
	if err := m.record(Call{Method: "torrent-add", Add: &req}); err != nil {
		return AddResponse{}, err
	}

	return AddResponse{ID: mockAddedID, Name: mockAddedName, HashString: MockAddedHash}, nil
}

func (m *Mock) Remove(_ context.Context, ids []ID, deleteData bool) error {
	return m.record(Call{Method: "torrent-remove", IDs: ids, Delete: deleteData})
}

func (m *Mock) Action(_ context.Context, action Action, ids ...ID) error {
	return m.record(Call{Method: action.method(), IDs: ids})
}

func (m *Mock) SetLocation(_ context.Context, location string, move bool, ids ...ID) error {
	return m.record(Call{Method: "torrent-set-location", IDs: ids, Location: location, Move: move})
}

func (m *Mock) FreeSpace(_ context.Context, path string) (int64, error) {
	if err := m.record(Call{Method: "free-space", Location: path}); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.freeSpace, nil
}

func (m *Mock) Session(context.Context) (Session, error) {
	if err := m.record(Call{Method: "session-get"}); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

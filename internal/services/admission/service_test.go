// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package admission

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/anacrolix/torrent/bencode"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/metrics"
	"github.com/autobrr/trctl/internal/space"
	"github.com/autobrr/trctl/internal/transmission"
)

const gib = int64(1) << 30

type fakeDedup struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	stored []string
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]time.Time)}
}

func (f *fakeDedup) Has(_ context.Context, hash string) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if at, ok := f.seen[hash]; ok {
		return &at, nil
	}
	return nil, nil
}

func (f *fakeDedup) Store(_ context.Context, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, hash)
	return nil
}

type fakeConfirmer struct {
	answer bool
	asked  []string
}

func (f *fakeConfirmer) ConfirmExisting(name string, _ time.Time) (bool, error) {
	f.asked = append(f.asked, name)
	return f.answer, nil
}

func writeTorrent(t *testing.T, dir, name string, length int64) (string, string, []byte) {
	t.Helper()

	info, err := bencode.Marshal(map[string]any{
		"name":         name,
		"length":       length,
		"piece length": 16384,
		"pieces":       "",
	})
	require.NoError(t, err)

	data, err := bencode.Marshal(map[string]any{
		"announce": "http://tracker.example.com/announce",
		"info":     bencode.Bytes(info),
	})
	require.NoError(t, err)

	path := filepath.Join(dir, name+".torrent")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	sum := sha1.Sum(info)
	return path, hex.EncodeToString(sum[:]), data
}

type fixture struct {
	mock      *transmission.Mock
	dedup     *fakeDedup
	confirmer *fakeConfirmer
	metrics   *metrics.Metrics
	svc       *Service
}

func newFixture(t *testing.T, params space.Params) *fixture {
	t.Helper()
	f := &fixture{
		mock:      transmission.NewMock([]string{"/base/dl"}),
		dedup:     newFakeDedup(),
		confirmer: &fakeConfirmer{},
		metrics:   metrics.New(),
	}
	f.svc = NewService(f.mock, f.dedup, f.confirmer, Config{BaseDir: "/base", Params: params}, f.metrics)
	return f
}

func (f *fixture) addCalls() []transmission.Call {
	var out []transmission.Call
	for _, c := range f.mock.Calls() {
		if c.Method == "torrent-add" {
			out = append(out, c)
		}
	}
	return out
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		in   string
		want SourceKind
	}{
		{in: "a.torrent", want: SourceFile},
		{in: "/tmp/x", want: SourceFile},
		{in: "http://example.org/a.torrent", want: SourceURL},
		{in: "HTTPS://example.org/a.torrent", want: SourceURL},
		{in: "magnet:?xt=urn:btih:abed48adeb5e396f54a7089cbe6c1f2bc1b0dbc8", want: SourceMagnet},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSource(tt.in).Kind)
		})
	}
}

func TestAddFile(t *testing.T) {
	f := newFixture(t, space.Params{SafeMargin: uint64(gib)})
	path, hash, data := writeTorrent(t, t.TempDir(), "ubuntu.iso", 1000)

	res, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl", RemoveSource: true})
	require.NoError(t, err)

	assert.Equal(t, hash, res.Hash)
	assert.Equal(t, "ubuntu.iso", res.Name)
	assert.False(t, res.WouldBeFull)
	assert.Nil(t, res.ExistedAt)
	assert.Equal(t, filepath.Join("/base/dl", hash), res.DownloadDir)
	assert.Equal(t, transmission.MockFreeSpace, res.Budget.FreeSpace)
	assert.Equal(t, transmission.MockFreeSpace-1000, res.ProjectedLeft)
	assert.Equal(t, 3, res.Budget.Torrents)

	calls := f.addCalls()
	require.Len(t, calls, 1)
	req := calls[0].Add
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), req.Metainfo)
	assert.Empty(t, req.Filename)
	assert.Equal(t, filepath.Join("/base/dl", hash), req.DownloadDir)
	assert.False(t, req.Paused)

	assert.Equal(t, []string{hash}, f.dedup.stored)

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "source file should be removed")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AddTotal.WithLabelValues(metrics.OutcomeAdded)))
}

func TestAddKeepsSourceByDefault(t *testing.T) {
	f := newFixture(t, space.Params{})
	path, _, _ := writeTorrent(t, t.TempDir(), "keep", 10)

	_, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl"})
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestAddPausedOnLowSpace(t *testing.T) {
	f := newFixture(t, space.Params{SafeMargin: uint64(40 * gib)})
	f.mock.SetFreeSpace(45 * gib)
	path, _, _ := writeTorrent(t, t.TempDir(), "big", 10*gib)

	res, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl"})
	require.NoError(t, err)
	assert.True(t, res.WouldBeFull)
	assert.Equal(t, 35*gib, res.ProjectedLeft)

	calls := f.addCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Add.Paused)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PausedOnSpace))
}

func TestAddUseExisting(t *testing.T) {
	f := newFixture(t, space.Params{})
	path, _, _ := writeTorrent(t, t.TempDir(), "x", 10)

	res, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl", UseExisting: true})
	require.NoError(t, err)
	assert.Equal(t, "/base/dl", res.DownloadDir)
}

func TestAddExisting(t *testing.T) {
	tests := []struct {
		name    string
		answer  bool
		wantErr bool
	}{
		{name: "declined", answer: false, wantErr: true},
		{name: "accepted", answer: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, space.Params{})
			f.confirmer.answer = tt.answer
			path, hash, _ := writeTorrent(t, t.TempDir(), "again", 10)
			f.dedup.seen[hash] = time.Unix(1600000000, 0)

			res, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl"})
			assert.Equal(t, []string{"again"}, f.confirmer.asked)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsNothingToDo(err))
				assert.Empty(t, f.addCalls())
				assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AddTotal.WithLabelValues(metrics.OutcomeSkipped)))
				return
			}

			require.NoError(t, err)
			require.NotNil(t, res.ExistedAt)
			assert.Equal(t, int64(1600000000), res.ExistedAt.Unix())
		})
	}
}

func TestAddMagnet(t *testing.T) {
	f := newFixture(t, space.Params{MagnetEstimate: 1234})
	uri := "magnet:?xt=urn:btih:" + transmission.MockAddedHash + "&dn=added.pdf"

	res, err := f.svc.Add(context.Background(), ParseSource(uri), Options{})
	require.NoError(t, err)

	assert.Equal(t, transmission.MockAddedHash, res.Hash)
	assert.Equal(t, "added.pdf", res.Name)
	assert.Equal(t, filepath.Join(transmission.MockDownloadDir, transmission.MockAddedHash), res.DownloadDir)
	assert.Equal(t, int64(1234), res.ProjectedTotal-res.Budget.TotalSize)

	calls := f.addCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, uri, calls[0].Add.Filename)
	assert.Empty(t, calls[0].Add.Metainfo)
}

func TestAddURL(t *testing.T) {
	_, hash, data := writeTorrent(t, t.TempDir(), "remote", 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/remote.torrent" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	f := newFixture(t, space.Params{})

	res, err := f.svc.Add(context.Background(), ParseSource(srv.URL+"/remote.torrent"), Options{DownloadDir: "dl"})
	require.NoError(t, err)
	assert.Equal(t, hash, res.Hash)

	_, err = f.svc.Add(context.Background(), ParseSource(srv.URL+"/missing.torrent"), Options{DownloadDir: "dl"})
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, http.StatusNotFound, dlErr.StatusCode)
}

func TestAddTransportFailure(t *testing.T) {
	f := newFixture(t, space.Params{})
	f.mock.FailRPC = true
	path, _, _ := writeTorrent(t, t.TempDir(), "x", 10)

	_, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl"})
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Empty(t, f.dedup.stored)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AddTotal.WithLabelValues(metrics.OutcomeFailed)))
}

func TestAddBatch(t *testing.T) {
	dir := t.TempDir()
	ok1, _, _ := writeTorrent(t, dir, "one", 10)
	ok2, _, _ := writeTorrent(t, dir, "two", 10)
	existing, existingHash, _ := writeTorrent(t, dir, "three", 10)
	missing := filepath.Join(dir, "missing.torrent")

	f := newFixture(t, space.Params{})
	f.dedup.seen[existingHash] = time.Now()

	var reported []Outcome
	sources := []Source{ParseSource(ok1), ParseSource(missing), ParseSource(existing), ParseSource(ok2)}
	outcomes, err := f.svc.AddBatch(context.Background(), sources, Options{DownloadDir: "dl"}, func(o Outcome) {
		reported = append(reported, o)
	})

	var multi *domain.MultipleError
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, 1, multi.Count)
	require.Len(t, outcomes, 4)
	assert.Len(t, reported, 4)

	assert.NoError(t, outcomes[0].Err)
	assert.Error(t, outcomes[1].Err)
	assert.True(t, domain.IsNothingToDo(outcomes[2].Err))
	assert.NoError(t, outcomes[3].Err)
	assert.Len(t, f.addCalls(), 2)
}

func TestAddBatchSingleReturnsOwnError(t *testing.T) {
	f := newFixture(t, space.Params{})

	_, err := f.svc.AddBatch(context.Background(), []Source{ParseSource("/nonexistent.torrent")}, Options{}, nil)
	require.Error(t, err)
	var multi *domain.MultipleError
	assert.False(t, errors.As(err, &multi))
}

func TestSetConfig(t *testing.T) {
	f := newFixture(t, space.Params{})
	f.svc.SetConfig(Config{BaseDir: "/elsewhere"})
	path, hash, _ := writeTorrent(t, t.TempDir(), "x", 10)

	res, err := f.svc.Add(context.Background(), ParseSource(path), Options{DownloadDir: "dl"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/elsewhere/dl", hash), res.DownloadDir)
	assert.Equal(t, 0, res.Budget.Torrents)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package control

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trctl/internal/console"
	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/query"
	"github.com/autobrr/trctl/internal/transmission"
)

const (
	testBaseDir = "/base"
	testDlDir   = "/base/dl"
)

type fixture struct {
	mock   *transmission.Mock
	svc    *Service
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newFixture(t *testing.T, input string, interactive bool, dlDir string) *fixture {
	t.Helper()

	f := &fixture{
		mock:   transmission.NewMock([]string{dlDir}),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	con := console.New(strings.NewReader(input), f.out, f.errOut, console.Options{
		BaseDir:     testBaseDir,
		Interactive: interactive,
	})
	f.svc = NewService(f.mock, con, Config{
		BaseDir: testBaseDir,
		DlDirs:  []string{dlDir},
	})
	f.svc.stdout = io.Discard
	f.svc.stderr = io.Discard
	return f
}

func (f *fixture) methods() []string {
	var out []string
	for _, c := range f.mock.Calls() {
		out = append(out, c.Method)
	}
	return out
}

const (
	rowTesting  = "   1   100%     2.4G     2.4G   Unknown        0        0    0.8  Idle       dl//testing.pdf"
	rowTesting2 = "   2   100%     2.4G     2.4G   Unknown        0        0    0.8  Idle       dl//testing2.pdf\n       error: error!!!"
	rowTesting3 = "   3   100%     2.4G     2.4G   Unknown        0        0    0.8  Idle       dl//testing3.pdf"
)

func footer(have string) string {
	return "Sum:  " + strings.Repeat(" ", 13-len(have)) + have + "G  " + strings.Repeat(" ", 25) + "0  " + strings.Repeat(" ", 6) + "0"
}

func table(rows ...string) string {
	have := "2.4"
	if len(rows) == 3 {
		have = "7.1"
	}
	return console.Header + "\n" + strings.Join(rows, "\n") + "\n" + footer(have) + "\n"
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name    string
		spec    query.Spec
		want    []string
		wantErr error
	}{
		{name: "all", spec: query.Spec{}, want: []string{"testing.pdf", "testing2.pdf", "testing3.pdf"}},
		{name: "pattern", spec: query.Spec{Patterns: []string{"testing2"}}, want: []string{"testing2.pdf"}},
		{name: "reverse id", spec: query.Spec{Sort: query.SortID, Reverse: true}, want: []string{"testing3.pdf", "testing2.pdf", "testing.pdf"}},
		{name: "ids", spec: query.Spec{IDs: []int64{3}}, want: []string{"testing3.pdf"}},
		{name: "not found", spec: query.Spec{Patterns: []string{"missing"}}, wantErr: domain.ErrNoMatches},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "", false, testDlDir)

			torrents, err := f.svc.Query(context.Background(), tt.spec)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, tor := range torrents {
				names = append(names, *tor.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestQueryEmptyDaemon(t *testing.T) {
	f := newFixture(t, "", false, testDlDir)
	f.mock.SetTorrents(nil)

	_, err := f.svc.Query(context.Background(), query.Spec{})
	require.ErrorIs(t, err, domain.ErrNoMatches)
}

func TestQueryTransportFailure(t *testing.T) {
	f := newFixture(t, "", false, testDlDir)
	f.mock.FailRPC = true

	_, err := f.svc.Query(context.Background(), query.Spec{})
	var transportErr *domain.TransportError
	require.True(t, errors.As(err, &transportErr))
}

func TestEraseConfirmed(t *testing.T) {
	f := newFixture(t, "y\n", true, testDlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"testing.pdf"}}, false)
	require.NoError(t, err)

	assert.Equal(t, table(rowTesting)+"Select [y/N]: -- erase: testing.pdf\n", f.out.String())
	assert.Empty(t, f.errOut.String())

	calls := f.mock.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "torrent-remove", calls[1].Method)
	assert.False(t, calls[1].Delete)
	assert.Equal(t, []transmission.ID{transmission.HashID(transmission.MockHash)}, calls[1].IDs)
}

func TestEraseDeclined(t *testing.T) {
	f := newFixture(t, "n\n", true, testDlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"testing.pdf"}}, false)
	require.True(t, domain.IsNothingToDo(err))
	assert.Equal(t, []string{"torrent-get"}, f.methods())
}

func TestEraseInvalidInput(t *testing.T) {
	f := newFixture(t, "y\n6\n-2\n2\na\n", true, testDlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"tes"}}, false)
	require.NoError(t, err)

	prompt := "Select [a/{n}/N]: "
	want := table(rowTesting, rowTesting2, rowTesting3) + strings.Repeat(prompt, 4) + "-- erase: testing2.pdf\n"
	assert.Equal(t, want, f.out.String())
	assert.Equal(t, "-w Invalid number 'y'\n-w Invalid id\n-w Invalid id\n", f.errOut.String())
}

func TestEraseEOF(t *testing.T) {
	f := newFixture(t, "", true, testDlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"testing.pdf"}}, false)
	require.ErrorIs(t, err, console.ErrUnexpectedEOF)
}

func TestEraseNotFound(t *testing.T) {
	f := newFixture(t, "", true, testDlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"nothing"}}, false)
	require.ErrorIs(t, err, domain.ErrNoMatches)
}

func TestEraseFilesMode(t *testing.T) {
	f := newFixture(t, "", false, testDlDir)

	spec := query.Spec{Files: true, Patterns: []string{"missing.pdf", "testing.pdf", "gone.pdf"}}
	err := f.svc.Erase(context.Background(), spec, false)
	require.NoError(t, err)

	assert.Equal(t, "-w Nothing found\n-w Nothing found\n", f.errOut.String())
	assert.Contains(t, f.out.String(), "-- missing.pdf:\n")
	assert.Contains(t, f.out.String(), "-- erase: testing.pdf\n")
	assert.Contains(t, f.out.String(), "-- gone.pdf:\n")

	// one fetch, one removal
	assert.Equal(t, []string{"torrent-get", "torrent-remove"}, f.methods())
}

func TestRemoveWithData(t *testing.T) {
	dlDir := t.TempDir()
	hashDir := filepath.Join(dlDir, transmission.MockHash)
	require.NoError(t, os.Mkdir(hashDir, 0o755))

	f := newFixture(t, "", false, dlDir)

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"testing.pdf"}}, true)
	require.NoError(t, err)

	assert.Contains(t, f.out.String(), "-- rm: testing.pdf\n")
	assert.Contains(t, f.out.String(), "-- rmdir "+hashDir+"\n")
	assert.NoDirExists(t, hashDir)

	calls := f.mock.Calls()
	require.Len(t, calls, 2)
	assert.True(t, calls[1].Delete)
}

func TestRemoveRemoteKeepsHashDir(t *testing.T) {
	dlDir := t.TempDir()
	hashDir := filepath.Join(dlDir, transmission.MockHash)
	require.NoError(t, os.Mkdir(hashDir, 0o755))

	f := newFixture(t, "", false, dlDir)
	f.svc.cfg.Remote = true

	err := f.svc.Erase(context.Background(), query.Spec{Patterns: []string{"testing.pdf"}}, true)
	require.NoError(t, err)
	assert.DirExists(t, hashDir)
}

func TestClean(t *testing.T) {
	moved := transmission.MockTorrent(4, "moved.pdf", "/base/archive")
	finished := true
	moved.IsFinished = &finished
	stopped := transmission.StatusStopped
	moved.Status = &stopped

	staged := transmission.MockTorrent(5, "staged.pdf", testDlDir)
	staged.IsFinished = &finished
	staged.Status = &stopped

	f := newFixture(t, "", false, testDlDir)
	f.mock.SetTorrents([]transmission.Torrent{moved, staged})

	require.NoError(t, f.svc.Clean(context.Background(), query.Spec{}))
	assert.Contains(t, f.out.String(), "-- erase: moved.pdf\n")
	assert.NotContains(t, f.out.String(), "erase: staged.pdf")

	calls := f.mock.Calls()
	require.Len(t, calls, 2)
	assert.False(t, calls[1].Delete)
}

func TestCleanNothingFinished(t *testing.T) {
	f := newFixture(t, "", false, testDlDir)
	require.ErrorIs(t, f.svc.Clean(context.Background(), query.Spec{}), domain.ErrNoMatches)
}

func TestAct(t *testing.T) {
	tests := []struct {
		name    string
		action  transmission.Action
		method  string
		heading string
		wantErr error
	}{
		{name: "stop", action: transmission.ActionStop, method: "torrent-stop", heading: "-- Stopped:\n"},
		{name: "verify", action: transmission.ActionVerify, method: "torrent-verify", heading: "-- Verifying:\n"},
		{name: "reannounce", action: transmission.ActionReannounce, method: "torrent-reannounce", heading: "-- Reannouncing:\n"},
		{name: "start needs stopped", action: transmission.ActionStart, wantErr: domain.ErrNoMatches},
		{name: "start-now needs queued or stopped", action: transmission.ActionStartNow, wantErr: domain.ErrNoMatches},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "", false, testDlDir)

			err := f.svc.Act(context.Background(), query.Spec{}, tt.action)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			calls := f.mock.Calls()
			require.Len(t, calls, 2)
			assert.Equal(t, tt.method, calls[1].Method)
			assert.Len(t, calls[1].IDs, 3)

			assert.Contains(t, f.out.String(), tt.heading+"-- 1: testing.pdf\n-- 2: testing2.pdf\n-- 3: testing3.pdf\n")
		})
	}
}

func TestPresetStatuses(t *testing.T) {
	spec := query.Spec{Statuses: []transmission.Status{transmission.StatusStopped}}
	PresetStatuses(&spec, transmission.ActionStartNow)

	assert.ElementsMatch(t, []transmission.Status{
		transmission.StatusStopped,
		transmission.StatusQueuedToDownload,
		transmission.StatusQueuedToSeed,
		transmission.StatusQueuedToVerify,
	}, spec.Statuses)
	require.NotNil(t, spec.Finished)
	assert.False(t, *spec.Finished)

	spec = query.Spec{}
	PresetStatuses(&spec, transmission.ActionVerify)
	assert.Empty(t, spec.Statuses)
	assert.Nil(t, spec.Finished)
}

func TestSetLocation(t *testing.T) {
	tests := []struct {
		name    string
		move    bool
		heading string
	}{
		{name: "set", move: false, heading: "-- Location set\n"},
		{name: "move", move: true, heading: "-- Torrent moved\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "y\n", true, testDlDir)

			err := f.svc.SetLocation(context.Background(), query.Spec{IDs: []int64{3}}, "/new/place", tt.move)
			require.NoError(t, err)

			calls := f.mock.Calls()
			require.Len(t, calls, 2)
			assert.Equal(t, "torrent-set-location", calls[1].Method)
			assert.Equal(t, "/new/place", calls[1].Location)
			assert.Equal(t, tt.move, calls[1].Move)
			assert.Contains(t, f.out.String(), tt.heading+"-- 3: testing3.pdf\n")
		})
	}
}

func TestCompletionEntries(t *testing.T) {
	f := newFixture(t, "", false, testDlDir)

	torrents, err := f.svc.CompletionEntries(context.Background(), query.Spec{Sort: query.SortName})
	require.NoError(t, err)
	require.Len(t, torrents, 3)
	assert.Equal(t, int64(3), *torrents[0].ID)
	assert.Equal(t, int64(1), *torrents[2].ID)
}

func TestActionHeading(t *testing.T) {
	assert.Equal(t, "Started immediately:", ActionHeading(transmission.ActionStartNow))
	assert.Equal(t, "Started:", ActionHeading(transmission.ActionStart))
}

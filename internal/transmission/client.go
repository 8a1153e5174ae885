// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package transmission talks to a Transmission daemon over its JSON-RPC
// interface and provides an in-memory stand-in for tests and dry runs.
package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/trctl/internal/buildinfo"
	"github.com/autobrr/trctl/internal/domain"
)

// SessionIDHeader carries the CSRF token the daemon hands out with 409 responses.
const SessionIDHeader = "X-Transmission-Session-Id"

var (
	freeSpaceMinVersion  = semver.MustParse("2.80.0")
	startNowMinVersion   = semver.MustParse("2.40.0")
	reannounceMinVersion = semver.MustParse("2.40.0")
)

// Client is the set of daemon operations trctl relies on.
type Client interface {
	// Get returns records carrying the requested fields. No ids means all torrents.
	Get(ctx context.Context, fields []string, ids ...ID) ([]Torrent, error)
	Add(ctx context.Context, req AddRequest) (AddResponse, error)
	Remove(ctx context.Context, ids []ID, deleteData bool) error
	Action(ctx context.Context, action Action, ids ...ID) error
	SetLocation(ctx context.Context, location string, move bool, ids ...ID) error
	FreeSpace(ctx context.Context, path string) (int64, error)
	Session(ctx context.Context) (Session, error)
}

// Options configures an HTTPClient.
type Options struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
}

type HTTPClient struct {
	url        string
	username   string
	password   string
	httpClient *http.Client

	mu        sync.RWMutex
	sessionID string
	tag       int

	capMu              sync.RWMutex
	version            string
	capabilitiesLoaded bool
	supportsFreeSpace  bool
	supportsStartNow   bool
	supportsReannounce bool
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(opts Options) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPClient{
		url:      opts.URL,
		username: opts.Username,
		password: opts.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// capabilities stay permissive until the daemon version is known
		supportsFreeSpace:  true,
		supportsStartNow:   true,
		supportsReannounce: true,
	}
}

// errSessionConflict signals a 409 whose session id has been stored.
var errSessionConflict = errors.New("session id conflict")

// call performs one RPC, replaying it once when the daemon rotates the session id.
func (c *HTTPClient) call(ctx context.Context, method string, args any, out any) error {
	c.mu.Lock()
	c.tag++
	tag := c.tag
	c.mu.Unlock()

	body, err := json.Marshal(request{Method: method, Arguments: args, Tag: tag})
	if err != nil {
		return &domain.TransportError{Op: method, Err: errors.Wrap(err, "encode request")}
	}

	var resp response
	err = retry.Do(
		func() error {
			return c.post(ctx, body, &resp)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, errSessionConflict)
		}),
	)
	if err != nil {
		return &domain.TransportError{Op: method, Err: err}
	}

	if resp.Result != "success" {
		return &domain.TransportError{Op: method, Err: errors.Errorf("daemon returned %q", resp.Result)}
	}

	if out == nil || len(resp.Arguments) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Arguments, out); err != nil {
		return &domain.TransportError{Op: method, Err: errors.Wrap(err, "decode arguments")}
	}

	return nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte, out *response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	c.mu.RLock()
	if c.sessionID != "" {
		req.Header.Set(SessionIDHeader, c.sessionID)
	}
	c.mu.RUnlock()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		id := res.Header.Get(SessionIDHeader)
		if id == "" {
			return errors.New("409 response without session id")
		}
		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
		log.Trace().Str("sessionID", id).Msg("Stored new transmission session id")
		return errSessionConflict
	case http.StatusUnauthorized:
		return errors.New("unauthorized: check rpcUser and rpcPass")
	default:
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return errors.Errorf("unexpected status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}

	return nil
}

// RefreshCapabilities reads the daemon version and enables the methods it supports.
func (c *HTTPClient) RefreshCapabilities(ctx context.Context) error {
	session, err := c.Session(ctx)
	if err != nil {
		return err
	}

	// "4.0.6 (38c164933e)" → "4.0.6"
	raw := strings.Fields(session.Version)
	if len(raw) == 0 {
		return errors.New("daemon did not report a version")
	}

	v, err := semver.NewVersion(raw[0])
	if err != nil {
		return errors.Wrapf(err, "parse daemon version %q", session.Version)
	}

	c.capMu.Lock()
	defer c.capMu.Unlock()

	c.version = v.String()
	c.capabilitiesLoaded = true
	c.supportsFreeSpace = !v.LessThan(freeSpaceMinVersion)
	c.supportsStartNow = !v.LessThan(startNowMinVersion)
	c.supportsReannounce = !v.LessThan(reannounceMinVersion)

	log.Debug().
		Str("version", c.version).
		Int("rpcVersion", session.RPCVersion).
		Bool("supportsFreeSpace", c.supportsFreeSpace).
		Bool("supportsStartNow", c.supportsStartNow).
		Bool("supportsReannounce", c.supportsReannounce).
		Msg("Transmission capabilities refreshed")

	return nil
}

func (c *HTTPClient) Version() string {
	c.capMu.RLock()
	defer c.capMu.RUnlock()
	return c.version
}

func (c *HTTPClient) SupportsFreeSpace() bool {
	c.capMu.RLock()
	defer c.capMu.RUnlock()
	return c.supportsFreeSpace
}

func (c *HTTPClient) supportsAction(action Action) bool {
	c.capMu.RLock()
	defer c.capMu.RUnlock()
	switch action {
	case ActionStartNow:
		return c.supportsStartNow
	case ActionReannounce:
		return c.supportsReannounce
	default:
		return true
	}
}

func (c *HTTPClient) Get(ctx context.Context, fields []string, ids ...ID) ([]Torrent, error) {
	args := map[string]any{"fields": fields}
	if len(ids) > 0 {
		args["ids"] = ids
	}

	var out struct {
		Torrents []Torrent `json:"torrents"`
	}
	if err := c.call(ctx, "torrent-get", args, &out); err != nil {
		return nil, err
	}

	return out.Torrents, nil
}

func (c *HTTPClient) Add(ctx context.Context, req AddRequest) (AddResponse, error) {
	var out addResult
	if err := c.call(ctx, "torrent-add", req, &out); err != nil {
		return AddResponse{}, err
	}

	switch {
	case out.Added != nil:
		return AddResponse{ID: out.Added.ID, Name: out.Added.Name, HashString: out.Added.HashString}, nil
	case out.Duplicate != nil:
		return AddResponse{Duplicate: true, ID: out.Duplicate.ID, Name: out.Duplicate.Name, HashString: out.Duplicate.HashString}, nil
	default:
		return AddResponse{}, &domain.TransportError{Op: "torrent-add", Err: errors.New("response names no torrent")}
	}
}

func (c *HTTPClient) Remove(ctx context.Context, ids []ID, deleteData bool) error {
	return c.call(ctx, "torrent-remove", map[string]any{
		"ids":               ids,
		"delete-local-data": deleteData,
	}, nil)
}

func (c *HTTPClient) Action(ctx context.Context, action Action, ids ...ID) error {
	if !c.supportsAction(action) {
		return &domain.TransportError{Op: action.method(), Err: fmt.Errorf("not supported by daemon %s", c.Version())}
	}

	var args any
	if len(ids) > 0 {
		args = map[string]any{"ids": ids}
	}
	return c.call(ctx, action.method(), args, nil)
}

func (c *HTTPClient) SetLocation(ctx context.Context, location string, move bool, ids ...ID) error {
	return c.call(ctx, "torrent-set-location", map[string]any{
		"ids":      ids,
		"location": location,
		"move":     move,
	}, nil)
}

func (c *HTTPClient) FreeSpace(ctx context.Context, path string) (int64, error) {
	if !c.SupportsFreeSpace() {
		return 0, &domain.TransportError{Op: "free-space", Err: fmt.Errorf("not supported by daemon %s", c.Version())}
	}

	var out freeSpace
	if err := c.call(ctx, "free-space", map[string]any{"path": path}, &out); err != nil {
		return 0, err
	}

	return out.SizeBytes, nil
}

func (c *HTTPClient) Session(ctx context.Context) (Session, error) {
	var out Session
	if err := c.call(ctx, "session-get", nil, &out); err != nil {
		return Session{}, err
	}
	return out, nil
}

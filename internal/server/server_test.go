package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playroom/internal/ledger"
	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/moderation"
	"github.com/desertthunder/playroom/internal/reconcile"
	"github.com/desertthunder/playroom/internal/shared"
	"github.com/desertthunder/playroom/internal/store"
	tu "github.com/desertthunder/playroom/internal/testing"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, query string) (*models.Artifact, error)

func (f fetchFunc) Fetch(ctx context.Context, query string) (*models.Artifact, error) {
	return f(ctx, query)
}

func cachedFetcher(_ context.Context, query string) (*models.Artifact, error) {
	switch query {
	case "too big":
		return nil, fmt.Errorf("%w: 60 MB", shared.ErrOversizedArtifact)
	case "slow":
		return nil, fmt.Errorf("%w: gave up", shared.ErrTimeout)
	}
	return &models.Artifact{Key: shared.CacheKey(query), Title: "Fetched " + query, Size: 10}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	_, ts, s := newServer(t)
	return ts, s
}

func newServer(t *testing.T) (*Server, *httptest.Server, *store.Store) {
	t.Helper()
	_, rdb := tu.NewRedis(t)
	logger := log.New(io.Discard)
	s := store.New(rdb, logger)

	l, err := ledger.New(ledger.Options{Store: s, Logger: logger, DefaultModeration: true})
	require.NoError(t, err)
	q, err := moderation.New(moderation.Options{Store: s, Logger: logger, StaleAfter: l.StaleAfter()})
	require.NoError(t, err)
	rec, err := reconcile.New(reconcile.Options{Store: s, Ledger: l, Queue: q, Logger: logger})
	require.NoError(t, err)

	srv, err := New(Options{Store: s, Ledger: l, Queue: q, Reconciler: rec, Fetcher: fetchFunc(cachedFetcher), Logger: logger})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	return srv, ts, s
}

func do(t *testing.T, ts *httptest.Server, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func submit(t *testing.T, ts *httptest.Server, query string) models.LedgerEntry {
	t.Helper()
	var entry models.LedgerEntry
	status := do(t, ts, http.MethodPost, "/rooms/r1/tracks", map[string]any{"query": query, "submitter_id": "u1"}, &entry)
	require.Equal(t, http.StatusCreated, status)
	return entry
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	var body map[string]any
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestModerationFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	entry := submit(t, ts, "song a")
	assert.Equal(t, "Fetched song a", entry.Title)
	assert.Equal(t, shared.CacheKey("song a"), entry.ArtifactKey)

	var pending []models.LedgerEntry
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/rooms/r1/pending", nil, &pending))
	require.Len(t, pending, 1)

	path := "/rooms/r1/tracks/" + entry.Token
	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, path+"/review", decisionBody{Admin: "alice"}, nil))
	assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, path+"/review", decisionBody{Admin: "bob"}, nil))
	assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, path+"/approve", decisionBody{Admin: "bob"}, nil))

	var approved struct {
		Entry          models.PlaylistEntry `json:"entry"`
		AlreadyApplied bool                 `json:"already_applied"`
	}
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, path+"/approve", decisionBody{Admin: "alice"}, &approved))
	assert.False(t, approved.AlreadyApplied)
	assert.Equal(t, 1, approved.Entry.Position)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, path+"/approve", decisionBody{Admin: "alice"}, &approved))
	assert.True(t, approved.AlreadyApplied)

	assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, path+"/reject", decisionBody{Admin: "alice"}, nil),
		"decided tokens report a conflict rather than not found")

	var rows []models.PlaylistEntry
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/rooms/r1/playlist", nil, &rows))
	assert.Len(t, rows, 1)

	var views []models.SubmitterView
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/rooms/r1/mine?user=u1", nil, &views))
	require.Len(t, views, 1)
	assert.Equal(t, models.StateApproved, views[0].Status)

	var removed models.PlaylistEntry
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodDelete, "/rooms/r1/playlist/1?actor=alice", nil, &removed))
	assert.Equal(t, entry.Token, removed.Token)
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodDelete, "/rooms/r1/playlist/first", nil, nil))
}

func TestRejectRestore(t *testing.T) {
	ts, _ := newTestServer(t)
	entry := submit(t, ts, "song a")
	path := "/rooms/r1/tracks/" + entry.Token

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, path+"/reject", decisionBody{Admin: "alice"}, nil))

	var rejected []models.RejectedEntry
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/rooms/r1/rejected", nil, &rejected))
	require.Len(t, rejected, 1)

	var row models.PlaylistEntry
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, path+"/restore", decisionBody{Admin: "alice"}, &row))
	assert.Equal(t, entry.Token, row.Token)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/rooms/r1/rejected", nil, &rejected))
	assert.Empty(t, rejected)
}

func TestSubmitErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"missing query", map[string]any{"submitter_id": "u1"}, http.StatusBadRequest},
		{"missing submitter", map[string]any{"query": "x"}, http.StatusBadRequest},
		{"oversized", map[string]any{"query": "too big", "submitter_id": "u1"}, http.StatusRequestEntityTooLarge},
		{"timeout", map[string]any{"query": "slow", "submitter_id": "u1"}, http.StatusGatewayTimeout},
		{"unknown field", map[string]any{"query": "x", "submitter_id": "u1", "color": "red"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			assert.Equal(t, tt.status, do(t, ts, http.MethodPost, "/rooms/r1/tracks", tt.body, &body))
			assert.NotEmpty(t, body["error"])
		})
	}

	t.Run("duplicate", func(t *testing.T) {
		require.Equal(t, http.StatusOK, do(t, ts, http.MethodPut, "/rooms/r2/moderation", moderationBody{Required: false}, nil))
		body := map[string]any{"artifact_key": "k1", "title": "Song", "submitter_id": "u1"}
		require.Equal(t, http.StatusCreated, do(t, ts, http.MethodPost, "/rooms/r2/tracks", body, nil))
		assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, "/rooms/r2/tracks", body, nil))
	})

	t.Run("unknown token", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodPost, "/rooms/r1/tracks/0000000000000000/approve", decisionBody{Admin: "a"}, nil))
		assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/rooms/r1/tracks/0000000000000000/", nil, nil))
	})
}

func TestReconcileEndpoint(t *testing.T) {
	ts, s := newTestServer(t)
	entry := submit(t, ts, "song a")
	require.NoError(t, s.Client().Del(context.Background(), store.QueueKey("r1")).Err())

	var report reconcile.Report
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/rooms/r1/reconcile", nil, &report))
	require.Equal(t, 1, report.Repaired)
	assert.Equal(t, entry.Token, report.Actions[0].Token)
}

func TestEvents(t *testing.T) {
	ts, _ := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/r1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	entry := submit(t, ts, "song a")

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var ev models.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, models.EventSubmitted, ev.Kind)
	assert.Equal(t, entry.Token, ev.Token)
}

func TestEventsEndOnClose(t *testing.T) {
	srv, ts, _ := newServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/rooms/r1/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	srv.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	assert.Equal(t, http.StatusOK, do(t, ts, http.MethodGet, "/health", nil, nil))
}

func TestStatusFor(t *testing.T) {
	decided := fmt.Errorf("%w (%w): gone", shared.ErrAlreadyDecided, shared.ErrNotFound)
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{shared.ErrNotFound, http.StatusNotFound},
		{decided, http.StatusConflict},
		{shared.ErrAlreadyInProgress, http.StatusConflict},
		{shared.ErrNotOwner, http.StatusConflict},
		{shared.ErrDuplicateArtifact, http.StatusConflict},
		{shared.ErrOversizedArtifact, http.StatusRequestEntityTooLarge},
		{shared.ErrMissingArgument, http.StatusBadRequest},
		{shared.ErrStorageFailure, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}
